package symlinks

import (
	"context"
	stderrors "errors"
	"io/fs"
	"path/filepath"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/PatWie/sprout/pkg/fingerprint"
	"github.com/PatWie/sprout/pkg/lockfile"
	"github.com/PatWie/sprout/pkg/reconcile"
)

// capability implements reconcile.Capability for tracked keys.
type capability struct {
	t     *Tracker
	force bool
}

func (t *Tracker) capability(force bool) *capability {
	return &capability{t: t, force: force}
}

func (c *capability) Key(rel string) string { return rel }

func (c *capability) Recorded(rel string) (reconcile.Record, bool) {
	e, ok := c.t.lock.Symlink(rel)
	if !ok {
		return reconcile.Record{}, false
	}
	return reconcile.Record{Fingerprint: e.Fingerprint}, true
}

// linkState is what sits at the real path.
type linkState int

const (
	linkMissing linkState = iota
	linkOK
	linkElsewhere
	notALink
)

func (c *capability) inspect(rel string) (linkState, string, error) {
	real := c.t.paths.RealPath(rel)
	canon := c.t.paths.CanonicalPath(rel)

	info, err := c.t.fs.Lstat(real)
	if stderrors.Is(err, fs.ErrNotExist) {
		return linkMissing, "", nil
	}
	if err != nil {
		return 0, "", fsError(err, "cannot inspect", real)
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return notALink, "", nil
	}
	target, err := c.t.fs.Readlink(real)
	if err != nil {
		return 0, "", fsError(err, "cannot read link", real)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(real), target)
	}
	if filepath.Clean(target) == filepath.Clean(canon) {
		return linkOK, target, nil
	}
	return linkElsewhere, target, nil
}

func (c *capability) Observe(_ context.Context, rel string) (reconcile.Observation, error) {
	canon := c.t.paths.CanonicalPath(rel)

	state, target, err := c.inspect(rel)
	if err != nil {
		return reconcile.Observation{}, err
	}
	if state == linkMissing {
		return reconcile.Observation{Present: false, Current: fingerprint.Absent}, nil
	}

	fp, err := fingerprint.Tree(c.t.fs, canon)
	if err != nil {
		return reconcile.Observation{}, err
	}
	if fp.IsAbsent() {
		return reconcile.Observation{}, errors.Newf(errors.ErrFilesystem,
			"canonical copy %s is missing", canon).WithDetail(errors.DetailPath, canon)
	}

	obs := reconcile.Observation{Present: true, Current: fp}
	switch state {
	case notALink:
		obs.Drift = "real path is not a symlink"
	case linkElsewhere:
		obs.Drift = describeTarget(target, canon)
	}
	return obs, nil
}

func (c *capability) Apply(ctx context.Context, rel string, action reconcile.Action, st reconcile.Status) error {
	switch action {
	case reconcile.Restore:
		return c.restore(rel, st)
	case reconcile.Rehash:
		c.t.lock.SetSymlink(rel, lockfile.SymlinkEntry{
			Fingerprint: st.Observation.Current,
			Status:      string(reconcile.UpToDate),
			UpdatedAt:   c.t.now(),
		})
		c.t.logger.Info().Str("path", rel).Str("fingerprint", st.Observation.Current.Short()).Msg("Rehashed")
		return nil
	case reconcile.Forget:
		return c.undo(rel)
	}
	return errors.Newf(errors.ErrInternal, "unsupported symlink action %q", action)
}

func (c *capability) restore(rel string, st reconcile.Status) error {
	real := c.t.paths.RealPath(rel)
	canon := c.t.paths.CanonicalPath(rel)

	state, _, err := c.inspect(rel)
	if err != nil {
		return err
	}
	switch state {
	case linkOK:
		return nil
	case notALink:
		if !c.force {
			return errors.Newf(errors.ErrFilesystem,
				"%s exists and is not a symlink; use force to replace it", real).
				WithDetail(errors.DetailPath, real)
		}
		if err := c.t.fs.RemoveAll(real); err != nil {
			return fsError(err, "cannot remove", real)
		}
	case linkElsewhere:
		if err := c.t.fs.Remove(real); err != nil {
			return fsError(err, "cannot remove", real)
		}
	}

	if err := c.t.fs.MkdirAll(filepath.Dir(real), 0o755); err != nil {
		return fsError(err, "cannot create", filepath.Dir(real))
	}
	if err := c.t.fs.Symlink(canon, real); err != nil {
		return fsError(err, "cannot link", real)
	}

	// the recorded fingerprint stays; only the status tag follows the link
	if e, ok := c.t.lock.Symlink(rel); ok {
		if st.Observation.Present && st.Observation.Current != e.Fingerprint {
			e.Status = string(reconcile.Modified)
		} else {
			e.Status = string(reconcile.UpToDate)
		}
		c.t.lock.SetSymlink(rel, e)
	}
	c.t.logger.Info().Str("path", rel).Msg("Restored link")
	return nil
}

func (c *capability) undo(rel string) error {
	if _, ok := c.t.lock.Symlink(rel); !ok {
		return errors.Newf(errors.ErrNotFound, "%s is not tracked", rel).WithDetail(errors.DetailPath, rel)
	}
	real := c.t.paths.RealPath(rel)
	canon := c.t.paths.CanonicalPath(rel)

	state, _, err := c.inspect(rel)
	if err != nil {
		return err
	}
	switch state {
	case notALink:
		return errors.Newf(errors.ErrFilesystem,
			"%s is not a symlink; move it away before undoing", real).WithDetail(errors.DetailPath, real)
	case linkOK, linkElsewhere:
		if err := c.t.fs.Remove(real); err != nil {
			return fsError(err, "cannot remove", real)
		}
	}

	exists, err := filesystem.Exists(c.t.fs, canon)
	if err != nil {
		return fsError(err, "cannot inspect", canon)
	}
	if exists {
		if err := filesystem.MoveTree(c.t.fs, canon, real); err != nil {
			return fsError(err, "cannot move back", canon)
		}
		c.pruneEmptyParents(filepath.Dir(canon))
	}

	c.t.lock.DeleteSymlink(rel)
	c.t.logger.Info().Str("path", rel).Msg("Stopped tracking")
	return nil
}

// pruneEmptyParents removes empty directories left under symlinks/.
func (c *capability) pruneEmptyParents(dir string) {
	root := filepath.Clean(c.t.paths.SymlinksDir())
	for dir = filepath.Clean(dir); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
		entries, err := c.t.fs.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := c.t.fs.Remove(dir); err != nil {
			return
		}
	}
}
