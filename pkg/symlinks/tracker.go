package symlinks

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/PatWie/sprout/pkg/fingerprint"
	"github.com/PatWie/sprout/pkg/lockfile"
	"github.com/PatWie/sprout/pkg/logging"
	"github.com/PatWie/sprout/pkg/paths"
	"github.com/PatWie/sprout/pkg/reconcile"
	"github.com/rs/zerolog"
)

// Tracker manages tracked symlinks for one sprout root.
type Tracker struct {
	fs     filesystem.FS
	paths  paths.Paths
	lock   *lockfile.Store
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a Tracker. The caller saves lock.
func New(fsys filesystem.FS, p paths.Paths, lock *lockfile.Store) *Tracker {
	return &Tracker{
		fs:     fsys,
		paths:  p,
		lock:   lock,
		logger: logging.GetLogger("symlinks"),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

// Tracked returns all tracked keys, sorted.
func (t *Tracker) Tracked() []string {
	return t.lock.SymlinkNames()
}

// Resolve maps a user-supplied path, absolute or relative to the working
// directory, to a tracked key.
func (t *Tracker) Resolve(path string) (string, error) {
	rel, err := t.paths.TrackingRel(path)
	if err != nil {
		return "", err
	}
	if _, ok := t.lock.Symlink(rel); !ok {
		return "", errors.Newf(errors.ErrNotFound, "%s is not tracked", rel).
			WithDetail(errors.DetailPath, rel)
	}
	return rel, nil
}

// Add starts tracking path: its content moves under symlinks/ and path
// becomes a link to it. Directories need recursive.
func (t *Tracker) Add(ctx context.Context, path string, recursive bool) (string, error) {
	abs, err := t.paths.NormalizePath(path)
	if err != nil {
		return "", err
	}
	if paths.ContainsPath(t.paths.Root(), abs) {
		return "", errors.Newf(errors.ErrInvalidInput, "%s is inside the sprout root", abs).
			WithDetail(errors.DetailPath, abs)
	}
	rel, err := t.paths.TrackingRel(abs)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, errors.ErrCanceled, "canceled")
	}

	info, err := t.fs.Lstat(abs)
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		return "", errors.Newf(errors.ErrNotFound, "%s does not exist", abs).WithDetail(errors.DetailPath, abs)
	case err != nil:
		return "", fsError(err, "cannot inspect", abs)
	case info.Mode()&fs.ModeSymlink != 0:
		return "", errors.Newf(errors.ErrInvalidInput, "%s is already a symlink", abs).WithDetail(errors.DetailPath, abs)
	case info.IsDir() && !recursive:
		return "", errors.Newf(errors.ErrInvalidInput, "%s is a directory; add it recursively", abs).WithDetail(errors.DetailPath, abs)
	}

	if err := t.checkOverlap(rel); err != nil {
		return "", err
	}

	canon := t.paths.CanonicalPath(rel)
	exists, err := filesystem.Exists(t.fs, canon)
	if err != nil {
		return "", fsError(err, "cannot inspect", canon)
	}
	if exists {
		return "", errors.Newf(errors.ErrInvalidInput,
			"%s already exists; use rehash --discover to adopt it", canon).WithDetail(errors.DetailPath, canon)
	}

	if err := t.fs.MkdirAll(filepath.Dir(canon), 0o755); err != nil {
		return "", fsError(err, "cannot create", filepath.Dir(canon))
	}
	if err := filesystem.CopyTree(t.fs, abs, canon); err != nil {
		_ = t.fs.RemoveAll(canon)
		return "", fsError(err, "cannot copy", abs)
	}

	fp, err := fingerprint.Tree(t.fs, canon)
	if err != nil {
		_ = t.fs.RemoveAll(canon)
		return "", err
	}

	if err := t.fs.RemoveAll(abs); err != nil {
		_ = t.fs.RemoveAll(canon)
		return "", fsError(err, "cannot remove", abs)
	}
	if err := t.fs.Symlink(canon, abs); err != nil {
		// put the original back
		if rerr := filesystem.MoveTree(t.fs, canon, abs); rerr != nil {
			t.logger.Error().Err(rerr).Str("path", abs).Str("canonical", canon).
				Msg("Failed to restore original after link failure; content remains at canonical path")
		}
		return "", fsError(err, "cannot link", abs)
	}

	t.lock.SetSymlink(rel, lockfile.SymlinkEntry{
		Fingerprint: fp,
		Status:      string(reconcile.UpToDate),
		UpdatedAt:   t.now(),
	})
	t.logger.Info().Str("path", rel).Str("fingerprint", fp.Short()).Msg("Tracking")
	return rel, nil
}

// checkOverlap refuses rel when it, a parent or a child is tracked.
func (t *Tracker) checkOverlap(rel string) error {
	native := filepath.FromSlash(rel)
	for _, tracked := range t.Tracked() {
		other := filepath.FromSlash(tracked)
		switch {
		case tracked == rel:
			return errors.Newf(errors.ErrInvalidInput, "%s is already tracked", rel).
				WithDetail(errors.DetailPath, rel)
		case paths.ContainsPath(other, native):
			return errors.Newf(errors.ErrInvalidInput, "%s is inside tracked %s", rel, tracked).
				WithDetail(errors.DetailPath, rel)
		case paths.ContainsPath(native, other):
			return errors.Newf(errors.ErrInvalidInput, "%s contains tracked %s", rel, tracked).
				WithDetail(errors.DetailPath, rel)
		}
	}
	return nil
}

// Status classifies the given keys, or every tracked key when none are given.
func (t *Tracker) Status(ctx context.Context, rels ...string) []reconcile.Status {
	if len(rels) == 0 {
		rels = t.Tracked()
	}
	return reconcile.New[string](t.capability(false)).ClassifyAll(ctx, rels)
}

// Restore recreates missing or misdirected links. A regular file in the way
// is only replaced with force. Stored fingerprints are not changed.
func (t *Tracker) Restore(ctx context.Context, force bool, rels ...string) []reconcile.Result {
	if len(rels) == 0 {
		rels = t.Tracked()
	}
	return reconcile.New[string](t.capability(force)).Reconcile(ctx, rels, RestorePolicy)
}

// RestorePolicy restores deleted entries and entries whose link points
// elsewhere or was replaced.
func RestorePolicy(st reconcile.Status) reconcile.Action {
	switch {
	case st.State == reconcile.Deleted:
		return reconcile.Restore
	case st.State == reconcile.Modified && st.Observation.Drift != "":
		return reconcile.Restore
	}
	return reconcile.None
}

// Rehash accepts the current canonical content of modified entries as
// their new baseline.
func (t *Tracker) Rehash(ctx context.Context, rels ...string) []reconcile.Result {
	if len(rels) == 0 {
		rels = t.Tracked()
	}
	return reconcile.New[string](t.capability(false)).Reconcile(ctx, rels, RehashPolicy)
}

// RehashPolicy rehashes entries whose link is intact but whose content
// changed.
func RehashPolicy(st reconcile.Status) reconcile.Action {
	if st.State == reconcile.Modified && st.Observation.Drift == "" {
		return reconcile.Rehash
	}
	return reconcile.None
}

// Undo stops tracking rel: the link is removed and the canonical content
// moved back to the real path.
// It works from any state, including a missing canonical copy.
func (t *Tracker) Undo(ctx context.Context, rel string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCanceled, "canceled")
	}
	return t.capability(false).Apply(ctx, rel, reconcile.Forget, reconcile.Status{Key: rel})
}

func fsError(err error, verb, path string) error {
	return errors.Wrapf(err, errors.ErrFilesystem, "%s %s", verb, path).
		WithDetail(errors.DetailPath, path)
}

func describeTarget(target, canon string) string {
	return fmt.Sprintf("links to %s instead of %s", target, canon)
}
