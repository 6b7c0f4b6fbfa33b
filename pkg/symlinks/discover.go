package symlinks

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/fingerprint"
	"github.com/PatWie/sprout/pkg/lockfile"
	"github.com/PatWie/sprout/pkg/reconcile"
)

// Discover walks symlinks/ and starts tracking canonical entries whose real
// path already links to them but which the lockfile does not list, such as
// after the lockfile was lost. It returns the newly tracked keys.
func (t *Tracker) Discover(ctx context.Context) ([]string, error) {
	root := t.paths.SymlinksDir()
	info, err := t.fs.Lstat(root)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	tracked := map[string]bool{}
	for _, rel := range t.Tracked() {
		tracked[rel] = true
	}

	var found []string
	var walk func(dir, prefix string) error
	walk = func(dir, prefix string) error {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrCanceled, "canceled")
		}
		entries, err := t.fs.ReadDir(dir)
		if err != nil {
			return fsError(err, "cannot read", dir)
		}
		for _, entry := range entries {
			rel := path.Join(prefix, entry.Name())
			if tracked[rel] {
				continue
			}

			c := t.capability(false)
			state, _, err := c.inspect(rel)
			if err != nil {
				return err
			}
			canon := filepath.Join(dir, entry.Name())
			if state == linkOK {
				fp, err := fingerprint.Tree(t.fs, canon)
				if err != nil {
					return err
				}
				t.lock.SetSymlink(rel, lockfile.SymlinkEntry{
					Fingerprint: fp,
					Status:      string(reconcile.UpToDate),
					UpdatedAt:   t.now(),
				})
				t.logger.Info().Str("path", rel).Msg("Discovered tracked link")
				found = append(found, rel)
				continue
			}
			if entry.Type()&fs.ModeDir != 0 {
				if err := walk(canon, rel); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(root, ""); err != nil {
		return found, err
	}
	return found, nil
}
