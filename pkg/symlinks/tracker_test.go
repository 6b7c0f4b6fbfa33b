// TEST TYPE: Integration Test
// DEPENDENCIES: Filesystem (t.TempDir), lockfile
// PURPOSE: Verify the tracked-symlink lifecycle: add, status, restore, rehash, undo and discover

package symlinks_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/PatWie/sprout/pkg/lockfile"
	"github.com/PatWie/sprout/pkg/paths"
	"github.com/PatWie/sprout/pkg/reconcile"
	"github.com/PatWie/sprout/pkg/symlinks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	tracker *symlinks.Tracker
	paths   paths.Paths
	lock    *lockfile.Store
	home    string
}

func setup(t *testing.T) *env {
	t.Helper()
	fsys := filesystem.NewOS()
	home := t.TempDir()
	p, err := paths.New(t.TempDir(), home)
	require.NoError(t, err)
	lock, err := lockfile.Load(fsys, p.LockPath())
	require.NoError(t, err)
	return &env{tracker: symlinks.New(fsys, p, lock), paths: p, lock: lock, home: home}
}

func (e *env) write(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(e.home, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (e *env) state(t *testing.T, rel string) reconcile.State {
	t.Helper()
	statuses := e.tracker.Status(context.Background(), rel)
	require.Len(t, statuses, 1)
	require.NoError(t, statuses[0].Err)
	return statuses[0].State
}

func TestAddDeleteRestore(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	real := e.write(t, "bob_file", "bob's content\n")

	rel, err := e.tracker.Add(ctx, real, false)
	require.NoError(t, err)
	assert.Equal(t, "bob_file", rel)

	target, err := os.Readlink(real)
	require.NoError(t, err)
	assert.Equal(t, e.paths.CanonicalPath("bob_file"), target)
	entry, ok := e.lock.Symlink("bob_file")
	require.True(t, ok)
	assert.Equal(t, string(reconcile.UpToDate), entry.Status)
	assert.Equal(t, reconcile.UpToDate, e.state(t, rel))

	require.NoError(t, os.Remove(real))
	assert.Equal(t, reconcile.Deleted, e.state(t, rel))

	results := e.tracker.Restore(ctx, false)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, reconcile.Restore, results[0].Action)

	assert.Equal(t, reconcile.UpToDate, e.state(t, rel))
	data, err := os.ReadFile(real)
	require.NoError(t, err)
	assert.Equal(t, "bob's content\n", string(data))

	after, _ := e.lock.Symlink("bob_file")
	assert.Equal(t, entry.Fingerprint, after.Fingerprint)
}

func TestUndoThenAddRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	real := e.write(t, ".config/app/config.toml", "key = 1\n")

	rel, err := e.tracker.Add(ctx, real, false)
	require.NoError(t, err)
	first, _ := e.lock.Symlink(rel)

	require.NoError(t, e.tracker.Undo(ctx, rel))
	info, err := os.Lstat(real)
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
	_, ok := e.lock.Symlink(rel)
	assert.False(t, ok)
	_, err = os.Stat(e.paths.CanonicalPath(rel))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(e.paths.SymlinksDir(), ".config"))
	assert.True(t, os.IsNotExist(err), "empty parents are pruned")

	_, err = e.tracker.Add(ctx, real, false)
	require.NoError(t, err)
	second, _ := e.lock.Symlink(rel)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	data, err := os.ReadFile(e.paths.CanonicalPath(rel))
	require.NoError(t, err)
	assert.Equal(t, "key = 1\n", string(data))
}

func TestAdd_Rejections(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	dir := filepath.Join(e.home, ".config", "nvim")
	e.write(t, ".config/nvim/init.lua", "-- lua")
	e.write(t, ".config/other", "x")

	_, err := e.tracker.Add(ctx, dir, false)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput), "directories need recursive")

	_, err = e.tracker.Add(ctx, dir, true)
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		code errors.ErrorCode
	}{
		{name: "already tracked", path: dir, code: errors.ErrInvalidInput},
		{name: "child of tracked", path: filepath.Join(dir, "init.lua"), code: errors.ErrInvalidInput},
		{name: "parent of tracked", path: filepath.Join(e.home, ".config"), code: errors.ErrInvalidInput},
		{name: "missing", path: filepath.Join(e.home, "nope"), code: errors.ErrNotFound},
		{name: "outside tracking root", path: t.TempDir(), code: errors.ErrInvalidInput},
		{name: "inside sprout root", path: e.paths.LockPath(), code: errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.tracker.Add(ctx, tt.path, true)
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, tt.code), "got %v", err)
		})
	}

	// a symlink is never adopted
	link := filepath.Join(e.home, "link")
	require.NoError(t, os.Symlink(filepath.Join(e.home, ".config", "other"), link))
	_, err = e.tracker.Add(ctx, link, false)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
}

func TestModifiedThenRehash(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	real := e.write(t, ".bashrc", "export A=1\n")
	rel, err := e.tracker.Add(ctx, real, false)
	require.NoError(t, err)
	before, _ := e.lock.Symlink(rel)

	// editing through the link changes the canonical copy
	require.NoError(t, os.WriteFile(real, []byte("export A=2\n"), 0o644))
	assert.Equal(t, reconcile.Modified, e.state(t, rel))

	results := e.tracker.Rehash(ctx)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.True(t, results[0].Applied)

	assert.Equal(t, reconcile.UpToDate, e.state(t, rel))
	after, _ := e.lock.Symlink(rel)
	assert.NotEqual(t, before.Fingerprint, after.Fingerprint)

	// nothing left to do
	again := e.tracker.Rehash(ctx)
	assert.False(t, again[0].Applied)
}

func TestRestore_RegularFileNeedsForce(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	real := e.write(t, ".profile", "tracked\n")
	rel, err := e.tracker.Add(ctx, real, false)
	require.NoError(t, err)

	require.NoError(t, os.Remove(real))
	require.NoError(t, os.WriteFile(real, []byte("local edit\n"), 0o644))

	statuses := e.tracker.Status(ctx, rel)
	assert.Equal(t, reconcile.Modified, statuses[0].State)
	assert.NotEmpty(t, statuses[0].Observation.Drift)

	results := e.tracker.Restore(ctx, false, rel)
	require.Error(t, results[0].Err)
	assert.True(t, errors.IsErrorCode(results[0].Err, errors.ErrFilesystem))
	data, _ := os.ReadFile(real)
	assert.Equal(t, "local edit\n", string(data))

	results = e.tracker.Restore(ctx, true, rel)
	require.NoError(t, results[0].Err)
	data, _ = os.ReadFile(real)
	assert.Equal(t, "tracked\n", string(data))
	assert.Equal(t, reconcile.UpToDate, e.state(t, rel))
}

func TestStatus_LinkElsewhere(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	real := e.write(t, ".vimrc", "set nu\n")
	rel, err := e.tracker.Add(ctx, real, false)
	require.NoError(t, err)

	other := e.write(t, "elsewhere", "x")
	require.NoError(t, os.Remove(real))
	require.NoError(t, os.Symlink(other, real))

	statuses := e.tracker.Status(ctx, rel)
	assert.Equal(t, reconcile.Modified, statuses[0].State)
	assert.Contains(t, statuses[0].Observation.Drift, other)

	results := e.tracker.Restore(ctx, false, rel)
	require.NoError(t, results[0].Err)
	assert.Equal(t, reconcile.UpToDate, e.state(t, rel))
}

func TestStatus_IsolatesMissingCanonical(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	a, err := e.tracker.Add(ctx, e.write(t, "a", "a"), false)
	require.NoError(t, err)
	b, err := e.tracker.Add(ctx, e.write(t, "b", "b"), false)
	require.NoError(t, err)

	require.NoError(t, os.Remove(e.paths.CanonicalPath(a)))

	statuses := e.tracker.Status(ctx)
	require.Len(t, statuses, 2)
	assert.True(t, errors.IsErrorCode(statuses[0].Err, errors.ErrFilesystem))
	assert.Equal(t, b, statuses[1].Key)
	assert.NoError(t, statuses[1].Err)
	assert.Equal(t, reconcile.UpToDate, statuses[1].State)

	// undo still works and drops the entry
	require.NoError(t, e.tracker.Undo(ctx, a))
	assert.Equal(t, []string{b}, e.tracker.Tracked())
}

func TestStatus_Idempotent(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	_, err := e.tracker.Add(ctx, e.write(t, "one", "1"), false)
	require.NoError(t, err)
	require.NoError(t, e.lock.Save())

	first := e.tracker.Status(ctx)
	second := e.tracker.Status(ctx)
	assert.Equal(t, first[0].State, second[0].State)
	assert.False(t, e.lock.Dirty())
}

func TestDiscover(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	_, err := e.tracker.Add(ctx, e.write(t, ".config/git/config", "[user]\n"), false)
	require.NoError(t, err)
	_, err = e.tracker.Add(ctx, e.write(t, ".zshrc", "zsh"), false)
	require.NoError(t, err)

	// forget the record but leave files and links in place
	require.True(t, e.lock.DeleteSymlink(".config/git/config"))

	found, err := e.tracker.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{".config/git/config"}, found)
	assert.Equal(t, reconcile.UpToDate, e.state(t, ".config/git/config"))
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	real := e.write(t, "x", "x")
	_, err := e.tracker.Add(ctx, real, false)
	require.NoError(t, err)

	rel, err := e.tracker.Resolve(real)
	require.NoError(t, err)
	assert.Equal(t, "x", rel)

	_, err = e.tracker.Resolve(filepath.Join(e.home, "y"))
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
}
