// TEST TYPE: Unit Test
// DEPENDENCIES: Real filesystem (t.TempDir)
// PURPOSE: Verify tree copy/move and atomic writes

package filesystem_test

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "run.sh"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.Symlink("a.txt", filepath.Join(root, "link")))
}

func TestCopyTree(t *testing.T) {
	fsys := filesystem.NewOS()
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	dst := filepath.Join(tmp, "dst")
	buildTree(t, src)

	require.NoError(t, filesystem.CopyTree(fsys, src, dst))

	data, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))

	info, err := os.Stat(filepath.Join(dst, "sub", "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	target, err := os.Readlink(filepath.Join(dst, "link"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", target)

	// source untouched
	_, err = os.Stat(filepath.Join(src, "a.txt"))
	assert.NoError(t, err)
}

func TestMoveTree(t *testing.T) {
	fsys := filesystem.NewOS()
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	dst := filepath.Join(tmp, "nested", "dst")
	buildTree(t, src)

	require.NoError(t, filesystem.MoveTree(fsys, src, dst))

	exists, err := filesystem.Exists(fsys, src)
	require.NoError(t, err)
	assert.False(t, exists)

	data, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
}

func TestWriteFileAtomic(t *testing.T) {
	fsys := filesystem.NewOS()
	tmp := t.TempDir()
	target := filepath.Join(tmp, "state", "sprout.lock")

	require.NoError(t, filesystem.WriteFileAtomic(fsys, target, []byte("one"), 0o644))
	require.NoError(t, filesystem.WriteFileAtomic(fsys, target, []byte("two"), 0o644))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestDirSize(t *testing.T) {
	tmp := t.TempDir()
	buildTree(t, tmp)

	size, err := filesystem.DirSize(tmp)
	require.NoError(t, err)
	assert.Equal(t, int64(len("alpha")+len("#!/bin/sh\n")), size)
}

func TestTempEntries(t *testing.T) {
	fsys := filesystem.NewOS()
	dir := t.TempDir()

	a, err := filesystem.MkdirTemp(fsys, dir, ".stage-")
	require.NoError(t, err)
	b, err := filesystem.MkdirTemp(fsys, dir, ".stage-")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.DirExists(t, a)
	assert.True(t, strings.HasPrefix(filepath.Base(a), ".stage-"))

	f, err := filesystem.CreateTemp(fsys, dir, ".download-")
	require.NoError(t, err)
	_, err = f.Write([]byte("part"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, dir, filepath.Dir(f.Name()))

	r, err := filesystem.Open(fsys, f.Name())
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "part", string(data))

	_, err = filesystem.MkdirTemp(fsys, filepath.Join(dir, "missing"), "x-")
	assert.Error(t, err)
}
