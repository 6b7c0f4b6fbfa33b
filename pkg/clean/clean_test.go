// TEST TYPE: Integration Test
// DEPENDENCIES: Filesystem (t.TempDir), lockfile
// PURPOSE: Verify clean candidate discovery and removal

package clean_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/PatWie/sprout/pkg/clean"
	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/fetch"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/PatWie/sprout/pkg/fingerprint"
	"github.com/PatWie/sprout/pkg/lockfile"
	"github.com/PatWie/sprout/pkg/manifest"
	"github.com/PatWie/sprout/pkg/paths"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkfile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCandidatesAndRemove(t *testing.T) {
	fsys := filesystem.NewOS()
	p, err := paths.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)

	current := &manifest.FetchSpec{Kind: manifest.FetchArchive, URL: "https://example.com/rg-14.tar.gz"}
	old := &manifest.FetchSpec{Kind: manifest.FetchArchive, URL: "https://example.com/rg-13.tar.gz"}
	m, err := manifest.New([]manifest.Module{{Name: "ripgrep", Fetch: current}}, nil)
	require.NoError(t, err)

	keepSource := p.SourcePath("archive", fetch.DirName("ripgrep", current))
	staleSource := p.SourcePath("archive", fetch.DirName("ripgrep", old))
	goneSource := p.SourcePath("git", fetch.DirName("fzf", &manifest.FetchSpec{Kind: manifest.FetchGit, URL: "x"}))
	keepCache := p.CachePath(fetch.DirName("ripgrep", current))
	staleCache := p.CachePath(fetch.DirName("ripgrep", old))

	mkfile(t, filepath.Join(p.DistPath("ripgrep"), "bin", "rg"), "rg")
	mkfile(t, filepath.Join(p.DistPath("fzf"), "bin", "fzf"), "12345")
	mkfile(t, filepath.Join(keepSource, "README"), "new")
	mkfile(t, filepath.Join(staleSource, "README"), "old")
	mkfile(t, filepath.Join(goneSource, "main.go"), "package main")
	mkfile(t, filepath.Join(keepCache, "rg-14.tar.gz"), "a")
	mkfile(t, filepath.Join(staleCache, "rg-13.tar.gz"), "b")

	lock, err := lockfile.Load(fsys, p.LockPath())
	require.NoError(t, err)
	lock.SetModule("ripgrep", lockfile.ModuleEntry{Fingerprint: fingerprint.Bytes([]byte("rg")), Status: "built"})
	lock.SetModule("fzf", lockfile.ModuleEntry{Fingerprint: fingerprint.Bytes([]byte("fzf")), Status: "built"})
	require.NoError(t, lock.Save())

	c := clean.New(fsys, p, lock, m)
	candidates, err := c.Candidates()
	require.NoError(t, err)

	type key struct {
		kind   clean.Kind
		module string
		path   string
		reason string
	}
	var got []key
	for _, cand := range candidates {
		got = append(got, key{cand.Kind, cand.Module, cand.Path, cand.Reason})
	}
	assert.Equal(t, []key{
		{clean.KindDist, "fzf", p.DistPath("fzf"), "unknown module"},
		{clean.KindSource, "fzf", goneSource, "unknown module"},
		{clean.KindSource, "ripgrep", staleSource, "outdated fetch"},
		{clean.KindCache, "ripgrep", staleCache, "outdated fetch"},
		{clean.KindLock, "fzf", "", "unknown module"},
	}, got)
	assert.Equal(t, int64(5), candidates[0].Size)
	assert.Equal(t, int64(5+3+12+1), clean.TotalSize(candidates))

	// Listing does not touch anything.
	assert.DirExists(t, staleSource)
	assert.Equal(t, []string{"fzf", "ripgrep"}, lock.ModuleNames())

	require.NoError(t, c.Remove(candidates))
	assert.NoDirExists(t, p.DistPath("fzf"))
	assert.NoDirExists(t, staleSource)
	assert.NoDirExists(t, goneSource)
	assert.NoDirExists(t, staleCache)
	assert.DirExists(t, keepSource)
	assert.DirExists(t, keepCache)
	assert.DirExists(t, p.DistPath("ripgrep"))

	reloaded, err := lockfile.Load(fsys, p.LockPath())
	require.NoError(t, err)
	assert.Equal(t, []string{"ripgrep"}, reloaded.ModuleNames())

	again, err := c.Candidates()
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestCandidates_EmptyRoot(t *testing.T) {
	fsys := filesystem.NewOS()
	p, err := paths.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	lock, err := lockfile.Load(fsys, p.LockPath())
	require.NoError(t, err)

	candidates, err := clean.New(fsys, p, lock, manifest.Empty()).Candidates()
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

// failingRemoveFS refuses to remove one path.
type failingRemoveFS struct {
	filesystem.FS
	refuse string
}

func (f failingRemoveFS) RemoveAll(path string) error {
	if path == f.refuse {
		return os.ErrPermission
	}
	return f.FS.RemoveAll(path)
}

func TestRemove_ContinuesPastFailures(t *testing.T) {
	p, err := paths.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	fsys := failingRemoveFS{FS: filesystem.NewOS(), refuse: p.DistPath("fzf")}

	mkfile(t, filepath.Join(p.DistPath("fzf"), "bin", "fzf"), "fzf")
	mkfile(t, filepath.Join(p.DistPath("bat"), "bin", "bat"), "bat")

	lock, err := lockfile.Load(fsys, p.LockPath())
	require.NoError(t, err)
	lock.SetModule("fzf", lockfile.ModuleEntry{Fingerprint: fingerprint.Bytes([]byte("fzf")), Status: "built"})
	require.NoError(t, lock.Save())

	c := clean.New(fsys, p, lock, manifest.Empty())
	candidates, err := c.Candidates()
	require.NoError(t, err)

	err = c.Remove(candidates)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrFilesystem))
	assert.Contains(t, err.Error(), p.DistPath("fzf"))

	assert.DirExists(t, p.DistPath("fzf"))
	assert.NoDirExists(t, p.DistPath("bat"))
	reloaded, err := lockfile.Load(filesystem.NewOS(), p.LockPath())
	require.NoError(t, err)
	assert.Empty(t, reloaded.ModuleNames())
}
