// TEST TYPE: Unit Test
// DEPENDENCIES: Filesystem (t.TempDir)
// PURPOSE: Verify module, fetch and tree fingerprints are content-only and deterministic

package fingerprint_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/PatWie/sprout/pkg/fingerprint"
	"github.com/PatWie/sprout/pkg/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseModule() manifest.Module {
	return manifest.Module{
		Name:      "rg",
		DependsOn: []string{"rust"},
		Exports:   []manifest.Export{{Name: "PATH", Path: "bin"}},
		Fetch:     &manifest.FetchSpec{Kind: manifest.FetchGit, URL: "https://github.com/BurntSushi/ripgrep", Ref: "14.1.0"},
		Build: &manifest.Stage{
			Env:      []manifest.EnvVar{{Name: "CARGO_HOME", Value: "${DIST_PATH}/cargo"}},
			Commands: []string{"cargo build --release"},
		},
	}
}

func TestModule_ChangesExactlyWithContent(t *testing.T) {
	base := fingerprint.Module(baseModule())
	assert.True(t, strings.HasPrefix(string(base), "sha256:"))
	assert.Len(t, base.Hex(), 64)
	assert.Equal(t, base, fingerprint.Module(baseModule()), "stable across calls")

	unchanged := []struct {
		name   string
		mutate func(m *manifest.Module)
	}{
		{name: "rename", mutate: func(m *manifest.Module) { m.Name = "ripgrep" }},
		{name: "dependencies", mutate: func(m *manifest.Module) { m.DependsOn = nil }},
		{name: "empty install stage", mutate: func(m *manifest.Module) { m.Install = &manifest.Stage{} }},
	}
	for _, tt := range unchanged {
		t.Run("same/"+tt.name, func(t *testing.T) {
			m := baseModule()
			tt.mutate(&m)
			assert.Equal(t, base, fingerprint.Module(m))
		})
	}

	changed := []struct {
		name   string
		mutate func(m *manifest.Module)
	}{
		{name: "fetch ref", mutate: func(m *manifest.Module) { m.Fetch.Ref = "14.1.1" }},
		{name: "fetch kind", mutate: func(m *manifest.Module) { m.Fetch = nil }},
		{name: "build command", mutate: func(m *manifest.Module) { m.Build.Commands[0] = "cargo build" }},
		{name: "build env", mutate: func(m *manifest.Module) { m.Build.Env[0].Value = "/tmp" }},
		{name: "install command", mutate: func(m *manifest.Module) { m.Install = &manifest.Stage{Commands: []string{"true"}} }},
		{name: "update command", mutate: func(m *manifest.Module) { m.Update = &manifest.Stage{Commands: []string{"true"}} }},
		{name: "exports", mutate: func(m *manifest.Module) { m.Exports[0].Path = "sbin" }},
		{name: "command moved between stages", mutate: func(m *manifest.Module) {
			m.Install = m.Build
			m.Build = nil
		}},
		{name: "commands split differently", mutate: func(m *manifest.Module) {
			m.Build.Commands = []string{"cargo build", "--release"}
		}},
	}
	for _, tt := range changed {
		t.Run("differs/"+tt.name, func(t *testing.T) {
			m := baseModule()
			tt.mutate(&m)
			assert.NotEqual(t, base, fingerprint.Module(m))
		})
	}
}

func TestFetch(t *testing.T) {
	a := fingerprint.Fetch(&manifest.FetchSpec{Kind: manifest.FetchArchive, URL: "https://x/a.tgz"})
	b := fingerprint.Fetch(&manifest.FetchSpec{Kind: manifest.FetchHTTP, URL: "https://x/a.tgz"})
	c := fingerprint.Fetch(&manifest.FetchSpec{Kind: manifest.FetchArchive, URL: "https://x/a.tgz", SHA256: strings.Repeat("a", 64)})

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a.Short(), 8)
	assert.Equal(t, a.Hex()[:8], a.Short())

	// build scripts don't move the source directory
	m := baseModule()
	before := fingerprint.Fetch(m.Fetch)
	m.Build.Commands = []string{"make"}
	assert.Equal(t, before, fingerprint.Fetch(m.Fetch))
}

func TestCombine(t *testing.T) {
	own := fingerprint.Bytes([]byte("own"))
	d1 := fingerprint.Bytes([]byte("d1"))
	d2 := fingerprint.Bytes([]byte("d2"))

	assert.Equal(t, fingerprint.Combine(own, d1, d2), fingerprint.Combine(own, d1, d2))
	assert.NotEqual(t, fingerprint.Combine(own, d1, d2), fingerprint.Combine(own, d2, d1))
	assert.NotEqual(t, fingerprint.Combine(own), fingerprint.Combine(own, d1))
	assert.NotEqual(t, fingerprint.Combine(own), own)
}

func writeTree(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin", "tool"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("hello"), 0o644))
	require.NoError(t, os.Symlink("bin/tool", filepath.Join(root, "link")))
}

func TestTree_PathIndependent(t *testing.T) {
	fsys := filesystem.NewOS()
	a := filepath.Join(t.TempDir(), "one")
	b := filepath.Join(t.TempDir(), "elsewhere", "two")
	writeTree(t, a)
	writeTree(t, b)

	fa, err := fingerprint.Tree(fsys, a)
	require.NoError(t, err)
	fb, err := fingerprint.Tree(fsys, b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)

	again, err := fingerprint.Tree(fsys, a)
	require.NoError(t, err)
	assert.Equal(t, fa, again)
}

func TestTree_DetectsChanges(t *testing.T) {
	fsys := filesystem.NewOS()

	tests := []struct {
		name   string
		mutate func(t *testing.T, root string)
	}{
		{name: "content", mutate: func(t *testing.T, root string) {
			require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("bye"), 0o644))
		}},
		{name: "executable bit", mutate: func(t *testing.T, root string) {
			require.NoError(t, os.Chmod(filepath.Join(root, "bin", "tool"), 0o644))
		}},
		{name: "symlink target", mutate: func(t *testing.T, root string) {
			require.NoError(t, os.Remove(filepath.Join(root, "link")))
			require.NoError(t, os.Symlink("README", filepath.Join(root, "link")))
		}},
		{name: "new file", mutate: func(t *testing.T, root string) {
			require.NoError(t, os.WriteFile(filepath.Join(root, "extra"), nil, 0o644))
		}},
		{name: "rename", mutate: func(t *testing.T, root string) {
			require.NoError(t, os.Rename(filepath.Join(root, "README"), filepath.Join(root, "README.md")))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeTree(t, root)
			before, err := fingerprint.Tree(fsys, root)
			require.NoError(t, err)

			tt.mutate(t, root)
			after, err := fingerprint.Tree(fsys, root)
			require.NoError(t, err)
			assert.NotEqual(t, before, after)
		})
	}
}

func TestTree_SkipNames(t *testing.T) {
	fsys := filesystem.NewOS()
	root := t.TempDir()
	writeTree(t, root)

	before, err := fingerprint.Tree(fsys, root, fingerprint.SkipNames(".git"))
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "index"), []byte("x"), 0o644))

	after, err := fingerprint.Tree(fsys, root, fingerprint.SkipNames(".git"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMissingIsAbsent(t *testing.T) {
	fsys := filesystem.NewOS()
	missing := filepath.Join(t.TempDir(), "nope")

	f, err := fingerprint.Tree(fsys, missing)
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Absent, f)
	assert.True(t, f.IsAbsent())

	f, err = fingerprint.File(fsys, missing)
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Absent, f)
}

func TestUnreadableIsFilesystemError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	fsys := filesystem.NewOS()
	root := t.TempDir()
	secret := filepath.Join(root, "secret")
	require.NoError(t, os.WriteFile(secret, []byte("x"), 0o000))

	_, err := fingerprint.Tree(fsys, root)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrFilesystem))
}

func TestFileMatchesBytes(t *testing.T) {
	fsys := filesystem.NewOS()
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	f, err := fingerprint.File(fsys, path)
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Bytes([]byte("data")), f)

	r, err := fingerprint.Reader(strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, f, r)
}

func TestParse(t *testing.T) {
	good := fingerprint.Bytes([]byte("x"))
	got, err := fingerprint.Parse(string(good))
	require.NoError(t, err)
	assert.Equal(t, good, got)

	got, err = fingerprint.Parse("absent")
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Absent, got)

	for _, bad := range []string{"", "md5:abc", "sha256:xyz", "sha256:abcd"} {
		_, err := fingerprint.Parse(bad)
		assert.Error(t, err, bad)
	}
}
