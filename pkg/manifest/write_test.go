// TEST TYPE: Unit Test
// DEPENDENCIES: Filesystem (t.TempDir)
// PURPOSE: Verify canonical formatting and comment-preserving document commits

package manifest_test

import (
	"path/filepath"
	"testing"

	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/PatWie/sprout/pkg/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertSameManifest(t *testing.T, want, got *manifest.Manifest) {
	t.Helper()
	require.Equal(t, want.Names(), got.Names())
	for _, mod := range want.Modules() {
		other, ok := got.Module(mod.Name)
		require.True(t, ok)
		assert.True(t, mod.Equal(other), "module %s differs:\nwant %+v\ngot  %+v", mod.Name, mod, other)
	}
	assert.Equal(t, want.Environments(), got.Environments())
}

func TestFormat_RoundTrip(t *testing.T) {
	m := parseSample(t)

	out := manifest.Format(m)
	assert.NotContains(t, string(out), "# toolchain")
	assert.Contains(t, string(out), "${DIST_PATH}/first")
	assert.NotContains(t, string(out), "$${")

	again, err := manifest.Parse(out, "formatted.sprout")
	require.NoError(t, err)
	assertSameManifest(t, m, again)

	// formatting is a fixed point
	assert.Equal(t, string(out), string(manifest.Format(again)))
}

func TestDocument_CommitPreservesComments(t *testing.T) {
	doc, err := manifest.ParseDocument([]byte(sample), "manifest.sprout")
	require.NoError(t, err)

	next, err := doc.Manifest().Edit(func(d *manifest.Draft) error {
		d.Module("ripgrep").Install.Commands = []string{"echo done", "echo twice"}
		d.Module("rust").Build.Env = append(d.Module("rust").Build.Env, manifest.EnvVar{Name: "NEW", Value: "1"})
		d.RemoveModule("dotfiles")
		if err := d.AddModule(manifest.Module{
			Name:      "fd",
			DependsOn: []string{"rust"},
			Build:     &manifest.Stage{Commands: []string{"cargo install fd-find --root ${DIST_PATH}"}},
		}); err != nil {
			return err
		}
		d.AddToEnvironment("default", "fd")
		return nil
	})
	require.NoError(t, err)

	doc.Commit(next)
	out := string(doc.Bytes())

	assert.Contains(t, out, "# toolchain")
	assert.Contains(t, out, "# keep this comment")
	assert.Contains(t, out, "<<-EOT")
	assert.NotContains(t, out, "dotfiles")

	reparsed, err := manifest.Parse([]byte(out), "manifest.sprout")
	require.NoError(t, err, out)
	assertSameManifest(t, next, reparsed)
	assert.Same(t, next, doc.Manifest())
}

func TestDocument_CommitReordersEnvironment(t *testing.T) {
	doc, err := manifest.ParseDocument([]byte(sample), "manifest.sprout")
	require.NoError(t, err)

	next, err := doc.Manifest().Edit(func(d *manifest.Draft) error {
		stage := d.Module("rust").Build
		stage.Env = []manifest.EnvVar{stage.Env[1], stage.Env[0]}
		return nil
	})
	require.NoError(t, err)

	doc.Commit(next)
	reparsed, err := manifest.Parse(doc.Bytes(), "manifest.sprout")
	require.NoError(t, err)
	assertSameManifest(t, next, reparsed)
}

func TestDocument_LoadAndSave(t *testing.T) {
	fsys := filesystem.NewOS()
	path := filepath.Join(t.TempDir(), "manifest.sprout")

	doc, err := manifest.LoadDocument(fsys, path)
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Manifest().Len())

	next, err := doc.Manifest().Edit(func(d *manifest.Draft) error {
		return d.AddModule(manifest.Module{
			Name:    "tool",
			Exports: []manifest.Export{{Name: "PATH", Path: "bin"}},
			Fetch:   &manifest.FetchSpec{Kind: manifest.FetchGo, Module: "golang.org/x/tools", Version: "v0.1.0"},
		})
	})
	require.NoError(t, err)
	doc.Commit(next)
	require.NoError(t, doc.Save(fsys, path))

	loaded, err := manifest.LoadDocument(fsys, path)
	require.NoError(t, err)
	assertSameManifest(t, next, loaded.Manifest())
}

func TestFormat_ModuleLabels(t *testing.T) {
	m, err := manifest.New([]manifest.Module{{Name: "ripgrep"}, {Name: "my-tool"}, {Name: "tool.v2"}}, nil)
	require.NoError(t, err)

	out := string(manifest.Format(m))
	assert.Contains(t, out, "module ripgrep {")
	assert.Contains(t, out, "module my-tool {")
	assert.Contains(t, out, `module "tool.v2" {`)

	again, err := manifest.Parse([]byte(out), "formatted.sprout")
	require.NoError(t, err)
	assert.Equal(t, []string{"ripgrep", "my-tool", "tool.v2"}, again.Names())
}

func TestDocument_CommitRemovesAttachedComments(t *testing.T) {
	src := "# shared notes\n\n# about old\nmodule old {}\n\nmodule keep {}\n"
	doc, err := manifest.ParseDocument([]byte(src), "manifest.sprout")
	require.NoError(t, err)

	next, err := doc.Manifest().Edit(func(d *manifest.Draft) error {
		d.RemoveModule("old")
		return d.AddModule(manifest.Module{Name: "fresh"})
	})
	require.NoError(t, err)
	doc.Commit(next)
	out := string(doc.Bytes())

	assert.Contains(t, out, "# shared notes")
	assert.NotContains(t, out, "# about old")
	assert.NotContains(t, out, "module old")
	assert.Contains(t, out, "module keep {}")
	assert.Contains(t, out, "module fresh {")
}
