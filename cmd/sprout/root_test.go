// TEST TYPE: Integration Test
// DEPENDENCIES: Filesystem (t.TempDir), in-process shell
// PURPOSE: Verify the command tree end to end against a temporary sprout root

package sprout

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/PatWie/sprout/pkg/lockfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloManifest = `# tools

module hello {
  exports = { PATH = "bin" }
  build {
    commands = ["mkdir -p $DIST_PATH/bin", "echo hi > $DIST_PATH/bin/hello"]
  }
}

environments {
  default = [hello]
}
`

type harness struct {
	root string
	home string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	base := t.TempDir()
	h := &harness{root: filepath.Join(base, "sprout"), home: filepath.Join(base, "home")}
	require.NoError(t, os.MkdirAll(h.home, 0o755))

	t.Setenv("HOME", h.home)
	t.Setenv("XDG_STATE_HOME", filepath.Join(base, "state"))
	t.Setenv("SPROUT_CONFIG_DIR", filepath.Join(base, "config"))
	t.Setenv("NO_COLOR", "1")
	return h
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--sprout-path", h.root, "--tracking-path", h.home}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) writeManifest(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(h.root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "manifest.sprout"), []byte(content), 0o644))
}

func (h *harness) lock(t *testing.T) *lockfile.Store {
	t.Helper()
	store, err := lockfile.Load(filesystem.NewOS(), filepath.Join(h.root, "sprout.lock"))
	require.NoError(t, err)
	return store
}

func TestInit(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "init", "--no-git")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized sprout root at "+h.root)

	gitignore, err := os.ReadFile(filepath.Join(h.root, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, "dist/\nsources/\ncache/\nlogs/\n", string(gitignore))
	assert.FileExists(t, filepath.Join(os.Getenv("SPROUT_CONFIG_DIR"), "config.toml"))
	assert.DirExists(t, filepath.Join(h.root, "symlinks"))

	out, err = h.run(t, "manifest", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Manifest OK: 0 modules, 0 environments")

	_, err = h.run(t, "init", "--no-git")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
}

func TestInit_DryRun(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "--dry-run", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Would initialize")
	assert.NoDirExists(t, h.root)
}

func TestModules_BuildStatusRemove(t *testing.T) {
	h := newHarness(t)
	h.writeManifest(t, helloManifest)

	_, err := h.run(t, "modules", "build")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))

	out, err := h.run(t, "modules", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "hello  missing")

	out, err = h.run(t, "modules", "build", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "hello  built [build]")
	data, err := os.ReadFile(filepath.Join(h.root, "dist", "hello", "bin", "hello"))
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(data))

	out, err = h.run(t, "modules", "build", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "hello  up to date")

	out, err = h.run(t, "modules", "status", "-o", "json")
	require.NoError(t, err)
	var view struct {
		Modules []struct {
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"modules"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Len(t, view.Modules, 1)
	assert.Equal(t, "up_to_date", view.Modules[0].State)

	out, err = h.run(t, "modules", "remove", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed module hello")
	assert.NoDirExists(t, filepath.Join(h.root, "dist", "hello"))
	assert.Empty(t, h.lock(t).ModuleNames())

	manifest, err := os.ReadFile(filepath.Join(h.root, "manifest.sprout"))
	require.NoError(t, err)
	assert.NotContains(t, string(manifest), "module hello")
	assert.Contains(t, string(manifest), "# tools")
}

func TestModules_DryRunShowsScripts(t *testing.T) {
	h := newHarness(t)
	h.writeManifest(t, helloManifest)

	out, err := h.run(t, "--dry-run", "modules", "build", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "build (dry run)")
	assert.Contains(t, out, "set -e")
	assert.NoDirExists(t, filepath.Join(h.root, "dist"))
	assert.NoFileExists(t, filepath.Join(h.root, "sprout.lock"))
}

func TestModules_FailureExitsNonZero(t *testing.T) {
	h := newHarness(t)
	h.writeManifest(t, `
module broken {
  build {
    commands = ["exit 3"]
  }
}

module after {
  depends_on = [broken]
}
`)

	out, err := h.run(t, "modules", "build", "--all")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrBuild))
	assert.Contains(t, err.Error(), "2 of 2 modules did not complete")
	assert.Contains(t, out, "broken  failed")
	assert.Contains(t, out, "after  blocked")
}

func TestModules_UnknownTargetSuggests(t *testing.T) {
	h := newHarness(t)
	h.writeManifest(t, helloManifest)

	_, err := h.run(t, "modules", "build", "helo")
	require.Error(t, err)
	assert.Equal(t, errors.KindUnknownModule, errors.ValidationKindOf(err))
	assert.Contains(t, err.Error(), "did you mean hello")
}

func TestModules_HashAccepts(t *testing.T) {
	h := newHarness(t)
	h.writeManifest(t, helloManifest)

	out, err := h.run(t, "modules", "hash")
	require.NoError(t, err)
	assert.Contains(t, out, "hello\n  fingerprint  sha256:")

	out, err = h.run(t, "modules", "hash", "-i")
	require.NoError(t, err)
	assert.Contains(t, out, "Accepted 1 modules")
	assert.Equal(t, []string{"hello"}, h.lock(t).ModuleNames())
}

func TestEnv(t *testing.T) {
	h := newHarness(t)
	h.writeManifest(t, helloManifest)

	out, err := h.run(t, "env", "generate")
	require.NoError(t, err)
	bin := filepath.Join(h.root, "dist", "hello", "bin")
	assert.Contains(t, out, "# Environment: default\n")
	assert.Contains(t, out, `export PATH="`+bin+`${PATH:+:${PATH}}"`)

	_, err = h.run(t, "env", "generate", "work")
	require.Error(t, err)
	assert.Equal(t, errors.KindUnknownEnvironment, errors.ValidationKindOf(err))

	_, err = h.run(t, "env", "add", "work", "nothere")
	require.Error(t, err)
	assert.Equal(t, errors.KindUnknownModule, errors.ValidationKindOf(err))

	out, err = h.run(t, "env", "add", "work", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "Environment work: hello")

	out, err = h.run(t, "env", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "default  hello\n")
	assert.Contains(t, out, "work  hello\n")

	_, err = h.run(t, "env", "remove", "work", "hello")
	require.NoError(t, err)
	out, err = h.run(t, "env", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "work")
}

func TestSymlinks_Lifecycle(t *testing.T) {
	h := newHarness(t)
	h.writeManifest(t, "")
	vimrc := filepath.Join(h.home, ".vimrc")
	require.NoError(t, os.WriteFile(vimrc, []byte("set number\n"), 0o644))

	out, err := h.run(t, "symlinks", "add", vimrc)
	require.NoError(t, err)
	assert.Contains(t, out, "Tracking .vimrc")
	info, err := os.Lstat(vimrc)
	require.NoError(t, err)
	assert.True(t, info.Mode()&os.ModeSymlink != 0)

	out, err = h.run(t, "symlinks", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "(none)")

	out, err = h.run(t, "symlinks", "status", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, ".vimrc  up to date")

	require.NoError(t, os.Remove(vimrc))
	out, err = h.run(t, "symlinks", "status")
	require.NoError(t, err)
	assert.Contains(t, out, ".vimrc  deleted")

	out, err = h.run(t, "--dry-run", "symlinks", "restore")
	require.NoError(t, err)
	assert.Contains(t, out, "would restore")
	_, err = os.Lstat(vimrc)
	assert.True(t, os.IsNotExist(err))

	out, err = h.run(t, "symlinks", "restore")
	require.NoError(t, err)
	assert.Contains(t, out, ".vimrc  restore (was deleted)")

	out, err = h.run(t, "symlinks", "undo", vimrc)
	require.NoError(t, err)
	assert.Contains(t, out, "Stopped tracking .vimrc")
	info, err = os.Lstat(vimrc)
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
	assert.Empty(t, h.lock(t).SymlinkNames())
}

func TestManifestFormat(t *testing.T) {
	h := newHarness(t)
	h.writeManifest(t, helloManifest)

	out, err := h.run(t, "manifest", "format")
	require.NoError(t, err)
	assert.Contains(t, out, "Formatted")

	data, err := os.ReadFile(filepath.Join(h.root, "manifest.sprout"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "# tools")
	assert.True(t, strings.Contains(string(data), "module hello"))

	out, err = h.run(t, "manifest", "format")
	require.NoError(t, err)
	assert.Contains(t, out, "already formatted")
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	h.writeManifest(t, helloManifest)

	out, err := h.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Modules\n")
	assert.Contains(t, out, "hello  missing")
	assert.Contains(t, out, "Symlinks\n")
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "sprout dev"))
}
