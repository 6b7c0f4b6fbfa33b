// TEST TYPE: Unit Test
// DEPENDENCIES: None
// PURPOSE: Verify HCL decoding, validation and edit transactions of the manifest

package manifest_test

import (
	"testing"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const digest = "9F86D081884C7D659A2FEAA0C55AD015A3BF4F1B2B0B822CD15D6C15B0F00A08"

const sample = `
# toolchain
module rust {
  exports = { PATH = "bin", CARGO_HOME = "cargo" }
  fetch {
    git = { url = "https://github.com/rust-lang/rustup", ref = "1.27.0", depth = 1 }
  }
  build {
    env {
      ZED   = "last"
      ALPHA = "${DIST_PATH}/first"
    }
    commands = ["./install.sh --prefix $DIST_PATH"]
  }
}

module ripgrep {
  depends_on = [rust]
  exports    = { PATH = "bin" }
  fetch {
    archive = { url = "https://example.com/rg.tar.gz", sha256 = "` + digest + `" }
  }
  build {
    commands = <<-EOT
      cargo build --release
      cp target/release/rg ${DIST_PATH}/bin/
    EOT
  }
  # keep this comment
  install {
    commands = ["echo installed"]
  }
}

module dotfiles {
  fetch {
    local = { path = "~/dotfiles" }
  }
}

environments {
  default = [rust, "ripgrep"]
}
`

func parseSample(t *testing.T) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse([]byte(sample), "manifest.sprout")
	require.NoError(t, err)
	return m
}

func TestParse_DeclarationOrder(t *testing.T) {
	m := parseSample(t)

	assert.Equal(t, []string{"rust", "ripgrep", "dotfiles"}, m.Names())

	rust, ok := m.Module("rust")
	require.True(t, ok)
	assert.Equal(t, []manifest.Export{{Name: "PATH", Path: "bin"}, {Name: "CARGO_HOME", Path: "cargo"}}, rust.Exports)
	require.NotNil(t, rust.Build)
	assert.Equal(t, []manifest.EnvVar{
		{Name: "ZED", Value: "last"},
		{Name: "ALPHA", Value: "${DIST_PATH}/first"},
	}, rust.Build.Env)
	assert.Equal(t, []string{"./install.sh --prefix $DIST_PATH"}, rust.Build.Commands)

	assert.Equal(t, []string{"rust"}, m.DependsOn("ripgrep"))

	env, ok := m.Environment("default")
	require.True(t, ok)
	assert.Equal(t, []string{"rust", "ripgrep"}, env.Modules)
}

func TestParse_FetchSpecs(t *testing.T) {
	m := parseSample(t)

	rust, _ := m.Module("rust")
	assert.Equal(t, &manifest.FetchSpec{
		Kind:  manifest.FetchGit,
		URL:   "https://github.com/rust-lang/rustup",
		Ref:   "1.27.0",
		Depth: 1,
	}, rust.Fetch)

	rg, _ := m.Module("ripgrep")
	assert.Equal(t, manifest.FetchArchive, rg.Fetch.Kind)
	assert.Equal(t, "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", rg.Fetch.SHA256)
	assert.Equal(t, []string{
		"cargo build --release",
		"cp target/release/rg ${DIST_PATH}/bin/",
	}, rg.Build.Commands)

	dot, _ := m.Module("dotfiles")
	assert.Equal(t, manifest.FetchLocal, dot.Fetch.Kind)
	assert.Equal(t, "", dot.Fetch.SourceDir())
	assert.Nil(t, dot.Build)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind errors.ValidationKind
		msg  string
	}{
		{name: "syntax", src: `module a {`, kind: errors.KindSyntax},
		{name: "unknown block", src: `tool a {}`, kind: errors.KindSyntax},
		{name: "top level attribute", src: `x = 1`, kind: errors.KindSyntax},
		{name: "unknown fetch kind", src: "module a {\n fetch { svn = { url = \"x\" } }\n}", kind: errors.KindSyntax},
		{name: "unknown fetch field", src: "module a {\n fetch { git = { url = \"x\", tag = \"y\" } }\n}", kind: errors.KindSyntax},
		{name: "two fetch sources", src: "module a {\n fetch {\n git = { url = \"x\" }\n local = { path = \"y\" }\n }\n}", kind: errors.KindSyntax},
		{name: "duplicate module", src: "module a {}\nmodule a {}", kind: errors.KindDuplicateModule},
		{name: "unknown dependency", src: `module a { depends_on = [b] }`, kind: errors.KindUnknownModule},
		{name: "cycle", src: "module a { depends_on = [b] }\nmodule b { depends_on = [a] }", kind: errors.KindCycle},
		{name: "self cycle", src: `module a { depends_on = [a] }`, kind: errors.KindCycle},
		{name: "environment with unknown module", src: "module a {}\nenvironments {\n x = [a, b]\n}", kind: errors.KindUnknownModule},
		{name: "bad go version", src: "module a {\n fetch { go = { module = \"golang.org/x/mod\", version = \"latest\" } }\n}", kind: errors.KindInvalidModule, msg: "not a semantic version"},
		{name: "bad sha256", src: "module a {\n fetch { http = { url = \"https://x\", sha256 = \"abc\" } }\n}", kind: errors.KindInvalidModule, msg: "not a hex sha256 digest"},
		{name: "git without url", src: "module a {\n fetch { git = { ref = \"main\" } }\n}", kind: errors.KindInvalidModule, msg: "git fetch requires url"},
		{name: "bad export name", src: `module a { exports = { "MY-VAR" = "bin" } }`, kind: errors.KindInvalidModule},
		{name: "bad module name", src: `module "a/b" {}`, kind: errors.KindInvalidModule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manifest.Parse([]byte(tt.src), "manifest.sprout")
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, errors.ErrValidation), "got %v", err)
			assert.Equal(t, tt.kind, errors.ValidationKindOf(err), "got %v", err)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	m, err := manifest.Parse(nil, "manifest.sprout")
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.Environments())
}

func TestSnapshot_IsImmutable(t *testing.T) {
	m := parseSample(t)

	rust, _ := m.Module("rust")
	rust.Exports[0].Path = "changed"
	rust.Build.Commands[0] = "rm -rf /"
	rust.Fetch.URL = "elsewhere"

	again, _ := m.Module("rust")
	assert.Equal(t, "bin", again.Exports[0].Path)
	assert.Equal(t, "./install.sh --prefix $DIST_PATH", again.Build.Commands[0])
	assert.Equal(t, "https://github.com/rust-lang/rustup", again.Fetch.URL)
}

func TestEdit_FailureLeavesOriginal(t *testing.T) {
	m := parseSample(t)

	next, err := m.Edit(func(d *manifest.Draft) error {
		d.Module("rust").DependsOn = []string{"nothing"}
		return nil
	})
	require.Error(t, err)
	assert.Nil(t, next)
	assert.Equal(t, errors.KindUnknownModule, errors.ValidationKindOf(err))
	assert.Empty(t, m.DependsOn("rust"))

	_, err = m.Edit(func(d *manifest.Draft) error {
		return d.AddModule(manifest.Module{Name: "rust"})
	})
	assert.Equal(t, errors.KindDuplicateModule, errors.ValidationKindOf(err))
}

func TestEdit_RemoveModule(t *testing.T) {
	m := parseSample(t)

	next, err := m.Edit(func(d *manifest.Draft) error {
		// ripgrep depends on rust, so drop both
		assert.True(t, d.RemoveModule("ripgrep"))
		assert.True(t, d.RemoveModule("rust"))
		assert.False(t, d.RemoveModule("missing"))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"dotfiles"}, next.Names())
	env, ok := next.Environment("default")
	require.True(t, ok)
	assert.Empty(t, env.Modules)
	assert.Equal(t, []string{"rust", "ripgrep", "dotfiles"}, m.Names())
}

func TestEdit_Environments(t *testing.T) {
	m := parseSample(t)

	next, err := m.Edit(func(d *manifest.Draft) error {
		d.AddToEnvironment("default", "dotfiles")
		d.AddToEnvironment("default", "rust")
		d.AddToEnvironment("work", "ripgrep")
		return nil
	})
	require.NoError(t, err)
	env, _ := next.Environment("default")
	assert.Equal(t, []string{"rust", "ripgrep", "dotfiles"}, env.Modules)
	assert.Equal(t, []string{"default", "work"}, next.EnvironmentNames())

	next, err = next.Edit(func(d *manifest.Draft) error {
		assert.True(t, d.RemoveFromEnvironment("work", "ripgrep"))
		assert.False(t, d.RemoveFromEnvironment("work", "ripgrep"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, next.EnvironmentNames())
}

func TestModule_Equal(t *testing.T) {
	m := parseSample(t)
	a, _ := m.Module("rust")
	b, _ := m.Module("rust")
	assert.True(t, a.Equal(b))

	b.Build.Env[0].Value = "other"
	assert.False(t, a.Equal(b))

	c, _ := m.Module("dotfiles")
	d := c.Clone()
	d.Build = &manifest.Stage{}
	assert.True(t, c.Equal(d), "an empty stage equals no stage")
}
