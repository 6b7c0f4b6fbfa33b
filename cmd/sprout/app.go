package sprout

import (
	"context"
	"fmt"
	"io"

	"github.com/PatWie/sprout/pkg/build"
	"github.com/PatWie/sprout/pkg/config"
	"github.com/PatWie/sprout/pkg/display"
	"github.com/PatWie/sprout/pkg/fetch"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/PatWie/sprout/pkg/lockfile"
	"github.com/PatWie/sprout/pkg/manifest"
	"github.com/PatWie/sprout/pkg/paths"
	"github.com/PatWie/sprout/pkg/runner"
	"github.com/PatWie/sprout/pkg/style"
	"github.com/PatWie/sprout/pkg/symlinks"
	"github.com/PatWie/sprout/pkg/vcs"
	"github.com/spf13/cobra"
)

// globalOptions are the persistent root flags.
type globalOptions struct {
	verbosity    int
	dryRun       bool
	sproutPath   string
	trackingPath string
	configFile   string
}

// app carries what every command needs once flags and config are resolved.
type app struct {
	opts   globalOptions
	cfg    *config.Config
	paths  paths.Paths
	fs     filesystem.FS
	out    io.Writer
	errOut io.Writer
}

// setup resolves config and paths for cmd. Flags win over config, which
// wins over SPROUT_PATH / SPROUT_TRACKING_PATH and the XDG defaults.
func (a *app) setup(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()
	a.errOut = cmd.ErrOrStderr()
	a.fs = filesystem.NewOS()

	p, err := paths.New(a.opts.sproutPath, a.opts.trackingPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(config.Options{File: a.opts.configFile, DefaultFile: p.ConfigFilePath()})
	if err != nil {
		return err
	}
	a.cfg = cfg

	root, tracking := a.opts.sproutPath, a.opts.trackingPath
	if root == "" {
		root = cfg.Paths.Root
	}
	if tracking == "" {
		tracking = cfg.Paths.Tracking
	}
	if root != a.opts.sproutPath || tracking != a.opts.trackingPath {
		if p, err = paths.New(root, tracking); err != nil {
			return err
		}
	}
	a.paths = p

	style.SetColorProfile(display.ColorProfile(cfg.Output.Color, a.out))
	return nil
}

func (a *app) message(format string, args ...interface{}) {
	display.NewRenderer(a.out, display.FormatText).Message(format, args...)
}

func (a *app) dryRunNotice() {
	if a.opts.dryRun {
		fmt.Fprintln(a.out, style.MutedStyle.Render(MsgDryRunNotice))
	}
}

func (a *app) renderer(output string) (*display.Renderer, error) {
	format, err := display.ParseFormat(output)
	if err != nil {
		return nil, fmt.Errorf(MsgErrInvalidOutput, err)
	}
	return display.NewRenderer(a.out, format), nil
}

func (a *app) document() (*manifest.Document, error) {
	return manifest.LoadDocument(a.fs, a.paths.ManifestPath())
}

func (a *app) lock() (*lockfile.Store, error) {
	return lockfile.Load(a.fs, a.paths.LockPath())
}

func (a *app) fetcher() (*fetch.Fetcher, error) {
	netrcPath := a.cfg.Fetch.Netrc
	if netrcPath == "" {
		netrcPath = "~/.netrc"
	}
	n, err := fetch.LoadNetrc(paths.ExpandHome(netrcPath))
	if err != nil {
		return nil, err
	}
	return fetch.New(a.paths, a.fs, fetch.Options{
		Git:       a.cfg.Fetch.Git,
		GoProxy:   a.cfg.Fetch.GoProxy,
		CratesURL: a.cfg.Fetch.CratesURL,
		Timeout:   a.cfg.Fetch.Timeout,
		Netrc:     n,
	}), nil
}

// orchestrator wires the build engine for m against the on-disk lock.
func (a *app) orchestrator(m *manifest.Manifest) (*build.Orchestrator, *lockfile.Store, error) {
	lock, err := a.lock()
	if err != nil {
		return nil, nil, err
	}
	f, err := a.fetcher()
	if err != nil {
		return nil, nil, err
	}
	r, err := runner.New(a.cfg.Build.Shell)
	if err != nil {
		return nil, nil, err
	}
	o, err := build.New(m, build.Deps{Paths: a.paths, FS: a.fs, Lock: lock, Fetcher: f, Runner: r})
	if err != nil {
		return nil, nil, err
	}
	return o, lock, nil
}

func (a *app) tracker() (*symlinks.Tracker, *lockfile.Store, error) {
	lock, err := a.lock()
	if err != nil {
		return nil, nil, err
	}
	return newTrackerFor(a, lock), lock, nil
}

// newTrackerFor shares lock with another engine of the same invocation.
func newTrackerFor(a *app, lock *lockfile.Store) *symlinks.Tracker {
	return symlinks.New(a.fs, a.paths, lock)
}

func (a *app) repo() *vcs.Repo {
	return vcs.New(a.paths.Root(), a.cfg.Fetch.Git)
}

// editManifest applies fn to the manifest and writes the result back,
// keeping comments and layout of untouched blocks. In dry-run mode nothing
// is written.
func (a *app) editManifest(fn func(d *manifest.Draft) error) (*manifest.Manifest, *manifest.Manifest, error) {
	doc, err := a.document()
	if err != nil {
		return nil, nil, err
	}
	prev := doc.Manifest()
	next, err := prev.Edit(fn)
	if err != nil {
		return nil, nil, err
	}
	if a.opts.dryRun {
		return prev, next, nil
	}
	doc.Commit(next)
	if err := doc.Save(a.fs, a.paths.ManifestPath()); err != nil {
		return nil, nil, err
	}
	return prev, next, nil
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
