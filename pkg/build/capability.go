package build

import (
	"context"
	"os"
	"path/filepath"

	"github.com/PatWie/sprout/pkg/envgen"
	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/PatWie/sprout/pkg/fingerprint"
	"github.com/PatWie/sprout/pkg/manifest"
	"github.com/PatWie/sprout/pkg/reconcile"
	"github.com/PatWie/sprout/pkg/runner"
)

// moduleCap adapts declared modules to the reconcile engine. One value
// serves one module step; report collects what the step did.
type moduleCap struct {
	o      *Orchestrator
	opts   Options
	report *Report
	// needBuild is decided by the run policy before Apply.
	needBuild bool
}

var _ reconcile.Capability[string] = (*moduleCap)(nil)

func (o *Orchestrator) capability(opts Options, rep *Report) *moduleCap {
	if rep == nil {
		rep = &Report{}
	}
	return &moduleCap{o: o, opts: opts, report: rep}
}

func (c *moduleCap) Key(name string) string { return name }

// Recorded treats a fetch-only entry as no record: the module was never
// built.
func (c *moduleCap) Recorded(name string) (reconcile.Record, bool) {
	entry, ok := c.o.deps.Lock.Module(name)
	if !ok || entry.Fingerprint.IsAbsent() {
		return reconcile.Record{}, false
	}
	return reconcile.Record{Fingerprint: entry.Fingerprint, Inputs: entry.Deps}, true
}

func (c *moduleCap) Observe(ctx context.Context, name string) (reconcile.Observation, error) {
	if err := ctx.Err(); err != nil {
		return reconcile.Observation{}, errors.Wrap(err, errors.ErrCanceled, "canceled")
	}
	mod, ok := c.o.manifest.Module(name)
	if !ok {
		return reconcile.Observation{}, errors.UnknownModule(name, "", nil)
	}
	obs := reconcile.Observation{
		Current: fingerprint.Module(mod),
		Inputs:  c.o.inputs(name),
	}

	present, err := filesystem.Exists(c.o.deps.FS, c.o.deps.Paths.DistPath(name))
	if err != nil {
		return obs, errors.Wrapf(err, errors.ErrFilesystem, "failed to stat build output of %s", name).
			WithDetail(errors.DetailModule, name)
	}
	if present && mod.Fetch.SourceDir() != "" {
		present, err = filesystem.Exists(c.o.deps.FS, c.o.deps.Fetcher.SourcePath(name, mod.Fetch))
		if err != nil {
			return obs, errors.Wrapf(err, errors.ErrFilesystem, "failed to stat source of %s", name).
				WithDetail(errors.DetailModule, name)
		}
	}
	obs.Present = present

	if present && !mod.Fetch.IsNone() && mod.Fetch.Kind == manifest.FetchLocal {
		entry, _ := c.o.deps.Lock.Module(name)
		current, err := fingerprint.Tree(c.o.deps.FS, c.o.deps.Fetcher.SourcePath(name, mod.Fetch))
		if err != nil {
			return obs, err
		}
		if !entry.Source.IsAbsent() && current != entry.Source {
			obs.Drift = "local source changed"
		}
	}
	return obs, nil
}

func (c *moduleCap) Apply(ctx context.Context, name string, action reconcile.Action, st reconcile.Status) error {
	switch action {
	case reconcile.Forget:
		return c.forget(name)
	case reconcile.Rehash:
		return c.accept(name, st)
	case reconcile.Track:
		return c.fetchOnly(ctx, name)
	case reconcile.Rebuild:
		return c.stages(ctx, name)
	}
	return errors.Newf(errors.ErrInternal, "unsupported module action %q", action)
}

func (c *moduleCap) forget(name string) error {
	c.o.deps.Lock.DeleteModule(name)
	dist := c.o.deps.Paths.DistPath(name)
	if err := c.o.deps.FS.RemoveAll(dist); err != nil {
		return errors.Wrapf(err, errors.ErrFilesystem, "failed to remove %s", dist).
			WithDetail(errors.DetailPath, dist)
	}
	return nil
}

// accept records the declared fingerprints as built without running
// anything.
func (c *moduleCap) accept(name string, st reconcile.Status) error {
	mod, _ := c.o.manifest.Module(name)
	entry, _ := c.o.deps.Lock.Module(name)
	entry.Fingerprint = st.Observation.Current
	entry.Tree = c.o.Tree(name)
	entry.Deps = st.Observation.Inputs
	if !mod.Fetch.IsNone() {
		entry.Fetch = fingerprint.Fetch(mod.Fetch)
		if src, err := fingerprint.Tree(c.o.deps.FS, c.o.deps.Fetcher.SourcePath(name, mod.Fetch), fingerprint.SkipNames(".git")); err == nil && !src.IsAbsent() {
			entry.Source = src
		}
	} else {
		entry.Fetch, entry.Source = "", ""
	}
	if entry.Status == "" || entry.Status == statusFetched {
		entry.Status = statusBuilt
	}
	entry.UpdatedAt = c.o.now()
	c.o.deps.Lock.SetModule(name, entry)
	return nil
}

// sourceVerified reports whether the recorded source of name still matches
// its fetch spec and the directory on disk. Local sources are always
// re-read.
func (o *Orchestrator) sourceVerified(name string, spec *manifest.FetchSpec) bool {
	if spec.IsNone() {
		return true
	}
	if spec.Kind == manifest.FetchLocal {
		return false
	}
	entry, ok := o.deps.Lock.Module(name)
	if !ok || entry.Fetch != fingerprint.Fetch(spec) || entry.Source.IsAbsent() {
		return false
	}
	current, err := fingerprint.Tree(o.deps.FS, o.deps.Fetcher.SourcePath(name, spec), fingerprint.SkipNames(".git"))
	return err == nil && current == entry.Source
}

func (c *moduleCap) fetchOnly(ctx context.Context, name string) error {
	mod, _ := c.o.manifest.Module(name)
	c.report.Stages = append(c.report.Stages, "fetch")
	if c.opts.DryRun {
		c.report.Scripts = append(c.report.Scripts, Script{Stage: "fetch", Text: mod.Fetch.String()})
		return nil
	}
	res, err := c.o.deps.Fetcher.Fetch(ctx, name, mod.Fetch)
	if err != nil {
		return err
	}
	entry, ok := c.o.deps.Lock.Module(name)
	entry.Fetch = fingerprint.Fetch(mod.Fetch)
	entry.Source = res.Source
	if !ok || entry.Status == "" {
		entry.Status = statusFetched
	}
	entry.UpdatedAt = c.o.now()
	c.o.deps.Lock.SetModule(name, entry)
	return c.o.deps.Lock.Save()
}

// stages runs the stage sequence the verb asks for and records the module
// once every stage succeeded. A forced rebuild moves the previous build
// output aside and puts it back when any step fails.
func (c *moduleCap) stages(ctx context.Context, name string) (runErr error) {
	mod, _ := c.o.manifest.Module(name)
	p := c.o.deps.Paths
	dist := p.DistPath(name)

	entry, _ := c.o.deps.Lock.Module(name)
	next := entry
	next.Deps = c.o.inputs(name)

	var kinds []manifest.StageKind
	doFetch := false
	if c.needBuild {
		doFetch = !mod.Fetch.IsNone() && (c.opts.Rebuild || !c.o.sourceVerified(name, mod.Fetch))
		kinds = append(kinds, manifest.StageBuild)
	}
	switch c.opts.Verb {
	case VerbInstall:
		kinds = append(kinds, manifest.StageInstall)
	case VerbUpdate:
		kinds = append(kinds, manifest.StageUpdate)
	}

	source := dist
	if !mod.Fetch.IsNone() {
		source = c.o.deps.Fetcher.SourcePath(name, mod.Fetch)
	}
	vars := runner.Vars{SproutDist: p.DistDir(), SourcePath: source, DistPath: dist}

	if doFetch {
		c.report.Stages = append(c.report.Stages, "fetch")
		if c.opts.DryRun {
			c.report.Scripts = append(c.report.Scripts, Script{Stage: "fetch", Text: mod.Fetch.String()})
		} else {
			res, err := c.o.deps.Fetcher.Fetch(ctx, name, mod.Fetch)
			if err != nil {
				return err
			}
			next.Fetch = fingerprint.Fetch(mod.Fetch)
			next.Source = res.Source
		}
	}

	var env []string
	if !c.opts.DryRun {
		exports, err := envgen.Compose(c.o.manifest, c.o.graph.Ancestors(name), p.DistDir())
		if err != nil {
			return err
		}
		env = append(vars.Environ(), envgen.Environ(exports, os.LookupEnv)...)

		if c.needBuild && c.opts.Rebuild {
			prev, err := c.setAside(dist)
			if err != nil {
				return err
			}
			if prev != "" {
				defer func() {
					if runErr != nil {
						c.putBack(prev, dist)
					} else if err := c.o.deps.FS.RemoveAll(prev); err != nil {
						c.o.logger.Warn().Err(err).Str("path", prev).Msg("Failed to remove previous build output")
					}
				}()
			}
		}
		if err := c.o.deps.FS.MkdirAll(dist, 0o755); err != nil {
			return errors.Wrapf(err, errors.ErrFilesystem, "failed to create %s", dist).
				WithDetail(errors.DetailPath, dist)
		}
	}

	ran := map[manifest.StageKind]bool{}
	for _, kind := range kinds {
		stage := mod.Stage(kind)
		if stage.IsEmpty() {
			continue
		}
		script := runner.Assemble(stage, vars)
		c.report.Stages = append(c.report.Stages, string(kind))
		c.report.Scripts = append(c.report.Scripts, Script{Stage: string(kind), Dir: source, Text: script})
		if c.opts.DryRun {
			continue
		}
		err := c.o.deps.Runner.Run(ctx, runner.Job{
			Module:  name,
			Stage:   string(kind),
			Dir:     source,
			Script:  script,
			Env:     env,
			LogPath: p.LogPath(name, string(kind), c.o.now()),
			Output:  c.opts.Output,
		})
		if err != nil {
			return err
		}
		ran[kind] = true
	}
	if c.opts.DryRun {
		return nil
	}

	next.Fingerprint = fingerprint.Module(mod)
	next.Tree = c.o.Tree(name)
	if mod.Fetch.IsNone() {
		next.Fetch, next.Source = "", ""
	}
	switch {
	case ran[manifest.StageInstall]:
		next.Status = statusInstalled
	case c.needBuild:
		next.Status = statusBuilt
	case next.Status == "" || next.Status == statusFetched:
		next.Status = statusBuilt
	}
	next.UpdatedAt = c.o.now()
	c.o.deps.Lock.SetModule(name, next)
	return c.o.deps.Lock.Save()
}

// setAside renames dist to a hidden sibling and returns its path, or ""
// when there is no build output yet.
func (c *moduleCap) setAside(dist string) (string, error) {
	ok, err := filesystem.Exists(c.o.deps.FS, dist)
	if err != nil || !ok {
		return "", err
	}
	prev := filepath.Join(filepath.Dir(dist), "."+filepath.Base(dist)+".prev")
	if err := c.o.deps.FS.RemoveAll(prev); err != nil {
		return "", errors.Wrapf(err, errors.ErrFilesystem, "failed to clear %s", prev).
			WithDetail(errors.DetailPath, prev)
	}
	if err := c.o.deps.FS.Rename(dist, prev); err != nil {
		return "", errors.Wrapf(err, errors.ErrFilesystem, "failed to move %s aside", dist).
			WithDetail(errors.DetailPath, dist)
	}
	return prev, nil
}

// putBack replaces a partial build output with the one set aside.
func (c *moduleCap) putBack(prev, dist string) {
	if err := c.o.deps.FS.RemoveAll(dist); err != nil {
		c.o.logger.Error().Err(err).Str("path", dist).Msg("Failed to clear partial build output")
		return
	}
	if err := c.o.deps.FS.Rename(prev, dist); err != nil {
		c.o.logger.Error().Err(err).Str("path", prev).Msg("Failed to restore previous build output")
		return
	}
	c.o.logger.Info().Str("path", dist).Msg("Restored previous build output")
}
