// Package build fetches and builds modules in dependency order.
//
// Each module is classified through the reconcile engine: its own
// fingerprint covers the fetch spec, stage scripts and exports, and its
// inputs are the tree fingerprints of its direct dependencies. Only modules
// that are not up to date run. A module's lock entry is written right after
// its stage sequence succeeds; a failure leaves the entry untouched and
// blocks every dependent.
package build

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/fetch"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/PatWie/sprout/pkg/fingerprint"
	"github.com/PatWie/sprout/pkg/graph"
	"github.com/PatWie/sprout/pkg/lockfile"
	"github.com/PatWie/sprout/pkg/logging"
	"github.com/PatWie/sprout/pkg/manifest"
	"github.com/PatWie/sprout/pkg/paths"
	"github.com/PatWie/sprout/pkg/reconcile"
	"github.com/PatWie/sprout/pkg/runner"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Verb selects the stages a run executes.
type Verb string

const (
	// VerbFetch only acquires sources.
	VerbFetch Verb = "fetch"
	// VerbBuild fetches and runs the build stage.
	VerbBuild Verb = "build"
	// VerbInstall also runs the install stage.
	VerbInstall Verb = "install"
	// VerbUpdate runs fetch and build when needed, then the update stage.
	VerbUpdate Verb = "update"
)

// StalePolicy decides what happens to modules whose dependencies changed.
type StalePolicy string

const (
	// StaleRebuild rebuilds stale modules in the same run.
	StaleRebuild StalePolicy = "rebuild"
	// StaleReport only reports stale modules unless they are named targets
	// or --rebuild is given.
	StaleReport StalePolicy = "report"
)

// ParseStalePolicy validates a configured policy name.
func ParseStalePolicy(s string) (StalePolicy, error) {
	switch StalePolicy(s) {
	case "", StaleRebuild:
		return StaleRebuild, nil
	case StaleReport:
		return StaleReport, nil
	}
	return "", errors.Newf(errors.ErrInvalidInput, "unknown stale policy %q (want %s or %s)", s, StaleRebuild, StaleReport)
}

// Lock entry status tags.
const (
	statusFetched   = "fetched"
	statusBuilt     = "built"
	statusInstalled = "installed"
)

// Fetcher acquires module sources.
type Fetcher interface {
	Fetch(ctx context.Context, module string, spec *manifest.FetchSpec) (fetch.Result, error)
	SourcePath(module string, spec *manifest.FetchSpec) string
}

var _ Fetcher = (*fetch.Fetcher)(nil)

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Paths   paths.Paths
	FS      filesystem.FS
	Lock    *lockfile.Store
	Fetcher Fetcher
	Runner  runner.Runner
}

// Options control one run.
type Options struct {
	Verb Verb
	// Targets are the modules to run; empty means all.
	Targets        []string
	WithDeps       bool
	WithDependents bool
	// Rebuild runs modules even when they are up to date.
	Rebuild bool
	DryRun  bool
	// Jobs bounds how many modules run at once; values below 2 run
	// sequentially in build order.
	Jobs  int
	Stale StalePolicy
	// Output receives stage script output as it is produced.
	Output io.Writer
	// OnStart and OnDone are called around each module. With Jobs > 1 they
	// are called from several goroutines.
	OnStart func(module string)
	OnDone  func(Report)
}

// Orchestrator runs modules of one manifest against one lock table.
type Orchestrator struct {
	manifest *manifest.Manifest
	graph    *graph.Graph
	deps     Deps
	logger   zerolog.Logger
	now      func() time.Time

	treeMu sync.Mutex
	trees  map[string]fingerprint.Fingerprint
}

// New validates the dependency graph of m and returns an Orchestrator.
func New(m *manifest.Manifest, deps Deps) (*Orchestrator, error) {
	g, err := m.Graph()
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		manifest: m,
		graph:    g,
		deps:     deps,
		logger:   logging.GetLogger("build"),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Second) },
		trees:    map[string]fingerprint.Fingerprint{},
	}, nil
}

// Graph returns the resolved dependency graph.
func (o *Orchestrator) Graph() *graph.Graph { return o.graph }

// Tree returns the tree fingerprint of a module as declared: its own
// fingerprint folded with the trees of its dependencies.
func (o *Orchestrator) Tree(name string) fingerprint.Fingerprint {
	o.treeMu.Lock()
	defer o.treeMu.Unlock()
	return o.tree(name)
}

func (o *Orchestrator) tree(name string) fingerprint.Fingerprint {
	if fp, ok := o.trees[name]; ok {
		return fp
	}
	mod, _ := o.manifest.Module(name)
	var deps []fingerprint.Fingerprint
	for _, dep := range o.graph.Dependencies(name) {
		deps = append(deps, o.tree(dep))
	}
	fp := fingerprint.Combine(fingerprint.Module(mod), deps...)
	o.trees[name] = fp
	return fp
}

// inputs maps each direct dependency to its declared tree.
func (o *Orchestrator) inputs(name string) map[string]fingerprint.Fingerprint {
	deps := o.graph.Dependencies(name)
	if len(deps) == 0 {
		return nil
	}
	out := make(map[string]fingerprint.Fingerprint, len(deps))
	for _, dep := range deps {
		out[dep] = o.Tree(dep)
	}
	return out
}

// Status classifies the named modules, or all of them, in build order.
func (o *Orchestrator) Status(ctx context.Context, names []string) ([]reconcile.Status, error) {
	scope, err := o.graph.Select(names, false, false)
	if err != nil {
		return nil, err
	}
	return reconcile.New[string](o.capability(Options{}, nil)).ClassifyAll(ctx, scope), nil
}

// Accept records the current fingerprints of the named modules, or all of
// them, without running anything.
func (o *Orchestrator) Accept(ctx context.Context, names []string) ([]reconcile.Result, error) {
	scope, err := o.graph.Select(names, false, false)
	if err != nil {
		return nil, err
	}
	policy := reconcile.Only(reconcile.Rehash, reconcile.Missing, reconcile.Modified, reconcile.Deleted, reconcile.Stale)
	results := reconcile.New[string](o.capability(Options{}, nil)).Reconcile(ctx, scope, policy)
	if err := o.deps.Lock.Save(); err != nil {
		return results, err
	}
	return results, nil
}

// Forget drops the lock entry and build output of a module. The module
// need not be declared anymore.
func (o *Orchestrator) Forget(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCanceled, "canceled")
	}
	if err := o.capability(Options{}, nil).Apply(ctx, name, reconcile.Forget, reconcile.Status{Key: name}); err != nil {
		return err
	}
	return o.deps.Lock.Save()
}

// Run executes opts.Verb over the selected modules. The returned error is
// only set for problems that stop the whole run, such as an unknown target;
// per-module failures are in the reports.
func (o *Orchestrator) Run(ctx context.Context, opts Options) ([]Report, error) {
	if opts.Verb == "" {
		opts.Verb = VerbBuild
	}
	if opts.Stale == "" {
		opts.Stale = StaleRebuild
	}
	scope, err := o.graph.Select(opts.Targets, opts.WithDeps, opts.WithDependents)
	if err != nil {
		return nil, err
	}
	defer logging.LogOperationStart(o.logger, fmt.Sprintf("%s %d modules", opts.Verb, len(scope)))()

	r := &run{
		o:        o,
		opts:     opts,
		inScope:  make(map[string]bool, len(scope)),
		targeted: make(map[string]bool, len(opts.Targets)),
		reports:  make(map[string]Report, len(scope)),
	}
	for _, name := range scope {
		r.inScope[name] = true
	}
	for _, name := range opts.Targets {
		r.targeted[name] = true
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	r.abort = cancel

	if opts.Jobs > 1 {
		r.parallel(runCtx, scope)
	} else {
		for _, name := range scope {
			r.finish(r.module(runCtx, name))
		}
	}

	out := make([]Report, 0, len(scope))
	for _, name := range scope {
		out = append(out, r.reports[name])
	}
	return out, nil
}

// run is the state of one Run call.
type run struct {
	o        *Orchestrator
	opts     Options
	inScope  map[string]bool
	targeted map[string]bool
	abort    context.CancelCauseFunc

	mu      sync.Mutex
	reports map[string]Report
}

func (r *run) report(name string) (Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[name]
	return rep, ok
}

func (r *run) finish(rep Report) {
	r.mu.Lock()
	r.reports[rep.Module] = rep
	r.mu.Unlock()
	if r.opts.OnDone != nil {
		r.opts.OnDone(rep)
	}
}

// parallel starts each module once its in-scope dependencies finished,
// with at most Jobs modules running at once.
func (r *run) parallel(ctx context.Context, scope []string) {
	sem := semaphore.NewWeighted(int64(r.opts.Jobs))
	done := make(map[string]chan struct{}, len(scope))
	for _, name := range scope {
		done[name] = make(chan struct{})
	}

	var wg sync.WaitGroup
	for _, name := range scope {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			defer close(done[name])
			for _, dep := range r.o.graph.Dependencies(name) {
				if ch, ok := done[dep]; ok {
					<-ch
				}
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				r.finish(canceledReport(ctx, name))
				return
			}
			defer sem.Release(1)
			r.finish(r.module(ctx, name))
		}(name)
	}
	wg.Wait()
}

func canceledReport(ctx context.Context, name string) Report {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	err := errors.Wrap(cause, errors.ErrCanceled, "not started").WithDetail(errors.DetailModule, name)
	return Report{Module: name, Outcome: Canceled, Err: err}
}

// module handles one module: blocking checks, classification, policy and
// the stage sequence.
func (r *run) module(ctx context.Context, name string) Report {
	if ctx.Err() != nil {
		return canceledReport(ctx, name)
	}
	if rep, blocked := r.blocked(ctx, name); blocked {
		return rep
	}

	if r.opts.OnStart != nil {
		r.opts.OnStart(name)
	}
	start := time.Now()
	rep := &Report{Module: name}
	c := r.o.capability(r.opts, rep)
	res := reconcile.New[string](c).Step(ctx, name, r.policy(name, c))

	rep.State = res.State
	rep.ChangedInputs = res.ChangedInputs
	rep.Elapsed = time.Since(start)
	switch {
	case res.Err != nil:
		rep.Err = res.Err
		rep.Outcome = Failed
		if errors.IsErrorCode(res.Err, errors.ErrCanceled) {
			rep.Outcome = Canceled
		}
		if errors.IsErrorCode(res.Err, errors.ErrLockfileConflict) {
			r.abort(res.Err)
		}
		r.o.logger.Error().Err(res.Err).Str("module", name).Msg("Module failed")
	case !res.Applied:
		if rep.Outcome == "" {
			rep.Outcome = UpToDate
		}
	case r.opts.DryRun:
		rep.Outcome = Planned
	default:
		rep.Outcome = Built
	}
	return *rep
}

// blocked checks the dependencies of name. In-scope dependencies must have
// succeeded in this run; others must already be up to date.
func (r *run) blocked(ctx context.Context, name string) (Report, bool) {
	for _, dep := range r.o.graph.Dependencies(name) {
		if r.inScope[dep] {
			prev, _ := r.report(dep)
			if !prev.OK() {
				return Report{
					Module:  name,
					Outcome: Blocked,
					Reason:  fmt.Sprintf("dependency %s %s", dep, prev.Outcome),
				}, true
			}
			continue
		}
		if r.opts.Verb == VerbFetch {
			continue
		}
		st := reconcile.New[string](r.o.capability(r.opts, nil)).Classify(ctx, dep)
		if st.Err != nil || st.State != reconcile.UpToDate {
			state := string(st.State)
			if st.Err != nil {
				state = "unreadable"
			}
			return Report{
				Module:  name,
				Outcome: Blocked,
				Reason:  fmt.Sprintf("dependency %s is %s; build it first or use --with-deps", dep, state),
			}, true
		}
	}
	return Report{}, false
}

// policy picks Track for fetch runs and Rebuild for the other verbs when
// the module needs work.
func (r *run) policy(name string, c *moduleCap) reconcile.Policy {
	mod, _ := r.o.manifest.Module(name)
	return func(st reconcile.Status) reconcile.Action {
		if r.opts.Verb == VerbFetch {
			if mod.Fetch.IsNone() {
				return reconcile.None
			}
			if r.opts.Rebuild || !r.o.sourceVerified(name, mod.Fetch) {
				return reconcile.Track
			}
			return reconcile.None
		}

		needBuild := r.needsBuild(name, st, c.report)
		c.needBuild = needBuild
		switch r.opts.Verb {
		case VerbInstall:
			entry, _ := r.o.deps.Lock.Module(name)
			if needBuild || (!mod.Install.IsEmpty() && entry.Status != statusInstalled) {
				return reconcile.Rebuild
			}
		case VerbUpdate:
			if needBuild || !mod.Update.IsEmpty() {
				return reconcile.Rebuild
			}
		default:
			if needBuild {
				return reconcile.Rebuild
			}
		}
		return reconcile.None
	}
}

func (r *run) needsBuild(name string, st reconcile.Status, rep *Report) bool {
	if r.opts.Rebuild {
		return true
	}
	switch st.State {
	case reconcile.UpToDate:
		return false
	case reconcile.Stale:
		if r.opts.Stale == StaleReport && !r.targeted[name] {
			rep.Outcome = StaleSkipped
			rep.Reason = fmt.Sprintf("dependencies changed: %v", st.ChangedInputs)
			return false
		}
	}
	return true
}
