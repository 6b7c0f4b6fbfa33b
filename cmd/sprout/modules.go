package sprout

import (
	"github.com/PatWie/sprout/pkg/build"
	"github.com/PatWie/sprout/pkg/clean"
	"github.com/PatWie/sprout/pkg/display"
	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/fingerprint"
	"github.com/PatWie/sprout/pkg/graph"
	"github.com/PatWie/sprout/pkg/manifest"
	"github.com/PatWie/sprout/pkg/reconcile"
	"github.com/PatWie/sprout/pkg/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newModulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "modules",
		Aliases: []string{"mod", "m"},
		Short:   MsgModulesShort,
		Long:    MsgModulesLong,
		GroupID: "core",
	}
	cmd.AddCommand(newModulesRunCmd(a, build.VerbFetch, MsgModulesFetchShort))
	cmd.AddCommand(newModulesRunCmd(a, build.VerbBuild, MsgModulesBuildShort))
	cmd.AddCommand(newModulesRunCmd(a, build.VerbInstall, MsgModulesInstallShort))
	cmd.AddCommand(newModulesRunCmd(a, build.VerbUpdate, MsgModulesUpdateShort))
	cmd.AddCommand(newModulesStatusCmd(a))
	cmd.AddCommand(newModulesHashCmd(a))
	cmd.AddCommand(newModulesCleanCmd(a))
	cmd.AddCommand(newModulesRemoveCmd(a))
	return cmd
}

// moduleNamesCompletion completes declared module names not yet given.
func moduleNamesCompletion(a *app) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if a.paths == nil {
			if err := a.setup(cmd); err != nil {
				return nil, cobra.ShellCompDirectiveError
			}
		}
		doc, err := a.document()
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		given := map[string]bool{}
		for _, arg := range args {
			given[arg] = true
		}
		var names []string
		for _, name := range doc.Manifest().Names() {
			if !given[name] {
				names = append(names, name)
			}
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	}
}

type runFlags struct {
	all            bool
	withDeps       bool
	withDependents bool
	rebuild        bool
	jobs           int
	output         string
}

func newModulesRunCmd(a *app, verb build.Verb, short string) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:               string(verb) + " [modules...]",
		Short:             short,
		Long:              MsgModulesLong,
		Example:           MsgModulesRunExample,
		ValidArgsFunction: moduleNamesCompletion(a),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModules(cmd, a, verb, args, f)
		},
	}
	cmd.Flags().BoolVar(&f.all, "all", false, MsgFlagAll)
	cmd.Flags().BoolVar(&f.withDeps, "with-deps", false, MsgFlagWithDeps)
	cmd.Flags().BoolVar(&f.withDependents, "with-dependents", false, MsgFlagWithDependents)
	cmd.Flags().BoolVar(&f.rebuild, "rebuild", false, MsgFlagRebuild)
	cmd.Flags().IntVarP(&f.jobs, "jobs", "j", 0, MsgFlagJobs)
	cmd.Flags().StringVarP(&f.output, "output", "o", "text", MsgFlagOutput)
	return cmd
}

func runModules(cmd *cobra.Command, a *app, verb build.Verb, args []string, f *runFlags) error {
	if len(args) == 0 && !f.all {
		return errors.New(errors.ErrInvalidInput, MsgErrNoTargets)
	}
	if f.all {
		args = nil
	}
	r, err := a.renderer(f.output)
	if err != nil {
		return err
	}
	stale, err := build.ParseStalePolicy(a.cfg.Build.Stale)
	if err != nil {
		return err
	}
	jobs := f.jobs
	if jobs <= 0 {
		jobs = a.cfg.Build.Jobs
	}

	doc, err := a.document()
	if err != nil {
		return err
	}
	o, _, err := a.orchestrator(doc.Manifest())
	if err != nil {
		return err
	}

	opts := build.Options{
		Verb:           verb,
		Targets:        args,
		WithDeps:       f.withDeps,
		WithDependents: f.withDependents,
		Rebuild:        f.rebuild,
		DryRun:         a.opts.dryRun,
		Jobs:           jobs,
		Stale:          stale,
	}
	if a.opts.verbosity > 0 {
		opts.Output = a.errOut
	}
	if r.Format() == display.FormatText && opts.Output == nil {
		progress := display.NewProgress(a.errOut)
		defer progress.Stop()
		opts.OnStart = progress.Start
		opts.OnDone = progress.Done
	}

	log.Info().Str("verb", string(verb)).Strs("targets", args).Int("jobs", jobs).
		Bool("dry_run", a.opts.dryRun).Msg("Running modules")
	reports, err := o.Run(ctxOf(cmd), opts)
	if err != nil {
		return err
	}
	if err := r.Run(display.FromReports(string(verb), a.opts.dryRun, reports)); err != nil {
		return err
	}

	if !a.opts.dryRun {
		if removed, err := runner.PruneLogs(a.paths.LogsDir(), a.cfg.Build.KeepLogs); err != nil {
			log.Warn().Err(err).Msg("Failed to prune stage logs")
		} else if len(removed) > 0 {
			log.Debug().Int("count", len(removed)).Msg("Pruned stage logs")
		}
	}

	if build.AnyFailed(reports) {
		failed := 0
		for _, rep := range reports {
			if !rep.OK() {
				failed++
			}
		}
		return errors.Newf(errors.ErrBuild, MsgErrModuleFailures, failed, len(reports))
	}
	return nil
}

func newModulesStatusCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:               "status [modules...]",
		Short:             MsgModulesStatusShort,
		Long:              MsgModulesStatusLong,
		ValidArgsFunction: moduleNamesCompletion(a),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.renderer(output)
			if err != nil {
				return err
			}
			doc, err := a.document()
			if err != nil {
				return err
			}
			o, _, err := a.orchestrator(doc.Manifest())
			if err != nil {
				return err
			}
			statuses, err := o.Status(ctxOf(cmd), args)
			if err != nil {
				return err
			}
			if err := r.Status(display.StatusView{Modules: display.FromStatuses(statuses)}); err != nil {
				return err
			}
			return entityFailures(statuses)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", MsgFlagOutput)
	return cmd
}

func newModulesHashCmd(a *app) *cobra.Command {
	var (
		inPlace bool
		output  string
	)
	cmd := &cobra.Command{
		Use:               "hash [modules...]",
		Short:             MsgModulesHashShort,
		Long:              MsgModulesHashLong,
		ValidArgsFunction: moduleNamesCompletion(a),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.renderer(output)
			if err != nil {
				return err
			}
			doc, err := a.document()
			if err != nil {
				return err
			}
			m := doc.Manifest()
			o, lock, err := a.orchestrator(m)
			if err != nil {
				return err
			}

			if inPlace && !a.opts.dryRun {
				results, err := o.Accept(ctxOf(cmd), args)
				if err != nil {
					return err
				}
				if n := display.FailedResults(results); n > 0 {
					_ = r.Actions(display.FromResults("hash", false, results))
					return errors.Newf(errors.ErrInternal, MsgErrEntityFailures, n)
				}
				applied := 0
				for _, res := range results {
					if res.Applied {
						applied++
					}
				}
				if r.Format() == display.FormatText {
					a.message(MsgAccepted, applied)
					return nil
				}
				return r.Actions(display.FromResults("hash", false, results))
			}

			scope, err := o.Graph().Select(args, false, false)
			if err != nil {
				return err
			}
			hashes := make([]display.ModuleHash, 0, len(scope))
			for _, name := range scope {
				mod, _ := m.Module(name)
				h := display.ModuleHash{
					Name:        name,
					Fingerprint: fingerprint.Module(mod).String(),
					Tree:        o.Tree(name).String(),
				}
				if !mod.Fetch.IsNone() {
					h.Fetch = fingerprint.Fetch(mod.Fetch).String()
				}
				if entry, ok := lock.Module(name); ok {
					h.Recorded = entry.Tree.String()
				}
				hashes = append(hashes, h)
			}
			return r.Hashes(hashes)
		},
	}
	cmd.Flags().BoolVarP(&inPlace, "in-place", "i", false, MsgFlagInPlace)
	cmd.Flags().StringVarP(&output, "output", "o", "text", MsgFlagOutput)
	return cmd
}

func newModulesCleanCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "clean",
		Short: MsgModulesCleanShort,
		Long:  MsgModulesCleanLong,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.renderer(output)
			if err != nil {
				return err
			}
			doc, err := a.document()
			if err != nil {
				return err
			}
			lock, err := a.lock()
			if err != nil {
				return err
			}
			c := clean.New(a.fs, a.paths, lock, doc.Manifest())
			candidates, err := c.Candidates()
			if err != nil {
				return err
			}
			if !a.opts.dryRun {
				if err := c.Remove(candidates); err != nil {
					return err
				}
			}
			return r.Clean(display.FromCandidates(a.opts.dryRun, candidates))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", MsgFlagOutput)
	return cmd
}

func newModulesRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:               "remove <module>",
		Aliases:           []string{"rm"},
		Short:             MsgModulesRemoveShort,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: moduleNamesCompletion(a),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			_, next, err := a.editManifest(func(d *manifest.Draft) error {
				if !d.RemoveModule(name) {
					var names []string
					for _, mod := range d.Modules {
						names = append(names, mod.Name)
					}
					return errors.UnknownModule(name, "", graph.Suggest(name, names))
				}
				return nil
			})
			if err != nil {
				return err
			}
			if a.opts.dryRun {
				a.message(MsgWouldRemoveModule, name)
				a.dryRunNotice()
				return nil
			}
			o, _, err := a.orchestrator(next)
			if err != nil {
				return err
			}
			if err := o.Forget(ctxOf(cmd), name); err != nil {
				return err
			}
			a.message(MsgModuleRemoved, name)
			return nil
		},
	}
}

// entityFailures turns per-entity classification errors into a non-zero exit.
func entityFailures(statuses []reconcile.Status) error {
	var first error
	n := 0
	for _, st := range statuses {
		if st.Err != nil {
			if first == nil {
				first = st.Err
			}
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return errors.Wrapf(first, errors.GetErrorCode(first), MsgErrEntityFailures, n)
}
