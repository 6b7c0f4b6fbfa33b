package sprout

import (
	"github.com/PatWie/sprout/pkg/display"
	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/reconcile"
	"github.com/PatWie/sprout/pkg/symlinks"
	"github.com/spf13/cobra"
)

func newSymlinksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "symlinks",
		Aliases: []string{"links", "s"},
		Short:   MsgSymlinksShort,
		Long:    MsgSymlinksLong,
		Example: MsgSymlinksExample,
		GroupID: "core",
	}
	cmd.AddCommand(newSymlinksAddCmd(a))
	cmd.AddCommand(newSymlinksStatusCmd(a))
	cmd.AddCommand(newSymlinksRestoreCmd(a))
	cmd.AddCommand(newSymlinksRehashCmd(a))
	cmd.AddCommand(newSymlinksUndoCmd(a))
	return cmd
}

func newSymlinksAddCmd(a *app) *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: MsgSymlinksAddShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.opts.dryRun {
				rel, err := a.paths.TrackingRel(args[0])
				if err != nil {
					return err
				}
				a.message(MsgWouldTrack, rel)
				a.dryRunNotice()
				return nil
			}
			t, lock, err := a.tracker()
			if err != nil {
				return err
			}
			rel, err := t.Add(ctxOf(cmd), args[0], recursive)
			if err != nil {
				return err
			}
			if err := lock.Save(); err != nil {
				return err
			}
			a.message(MsgTracked, rel)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, MsgFlagRecursive)
	return cmd
}

func newSymlinksStatusCmd(a *app) *cobra.Command {
	var (
		all    bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "status [paths...]",
		Short: MsgSymlinksStatusShort,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.renderer(output)
			if err != nil {
				return err
			}
			t, _, err := a.tracker()
			if err != nil {
				return err
			}
			rels, err := resolveAll(t, args)
			if err != nil {
				return err
			}
			statuses := t.Status(ctxOf(cmd), rels...)
			entries := display.FromStatuses(statuses)
			if !all && len(args) == 0 {
				entries = display.OnlyChanged(entries)
			}
			if entries == nil {
				entries = []display.EntityStatus{}
			}
			if err := r.Status(display.StatusView{Symlinks: entries}); err != nil {
				return err
			}
			return entityFailures(statuses)
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, MsgFlagStatusAll)
	cmd.Flags().StringVarP(&output, "output", "o", "text", MsgFlagOutput)
	return cmd
}

func newSymlinksRestoreCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "restore [paths...]",
		Short: MsgSymlinksRestoreShort,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, lock, err := a.tracker()
			if err != nil {
				return err
			}
			rels, err := resolveAll(t, args)
			if err != nil {
				return err
			}
			var results []reconcile.Result
			if a.opts.dryRun {
				results = planned(t.Status(ctxOf(cmd), rels...), symlinks.RestorePolicy)
			} else {
				results = t.Restore(ctxOf(cmd), force, rels...)
				if err := lock.Save(); err != nil {
					return err
				}
			}
			return a.reportResults("restore", results)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, MsgFlagForce)
	return cmd
}

func newSymlinksRehashCmd(a *app) *cobra.Command {
	var discover bool
	cmd := &cobra.Command{
		Use:   "rehash [paths...]",
		Short: MsgSymlinksRehashShort,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, lock, err := a.tracker()
			if err != nil {
				return err
			}
			rels, err := resolveAll(t, args)
			if err != nil {
				return err
			}
			if a.opts.dryRun {
				return a.reportResults("rehash", planned(t.Status(ctxOf(cmd), rels...), symlinks.RehashPolicy))
			}
			if discover {
				found, err := t.Discover(ctxOf(cmd))
				if err != nil {
					return err
				}
				for _, rel := range found {
					a.message(MsgDiscovered, rel)
				}
			}
			results := t.Rehash(ctxOf(cmd), rels...)
			if err := lock.Save(); err != nil {
				return err
			}
			return a.reportResults("rehash", results)
		},
	}
	cmd.Flags().BoolVar(&discover, "discover", false, MsgFlagDiscover)
	return cmd
}

func newSymlinksUndoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "undo <path>",
		Short: MsgSymlinksUndoShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, lock, err := a.tracker()
			if err != nil {
				return err
			}
			rel, err := t.Resolve(args[0])
			if err != nil {
				return err
			}
			if a.opts.dryRun {
				a.message(MsgWouldUntrack, rel)
				a.dryRunNotice()
				return nil
			}
			if err := t.Undo(ctxOf(cmd), rel); err != nil {
				return err
			}
			if err := lock.Save(); err != nil {
				return err
			}
			a.message(MsgUntracked, rel)
			return nil
		},
	}
}

func resolveAll(t *symlinks.Tracker, args []string) ([]string, error) {
	var rels []string
	for _, arg := range args {
		rel, err := t.Resolve(arg)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

// planned shows what policy would do without applying it.
func planned(statuses []reconcile.Status, policy reconcile.Policy) []reconcile.Result {
	results := make([]reconcile.Result, 0, len(statuses))
	for _, st := range statuses {
		res := reconcile.Result{Status: st, Err: st.Err}
		if st.Err == nil {
			res.Action = policy(st)
		}
		results = append(results, res)
	}
	return results
}

func (a *app) reportResults(title string, results []reconcile.Result) error {
	if err := display.NewRenderer(a.out, display.FormatText).Actions(display.FromResults(title, a.opts.dryRun, results)); err != nil {
		return err
	}
	if n := display.FailedResults(results); n > 0 {
		return errors.Newf(errors.ErrFilesystem, MsgErrEntityFailures, n)
	}
	return nil
}
