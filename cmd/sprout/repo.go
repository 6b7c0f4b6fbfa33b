package sprout

import (
	"strings"

	"github.com/PatWie/sprout/pkg/display"
	"github.com/PatWie/sprout/pkg/reconcile"
	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:     "status",
		Short:   MsgStatusShort,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.renderer(output)
			if err != nil {
				return err
			}
			doc, err := a.document()
			if err != nil {
				return err
			}
			o, lock, err := a.orchestrator(doc.Manifest())
			if err != nil {
				return err
			}
			modules, err := o.Status(ctxOf(cmd), nil)
			if err != nil {
				return err
			}
			links := newTrackerFor(a, lock).Status(ctxOf(cmd))

			view := display.StatusView{
				Modules:  display.FromStatuses(modules),
				Symlinks: display.FromStatuses(links),
			}
			if err := r.Status(view); err != nil {
				return err
			}
			return entityFailures(append(append([]reconcile.Status(nil), modules...), links...))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", MsgFlagOutput)
	return cmd
}

func newCommitCmd(a *app) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:     "commit",
		Short:   MsgCommitShort,
		GroupID: "repo",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(message) == "" {
				message = MsgDefaultCommit
			}
			repo := a.repo()
			if a.opts.dryRun {
				changed, err := repo.Changed(ctxOf(cmd))
				if err != nil {
					return err
				}
				for _, c := range changed {
					a.message("  [path]%s[/path]", c)
				}
				a.dryRunNotice()
				return nil
			}
			committed, err := repo.Commit(ctxOf(cmd), message)
			if err != nil {
				return err
			}
			if !committed {
				a.message(MsgNothingToCommit)
				return nil
			}
			a.message(MsgCommitted, message)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", MsgFlagMessage)
	return cmd
}

func newPushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "push",
		Short:   MsgPushShort,
		GroupID: "repo",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.opts.dryRun {
				a.dryRunNotice()
				return nil
			}
			if err := a.repo().Push(ctxOf(cmd)); err != nil {
				return err
			}
			a.message(MsgPushed)
			return nil
		},
	}
}

func newPullCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "pull",
		Short:   MsgPullShort,
		GroupID: "repo",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.opts.dryRun {
				a.dryRunNotice()
				return nil
			}
			if err := a.repo().Pull(ctxOf(cmd)); err != nil {
				return err
			}
			a.message(MsgPulled)
			return nil
		},
	}
}
