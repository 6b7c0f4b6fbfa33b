package sprout

import (
	"fmt"
	"io"
	"strings"

	"github.com/PatWie/sprout/pkg/envgen"
	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/manifest"
	"github.com/PatWie/sprout/pkg/style"
	"github.com/spf13/cobra"
)

func newEnvCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "env",
		Short:   MsgEnvShort,
		Long:    MsgEnvLong,
		GroupID: "core",
	}
	cmd.AddCommand(newEnvGenerateCmd(a))
	cmd.AddCommand(newEnvListCmd(a))
	cmd.AddCommand(newEnvAddCmd(a))
	cmd.AddCommand(newEnvRemoveCmd(a))
	return cmd
}

func environmentCompletion(a *app) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return moduleNamesCompletion(a)(cmd, args[1:], toComplete)
		}
		if a.paths == nil {
			if err := a.setup(cmd); err != nil {
				return nil, cobra.ShellCompDirectiveError
			}
		}
		doc, err := a.document()
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		return doc.Manifest().EnvironmentNames(), cobra.ShellCompDirectiveNoFileComp
	}
}

func newEnvGenerateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:               "generate [environment]",
		Short:             MsgEnvGenerateShort,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: environmentCompletion(a),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.document()
			if err != nil {
				return err
			}
			m := doc.Manifest()
			set, err := pickEnvironment(m, args)
			if err != nil {
				return err
			}
			script, err := envgen.Generate(m, set, a.paths.DistDir())
			if err != nil {
				return err
			}
			_, err = io.WriteString(a.out, script.String())
			return err
		},
	}
}

func pickEnvironment(m *manifest.Manifest, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	names := m.EnvironmentNames()
	if len(names) == 1 {
		return names[0], nil
	}
	for _, n := range names {
		if n == envgen.DefaultSet {
			return n, nil
		}
	}
	return "", errors.Newf(errors.ErrInvalidInput, MsgErrNoEnvironment, len(names))
}

func newEnvListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: MsgEnvListShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.document()
			if err != nil {
				return err
			}
			for _, set := range envgen.List(doc.Manifest()) {
				fmt.Fprintf(a.out, "%s  %s\n", style.ModuleStyle.Render(set.Name),
					style.MutedStyle.Render(strings.Join(set.Modules, ", ")))
			}
			return nil
		},
	}
}

func newEnvAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:               "add <environment> <module>",
		Short:             MsgEnvAddShort,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: environmentCompletion(a),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, module := args[0], args[1]
			_, next, err := a.editManifest(func(d *manifest.Draft) error {
				d.AddToEnvironment(set, module)
				return nil
			})
			if err != nil {
				return err
			}
			return a.reportEnvironment(next, set)
		},
	}
}

func newEnvRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:               "remove <environment> <module>",
		Aliases:           []string{"rm"},
		Short:             MsgEnvRemoveShort,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: environmentCompletion(a),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, module := args[0], args[1]
			_, next, err := a.editManifest(func(d *manifest.Draft) error {
				if !d.RemoveFromEnvironment(set, module) {
					return errors.Newf(errors.ErrNotFound, MsgErrNoSuchEnv, set, module)
				}
				return nil
			})
			if err != nil {
				return err
			}
			return a.reportEnvironment(next, set)
		},
	}
}

func (a *app) reportEnvironment(m *manifest.Manifest, set string) error {
	env, ok := m.Environment(set)
	if !ok {
		a.message(MsgEnvUpdated, set, "(removed)")
	} else {
		a.message(MsgEnvUpdated, set, strings.Join(env.Modules, ", "))
	}
	a.dryRunNotice()
	return nil
}
