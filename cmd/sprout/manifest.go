package sprout

import (
	"bytes"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/PatWie/sprout/pkg/manifest"
	"github.com/PatWie/sprout/pkg/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newManifestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "manifest",
		Short:   MsgManifestShort,
		Long:    MsgManifestLong,
		GroupID: "core",
	}
	cmd.AddCommand(newManifestCheckCmd(a))
	cmd.AddCommand(newManifestFormatCmd(a))
	return cmd
}

func newManifestCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: MsgManifestCheckShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.document()
			if err != nil {
				return err
			}
			m := doc.Manifest()
			if err := checkScripts(m); err != nil {
				return err
			}
			a.message(MsgManifestOK, len(m.Names()), len(m.EnvironmentNames()))
			return nil
		},
	}
}

// checkScripts syntax-checks every stage of every module.
func checkScripts(m *manifest.Manifest) error {
	for _, mod := range m.Modules() {
		for _, kind := range manifest.StageKinds {
			stage := mod.Stage(kind)
			if stage.IsEmpty() {
				continue
			}
			if err := runner.CheckStage(mod.Name, kind, stage); err != nil {
				return err
			}
		}
	}
	return nil
}

func newManifestFormatCmd(a *app) *cobra.Command {
	var pin bool
	cmd := &cobra.Command{
		Use:   "format",
		Short: MsgManifestFormatShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.paths.ManifestPath()
			doc, err := a.document()
			if err != nil {
				return err
			}
			m := doc.Manifest()

			if pin && !a.opts.dryRun {
				if m, err = a.pinDownloads(cmd, m); err != nil {
					return err
				}
			}

			formatted := manifest.Format(m)
			if a.opts.dryRun {
				_, err := a.out.Write(formatted)
				return err
			}
			current, err := a.fs.ReadFile(path)
			if err == nil && bytes.Equal(current, formatted) {
				a.message(MsgManifestUnchanged, path)
				return nil
			}
			if err := filesystem.WriteFileAtomic(a.fs, path, formatted, 0o644); err != nil {
				return errors.Wrapf(err, errors.ErrFilesystem, "failed to write manifest %s", path).
					WithDetail(errors.DetailPath, path)
			}
			a.message(MsgManifestFormatted, path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&pin, "pin", false, MsgFlagPin)
	return cmd
}

// pinDownloads records the sha256 of every http and archive module that
// does not declare one yet.
func (a *app) pinDownloads(cmd *cobra.Command, m *manifest.Manifest) (*manifest.Manifest, error) {
	f, err := a.fetcher()
	if err != nil {
		return nil, err
	}
	digests := map[string]string{}
	for _, mod := range m.Modules() {
		spec := mod.Fetch
		if spec.IsNone() || spec.SHA256 != "" {
			continue
		}
		if spec.Kind != manifest.FetchHTTP && spec.Kind != manifest.FetchArchive {
			continue
		}
		sum, err := f.Pin(ctxOf(cmd), mod.Name, spec)
		if err != nil {
			return nil, err
		}
		log.Info().Str("module", mod.Name).Str("sha256", sum).Msg("Pinned download")
		digests[mod.Name] = sum
	}
	if len(digests) == 0 {
		return m, nil
	}
	next, err := m.Edit(func(d *manifest.Draft) error {
		for name, sum := range digests {
			mod := d.Module(name)
			spec := *mod.Fetch
			spec.SHA256 = sum
			mod.Fetch = &spec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, name := range next.Names() {
		if sum, ok := digests[name]; ok {
			a.message(MsgPinned, name, sum)
		}
	}
	return next, nil
}
