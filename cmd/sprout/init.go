package sprout

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/PatWie/sprout/pkg/config"
	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/PatWie/sprout/pkg/vcs"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	var (
		empty bool
		noGit bool
	)
	cmd := &cobra.Command{
		Use:     "init",
		Short:   MsgInitShort,
		Long:    MsgInitLong,
		Example: MsgInitExample,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, a, empty, noGit)
		},
	}
	cmd.Flags().BoolVar(&empty, "empty", false, MsgFlagEmpty)
	cmd.Flags().BoolVar(&noGit, "no-git", false, MsgFlagNoGit)
	return cmd
}

func runInit(cmd *cobra.Command, a *app, empty, noGit bool) error {
	p := a.paths
	manifestPath := p.ManifestPath()
	if ok, err := filesystem.Exists(a.fs, manifestPath); err != nil {
		return err
	} else if ok {
		return errors.Newf(errors.ErrInvalidInput, MsgErrAlreadyInit, manifestPath).
			WithDetail(errors.DetailPath, manifestPath)
	}

	if a.opts.dryRun {
		a.message(MsgWouldInitialize, p.Root())
		a.dryRunNotice()
		return nil
	}

	log.Info().Str("root", p.Root()).Bool("empty", empty).Msg("Initializing sprout root")
	for _, dir := range []string{p.Root(), p.SymlinksDir()} {
		if err := a.fs.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, errors.ErrFilesystem, "failed to create %s", dir).
				WithDetail(errors.DetailPath, dir)
		}
	}

	content := MsgManifestTemplate
	if empty {
		content = ""
	}
	files := []struct {
		path    string
		content string
	}{
		{path: manifestPath, content: content},
		{path: p.GitignorePath(), content: strings.Join(vcs.Gitignore, "\n") + "\n"},
		{path: p.ConfigFilePath(), content: config.GenerateConfigContent()},
	}
	a.message(MsgInitialized, p.Root())
	for _, f := range files {
		written, err := writeIfMissing(a.fs, f.path, f.content)
		if err != nil {
			return err
		}
		if written {
			a.message(MsgCreatedFile, f.path)
		} else {
			a.message(MsgKeptFile, f.path)
		}
	}

	if noGit {
		return nil
	}
	repo := a.repo()
	if repo.IsRepo(ctxOf(cmd)) {
		return nil
	}
	if err := repo.Init(ctxOf(cmd)); err != nil {
		log.Warn().Err(err).Msg(MsgWarnGitUnavailable)
		fmt.Fprintln(a.errOut, MsgWarnGitUnavailable)
		return nil
	}
	a.message(MsgGitInitialized)
	return nil
}

// writeIfMissing creates path with content unless it already exists.
func writeIfMissing(fsys filesystem.FS, path, content string) (bool, error) {
	ok, err := filesystem.Exists(fsys, path)
	if err != nil || ok {
		return false, err
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, errors.Wrapf(err, errors.ErrFilesystem, "failed to create %s", filepath.Dir(path)).
			WithDetail(errors.DetailPath, filepath.Dir(path))
	}
	if err := filesystem.WriteFileAtomic(fsys, path, []byte(content), 0o644); err != nil {
		return false, errors.Wrapf(err, errors.ErrFilesystem, "failed to write %s", path).
			WithDetail(errors.DetailPath, path)
	}
	return true, nil
}
