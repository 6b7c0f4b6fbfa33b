package fetch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/PatWie/sprout/pkg/logging"
	"github.com/PatWie/sprout/pkg/manifest"
)

var commitRe = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)

// fetchGit clones spec.URL into tmp. Branches and tags go through
// clone --branch; commit ids are fetched directly. Depth 0 means a
// shallow clone of depth 1.
func (f *Fetcher) fetchGit(ctx context.Context, module string, spec *manifest.FetchSpec, tmp string) error {
	logPath := f.paths.LogPath(module, "fetch", f.now())
	if err := f.fs.MkdirAll(f.paths.LogsDir(), 0o755); err != nil {
		return fsError(err, "cannot create", f.paths.LogsDir())
	}
	log, err := filesystem.Create(f.fs, logPath, 0o644)
	if err != nil {
		return fsError(err, "cannot create", logPath)
	}
	defer func() { _ = log.Close() }()
	fmt.Fprintf(log, "=== git fetch ===\nrepository: %s\nref: %s\ntarget: %s\n", spec.URL, spec.Ref, tmp)

	depth := spec.Depth
	if depth == 0 {
		depth = 1
	}
	depthArg := "--depth=" + strconv.Itoa(depth)

	var steps [][]string
	if spec.Ref != "" && commitRe.MatchString(spec.Ref) {
		steps = [][]string{
			{"init", "--quiet", tmp},
			{"-C", tmp, "remote", "add", "origin", spec.URL},
			{"-C", tmp, "fetch", depthArg, "origin", spec.Ref},
			{"-C", tmp, "checkout", "--quiet", "FETCH_HEAD"},
		}
	} else {
		clone := []string{"clone", depthArg}
		if spec.Ref != "" {
			clone = append(clone, "--branch", spec.Ref)
		}
		steps = [][]string{append(clone, spec.URL, tmp)}
	}
	if spec.Recursive {
		steps = append(steps, []string{"-C", tmp, "submodule", "update", "--init", "--recursive", depthArg})
	}

	for _, args := range steps {
		fmt.Fprintf(log, "$ %s %s\n", f.opts.Git, strings.Join(args, " "))
		logging.LogCommand(f.logger, f.opts.Git, args)
		cmd := exec.CommandContext(ctx, f.opts.Git, args...)
		cmd.Stdout = log
		cmd.Stderr = log
		cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return canceled(ctx.Err(), module)
			}
			return errors.Wrapf(err, errors.ErrFetch, "git %s failed for %s; see %s", args[0], module, logPath).
				WithDetail(errors.DetailModule, module).
				WithDetail(errors.DetailLogPath, logPath)
		}
	}
	f.logger.Debug().Str("module", module).Str("log", logPath).Msg("Git fetch finished")
	return nil
}
