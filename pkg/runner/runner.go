// Package runner executes assembled stage scripts and records their output
// in per-stage log files.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/logging"
)

// Shell names accepted by New.
const (
	ShellBuiltin = "builtin"
	ShellBash    = "bash"
)

// Job is one stage script to run.
type Job struct {
	Module string
	Stage  string
	// Dir is the working directory; it must exist.
	Dir    string
	Script string
	// Env is appended to the process environment.
	Env []string
	// LogPath receives the script followed by its combined output.
	LogPath string
	// Output, when set, mirrors the combined output.
	Output io.Writer
}

// Runner runs stage scripts. A nonzero exit is a BUILD error carrying the
// exit code and log path.
type Runner interface {
	Name() string
	Run(ctx context.Context, job Job) error
}

// New returns the runner for a configured shell name.
func New(shell string) (Runner, error) {
	switch shell {
	case "", ShellBuiltin:
		return NewInterpreter(), nil
	case ShellBash:
		return NewBash(""), nil
	}
	return nil, errors.Newf(errors.ErrInvalidInput, "unknown shell %q (want %s or %s)", shell, ShellBuiltin, ShellBash)
}

type execFunc func(ctx context.Context, job Job, out io.Writer) (exitCode int, err error)

// run wraps the shell-specific exec with log handling and error mapping.
func run(ctx context.Context, shell string, job Job, exec execFunc) error {
	logger := logging.GetLogger("runner")

	var out io.Writer = io.Discard
	if job.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(job.LogPath), 0o755); err != nil {
			return errors.Wrapf(err, errors.ErrFilesystem, "cannot create log directory for %s", job.Module).
				WithDetail(errors.DetailPath, filepath.Dir(job.LogPath))
		}
		f, err := os.Create(job.LogPath)
		if err != nil {
			return errors.Wrapf(err, errors.ErrFilesystem, "cannot create log for %s", job.Module).
				WithDetail(errors.DetailPath, job.LogPath)
		}
		defer func() { _ = f.Close() }()
		fmt.Fprintf(f, "=== %s %s (%s) ===\n%s\n=== output ===\n", job.Module, job.Stage, shell, job.Script)
		out = f
	}
	if job.Output != nil {
		out = io.MultiWriter(out, job.Output)
	}

	start := time.Now()
	logger.Debug().Str("module", job.Module).Str("stage", job.Stage).Str("dir", job.Dir).
		Str("shell", shell).Msg("Running stage script")

	code, err := exec(ctx, job, out)
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrapf(ctxErr, errors.ErrCanceled, "%s %s canceled", job.Module, job.Stage).
			WithDetail(errors.DetailModule, job.Module).
			WithDetail(errors.DetailStage, job.Stage)
	}
	if err != nil {
		return errors.Wrapf(err, errors.ErrBuild, "%s %s could not run", job.Module, job.Stage).
			WithDetail(errors.DetailModule, job.Module).
			WithDetail(errors.DetailStage, job.Stage).
			WithDetail(errors.DetailLogPath, job.LogPath)
	}
	if code != 0 {
		logger.Debug().Str("module", job.Module).Str("stage", job.Stage).Int("exit_code", code).
			Dur("elapsed", elapsed).Msg("Stage script failed")
		msg := fmt.Sprintf("%s %s failed with exit code %d", job.Module, job.Stage, code)
		if job.LogPath != "" {
			msg += "; see " + job.LogPath
		}
		return errors.New(errors.ErrBuild, msg).
			WithDetail(errors.DetailModule, job.Module).
			WithDetail(errors.DetailStage, job.Stage).
			WithDetail(errors.DetailExitCode, code).
			WithDetail(errors.DetailLogPath, job.LogPath)
	}

	logger.Debug().Str("module", job.Module).Str("stage", job.Stage).Dur("elapsed", elapsed).
		Msg("Stage script finished")
	return nil
}
