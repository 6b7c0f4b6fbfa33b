package runner

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"time"
)

// Bash runs scripts with an external bash binary.
type Bash struct {
	path string
}

// NewBash creates a runner for the bash at path, or bash from PATH when
// path is empty.
func NewBash(path string) *Bash {
	if path == "" {
		path = "bash"
	}
	return &Bash{path: path}
}

// Name returns the runner name
func (r *Bash) Name() string { return ShellBash }

// Run executes job.Script with bash -c.
func (r *Bash) Run(ctx context.Context, job Job) error {
	return run(ctx, r.Name(), job, r.exec)
}

func (r *Bash) exec(ctx context.Context, job Job, out io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, r.path, "-c", job.Script)
	cmd.Dir = job.Dir
	cmd.Env = append(os.Environ(), job.Env...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, err
}
