package runner

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Interpreter runs scripts with the in-process POSIX shell from
// mvdan.cc/sh. External programs are still executed from PATH.
type Interpreter struct{}

// NewInterpreter creates an in-process runner.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// Name returns the runner name
func (r *Interpreter) Name() string { return ShellBuiltin }

// Run executes job.Script.
func (r *Interpreter) Run(ctx context.Context, job Job) error {
	return run(ctx, r.Name(), job, r.exec)
}

func (r *Interpreter) exec(ctx context.Context, job Job, out io.Writer) (int, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(job.Script), job.Module+"."+job.Stage)
	if err != nil {
		return 0, err
	}

	env := append(os.Environ(), job.Env...)
	runner, err := interp.New(
		interp.Dir(job.Dir),
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(nil, out, out),
	)
	if err != nil {
		return 0, err
	}

	err = runner.Run(ctx, prog)
	if err == nil {
		return 0, nil
	}
	var status interp.ExitStatus
	if stderrors.As(err, &status) {
		return int(status), nil
	}
	return 0, err
}
