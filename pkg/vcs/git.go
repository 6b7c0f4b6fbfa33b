// Package vcs keeps the sprout root under git: init, commit, push and pull.
package vcs

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/logging"
	"github.com/rs/zerolog"
)

// Gitignore lists the sprout root paths that are rebuilt locally and never
// committed.
var Gitignore = []string{"dist/", "sources/", "cache/", "logs/"}

// Repo runs git in one directory.
type Repo struct {
	dir    string
	git    string
	logger zerolog.Logger
}

// New returns a Repo for dir using the git executable at git ("" means
// "git" on PATH).
func New(dir, git string) *Repo {
	if git == "" {
		git = "git"
	}
	return &Repo{dir: dir, git: git, logger: logging.GetLogger("vcs")}
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.git, append([]string{"-C", r.dir}, args...)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	logging.LogCommand(r.logger, r.git, cmd.Args[1:])
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(ctx.Err(), errors.ErrCanceled, "git canceled")
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", errors.Wrapf(err, errors.ErrFilesystem, "git %s: %s", args[0], msg).
			WithDetail(errors.DetailPath, r.dir)
	}
	return stdout.String(), nil
}

// IsRepo reports whether the directory is inside a git work tree.
func (r *Repo) IsRepo(ctx context.Context) bool {
	out, err := r.run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// Init creates the repository if needed.
func (r *Repo) Init(ctx context.Context) error {
	if r.IsRepo(ctx) {
		return nil
	}
	_, err := r.run(ctx, "init", "--quiet")
	return err
}

// Changed lists paths with uncommitted changes, as git status prints them.
func (r *Repo) Changed(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) > 3 {
			paths = append(paths, strings.TrimSpace(line[3:]))
		}
	}
	return paths, nil
}

// Commit stages everything and commits with message. It reports false when
// there was nothing to commit.
func (r *Repo) Commit(ctx context.Context, message string) (bool, error) {
	changed, err := r.Changed(ctx)
	if err != nil {
		return false, err
	}
	if len(changed) == 0 {
		return false, nil
	}
	if _, err := r.run(ctx, "add", "--all"); err != nil {
		return false, err
	}
	if _, err := r.run(ctx, "commit", "--quiet", "-m", message); err != nil {
		return false, err
	}
	r.logger.Info().Int("files", len(changed)).Msg("Committed")
	return true, nil
}

// Push pushes the current branch.
func (r *Repo) Push(ctx context.Context) error {
	_, err := r.run(ctx, "push", "--quiet")
	return err
}

// Pull fetches and rebases onto the upstream branch.
func (r *Repo) Pull(ctx context.Context) error {
	_, err := r.run(ctx, "pull", "--rebase", "--quiet")
	return err
}
