package runner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/manifest"
	"mvdan.cc/sh/v3/syntax"
)

// Vars are the per-module locations every stage script sees.
type Vars struct {
	SproutDist string
	SourcePath string
	DistPath   string
}

func (v Vars) lookup(name string) string {
	switch name {
	case "SPROUT_DIST":
		return v.SproutDist
	case "SOURCE_PATH":
		return v.SourcePath
	case "DIST_PATH":
		return v.DistPath
	}
	return ""
}

// Environ returns the variables as KEY=value pairs.
func (v Vars) Environ() []string {
	return []string{
		"SPROUT_DIST=" + v.SproutDist,
		"SOURCE_PATH=" + v.SourcePath,
		"DIST_PATH=" + v.DistPath,
	}
}

var placeholderRe = regexp.MustCompile(
	`\$(?:\{(` + strings.Join(manifest.Placeholders, "|") + `)\}|(` +
		strings.Join(manifest.Placeholders, "|") + `)\b)`)

// Expand substitutes $NAME and ${NAME} placeholders with their values.
// Other shell variables are left alone.
func Expand(s string, v Vars) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		sub := placeholderRe.FindStringSubmatch(match)
		name := sub[1]
		if name == "" {
			name = sub[2]
		}
		return v.lookup(name)
	})
}

// Assemble renders a stage as one script: set -e, the base exports, the
// stage env block in order, then the commands.
func Assemble(stage *manifest.Stage, v Vars) string {
	var b strings.Builder
	b.WriteString("set -e\n")
	fmt.Fprintf(&b, "export SPROUT_DIST=%s\n", quote(v.SproutDist))
	fmt.Fprintf(&b, "export DIST_PATH=%s\n", quote(v.DistPath))
	fmt.Fprintf(&b, "export SOURCE_PATH=%s\n", quote(v.SourcePath))
	if stage == nil {
		return b.String()
	}
	for _, env := range stage.Env {
		fmt.Fprintf(&b, "export %s=\"%s\"\n", env.Name, envValue(env.Value, v))
	}
	for _, cmd := range stage.Commands {
		b.WriteString(Expand(cmd, v))
		b.WriteByte('\n')
	}
	return b.String()
}

// Check parses script as POSIX/bash shell without running it.
func Check(script, name string) error {
	if _, err := syntax.NewParser().Parse(strings.NewReader(script), name); err != nil {
		return errors.Wrapf(err, errors.ErrInvalidInput, "invalid shell in %s", name)
	}
	return nil
}

// CheckStage checks every command of a stage in its assembled form.
func CheckStage(module string, kind manifest.StageKind, stage *manifest.Stage) error {
	if stage.IsEmpty() {
		return nil
	}
	name := module + "." + string(kind)
	script := Assemble(stage, Vars{SproutDist: "/dist", SourcePath: "/src", DistPath: "/dist/" + module})
	if _, err := syntax.NewParser().Parse(strings.NewReader(script), name); err != nil {
		return errors.Wrapf(err, errors.ErrInvalidInput, "invalid shell in %s", name).
			WithDetail(errors.DetailModule, module).
			WithDetail(errors.DetailStage, string(kind))
	}
	return nil
}

var (
	// Shell references in env values stay live; everything else is literal.
	valueEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`")
	pathEscaper  = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", "$", `\$`)
)

// envValue renders an env value for a double-quoted export. Placeholder
// values are escaped completely so a path never expands.
func envValue(value string, v Vars) string {
	escaped := Vars{
		SproutDist: pathEscaper.Replace(v.SproutDist),
		SourcePath: pathEscaper.Replace(v.SourcePath),
		DistPath:   pathEscaper.Replace(v.DistPath),
	}
	return Expand(valueEscaper.Replace(value), escaped)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
