// Package envgen turns a module's exports into shell environment
// statements.
package envgen

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/graph"
	"github.com/PatWie/sprout/pkg/manifest"
)

// DefaultSet is used when no environment set is named.
const DefaultSet = "default"

// GuardVar is set by a generated script so sourcing it twice is harmless.
const GuardVar = "SPROUT_ENV_LOADED"

// Var is one exported variable with its values in precedence order.
type Var struct {
	Name   string
	Values []string
}

// Script is the environment of one set.
type Script struct {
	Name string
	Vars []Var
}

// Set is a named environment set.
type Set struct {
	Name    string
	Modules []string
}

// Compose accumulates the exports of modules in the given order. Variables
// keep the order in which they first appear; values of the same variable
// are joined with earlier modules first. Relative export paths are placed
// under distRoot/<module>.
func Compose(m *manifest.Manifest, modules []string, distRoot string) ([]Var, error) {
	var vars []Var
	index := map[string]int{}
	for _, name := range modules {
		mod, ok := m.Module(name)
		if !ok {
			return nil, errors.UnknownModule(name, "", graph.Suggest(name, m.Names()))
		}
		for _, exp := range mod.Exports {
			value := ExportPath(distRoot, name, exp.Path)
			i, seen := index[exp.Name]
			if !seen {
				index[exp.Name] = len(vars)
				vars = append(vars, Var{Name: exp.Name})
				i = len(vars) - 1
			}
			vars[i].Values = append(vars[i].Values, value)
		}
	}
	return vars, nil
}

// ExportPath resolves one export value. Absolute paths are kept.
func ExportPath(distRoot, module, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(distRoot, module, path)
}

// Generate builds the script for the named set.
func Generate(m *manifest.Manifest, set, distRoot string) (Script, error) {
	if set == "" {
		set = DefaultSet
	}
	env, ok := m.Environment(set)
	if !ok {
		msg := fmt.Sprintf("unknown environment %q", set)
		if names := m.EnvironmentNames(); len(names) > 0 {
			msg += fmt.Sprintf(" (defined: %s)", strings.Join(names, ", "))
		}
		return Script{}, errors.Validation(errors.KindUnknownEnvironment, msg).
			WithDetail("environment", set)
	}
	vars, err := Compose(m, env.Modules, distRoot)
	if err != nil {
		return Script{}, err
	}
	return Script{Name: set, Vars: vars}, nil
}

// List returns every environment set in declaration order.
func List(m *manifest.Manifest) []Set {
	envs := m.Environments()
	out := make([]Set, 0, len(envs))
	for _, env := range envs {
		out = append(out, Set{Name: env.Name, Modules: env.Modules})
	}
	return out
}

// String renders the script as POSIX shell. Existing values of each
// variable are kept after the exported ones.
func (s Script) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Environment: %s\n", s.Name)
	fmt.Fprintf(&b, "if [ -z \"${%s:-}\" ]; then\n", GuardVar)
	fmt.Fprintf(&b, "export %s=1\n", GuardVar)
	for _, v := range s.Vars {
		fmt.Fprintf(&b, "export %s=\"%s${%s:+:${%s}}\"\n", v.Name, escape(strings.Join(v.Values, ":")), v.Name, v.Name)
	}
	b.WriteString("fi\n")
	return b.String()
}

// Environ prepends the variables to the values found through lookup, in
// KEY=value form, for handing to a child process.
func Environ(vars []Var, lookup func(string) (string, bool)) []string {
	out := make([]string, 0, len(vars))
	for _, v := range vars {
		value := strings.Join(v.Values, ":")
		if old, ok := lookup(v.Name); ok && old != "" {
			value += ":" + old
		}
		out = append(out, v.Name+"="+value)
	}
	return out
}

// escape protects characters that are special inside double quotes.
func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", "$", `\$`)
	return r.Replace(s)
}
