package manifest

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/graph"
	"github.com/PatWie/sprout/pkg/paths"
	"golang.org/x/mod/module"
	"golang.org/x/mod/semver"
)

var envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks names, fetch specs, exports, the dependency graph and
// environment references. All failures are VALIDATION errors.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.modules))
	for i := range m.modules {
		mod := &m.modules[i]
		if seen[mod.Name] {
			return errors.Validation(errors.KindDuplicateModule,
				fmt.Sprintf("module %q is declared more than once", mod.Name), mod.Name)
		}
		seen[mod.Name] = true

		if err := validateModule(mod); err != nil {
			return err
		}
	}

	if _, err := graph.Resolve(m); err != nil {
		return err
	}

	return m.validateEnvironments()
}

// Graph resolves the dependency graph of a validated manifest.
func (m *Manifest) Graph() (*graph.Graph, error) {
	return graph.Resolve(m)
}

func invalid(mod, format string, args ...interface{}) error {
	return errors.Validation(errors.KindInvalidModule,
		fmt.Sprintf("module %q: ", mod)+fmt.Sprintf(format, args...), mod)
}

func validateModule(mod *Module) error {
	if err := paths.ValidateModuleName(mod.Name); err != nil {
		return errors.Wrapf(err, errors.ErrValidation, "invalid module name %q", mod.Name).
			WithDetail(errors.DetailKind, errors.KindInvalidModule).
			WithDetail(errors.DetailModules, []string{mod.Name})
	}

	vars := map[string]bool{}
	for _, exp := range mod.Exports {
		if !envNamePattern.MatchString(exp.Name) {
			return invalid(mod.Name, "export %q is not a valid variable name", exp.Name)
		}
		if vars[exp.Name] {
			return invalid(mod.Name, "export %q is declared more than once", exp.Name)
		}
		vars[exp.Name] = true
	}

	for _, kind := range StageKinds {
		stage := mod.Stage(kind)
		if stage == nil {
			continue
		}
		names := map[string]bool{}
		for _, env := range stage.Env {
			if !envNamePattern.MatchString(env.Name) {
				return invalid(mod.Name, "%s env %q is not a valid variable name", kind, env.Name)
			}
			if names[env.Name] {
				return invalid(mod.Name, "%s env %q is declared more than once", kind, env.Name)
			}
			names[env.Name] = true
		}
	}

	return validateFetch(mod.Name, mod.Fetch)
}

func validateFetch(name string, f *FetchSpec) error {
	if f.IsNone() {
		return nil
	}

	switch f.Kind {
	case FetchGit:
		if f.URL == "" {
			return invalid(name, "git fetch requires url")
		}
		if f.Depth < 0 {
			return invalid(name, "git depth must not be negative")
		}
	case FetchHTTP, FetchArchive:
		if f.URL == "" {
			return invalid(name, "%s fetch requires url", f.Kind)
		}
		if f.SHA256 != "" {
			if b, err := hex.DecodeString(f.SHA256); err != nil || len(b) != 32 {
				return invalid(name, "sha256 %q is not a hex sha256 digest", f.SHA256)
			}
			if f.SHA256 != strings.ToLower(f.SHA256) {
				return invalid(name, "sha256 must be lowercase hex")
			}
		}
	case FetchCargo:
		if f.Crate == "" || f.Version == "" {
			return invalid(name, "cargo fetch requires crate and version")
		}
	case FetchGo:
		if err := module.CheckPath(f.Module); err != nil {
			return invalid(name, "go module path: %v", err)
		}
		if !semver.IsValid(f.Version) {
			return invalid(name, "go module version %q is not a semantic version", f.Version)
		}
	case FetchLocal:
		if f.Path == "" {
			return invalid(name, "local fetch requires path")
		}
	default:
		return invalid(name, "unknown fetch kind %q", f.Kind)
	}
	return nil
}

func (m *Manifest) validateEnvironments() error {
	seen := map[string]bool{}
	for _, env := range m.environments {
		if env.Name == "" {
			return errors.Validation(errors.KindUnknownEnvironment, "environment name cannot be empty")
		}
		if seen[env.Name] {
			return errors.Validation(errors.KindUnknownEnvironment,
				fmt.Sprintf("environment %q is declared more than once", env.Name))
		}
		seen[env.Name] = true

		for _, ref := range env.Modules {
			if m.Has(ref) {
				continue
			}
			suggestions := graph.Suggest(ref, m.Names())
			msg := fmt.Sprintf("environment %q references unknown module %q", env.Name, ref)
			if len(suggestions) > 0 {
				msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(suggestions, ", "))
			}
			return errors.Validation(errors.KindUnknownModule, msg, ref).
				WithDetail(errors.DetailSuggest, suggestions)
		}
	}
	return nil
}
