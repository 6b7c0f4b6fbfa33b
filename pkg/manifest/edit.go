package manifest

import (
	"fmt"

	"github.com/PatWie/sprout/pkg/errors"
)

// Draft is the mutable copy an edit callback works on.
type Draft struct {
	Modules      []Module
	Environments []Environment
}

// Edit runs fn on a deep copy of m and returns the validated result. When fn
// or validation fails, the error is returned and m is left as it was.
func (m *Manifest) Edit(fn func(d *Draft) error) (*Manifest, error) {
	d := &Draft{
		Modules:      m.Modules(),
		Environments: m.Environments(),
	}
	if err := fn(d); err != nil {
		return nil, err
	}
	return New(d.Modules, d.Environments)
}

// Module returns a pointer into the draft for the named module.
func (d *Draft) Module(name string) *Module {
	for i := range d.Modules {
		if d.Modules[i].Name == name {
			return &d.Modules[i]
		}
	}
	return nil
}

// AddModule appends a module. Adding an existing name fails.
func (d *Draft) AddModule(mod Module) error {
	if d.Module(mod.Name) != nil {
		return errors.Validation(errors.KindDuplicateModule, fmt.Sprintf("module %q already exists", mod.Name), mod.Name)
	}
	d.Modules = append(d.Modules, mod.Clone())
	return nil
}

// RemoveModule drops a module and every environment reference to it. It
// reports whether the module existed.
func (d *Draft) RemoveModule(name string) bool {
	found := false
	kept := d.Modules[:0]
	for _, mod := range d.Modules {
		if mod.Name == name {
			found = true
			continue
		}
		kept = append(kept, mod)
	}
	d.Modules = kept
	for i := range d.Environments {
		d.Environments[i].Modules = without(d.Environments[i].Modules, name)
	}
	return found
}

// Environment returns a pointer into the draft for the named set.
func (d *Draft) Environment(name string) *Environment {
	for i := range d.Environments {
		if d.Environments[i].Name == name {
			return &d.Environments[i]
		}
	}
	return nil
}

// AddToEnvironment appends module to the set, creating the set when needed.
// Adding a module that is already a member is a no-op.
func (d *Draft) AddToEnvironment(set, module string) {
	env := d.Environment(set)
	if env == nil {
		d.Environments = append(d.Environments, Environment{Name: set})
		env = &d.Environments[len(d.Environments)-1]
	}
	for _, m := range env.Modules {
		if m == module {
			return
		}
	}
	env.Modules = append(env.Modules, module)
}

// RemoveFromEnvironment removes module from the set. An emptied set is
// dropped. It reports whether anything changed.
func (d *Draft) RemoveFromEnvironment(set, module string) bool {
	env := d.Environment(set)
	if env == nil {
		return false
	}
	before := len(env.Modules)
	env.Modules = without(env.Modules, module)
	if len(env.Modules) == before {
		return false
	}
	if len(env.Modules) == 0 {
		d.RemoveEnvironment(set)
	}
	return true
}

// RemoveEnvironment drops a set entirely.
func (d *Draft) RemoveEnvironment(set string) bool {
	for i := range d.Environments {
		if d.Environments[i].Name == set {
			d.Environments = append(d.Environments[:i], d.Environments[i+1:]...)
			return true
		}
	}
	return false
}

func without(list []string, name string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != name {
			out = append(out, s)
		}
	}
	return out
}
