// Package graph orders modules by their depends_on edges.
//
// Resolution is a depth-first postorder walk started from every module in
// declaration order, visiting dependencies in the order they are declared.
// The result is deterministic for identical input. Cycles (including a
// module depending on itself) and references to undeclared modules are
// rejected with VALIDATION errors before anything runs.
package graph

import (
	"github.com/PatWie/sprout/pkg/errors"
	"github.com/sahilm/fuzzy"
)

// Source is the minimal view of a manifest the resolver needs.
type Source interface {
	// Names returns module names in declaration order.
	Names() []string
	// DependsOn returns the declared dependencies of name.
	DependsOn(name string) []string
}

type visitState int

const (
	unvisited visitState = iota
	inProgress
	done
)

// Graph is a resolved, acyclic dependency graph.
type Graph struct {
	order      []string
	position   map[string]int
	deps       map[string][]string
	dependents map[string][]string
	names      []string
}

// Resolve builds the graph and its build order.
func Resolve(src Source) (*Graph, error) {
	names := src.Names()
	g := &Graph{
		position:   make(map[string]int, len(names)),
		deps:       make(map[string][]string, len(names)),
		dependents: make(map[string][]string, len(names)),
	}

	declared := make(map[string]bool, len(names))
	for _, name := range names {
		if declared[name] {
			continue
		}
		declared[name] = true
		g.names = append(g.names, name)
	}

	for _, name := range g.names {
		seen := make(map[string]bool)
		for _, dep := range src.DependsOn(name) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			if !declared[dep] {
				return nil, errors.UnknownModule(dep, name, Suggest(dep, g.names))
			}
			g.deps[name] = append(g.deps[name], dep)
		}
	}

	state := make(map[string]visitState, len(g.names))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case inProgress:
			return errors.Cycle(cyclePath(stack, name))
		}

		state[name] = inProgress
		stack = append(stack, name)
		for _, dep := range g.deps[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done

		g.position[name] = len(g.order)
		g.order = append(g.order, name)
		return nil
	}

	for _, name := range g.names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	// dependents in build order
	for _, name := range g.order {
		for _, dep := range g.deps[name] {
			g.dependents[dep] = append(g.dependents[dep], name)
		}
	}

	return g, nil
}

// cyclePath returns the stack suffix starting at name, closed with name.
func cyclePath(stack []string, name string) []string {
	for i, n := range stack {
		if n == name {
			path := append([]string(nil), stack[i:]...)
			return append(path, name)
		}
	}
	return []string{name, name}
}

// Order returns all modules in build order (dependencies first).
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Has reports whether name is part of the graph.
func (g *Graph) Has(name string) bool {
	_, ok := g.position[name]
	return ok
}

// Dependencies returns the direct dependencies of name.
func (g *Graph) Dependencies(name string) []string {
	return append([]string(nil), g.deps[name]...)
}

// Dependents returns the modules that directly depend on name, in build order.
func (g *Graph) Dependents(name string) []string {
	return append([]string(nil), g.dependents[name]...)
}

// Ancestors returns every transitive dependency of name in build order.
func (g *Graph) Ancestors(name string) []string {
	return g.closure(name, g.deps)
}

// Descendants returns every transitive dependent of name in build order.
func (g *Graph) Descendants(name string) []string {
	return g.closure(name, g.dependents)
}

func (g *Graph) closure(name string, edges map[string][]string) []string {
	seen := map[string]bool{}
	var walk func(string)
	walk = func(n string) {
		for _, next := range edges[n] {
			if !seen[next] {
				seen[next] = true
				walk(next)
			}
		}
	}
	walk(name)
	return g.inOrder(seen)
}

// Select returns targets, optionally extended with their transitive
// dependencies and/or dependents, in build order. An empty target list
// selects every module.
func (g *Graph) Select(targets []string, withDeps, withDependents bool) ([]string, error) {
	if len(targets) == 0 {
		return g.Order(), nil
	}

	selected := map[string]bool{}
	for _, target := range targets {
		if !g.Has(target) {
			return nil, errors.UnknownModule(target, "", Suggest(target, g.names))
		}
		selected[target] = true
		if withDeps {
			for _, n := range g.Ancestors(target) {
				selected[n] = true
			}
		}
		if withDependents {
			for _, n := range g.Descendants(target) {
				selected[n] = true
			}
		}
	}
	return g.inOrder(selected), nil
}

func (g *Graph) inOrder(set map[string]bool) []string {
	var out []string
	for _, n := range g.order {
		if set[n] {
			out = append(out, n)
		}
	}
	return out
}

const maxSuggestions = 3

// Suggest returns up to three declared names that look like ref.
func Suggest(ref string, names []string) []string {
	var out []string
	for _, name := range names {
		if len(out) == maxSuggestions {
			break
		}
		if name == ref {
			continue
		}
		if len(fuzzy.Find(ref, []string{name})) > 0 || len(fuzzy.Find(name, []string{ref})) > 0 {
			out = append(out, name)
		}
	}
	return out
}
