package manifest

import (
	"strings"
)

// FetchKind names where a module's source comes from.
type FetchKind string

const (
	FetchNone    FetchKind = ""
	FetchGit     FetchKind = "git"
	FetchHTTP    FetchKind = "http"
	FetchArchive FetchKind = "archive"
	FetchCargo   FetchKind = "cargo"
	FetchGo      FetchKind = "go"
	FetchLocal   FetchKind = "local"
)

// FetchKinds lists every supported kind in canonical order.
var FetchKinds = []FetchKind{FetchGit, FetchHTTP, FetchArchive, FetchCargo, FetchGo, FetchLocal}

// FetchSpec describes a module's source. Only the fields relevant to Kind
// are meaningful.
type FetchSpec struct {
	Kind FetchKind

	// git, http, archive
	URL string
	// git
	Ref       string
	Depth     int
	Recursive bool
	// http, archive
	SHA256 string
	// cargo
	Crate string
	// go
	Module string
	// cargo, go
	Version string
	// local
	Path string
}

// IsNone reports whether the module has no fetch stage.
func (f *FetchSpec) IsNone() bool {
	return f == nil || f.Kind == FetchNone
}

// SourceDir returns the sources/ subdirectory for the kind, or "" when the
// kind keeps no managed source copy.
func (f *FetchSpec) SourceDir() string {
	if f.IsNone() || f.Kind == FetchLocal {
		return ""
	}
	return string(f.Kind)
}

// Downloads reports whether the kind goes through the HTTP download cache.
func (f *FetchSpec) Downloads() bool {
	if f.IsNone() {
		return false
	}
	switch f.Kind {
	case FetchHTTP, FetchArchive, FetchCargo:
		return true
	}
	return false
}

// EnvVar is one entry of a stage env block.
type EnvVar struct {
	Name  string
	Value string
}

// Stage is one of build, install or update: an env block followed by
// opaque command lines.
type Stage struct {
	Env      []EnvVar
	Commands []string
}

// IsEmpty reports whether the stage has nothing to run.
func (s *Stage) IsEmpty() bool {
	return s == nil || len(s.Commands) == 0
}

// StageKind names a script stage.
type StageKind string

const (
	StageBuild   StageKind = "build"
	StageInstall StageKind = "install"
	StageUpdate  StageKind = "update"
)

// StageKinds in execution order.
var StageKinds = []StageKind{StageBuild, StageInstall, StageUpdate}

// Export maps an environment variable to a path under the module's dist dir.
type Export struct {
	Name string
	Path string
}

// Module is a named fetch/build unit.
type Module struct {
	Name      string
	DependsOn []string
	Exports   []Export
	Fetch     *FetchSpec
	Build     *Stage
	Install   *Stage
	Update    *Stage
}

// Stage returns the stage of the given kind, possibly nil.
func (m *Module) Stage(kind StageKind) *Stage {
	switch kind {
	case StageBuild:
		return m.Build
	case StageInstall:
		return m.Install
	case StageUpdate:
		return m.Update
	}
	return nil
}

// SetStage replaces the stage of the given kind.
func (m *Module) SetStage(kind StageKind, s *Stage) {
	switch kind {
	case StageBuild:
		m.Build = s
	case StageInstall:
		m.Install = s
	case StageUpdate:
		m.Update = s
	}
}

// Clone returns a deep copy.
func (m Module) Clone() Module {
	out := m
	out.DependsOn = append([]string(nil), m.DependsOn...)
	out.Exports = append([]Export(nil), m.Exports...)
	if m.Fetch != nil {
		f := *m.Fetch
		out.Fetch = &f
	}
	out.Build = m.Build.clone()
	out.Install = m.Install.clone()
	out.Update = m.Update.clone()
	return out
}

func (s *Stage) clone() *Stage {
	if s == nil {
		return nil
	}
	return &Stage{
		Env:      append([]EnvVar(nil), s.Env...),
		Commands: append([]string(nil), s.Commands...),
	}
}

// Environment is a named, ordered group of modules.
type Environment struct {
	Name    string
	Modules []string
}

func (e Environment) clone() Environment {
	return Environment{Name: e.Name, Modules: append([]string(nil), e.Modules...)}
}

// Manifest is an immutable, validated snapshot.
type Manifest struct {
	modules      []Module
	index        map[string]int
	environments []Environment
}

// New validates modules and environments and returns a snapshot. The
// arguments are copied.
func New(modules []Module, environments []Environment) (*Manifest, error) {
	m := build(modules, environments)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Empty returns a manifest with no modules.
func Empty() *Manifest {
	return build(nil, nil)
}

func build(modules []Module, environments []Environment) *Manifest {
	m := &Manifest{index: make(map[string]int, len(modules))}
	for _, mod := range modules {
		if _, dup := m.index[mod.Name]; !dup {
			m.index[mod.Name] = len(m.modules)
		}
		m.modules = append(m.modules, mod.Clone())
	}
	for _, env := range environments {
		m.environments = append(m.environments, env.clone())
	}
	return m
}

// Names returns module names in declaration order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.modules))
	for _, mod := range m.modules {
		names = append(names, mod.Name)
	}
	return names
}

// DependsOn returns the declared dependencies of name.
func (m *Manifest) DependsOn(name string) []string {
	if i, ok := m.index[name]; ok {
		return append([]string(nil), m.modules[i].DependsOn...)
	}
	return nil
}

// Modules returns copies of all modules in declaration order.
func (m *Manifest) Modules() []Module {
	out := make([]Module, 0, len(m.modules))
	for _, mod := range m.modules {
		out = append(out, mod.Clone())
	}
	return out
}

// Module returns a copy of the named module.
func (m *Manifest) Module(name string) (Module, bool) {
	i, ok := m.index[name]
	if !ok {
		return Module{}, false
	}
	return m.modules[i].Clone(), true
}

// Has reports whether name is declared.
func (m *Manifest) Has(name string) bool {
	_, ok := m.index[name]
	return ok
}

// Len returns the number of modules.
func (m *Manifest) Len() int {
	return len(m.modules)
}

// Environments returns copies of all environment sets in declaration order.
func (m *Manifest) Environments() []Environment {
	out := make([]Environment, 0, len(m.environments))
	for _, env := range m.environments {
		out = append(out, env.clone())
	}
	return out
}

// Environment returns a copy of the named environment set.
func (m *Manifest) Environment(name string) (Environment, bool) {
	for _, env := range m.environments {
		if env.Name == name {
			return env.clone(), true
		}
	}
	return Environment{}, false
}

// EnvironmentNames returns environment set names in declaration order.
func (m *Manifest) EnvironmentNames() []string {
	names := make([]string, 0, len(m.environments))
	for _, env := range m.environments {
		names = append(names, env.Name)
	}
	return names
}

// Equal reports whether two modules declare the same thing.
func (m Module) Equal(other Module) bool {
	return m.Name == other.Name &&
		equalStrings(m.DependsOn, other.DependsOn) &&
		equalExports(m.Exports, other.Exports) &&
		equalFetch(m.Fetch, other.Fetch) &&
		equalStage(m.Build, other.Build) &&
		equalStage(m.Install, other.Install) &&
		equalStage(m.Update, other.Update)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalExports(a, b []Export) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalFetch(a, b *FetchSpec) bool {
	if a.IsNone() || b.IsNone() {
		return a.IsNone() == b.IsNone()
	}
	return *a == *b
}

func equalStage(a, b *Stage) bool {
	if a == nil || b == nil {
		return a.IsEmpty() && b.IsEmpty() && len(envOf(a)) == 0 && len(envOf(b)) == 0
	}
	if len(a.Env) != len(b.Env) {
		return false
	}
	for i := range a.Env {
		if a.Env[i] != b.Env[i] {
			return false
		}
	}
	return equalStrings(a.Commands, b.Commands)
}

func envOf(s *Stage) []EnvVar {
	if s == nil {
		return nil
	}
	return s.Env
}

// String renders a short description like "git https://...".
func (f *FetchSpec) String() string {
	if f.IsNone() {
		return "none"
	}
	parts := []string{string(f.Kind)}
	switch f.Kind {
	case FetchGit, FetchHTTP, FetchArchive:
		parts = append(parts, f.URL)
		if f.Ref != "" {
			parts = append(parts, "@"+f.Ref)
		}
	case FetchCargo:
		parts = append(parts, f.Crate+"@"+f.Version)
	case FetchGo:
		parts = append(parts, f.Module+"@"+f.Version)
	case FetchLocal:
		parts = append(parts, f.Path)
	}
	return strings.Join(parts, " ")
}
