// Package lockfile persists the last reconciled fingerprint of every module
// and tracked symlink.
//
// A Store is loaded once per invocation and mutated in memory. Save writes
// through a temporary file and a rename, and refuses to overwrite a file
// that changed on disk since Load.
package lockfile

import (
	"bytes"
	stderrors "errors"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/PatWie/sprout/pkg/fingerprint"
	"github.com/pelletier/go-toml/v2"
)

// Version is the lockfile format version written by this build.
const Version = 1

const header = "# Generated by sprout. Edit the manifest instead of this file.\n\n"

// ModuleEntry is the recorded state of one module.
type ModuleEntry struct {
	// Fingerprint is the module's own fingerprint at the last successful run.
	Fingerprint fingerprint.Fingerprint `toml:"fingerprint"`
	// Tree folds Fingerprint with the Tree values of the dependencies.
	Tree fingerprint.Fingerprint `toml:"tree"`
	// Fetch is the fingerprint of the fetch spec the source was taken from.
	Fetch fingerprint.Fingerprint `toml:"fetch,omitempty"`
	// Source is the tree digest of the fetched source.
	Source fingerprint.Fingerprint `toml:"source,omitempty"`
	// Deps holds each dependency's Tree at the time of the build.
	Deps      map[string]fingerprint.Fingerprint `toml:"deps,omitempty"`
	Status    string                             `toml:"status"`
	UpdatedAt time.Time                          `toml:"updated_at"`
}

// SymlinkEntry is the recorded state of one tracked file or directory.
type SymlinkEntry struct {
	Fingerprint fingerprint.Fingerprint `toml:"fingerprint"`
	Status      string                  `toml:"status"`
	UpdatedAt   time.Time               `toml:"updated_at"`
}

type table struct {
	Version  int                     `toml:"version"`
	Modules  map[string]ModuleEntry  `toml:"modules,omitempty"`
	Symlinks map[string]SymlinkEntry `toml:"symlinks,omitempty"`
}

// Store is the in-memory lock table bound to one file. It is safe for
// concurrent use.
type Store struct {
	fs   filesystem.FS
	path string

	mu    sync.Mutex
	base  fingerprint.Fingerprint
	table table
	dirty bool
}

// Load reads the lockfile at path. A missing file is an empty table.
func Load(fsys filesystem.FS, path string) (*Store, error) {
	s := &Store{fs: fsys, path: path}

	data, base, err := s.readDisk()
	if err != nil {
		return nil, err
	}
	s.base = base
	if data != nil {
		if err := toml.Unmarshal(data, &s.table); err != nil {
			return nil, errors.Wrapf(err, errors.ErrInvalidInput, "failed to parse lockfile %s", path).
				WithDetail(errors.DetailPath, path)
		}
		if s.table.Version > Version {
			return nil, errors.Newf(errors.ErrInvalidInput,
				"lockfile %s has version %d, this sprout understands up to %d", path, s.table.Version, Version)
		}
	}
	s.table.Version = Version
	if s.table.Modules == nil {
		s.table.Modules = map[string]ModuleEntry{}
	}
	if s.table.Symlinks == nil {
		s.table.Symlinks = map[string]SymlinkEntry{}
	}
	return s, nil
}

func (s *Store) readDisk() ([]byte, fingerprint.Fingerprint, error) {
	data, err := s.fs.ReadFile(s.path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, fingerprint.Absent, nil
	}
	if err != nil {
		return nil, "", errors.Wrapf(err, errors.ErrFilesystem, "failed to read lockfile %s", s.path).
			WithDetail(errors.DetailPath, s.path)
	}
	return data, fingerprint.Bytes(data), nil
}

// Path returns the lockfile location.
func (s *Store) Path() string { return s.path }

// Dirty reports whether the table changed since it was loaded or saved.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Module returns the entry for name.
func (s *Store) Module(name string) (ModuleEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.table.Modules[name]
	return e.clone(), ok
}

// SetModule records e for name.
func (s *Store) SetModule(name string, e ModuleEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.table.Modules[name]; ok && old.equal(e) {
		return
	}
	s.table.Modules[name] = e.clone()
	s.dirty = true
}

// DeleteModule drops name and reports whether it was present.
func (s *Store) DeleteModule(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.table.Modules[name]; !ok {
		return false
	}
	delete(s.table.Modules, name)
	s.dirty = true
	return true
}

// ModuleNames returns recorded module names, sorted.
func (s *Store) ModuleNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.table.Modules)
}

// Symlink returns the entry for the tracking-relative path rel.
func (s *Store) Symlink(rel string) (SymlinkEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.table.Symlinks[rel]
	return e, ok
}

// SetSymlink records e for rel.
func (s *Store) SetSymlink(rel string, e SymlinkEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.table.Symlinks[rel]; ok && old.equal(e) {
		return
	}
	s.table.Symlinks[rel] = e
	s.dirty = true
}

// DeleteSymlink drops rel and reports whether it was present.
func (s *Store) DeleteSymlink(rel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.table.Symlinks[rel]; !ok {
		return false
	}
	delete(s.table.Symlinks, rel)
	s.dirty = true
	return true
}

// SymlinkNames returns tracked paths, sorted.
func (s *Store) SymlinkNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.table.Symlinks)
}

// Save persists the table when it changed. It fails with LOCKFILE_CONFLICT
// if the file on disk no longer matches what Load (or the previous Save)
// saw; the caller should reload and retry.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	_, current, err := s.readDisk()
	if err != nil {
		return err
	}
	if current != s.base {
		return errors.Newf(errors.ErrLockfileConflict,
			"lockfile %s changed on disk since it was loaded; re-run the command", s.path).
			WithDetail(errors.DetailPath, s.path).
			WithDetail(errors.DetailExpected, s.base.String()).
			WithDetail(errors.DetailActual, current.String())
	}

	data, err := s.encode()
	if err != nil {
		return err
	}
	if err := filesystem.WriteFileAtomic(s.fs, s.path, data, 0o644); err != nil {
		return errors.Wrapf(err, errors.ErrFilesystem, "failed to write lockfile %s", s.path).
			WithDetail(errors.DetailPath, s.path)
	}
	s.base = fingerprint.Bytes(data)
	s.dirty = false
	return nil
}

func (s *Store) encode() ([]byte, error) {
	body, err := toml.Marshal(s.table)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to encode lockfile")
	}
	var buf bytes.Buffer
	buf.WriteString(header)
	buf.Write(body)
	return buf.Bytes(), nil
}

func (e ModuleEntry) clone() ModuleEntry {
	if e.Deps != nil {
		deps := make(map[string]fingerprint.Fingerprint, len(e.Deps))
		for k, v := range e.Deps {
			deps[k] = v
		}
		e.Deps = deps
	}
	return e
}

func (e ModuleEntry) equal(other ModuleEntry) bool {
	if e.Fingerprint != other.Fingerprint || e.Tree != other.Tree ||
		e.Fetch != other.Fetch || e.Source != other.Source ||
		e.Status != other.Status || !e.UpdatedAt.Equal(other.UpdatedAt) {
		return false
	}
	if len(e.Deps) != len(other.Deps) {
		return false
	}
	for k, v := range e.Deps {
		if other.Deps[k] != v {
			return false
		}
	}
	return true
}

func (e SymlinkEntry) equal(other SymlinkEntry) bool {
	return e.Fingerprint == other.Fingerprint && e.Status == other.Status && e.UpdatedAt.Equal(other.UpdatedAt)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
