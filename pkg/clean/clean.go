// Package clean finds and removes build outputs, sources, download caches
// and lock entries that the manifest no longer references.
package clean

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/fetch"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/PatWie/sprout/pkg/lockfile"
	"github.com/PatWie/sprout/pkg/logging"
	"github.com/PatWie/sprout/pkg/manifest"
	"github.com/PatWie/sprout/pkg/paths"
	"github.com/rs/zerolog"
)

// Kind classifies a candidate.
type Kind string

const (
	KindDist   Kind = "dist"
	KindSource Kind = "source"
	KindCache  Kind = "cache"
	KindLock   Kind = "lock"
)

// Candidate is one thing clean would remove.
type Candidate struct {
	Kind   Kind
	Module string
	// Path is empty for lock entries.
	Path string
	// Size is the total size of regular files under Path.
	Size int64
	// Reason is "unknown module" or "outdated fetch".
	Reason string
}

const (
	reasonUnknown  = "unknown module"
	reasonOutdated = "outdated fetch"
)

// Cleaner inspects one sprout root against one manifest.
type Cleaner struct {
	fs       filesystem.FS
	paths    paths.Paths
	lock     *lockfile.Store
	manifest *manifest.Manifest
	logger   zerolog.Logger
}

// New creates a Cleaner.
func New(fsys filesystem.FS, p paths.Paths, lock *lockfile.Store, m *manifest.Manifest) *Cleaner {
	return &Cleaner{fs: fsys, paths: p, lock: lock, manifest: m, logger: logging.GetLogger("clean")}
}

// Candidates lists everything Remove would delete, grouped by kind and
// sorted by path.
func (c *Cleaner) Candidates() ([]Candidate, error) {
	var out []Candidate

	dist, err := c.listDirs(c.paths.DistDir())
	if err != nil {
		return nil, err
	}
	for _, name := range dist {
		if !c.manifest.Has(name) {
			out = append(out, c.candidate(KindDist, name, filepath.Join(c.paths.DistDir(), name), reasonUnknown))
		}
	}

	for _, kind := range manifest.FetchKinds {
		spec := &manifest.FetchSpec{Kind: kind}
		if spec.SourceDir() == "" {
			continue
		}
		dir := filepath.Join(c.paths.SourcesDir(), spec.SourceDir())
		found, err := c.hashedDirs(dir, KindSource, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}

	found, err := c.hashedDirs(c.paths.HTTPCacheDir(), KindCache, "")
	if err != nil {
		return nil, err
	}
	out = append(out, found...)

	for _, name := range c.lock.ModuleNames() {
		if !c.manifest.Has(name) {
			out = append(out, Candidate{Kind: KindLock, Module: name, Reason: reasonUnknown})
		}
	}
	return out, nil
}

// hashedDirs checks <module>-<hash8> directories. A directory is kept only
// when its module is declared and the hash matches the module's current
// fetch spec; for source dirs the kind must match too.
func (c *Cleaner) hashedDirs(dir string, kind Kind, fetchKind manifest.FetchKind) ([]Candidate, error) {
	names, err := c.listDirs(dir)
	if err != nil {
		return nil, err
	}
	var out []Candidate
	for _, name := range names {
		module, _, ok := paths.ParseSourceDirName(name)
		path := filepath.Join(dir, name)
		if !ok {
			out = append(out, c.candidate(kind, name, path, reasonUnknown))
			continue
		}
		mod, declared := c.manifest.Module(module)
		switch {
		case !declared:
			out = append(out, c.candidate(kind, module, path, reasonUnknown))
		case mod.Fetch.IsNone() || fetch.DirName(module, mod.Fetch) != name:
			out = append(out, c.candidate(kind, module, path, reasonOutdated))
		case kind == KindSource && mod.Fetch.Kind != fetchKind:
			out = append(out, c.candidate(kind, module, path, reasonOutdated))
		case kind == KindCache && !mod.Fetch.Downloads():
			out = append(out, c.candidate(kind, module, path, reasonOutdated))
		}
	}
	return out, nil
}

func (c *Cleaner) candidate(kind Kind, module, path, reason string) Candidate {
	size, err := filesystem.DirSize(path)
	if err != nil {
		c.logger.Debug().Err(err).Str("path", path).Msg("Cannot size candidate")
	}
	return Candidate{Kind: kind, Module: module, Path: path, Size: size, Reason: reason}
}

func (c *Cleaner) listDirs(dir string) ([]string, error) {
	entries, err := c.fs.ReadDir(dir)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFilesystem, "failed to read %s", dir).
			WithDetail(errors.DetailPath, dir)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes the candidates and saves the lockfile. A candidate that
// cannot be removed does not stop the others; the failures are returned
// together as one FILESYSTEM error.
func (c *Cleaner) Remove(candidates []Candidate) error {
	var failed []error
	for _, cand := range candidates {
		if cand.Kind == KindLock {
			c.lock.DeleteModule(cand.Module)
			c.logger.Info().Str("module", cand.Module).Msg("Dropped lock entry")
			continue
		}
		if err := c.fs.RemoveAll(cand.Path); err != nil {
			c.logger.Warn().Err(err).Str("path", cand.Path).Msg("Failed to remove")
			failed = append(failed, fmt.Errorf("%s: %w", cand.Path, err))
			continue
		}
		c.logger.Info().Str("path", cand.Path).Int64("bytes", cand.Size).Msg("Removed")
	}
	if err := c.lock.Save(); err != nil {
		return err
	}
	if len(failed) > 0 {
		return errors.Wrapf(stderrors.Join(failed...), errors.ErrFilesystem,
			"failed to remove %d of %d candidates", len(failed), len(candidates))
	}
	return nil
}

// TotalSize sums candidate sizes.
func TotalSize(candidates []Candidate) int64 {
	var total int64
	for _, c := range candidates {
		total += c.Size
	}
	return total
}
