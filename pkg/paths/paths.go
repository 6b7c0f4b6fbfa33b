package paths

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/adrg/xdg"
)

// Environment variable names
const (
	// EnvSproutPath overrides the sprout root
	EnvSproutPath = "SPROUT_PATH"

	// EnvTrackingPath overrides the tracking root
	EnvTrackingPath = "SPROUT_TRACKING_PATH"

	// EnvSproutConfigDir overrides the XDG config directory for sprout
	EnvSproutConfigDir = "SPROUT_CONFIG_DIR"

	// EnvHome is the standard home directory variable
	EnvHome = "HOME"
)

// Layout of the sprout root. These names are part of the on-disk format
// and must stay stable across versions.
const (
	SproutDirName = "sprout"
	ManifestFile  = "manifest.sprout"
	LockFile      = "sprout.lock"
	GitignoreFile = ".gitignore"
	ConfigFile    = "config.toml"
	SymlinksDir   = "symlinks"
	DistDir       = "dist"
	SourcesDir    = "sources"
	CacheDir      = "cache"
	HTTPCacheDir  = "http"
	LogsDir       = "logs"
	LogFileName   = "sprout.log"
)

// SourceKinds are the per-kind subdirectories of sources/.
var SourceKinds = []string{"git", "http", "archive", "cargo", "go"}

// Paths provides path management for one sprout root and tracking root.
type Paths interface {
	Root() string
	TrackingRoot() string
	ManifestPath() string
	LockPath() string
	GitignorePath() string
	SymlinksDir() string
	DistDir() string
	DistPath(module string) string
	SourcesDir() string
	SourcePath(kind, dirName string) string
	HTTPCacheDir() string
	CachePath(dirName string) string
	LogsDir() string
	LogPath(module, stage string, at time.Time) string
	ConfigDir() string
	ConfigFilePath() string
	StateDir() string
	CanonicalPath(rel string) string
	RealPath(rel string) string
	TrackingRel(path string) (string, error)
	NormalizePath(path string) (string, error)
}

type paths struct {
	root         string
	trackingRoot string
	xdgConfig    string
	xdgState     string
}

// New creates a Paths instance. Empty arguments are resolved from
// SPROUT_PATH / SPROUT_TRACKING_PATH, then from XDG data home and $HOME.
func New(root, trackingRoot string) (Paths, error) {
	p := &paths{}

	switch {
	case root != "":
		p.root = expandHome(root)
	case os.Getenv(EnvSproutPath) != "":
		p.root = expandHome(os.Getenv(EnvSproutPath))
	default:
		p.root = filepath.Join(xdg.DataHome, SproutDirName)
	}

	switch {
	case trackingRoot != "":
		p.trackingRoot = expandHome(trackingRoot)
	case os.Getenv(EnvTrackingPath) != "":
		p.trackingRoot = expandHome(os.Getenv(EnvTrackingPath))
	default:
		home, err := GetHomeDirectory()
		if err != nil {
			return nil, err
		}
		p.trackingRoot = home
	}

	for _, dir := range []*string{&p.root, &p.trackingRoot} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrFilesystem, "failed to get absolute path for %s", *dir)
		}
		*dir = filepath.Clean(abs)
	}

	if configDir := os.Getenv(EnvSproutConfigDir); configDir != "" {
		p.xdgConfig = expandHome(configDir)
	} else {
		p.xdgConfig = filepath.Join(xdg.ConfigHome, SproutDirName)
	}

	// XDG_STATE_HOME is read directly so overrides made after xdg's init are honored
	if stateDir := os.Getenv("XDG_STATE_HOME"); stateDir != "" {
		p.xdgState = filepath.Join(stateDir, SproutDirName)
	} else {
		p.xdgState = filepath.Join(xdg.StateHome, SproutDirName)
	}

	return p, nil
}

func (p *paths) Root() string         { return p.root }
func (p *paths) TrackingRoot() string { return p.trackingRoot }
func (p *paths) ManifestPath() string { return filepath.Join(p.root, ManifestFile) }
func (p *paths) LockPath() string     { return filepath.Join(p.root, LockFile) }
func (p *paths) GitignorePath() string {
	return filepath.Join(p.root, GitignoreFile)
}
func (p *paths) SymlinksDir() string { return filepath.Join(p.root, SymlinksDir) }
func (p *paths) DistDir() string     { return filepath.Join(p.root, DistDir) }
func (p *paths) SourcesDir() string  { return filepath.Join(p.root, SourcesDir) }
func (p *paths) LogsDir() string     { return filepath.Join(p.root, LogsDir) }
func (p *paths) ConfigDir() string   { return p.xdgConfig }
func (p *paths) StateDir() string    { return p.xdgState }

// DistPath returns the build-output directory of a module
func (p *paths) DistPath(module string) string {
	return filepath.Join(p.DistDir(), module)
}

// SourcePath returns sources/<kind>/<dirName>
func (p *paths) SourcePath(kind, dirName string) string {
	return filepath.Join(p.SourcesDir(), kind, dirName)
}

// HTTPCacheDir returns cache/http
func (p *paths) HTTPCacheDir() string {
	return filepath.Join(p.root, CacheDir, HTTPCacheDir)
}

// CachePath returns cache/http/<dirName>
func (p *paths) CachePath(dirName string) string {
	return filepath.Join(p.HTTPCacheDir(), dirName)
}

// LogPath returns logs/<module>-<stage>-<timestamp>.log
func (p *paths) LogPath(module, stage string, at time.Time) string {
	name := module + "-" + stage + "-" + at.UTC().Format("20060102T150405") + ".log"
	return filepath.Join(p.LogsDir(), name)
}

// ConfigFilePath returns the user config file location
func (p *paths) ConfigFilePath() string {
	return filepath.Join(p.xdgConfig, ConfigFile)
}

// CanonicalPath maps a tracking-relative path to its copy under symlinks/
func (p *paths) CanonicalPath(rel string) string {
	return filepath.Join(p.SymlinksDir(), rel)
}

// RealPath maps a tracking-relative path to its location under the tracking root
func (p *paths) RealPath(rel string) string {
	return filepath.Join(p.trackingRoot, rel)
}

// TrackingRel returns path relative to the tracking root. Paths outside the
// tracking root, and the tracking root itself, are rejected.
func (p *paths) TrackingRel(path string) (string, error) {
	normalized, err := p.NormalizePath(path)
	if err != nil {
		return "", err
	}
	if !ContainsPath(p.trackingRoot, normalized) || normalized == p.trackingRoot {
		return "", errors.Newf(errors.ErrInvalidInput,
			"path %s is not within tracking root %s", normalized, p.trackingRoot).
			WithDetail(errors.DetailPath, normalized)
	}
	rel, err := filepath.Rel(p.trackingRoot, normalized)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrFilesystem, "cannot relativize %s", normalized)
	}
	return filepath.ToSlash(rel), nil
}

// NormalizePath normalizes a path by expanding home, making it absolute,
// and cleaning it
func (p *paths) NormalizePath(path string) (string, error) {
	if path == "" {
		return "", errors.New(errors.ErrInvalidInput, "empty path")
	}

	abs, err := filepath.Abs(expandHome(path))
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrFilesystem, "failed to get absolute path")
	}
	return filepath.Clean(abs), nil
}

// GetHomeDirectory returns the user's home directory, falling back to $HOME
func GetHomeDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return home, nil
	}
	if home = os.Getenv(EnvHome); home != "" {
		return home, nil
	}
	return "", errors.Wrap(err, errors.ErrFilesystem, "cannot determine home directory")
}

// expandHome expands ~ to the home directory
func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}

	homeDir, err := GetHomeDirectory()
	if err != nil {
		return path
	}

	if len(path) == 1 {
		return homeDir
	}
	if path[1] == '/' || path[1] == filepath.Separator {
		return filepath.Join(homeDir, path[2:])
	}

	// ~something (not the user's home)
	return path
}

// ExpandHome is a utility function that expands ~ in paths
func ExpandHome(path string) string {
	return expandHome(path)
}

// ParseSourceDirName splits "<module>-<hash8>" into its parts.
func ParseSourceDirName(name string) (module, hash8 string, ok bool) {
	idx := strings.LastIndex(name, "-")
	if idx <= 0 || idx == len(name)-1 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}
