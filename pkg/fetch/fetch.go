// Package fetch acquires module sources: git checkouts, HTTP downloads,
// archives, crates, Go modules and local directories.
//
// Managed sources live under sources/<kind>/<module>-<hash8>, where hash8
// is the start of the fetch-spec fingerprint. Downloads are cached under
// cache/http/<module>-<hash8>/<file>. A fetch stages into a temporary
// directory next to its destination and only replaces the previous source
// once it completed and its integrity was verified.
package fetch

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/PatWie/sprout/pkg/fingerprint"
	"github.com/PatWie/sprout/pkg/logging"
	"github.com/PatWie/sprout/pkg/manifest"
	"github.com/PatWie/sprout/pkg/paths"
	"github.com/git-lfs/go-netrc/netrc"
	"github.com/rs/zerolog"
)

// Defaults for Options fields left empty.
const (
	DefaultGoProxy   = "https://proxy.golang.org"
	DefaultCratesURL = "https://crates.io/api/v1/crates"
	DefaultGit       = "git"
)

// Options configures a Fetcher.
type Options struct {
	Git       string
	GoProxy   string
	CratesURL string
	// Timeout bounds a single HTTP request; zero means no limit.
	Timeout time.Duration
	// Netrc supplies basic-auth credentials per host; may be nil.
	Netrc *netrc.Netrc
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Result describes a completed fetch.
type Result struct {
	// Dir is the module's source directory.
	Dir string
	// Source is the tree fingerprint of Dir, excluding VCS metadata.
	Source fingerprint.Fingerprint
	// SHA256 is the hex digest of the downloaded file, for kinds that
	// download one.
	SHA256 string
	// Cached is set when the download came from the cache.
	Cached bool
}

// Fetcher acquires sources into a sprout root.
type Fetcher struct {
	paths  paths.Paths
	fs     filesystem.FS
	opts   Options
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a Fetcher.
func New(p paths.Paths, fsys filesystem.FS, opts Options) *Fetcher {
	if opts.Git == "" {
		opts.Git = DefaultGit
	}
	if opts.GoProxy == "" {
		opts.GoProxy = DefaultGoProxy
	}
	if opts.CratesURL == "" {
		opts.CratesURL = DefaultCratesURL
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &Fetcher{
		paths: p,
		fs:    fsys,
		opts:  opts,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: &netrcTransport{base: base, netrc: opts.Netrc},
		},
		logger: logging.GetLogger("fetch"),
		now:    time.Now,
	}
}

// DirName is the <module>-<hash8> name of a module's source and cache
// directories.
func DirName(module string, spec *manifest.FetchSpec) string {
	return module + "-" + fingerprint.Fetch(spec).Short()
}

// SourcePath returns where a module's source lives. Modules without a
// fetch spec have none; local modules use their declared path.
func (f *Fetcher) SourcePath(module string, spec *manifest.FetchSpec) string {
	switch {
	case spec.IsNone():
		return ""
	case spec.Kind == manifest.FetchLocal:
		return f.localPath(spec.Path)
	}
	return f.paths.SourcePath(spec.SourceDir(), DirName(module, spec))
}

// CachePath returns the cache directory for a downloading kind.
func (f *Fetcher) CachePath(module string, spec *manifest.FetchSpec) string {
	return f.paths.CachePath(DirName(module, spec))
}

// Fetch acquires the source of one module. An IntegrityError leaves any
// previous source untouched.
func (f *Fetcher) Fetch(ctx context.Context, module string, spec *manifest.FetchSpec) (Result, error) {
	if spec.IsNone() {
		return Result{}, errors.Newf(errors.ErrInvalidInput, "module %s has nothing to fetch", module).
			WithDetail(errors.DetailModule, module)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, canceled(err, module)
	}
	defer logging.LogOperationStart(f.logger, "fetch "+module)()

	if spec.Kind == manifest.FetchLocal {
		return f.fetchLocal(module, spec)
	}

	dest := f.SourcePath(module, spec)
	var res Result
	err := f.stage(module, dest, func(tmp string) error {
		var err error
		switch spec.Kind {
		case manifest.FetchGit:
			err = f.fetchGit(ctx, module, spec, tmp)
		case manifest.FetchHTTP:
			res, err = f.fetchHTTP(ctx, module, spec, tmp)
		case manifest.FetchArchive:
			res, err = f.fetchArchive(ctx, module, spec, tmp)
		case manifest.FetchCargo:
			res, err = f.fetchCargo(ctx, module, spec, tmp)
		case manifest.FetchGo:
			err = f.fetchGoModule(ctx, module, spec, tmp)
		default:
			err = errors.Newf(errors.ErrInvalidInput, "unsupported fetch kind %q", spec.Kind)
		}
		return err
	})
	if err != nil {
		return Result{}, err
	}

	res.Dir = dest
	res.Source, err = fingerprint.Tree(f.fs, dest, fingerprint.SkipNames(".git"))
	if err != nil {
		return Result{}, err
	}
	f.logger.Info().Str("module", module).Str("kind", string(spec.Kind)).
		Str("source", res.Source.Short()).Msg("Fetched")
	return res, nil
}

// stage runs fn against a fresh temporary directory and swaps it into dest
// on success.
func (f *Fetcher) stage(module, dest string, fn func(tmp string) error) error {
	parent := filepath.Dir(dest)
	if err := f.fs.MkdirAll(parent, 0o755); err != nil {
		return fsError(err, "cannot create", parent)
	}
	tmp, err := filesystem.MkdirTemp(f.fs, parent, "."+filepath.Base(dest)+"-")
	if err != nil {
		return fsError(err, "cannot create staging directory in", parent)
	}
	defer func() { _ = f.fs.RemoveAll(tmp) }()

	if err := fn(tmp); err != nil {
		return withModule(err, module)
	}

	if err := f.fs.RemoveAll(dest); err != nil {
		return fsError(err, "cannot replace", dest)
	}
	if err := f.fs.Rename(tmp, dest); err != nil {
		return fsError(err, "cannot move source into", dest)
	}
	return nil
}

func (f *Fetcher) fetchLocal(module string, spec *manifest.FetchSpec) (Result, error) {
	dir := f.localPath(spec.Path)
	info, err := f.fs.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, errors.Newf(errors.ErrFetch, "local source %s of %s does not exist", dir, module).
				WithDetail(errors.DetailModule, module).
				WithDetail(errors.DetailPath, dir)
		}
		return Result{}, fsError(err, "cannot inspect", dir)
	}
	if !info.IsDir() {
		return Result{}, errors.Newf(errors.ErrFetch, "local source %s of %s is not a directory", dir, module).
			WithDetail(errors.DetailModule, module).
			WithDetail(errors.DetailPath, dir)
	}
	fp, err := fingerprint.Tree(f.fs, dir, fingerprint.SkipNames(".git"))
	if err != nil {
		return Result{}, err
	}
	return Result{Dir: dir, Source: fp}, nil
}

// localPath expands ~ and resolves relative paths against the sprout root.
func (f *Fetcher) localPath(p string) string {
	p = paths.ExpandHome(p)
	if !filepath.IsAbs(p) {
		p = filepath.Join(f.paths.Root(), p)
	}
	return filepath.Clean(p)
}

func fsError(err error, verb, path string) error {
	return errors.Wrapf(err, errors.ErrFilesystem, "%s %s", verb, path).
		WithDetail(errors.DetailPath, path)
}

func canceled(err error, module string) error {
	return errors.Wrapf(err, errors.ErrCanceled, "fetch of %s canceled", module).
		WithDetail(errors.DetailModule, module)
}

// withModule tags a coded error with the module it belongs to.
func withModule(err error, module string) error {
	var se *errors.SproutError
	if stderrors.As(err, &se) {
		if _, ok := se.Details[errors.DetailModule]; !ok {
			se.WithDetail(errors.DetailModule, module)
		}
		return err
	}
	return errors.Wrapf(err, errors.ErrFetch, "fetch of %s failed", module).
		WithDetail(errors.DetailModule, module)
}
