package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/PatWie/sprout/pkg/manifest"
	"github.com/git-lfs/go-netrc/netrc"
)

// LoadNetrc parses a netrc file. A missing file yields an empty set of
// credentials.
func LoadNetrc(path string) (*netrc.Netrc, error) {
	if path == "" {
		return &netrc.Netrc{}, nil
	}
	n, err := netrc.ParseFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &netrc.Netrc{}, nil
		}
		return nil, errors.Wrapf(err, errors.ErrConfigLoad, "cannot parse netrc %s", path).
			WithDetail(errors.DetailPath, path)
	}
	return n, nil
}

// netrcTransport adds basic auth for hosts listed in netrc.
type netrcTransport struct {
	base  http.RoundTripper
	netrc *netrc.Netrc
}

func (t *netrcTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.netrc == nil || req.Header.Get("Authorization") != "" {
		return t.base.RoundTrip(req)
	}
	machine := t.netrc.FindMachine(req.URL.Hostname(), "")
	if machine == nil || machine.Login == "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.SetBasicAuth(machine.Login, machine.Password)
	return t.base.RoundTrip(req)
}

// download is the cached file behind an http, archive or cargo fetch.
type download struct {
	path   string
	sha256 string
	cached bool
}

// fileName is the last path element of a download URL.
func fileName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		if base := path.Base(u.Path); base != "/" && base != "." {
			return base
		}
	}
	if idx := strings.LastIndex(rawURL, "/"); idx >= 0 && idx < len(rawURL)-1 {
		return rawURL[idx+1:]
	}
	return "download"
}

// fetchFile downloads rawURL into the module's cache directory unless it is
// already there, then checks the declared digest. A mismatch removes the
// cached copy and returns an IntegrityError.
func (f *Fetcher) fetchFile(ctx context.Context, module string, spec *manifest.FetchSpec, rawURL, name, want string) (download, error) {
	dir := f.CachePath(module, spec)
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return download{}, fsError(err, "cannot create", dir)
	}
	dst := filepath.Join(dir, name)

	d := download{path: dst}
	exists, err := filesystem.Exists(f.fs, dst)
	if err != nil {
		return download{}, fsError(err, "cannot inspect", dst)
	}
	if exists {
		d.cached = true
		f.logger.Debug().Str("module", module).Str("file", name).Msg("Using cached download")
	} else if err := f.get(ctx, module, rawURL, dst); err != nil {
		return download{}, err
	}

	d.sha256, err = f.fileSHA256(dst)
	if err != nil {
		return download{}, fsError(err, "cannot read", dst)
	}
	if want != "" && !strings.EqualFold(want, d.sha256) {
		_ = f.fs.Remove(dst)
		return download{}, errors.Newf(errors.ErrIntegrity,
			"sha256 mismatch for %s: expected %s, got %s", name, want, d.sha256).
			WithDetail(errors.DetailModule, module).
			WithDetail(errors.DetailExpected, want).
			WithDetail(errors.DetailActual, d.sha256)
	}
	if want == "" {
		f.logger.Warn().Str("module", module).Str("sha256", d.sha256).
			Msg("Download has no declared sha256; run manifest format --pin to record it")
	}
	return d, nil
}

// get streams rawURL into dst through a temporary file.
func (f *Fetcher) get(ctx context.Context, module, rawURL, dst string) error {
	f.logger.Info().Str("module", module).Str("url", rawURL).Msg("Downloading")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFetch, "invalid url %s", rawURL)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return canceled(ctx.Err(), module)
		}
		return errors.Wrapf(err, errors.ErrFetch, "cannot download %s", rawURL)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf(errors.ErrFetch, "cannot download %s: %s", rawURL, resp.Status).
			WithDetail("status", resp.StatusCode)
	}

	tmp, err := filesystem.CreateTemp(f.fs, filepath.Dir(dst), ".download-")
	if err != nil {
		return fsError(err, "cannot create temporary file in", filepath.Dir(dst))
	}
	tmpName := tmp.Name()
	defer func() { _ = f.fs.Remove(tmpName) }()

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if ctx.Err() != nil {
			return canceled(ctx.Err(), module)
		}
		return errors.Wrapf(err, errors.ErrFetch, "download of %s interrupted", rawURL)
	}
	if err := f.fs.Rename(tmpName, dst); err != nil {
		return fsError(err, "cannot store", dst)
	}
	f.logger.Debug().Str("module", module).Int64("bytes", n).Str("path", dst).Msg("Downloaded")
	return nil
}

func (f *Fetcher) fileSHA256(path string) (string, error) {
	file, err := filesystem.Open(f.fs, path)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, module string, spec *manifest.FetchSpec, tmp string) (Result, error) {
	name := fileName(spec.URL)
	d, err := f.fetchFile(ctx, module, spec, spec.URL, name, spec.SHA256)
	if err != nil {
		return Result{}, err
	}
	if err := f.copyFile(d.path, filepath.Join(tmp, name)); err != nil {
		return Result{}, err
	}
	return Result{SHA256: d.sha256, Cached: d.cached}, nil
}

func (f *Fetcher) fetchArchive(ctx context.Context, module string, spec *manifest.FetchSpec, tmp string) (Result, error) {
	name := fileName(spec.URL)
	d, err := f.fetchFile(ctx, module, spec, spec.URL, name, spec.SHA256)
	if err != nil {
		return Result{}, err
	}
	if err := extract(d.path, name, tmp, 0); err != nil {
		return Result{}, err
	}
	return Result{SHA256: d.sha256, Cached: d.cached}, nil
}

// fetchCargo downloads a .crate (a gzipped tarball with a single
// <crate>-<version>/ directory) and unpacks it without that prefix.
func (f *Fetcher) fetchCargo(ctx context.Context, module string, spec *manifest.FetchSpec, tmp string) (Result, error) {
	rawURL := fmt.Sprintf("%s/%s/%s/download",
		strings.TrimRight(f.opts.CratesURL, "/"), url.PathEscape(spec.Crate), url.PathEscape(spec.Version))
	name := fmt.Sprintf("%s-%s.crate", spec.Crate, spec.Version)
	d, err := f.fetchFile(ctx, module, spec, rawURL, name, "")
	if err != nil {
		return Result{}, err
	}
	if err := extract(d.path, name, tmp, 1); err != nil {
		return Result{}, err
	}
	return Result{SHA256: d.sha256, Cached: d.cached}, nil
}

// Pin downloads the file behind an http or archive spec and returns its
// sha256. The cache directory is renamed to match the pinned spec so the
// download is not repeated.
func (f *Fetcher) Pin(ctx context.Context, module string, spec *manifest.FetchSpec) (string, error) {
	if spec.IsNone() || (spec.Kind != manifest.FetchHTTP && spec.Kind != manifest.FetchArchive) {
		return "", errors.Newf(errors.ErrInvalidInput, "module %s has no http or archive source to pin", module).
			WithDetail(errors.DetailModule, module)
	}
	d, err := f.fetchFile(ctx, module, spec, spec.URL, fileName(spec.URL), spec.SHA256)
	if err != nil {
		return "", err
	}

	pinned := *spec
	pinned.SHA256 = d.sha256
	if err := f.relocate(f.CachePath(module, spec), f.CachePath(module, &pinned)); err != nil {
		return "", err
	}
	if err := f.relocate(f.SourcePath(module, spec), f.SourcePath(module, &pinned)); err != nil {
		return "", err
	}
	return d.sha256, nil
}

// relocate renames from to to when from exists and to does not.
func (f *Fetcher) relocate(from, to string) error {
	if from == to {
		return nil
	}
	ok, err := filesystem.Exists(f.fs, from)
	if err != nil || !ok {
		return err
	}
	if taken, _ := filesystem.Exists(f.fs, to); taken {
		return nil
	}
	if err := f.fs.Rename(from, to); err != nil {
		return fsError(err, "cannot rename", from)
	}
	return nil
}
