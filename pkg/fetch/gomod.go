package fetch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/manifest"
	"golang.org/x/mod/module"
	modzip "golang.org/x/mod/zip"
)

// GoModuleURL is the proxy URL of a module zip.
func GoModuleURL(proxy, path, version string) (string, error) {
	escPath, err := module.EscapePath(path)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrInvalidInput, "invalid module path %s", path)
	}
	escVersion, err := module.EscapeVersion(version)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrInvalidInput, "invalid module version %s", version)
	}
	return fmt.Sprintf("%s/%s/@v/%s.zip", strings.TrimRight(proxy, "/"), escPath, escVersion), nil
}

// fetchGoModule downloads a module zip from the proxy and unpacks it with
// the module zip rules. Files are extracted read-only.
func (f *Fetcher) fetchGoModule(ctx context.Context, name string, spec *manifest.FetchSpec, tmp string) error {
	rawURL, err := GoModuleURL(f.opts.GoProxy, spec.Module, spec.Version)
	if err != nil {
		return err
	}

	zipPath := filepath.Join(filepath.Dir(tmp), filepath.Base(tmp)+".zip")
	defer func() { _ = f.fs.Remove(zipPath) }()
	if err := f.get(ctx, name, rawURL, zipPath); err != nil {
		return err
	}

	// tmp is empty, as Unzip requires
	mv := module.Version{Path: spec.Module, Version: spec.Version}
	if err := modzip.Unzip(tmp, mv, zipPath); err != nil {
		return errors.Wrapf(err, errors.ErrFetch, "cannot unpack %s", mv.String())
	}
	return nil
}
