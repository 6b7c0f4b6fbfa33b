package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/ulikunitz/xz"
)

// archiveFormat is picked from the file name suffix.
type archiveFormat int

const (
	formatRaw archiveFormat = iota
	formatTarGz
	formatTarXz
	formatTar
	formatZip
	formatGz
	formatXz
)

func detectFormat(name string) archiveFormat {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"), strings.HasSuffix(lower, ".crate"):
		return formatTarGz
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return formatTarXz
	case strings.HasSuffix(lower, ".tar"):
		return formatTar
	case strings.HasSuffix(lower, ".zip"):
		return formatZip
	case strings.HasSuffix(lower, ".gz"):
		return formatGz
	case strings.HasSuffix(lower, ".xz"):
		return formatXz
	}
	return formatRaw
}

// extract unpacks src into dest according to name's suffix, dropping the
// first strip path components of every entry. Single-file compressions
// write the decompressed file without its suffix; unknown suffixes are
// copied as is.
func extract(src, name, dest string, strip int) error {
	format := detectFormat(name)
	if format == formatZip {
		return extractZip(src, dest, strip)
	}

	file, err := os.Open(src)
	if err != nil {
		return fsError(err, "cannot open", src)
	}
	defer func() { _ = file.Close() }()

	var r io.Reader = file
	switch format {
	case formatTarGz, formatGz:
		gz, err := gzip.NewReader(file)
		if err != nil {
			return corrupt(err, name)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	case formatTarXz, formatXz:
		xr, err := xz.NewReader(file)
		if err != nil {
			return corrupt(err, name)
		}
		r = xr
	}

	switch format {
	case formatTarGz, formatTarXz, formatTar:
		return extractTar(r, name, dest, strip)
	case formatGz, formatXz:
		out := strings.TrimSuffix(name, filepath.Ext(name))
		return writeFile(filepath.Join(dest, out), r, 0o644)
	}
	return writeFile(filepath.Join(dest, name), r, 0o644)
}

func extractTar(r io.Reader, name, dest string, strip int) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return corrupt(err, name)
		}

		target, ok, err := entryPath(dest, hdr.Name, strip)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		mode := os.FileMode(hdr.Mode).Perm()
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fsError(err, "cannot create", target)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, mode); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := safeLinkTarget(dest, target, hdr.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fsError(err, "cannot create", filepath.Dir(target))
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fsError(err, "cannot link", target)
			}
		case tar.TypeLink:
			linked, ok, err := entryPath(dest, hdr.Linkname, strip)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			_ = os.Remove(target)
			if err := os.Link(linked, target); err != nil {
				return fsError(err, "cannot link", target)
			}
		}
	}
}

func extractZip(src, dest string, strip int) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return corrupt(err, filepath.Base(src))
	}
	defer func() { _ = zr.Close() }()

	for _, file := range zr.File {
		target, ok, err := entryPath(dest, file.Name, strip)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fsError(err, "cannot create", target)
			}
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return corrupt(err, file.Name)
		}
		mode := file.Mode().Perm()
		if mode == 0 {
			mode = 0o644
		}
		err = writeFile(target, rc, mode)
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// entryPath maps an archive entry name into dest. Entries that strip away
// entirely are skipped; entries escaping dest are rejected.
func entryPath(dest, name string, strip int) (string, bool, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(name) || escapes(name) {
		return "", false, unsafeEntry(name)
	}
	var parts []string
	for _, part := range strings.Split(path.Clean(name), "/") {
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}
	if len(parts) <= strip {
		return "", false, nil
	}
	return filepath.Join(dest, filepath.Join(parts[strip:]...)), true, nil
}

// escapes reports whether a relative archive name climbs above its root.
func escapes(name string) bool {
	depth := 0
	for _, part := range strings.Split(strings.ReplaceAll(name, `\`, "/"), "/") {
		switch part {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return true
			}
		default:
			depth++
		}
	}
	return false
}

func safeLinkTarget(dest, target, link string) error {
	resolved := link
	if !filepath.IsAbs(link) {
		resolved = filepath.Join(filepath.Dir(target), link)
	}
	rel, err := filepath.Rel(dest, filepath.Clean(resolved))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return unsafeEntry(link)
	}
	return nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fsError(err, "cannot create", filepath.Dir(target))
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fsError(err, "cannot create", target)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, errors.ErrFetch, "cannot unpack %s", filepath.Base(target))
	}
	if err := out.Close(); err != nil {
		return fsError(err, "cannot write", target)
	}
	return nil
}

func (f *Fetcher) copyFile(src, dst string) error {
	in, err := filesystem.Open(f.fs, src)
	if err != nil {
		return fsError(err, "cannot open", src)
	}
	defer func() { _ = in.Close() }()
	out, err := filesystem.Create(f.fs, dst, 0o644)
	if err != nil {
		return fsError(err, "cannot create", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fsError(err, "cannot write", dst)
	}
	if err := out.Close(); err != nil {
		return fsError(err, "cannot write", dst)
	}
	return nil
}

func corrupt(err error, name string) error {
	return errors.Wrapf(err, errors.ErrFetch, "cannot unpack %s", name)
}

func unsafeEntry(name string) error {
	return errors.Newf(errors.ErrFetch, "archive entry %q escapes the source directory", name).
		WithDetail(errors.DetailPath, name)
}
