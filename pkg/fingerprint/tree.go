package fingerprint

import (
	"crypto/sha256"
	stderrors "errors"
	"io"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/filesystem"
)

// Option adjusts a tree walk.
type Option func(*treeOptions)

type treeOptions struct {
	skip map[string]bool
}

// SkipNames leaves entries with these base names out of the digest, at any
// depth. Version-control metadata such as .git is the usual candidate.
func SkipNames(names ...string) Option {
	return func(o *treeOptions) {
		for _, n := range names {
			o.skip[n] = true
		}
	}
}

// File digests a regular file's bytes. A missing file is Absent.
func File(fsys filesystem.FS, path string) (Fingerprint, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return Absent, nil
		}
		return "", unreadable(err, path)
	}
	return Bytes(data), nil
}

// Tree digests a file, symlink or directory. Entries are visited in sorted
// order and only names relative to path are recorded, along with the
// executable bit and symlink targets. A missing path is Absent.
func Tree(fsys filesystem.FS, path string, opts ...Option) (Fingerprint, error) {
	o := &treeOptions{skip: map[string]bool{}}
	for _, opt := range opts {
		opt(o)
	}

	info, err := fsys.Lstat(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return Absent, nil
		}
		return "", unreadable(err, path)
	}

	e := newEncoder("sprout-tree-archive-1")
	if err := writeNode(e, fsys, path, info, o); err != nil {
		return "", err
	}
	return sum(e.h), nil
}

func writeNode(e *encoder, fsys filesystem.FS, path string, info fs.FileInfo, o *treeOptions) error {
	e.str("(")
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := fsys.Readlink(path)
		if err != nil {
			return unreadable(err, path)
		}
		e.str("symlink")
		e.str(target)

	case info.IsDir():
		e.str("directory")
		entries, err := fsys.ReadDir(path)
		if err != nil {
			return unreadable(err, path)
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Name() < entries[j].Name()
		})
		for _, entry := range entries {
			if o.skip[entry.Name()] {
				continue
			}
			child := filepath.Join(path, entry.Name())
			childInfo, err := fsys.Lstat(child)
			if err != nil {
				return unreadable(err, child)
			}
			e.str("entry")
			e.str(entry.Name())
			if err := writeNode(e, fsys, child, childInfo, o); err != nil {
				return err
			}
		}

	case info.Mode().IsRegular():
		e.str("regular")
		if info.Mode()&0o111 != 0 {
			e.str("executable")
		}
		data, err := fsys.ReadFile(path)
		if err != nil {
			return unreadable(err, path)
		}
		e.str("contents")
		e.str(string(data))

	default:
		return errors.Newf(errors.ErrFilesystem, "unsupported file type at %s", path).
			WithDetail(errors.DetailPath, path)
	}
	e.str(")")
	return nil
}

func unreadable(err error, path string) error {
	return errors.Wrapf(err, errors.ErrFilesystem, "cannot read %s", path).
		WithDetail(errors.DetailPath, path)
}

// Reader digests a stream, used to verify downloads while they are written.
func Reader(r io.Reader) (Fingerprint, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return sum(h), nil
}
