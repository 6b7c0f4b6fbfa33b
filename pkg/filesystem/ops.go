package filesystem

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Exists reports whether name exists without following a final symlink.
func Exists(fsys FS, name string) (bool, error) {
	_, err := fsys.Lstat(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// CopyTree copies src to dst. Regular files keep their permission bits,
// directories are recreated, and symlinks are copied as links.
func CopyTree(fsys FS, src, dst string) error {
	info, err := fsys.Lstat(src)
	if err != nil {
		return err
	}

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := fsys.Readlink(src)
		if err != nil {
			return err
		}
		return fsys.Symlink(target, dst)

	case info.IsDir():
		if err := fsys.MkdirAll(dst, info.Mode().Perm()|0o700); err != nil {
			return err
		}
		entries, err := fsys.ReadDir(src)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := CopyTree(fsys, filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
				return err
			}
		}
		return nil

	case info.Mode().IsRegular():
		data, err := fsys.ReadFile(src)
		if err != nil {
			return err
		}
		if err := fsys.WriteFile(dst, data, info.Mode().Perm()); err != nil {
			return err
		}
		// WriteFile is subject to umask
		return fsys.Chmod(dst, info.Mode().Perm())

	default:
		return &fs.PathError{Op: "copy", Path: src, Err: errors.New("unsupported file type")}
	}
}

// MoveTree moves src to dst, falling back to copy+remove across devices.
func MoveTree(fsys FS, src, dst string) error {
	if err := fsys.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := fsys.Rename(src, dst); err == nil {
		return nil
	}
	if err := CopyTree(fsys, src, dst); err != nil {
		_ = fsys.RemoveAll(dst)
		return err
	}
	return fsys.RemoveAll(src)
}

// WriteFileAtomic writes data to a temporary sibling of name and renames it
// into place, so readers observe either the old or the new content.
func WriteFileAtomic(fsys FS, name string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(name)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp := filepath.Join(dir, "."+filepath.Base(name)+".tmp-"+randomSuffix())

	if err := fsys.WriteFile(tmp, data, perm); err != nil {
		_ = fsys.Remove(tmp)
		return err
	}
	if f, err := Open(fsys, tmp); err == nil {
		if s, ok := f.(interface{ Sync() error }); ok {
			_ = s.Sync()
		}
		_ = f.Close()
	}
	if err := fsys.Rename(tmp, name); err != nil {
		_ = fsys.Remove(tmp)
		return err
	}
	return nil
}

// Open opens name for reading.
func Open(fsys FS, name string) (File, error) {
	return fsys.OpenFile(name, os.O_RDONLY, 0)
}

// Create creates or truncates name for writing.
func Create(fsys FS, name string, perm fs.FileMode) (File, error) {
	return fsys.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
}

const tempAttempts = 16

// MkdirTemp creates a new directory in dir whose name starts with prefix
// and returns its path.
func MkdirTemp(fsys FS, dir, prefix string) (string, error) {
	for range tempAttempts {
		name := filepath.Join(dir, prefix+randomSuffix())
		err := fsys.Mkdir(name, 0o700)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
	}
	return "", &fs.PathError{Op: "mkdirtemp", Path: filepath.Join(dir, prefix+"*"), Err: fs.ErrExist}
}

// CreateTemp creates a new file in dir whose name starts with prefix. The
// caller removes it.
func CreateTemp(fsys FS, dir, prefix string) (File, error) {
	for range tempAttempts {
		name := filepath.Join(dir, prefix+randomSuffix())
		f, err := fsys.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}
	}
	return nil, &fs.PathError{Op: "createtemp", Path: filepath.Join(dir, prefix+"*"), Err: fs.ErrExist}
}

func randomSuffix() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// DirSize returns the total size of regular files under path.
func DirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			size += info.Size()
		}
		return nil
	})
	return size, err
}
