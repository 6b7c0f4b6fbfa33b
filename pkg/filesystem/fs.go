package filesystem

import (
	"io"
	"io/fs"
)

// File is an open file that can be read, written and closed.
type File interface {
	fs.File
	io.Writer
	Name() string
}

// FS is the set of filesystem operations sprout needs.
type FS interface {
	// File operations
	Stat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error
	// OpenFile takes the os.O_* flags.
	OpenFile(name string, flag int, perm fs.FileMode) (File, error)

	// Directory operations
	Mkdir(name string, perm fs.FileMode) error
	MkdirAll(path string, perm fs.FileMode) error
	ReadDir(name string) ([]fs.DirEntry, error)

	// Symlink operations
	Symlink(oldname, newname string) error
	Readlink(name string) (string, error)
	Lstat(name string) (fs.FileInfo, error)

	// Other operations
	Remove(name string) error
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
	Chmod(name string, mode fs.FileMode) error
}
