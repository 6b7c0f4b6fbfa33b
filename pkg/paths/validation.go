package paths

import (
	"path/filepath"
	"strings"

	"github.com/PatWie/sprout/pkg/errors"
)

// ValidateModuleName ensures a module name is usable as a directory name.
func ValidateModuleName(name string) error {
	if name == "" {
		return errors.New(errors.ErrInvalidInput, "module name cannot be empty")
	}
	if strings.ContainsAny(name, "/\\") {
		return errors.Newf(errors.ErrInvalidInput, "module name %q cannot contain path separators", name)
	}
	if name == "." || name == ".." {
		return errors.New(errors.ErrInvalidInput, "module name cannot be '.' or '..'")
	}
	if strings.ContainsAny(name, ":*?\"<>|\x00") || strings.ContainsAny(name, " \t\n") {
		return errors.Newf(errors.ErrInvalidInput, "module name %q contains invalid characters", name)
	}
	return nil
}

// SanitizePath cleans a path, keeping the empty path empty.
func SanitizePath(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Clean(path)
}

// ContainsPath checks if child is parent or lies within it.
func ContainsPath(parent, child string) bool {
	parent = SanitizePath(parent)
	child = SanitizePath(child)

	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
