package runner

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PatWie/sprout/pkg/errors"
)

// logSuffixLen is len("-20060102T150405.log").
const logSuffixLen = 20

// PruneLogs keeps the newest keep logs of every module stage in dir and
// removes the rest. Files that do not look like stage logs are left alone.
// keep <= 0 disables pruning.
func PruneLogs(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFilesystem, "failed to read log directory %s", dir).
			WithDetail(errors.DetailPath, dir)
	}

	groups := map[string][]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".log") || len(name) <= logSuffixLen {
			continue
		}
		key := name[:len(name)-logSuffixLen]
		if name[len(key)] != '-' {
			continue
		}
		groups[key] = append(groups[key], name)
	}

	var removed []string
	for _, names := range groups {
		if len(names) <= keep {
			continue
		}
		// Timestamps are fixed width, so lexical order is chronological.
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
		for _, name := range names[keep:] {
			path := filepath.Join(dir, name)
			if err := os.Remove(path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
				return removed, errors.Wrapf(err, errors.ErrFilesystem, "failed to remove log %s", path).
					WithDetail(errors.DetailPath, path)
			}
			removed = append(removed, path)
		}
	}
	sort.Strings(removed)
	return removed, nil
}
