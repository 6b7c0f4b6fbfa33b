// Package paths provides centralized path handling for sprout.
//
// A sprout root holds the manifest, the lockfile and every directory the
// engine writes to. The tracking root (normally $HOME) is where tracked
// files live as symlinks. Config and log locations follow the XDG base
// directories from adrg/xdg.
package paths
