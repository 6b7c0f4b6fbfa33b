// Package filesystem provides the filesystem abstraction used by sprout.
//
// Packages that touch the tracking root or the sprout root go through FS so
// the OS implementation can be swapped in tests. Helpers in this package
// build tree copies, moves and atomic writes on top of FS.
package filesystem
