// Package symlinks tracks user files as managed symlinks.
//
// A tracked path is keyed by its location relative to the tracking root
// (usually $HOME). Its content lives under <root>/symlinks/<rel> and the
// original location becomes a symlink to that canonical copy. Drift is
// found lazily: Status compares the canonical content against the
// fingerprint recorded in the lockfile and checks that the link is intact.
package symlinks
