// Package manifest holds the declarative description of modules and
// environment sets.
//
// A *Manifest is an immutable snapshot. Changes go through Edit, which runs
// a callback on a deep copy, validates the result and only then hands back a
// new snapshot; a failed edit leaves the caller's snapshot untouched.
//
// The on-disk form is HCL native syntax:
//
//	module ripgrep {
//	  depends_on = [rust]
//	  exports    = { PATH = "bin" }
//	  fetch {
//	    archive = { url = "https://...", sha256 = "..." }
//	  }
//	  build {
//	    env { CARGO_HOME = "${DIST_PATH}/cargo" }
//	    commands = ["cargo build --release"]
//	  }
//	}
//
//	environments {
//	  default = [rust, ripgrep]
//	}
//
// Document keeps the parsed file around so a committed snapshot can be
// written back without disturbing comments in untouched blocks. Format
// renders a snapshot canonically, without comments.
package manifest
