// Package display turns module, symlink and build results into text, YAML
// or JSON for the terminal.
//
// Views are plain structs built from engine results so one value can be
// handed to any renderer. Text output is styled through pkg/style and falls
// back to plain text when color is off.
package display
