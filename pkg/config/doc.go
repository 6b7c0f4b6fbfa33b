// Package config loads sprout settings.
//
// Layers are applied in order, later ones winning:
//
//  1. embedded defaults (embedded/defaults.toml)
//  2. the user file, $XDG_CONFIG_HOME/sprout/config.toml or --config
//  3. SPROUT_<SECTION>__<KEY> environment variables
//
// Command-line flags are applied on top by the CLI.
package config
