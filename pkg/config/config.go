package config

import (
	"time"

	"github.com/PatWie/sprout/pkg/errors"
)

// Config is the resolved configuration.
type Config struct {
	Paths  PathsConfig  `koanf:"paths"`
	Build  BuildConfig  `koanf:"build"`
	Fetch  FetchConfig  `koanf:"fetch"`
	Output OutputConfig `koanf:"output"`
}

type PathsConfig struct {
	Root     string `koanf:"root"`
	Tracking string `koanf:"tracking"`
}

type BuildConfig struct {
	Jobs     int    `koanf:"jobs"`
	Stale    string `koanf:"stale"`
	Shell    string `koanf:"shell"`
	KeepLogs int    `koanf:"keep_logs"`
}

type FetchConfig struct {
	Git       string        `koanf:"git"`
	Timeout   time.Duration `koanf:"timeout"`
	Netrc     string        `koanf:"netrc"`
	GoProxy   string        `koanf:"go_proxy"`
	CratesURL string        `koanf:"crates_url"`
}

type OutputConfig struct {
	// Color is auto, always or never.
	Color string `koanf:"color"`
}

// Output color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Validate checks enumerated and numeric values.
func (c *Config) Validate() error {
	if c.Build.Jobs < 1 {
		return invalid("build.jobs must be at least 1, got %d", c.Build.Jobs)
	}
	switch c.Build.Stale {
	case "rebuild", "report":
	default:
		return invalid("build.stale must be rebuild or report, got %q", c.Build.Stale)
	}
	switch c.Build.Shell {
	case "builtin", "bash":
	default:
		return invalid("build.shell must be builtin or bash, got %q", c.Build.Shell)
	}
	if c.Build.KeepLogs < 0 {
		return invalid("build.keep_logs must not be negative")
	}
	if c.Fetch.Timeout < 0 {
		return invalid("fetch.timeout must not be negative")
	}
	switch c.Output.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return invalid("output.color must be auto, always or never, got %q", c.Output.Color)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrConfigLoad, format, args...)
}
