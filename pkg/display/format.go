package display

import (
	"io"
	"os"
	"strings"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Format is an output format.
type Format string

const (
	FormatText Format = "text"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat parses a --output value.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text", "plain":
		return FormatText, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	}
	return "", errors.Newf(errors.ErrInvalidInput, "unknown output format %q (want text, yaml or json)", s)
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ColorProfile picks the color profile for w given the configured mode:
// "always", "never" or "auto". Auto honors NO_COLOR and requires a
// terminal.
func ColorProfile(mode string, w io.Writer) termenv.Profile {
	switch mode {
	case "never":
		return termenv.Ascii
	case "always":
		if p := termenv.NewOutput(w).EnvColorProfile(); p != termenv.Ascii {
			return p
		}
		return termenv.ANSI256
	}
	if os.Getenv("NO_COLOR") != "" || !IsTerminal(w) {
		return termenv.Ascii
	}
	return termenv.NewOutput(w).EnvColorProfile()
}
