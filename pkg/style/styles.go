package style

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Base styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(HeadingColor).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(InfoColor)

	PathStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor).
			Italic(true)

	CodeStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	ModuleStyle = lipgloss.NewStyle().
			Foreground(ModuleColor).
			Bold(true)

	SymlinkStyle = lipgloss.NewStyle().
			Foreground(SymlinkColor).
			Bold(true)
)

// Indicator glyphs
const (
	SuccessGlyph = "✓"
	ErrorGlyph   = "✗"
	WarningGlyph = "!"
	InfoGlyph    = "•"
	PendingGlyph = "○"
)

// SetColorProfile switches every style to profile; termenv.Ascii disables
// color.
func SetColorProfile(profile termenv.Profile) {
	lipgloss.SetColorProfile(profile)
}

// DetectColorProfile returns the profile lipgloss would pick for w.
func DetectColorProfile(w io.Writer) termenv.Profile {
	return termenv.NewOutput(w).EnvColorProfile()
}

func Indent(s string, level int) string {
	return lipgloss.NewStyle().PaddingLeft(level * 2).Render(s)
}

func Bold(s string) string {
	return lipgloss.NewStyle().Bold(true).Render(s)
}
