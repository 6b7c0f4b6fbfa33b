package style

import (
	"github.com/charmbracelet/lipgloss"
)

// adaptive picks ANSI-256 colors for light and dark backgrounds.
func adaptive(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

// Palette. Greens lean toward the sprout leaf, everything else stays close
// to the terminal defaults.
var (
	PrimaryColor   = adaptive("25", "75")
	SecondaryColor = adaptive("242", "248")
	HeadingColor   = adaptive("235", "255")
	MutedColor     = adaptive("244", "245")

	SuccessColor = adaptive("28", "114")
	ErrorColor   = adaptive("160", "203")
	WarningColor = adaptive("172", "221")
	InfoColor    = adaptive("30", "80")

	// ModuleColor marks module names, SymlinkColor tracked paths.
	ModuleColor  = adaptive("64", "149")
	SymlinkColor = adaptive("31", "117")
)
