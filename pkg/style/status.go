package style

import (
	"github.com/PatWie/sprout/pkg/reconcile"
	"github.com/charmbracelet/lipgloss"
)

// Status is the display category shared by states and outcomes.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusQueue   Status = "queue"
	StatusAlert   Status = "alert"
	StatusIgnored Status = "ignored"
)

// StatusStyle returns the style for s.
func StatusStyle(s Status) lipgloss.Style {
	switch s {
	case StatusSuccess:
		return SuccessStyle
	case StatusError:
		return ErrorStyle
	case StatusQueue:
		return InfoStyle
	case StatusAlert:
		return WarningStyle
	default:
		return MutedStyle
	}
}

// Glyph returns the indicator for s.
func Glyph(s Status) string {
	switch s {
	case StatusSuccess:
		return SuccessGlyph
	case StatusError:
		return ErrorGlyph
	case StatusQueue:
		return PendingGlyph
	case StatusAlert:
		return WarningGlyph
	default:
		return InfoGlyph
	}
}

// Indicator renders the glyph for s in its style.
func Indicator(s Status) string {
	return StatusStyle(s).Render(Glyph(s))
}

// ForState maps a reconcile state to a display category.
func ForState(st reconcile.State) Status {
	switch st {
	case reconcile.UpToDate:
		return StatusSuccess
	case reconcile.Missing:
		return StatusQueue
	case reconcile.Modified, reconcile.Stale:
		return StatusAlert
	case reconcile.Deleted:
		return StatusError
	}
	return StatusIgnored
}

// StateLabel is the human form of a state.
func StateLabel(st reconcile.State) string {
	switch st {
	case reconcile.UpToDate:
		return "up to date"
	case "":
		return "unknown"
	}
	return string(st)
}
