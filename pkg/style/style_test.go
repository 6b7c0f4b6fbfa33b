package style

import (
	"testing"

	"github.com/PatWie/sprout/pkg/reconcile"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestMarkup_PlainProfile(t *testing.T) {
	SetColorProfile(termenv.Ascii)

	tests := []struct {
		in, want string
	}{
		{"[module]ripgrep[/module] built", "ripgrep built"},
		{"[bold][path]/a/b[/path][/bold]", "/a/b"},
		{"[nosuch]x[/nosuch]", "[nosuch]x[/nosuch]"},
		{"no tags", "no tags"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.in))
		})
	}
}

func TestForState(t *testing.T) {
	assert.Equal(t, StatusSuccess, ForState(reconcile.UpToDate))
	assert.Equal(t, StatusQueue, ForState(reconcile.Missing))
	assert.Equal(t, StatusAlert, ForState(reconcile.Modified))
	assert.Equal(t, StatusAlert, ForState(reconcile.Stale))
	assert.Equal(t, StatusError, ForState(reconcile.Deleted))
	assert.Equal(t, "up to date", StateLabel(reconcile.UpToDate))
	assert.Equal(t, "stale", StateLabel(reconcile.Stale))
}

func TestIndicatorPlain(t *testing.T) {
	SetColorProfile(termenv.Ascii)
	assert.Equal(t, SuccessGlyph, Indicator(StatusSuccess))
	assert.Equal(t, ErrorGlyph, Indicator(StatusError))
}
