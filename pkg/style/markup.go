package style

import (
	"regexp"

	"github.com/charmbracelet/lipgloss"
)

type markupStyle struct {
	pattern *regexp.Regexp
	style   lipgloss.Style
}

// MarkupParser renders [tag]text[/tag] spans with named styles. Unknown
// tags are left as they are.
type MarkupParser struct {
	styles map[string]markupStyle
}

// NewMarkupParser creates a parser with the default tags.
func NewMarkupParser() *MarkupParser {
	p := &MarkupParser{styles: map[string]markupStyle{}}
	for tag, st := range map[string]lipgloss.Style{
		"title":   TitleStyle,
		"success": SuccessStyle,
		"error":   ErrorStyle,
		"warning": WarningStyle,
		"info":    InfoStyle,
		"code":    CodeStyle,
		"path":    PathStyle,
		"muted":   MutedStyle,
		"module":  ModuleStyle,
		"symlink": SymlinkStyle,
		"bold":    lipgloss.NewStyle().Bold(true),
	} {
		p.AddStyle(tag, st)
	}
	return p
}

// AddStyle registers or replaces a tag.
func (p *MarkupParser) AddStyle(tag string, style lipgloss.Style) {
	p.styles[tag] = markupStyle{
		pattern: regexp.MustCompile(`\[` + regexp.QuoteMeta(tag) + `\](.*?)\[/` + regexp.QuoteMeta(tag) + `\]`),
		style:   style,
	}
}

// Render applies styles until no known tag is left.
func (p *MarkupParser) Render(text string) string {
	for {
		before := text
		for _, ms := range p.styles {
			text = ms.pattern.ReplaceAllStringFunc(text, func(match string) string {
				return ms.style.Render(ms.pattern.FindStringSubmatch(match)[1])
			})
		}
		if text == before {
			return text
		}
	}
}

var defaultParser = NewMarkupParser()

// Render uses the default parser.
func Render(text string) string {
	return defaultParser.Render(text)
}
