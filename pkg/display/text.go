package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/PatWie/sprout/pkg/build"
	"github.com/PatWie/sprout/pkg/style"
)

// Renderer writes views in the chosen format.
type Renderer struct {
	w      io.Writer
	format Format
}

// NewRenderer creates a renderer writing to w.
func NewRenderer(w io.Writer, format Format) *Renderer {
	if format == "" {
		format = FormatText
	}
	return &Renderer{w: w, format: format}
}

// Format returns the renderer's format.
func (r *Renderer) Format() Format { return r.format }

// Status renders a status listing.
func (r *Renderer) Status(v StatusView) error {
	if r.format != FormatText {
		return WriteStructured(r.w, r.format, v)
	}
	var b strings.Builder
	if v.Modules != nil {
		section(&b, "Modules", len(v.Modules))
		for _, e := range v.Modules {
			entity(&b, style.ModuleStyle.Render(e.Name), e)
		}
	}
	if v.Symlinks != nil {
		if v.Modules != nil {
			b.WriteString("\n")
		}
		section(&b, "Symlinks", len(v.Symlinks))
		for _, e := range v.Symlinks {
			entity(&b, style.PathStyle.Render(e.Name), e)
		}
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

func section(b *strings.Builder, title string, n int) {
	b.WriteString(style.TitleStyle.Render(title) + "\n")
	if n == 0 {
		b.WriteString(style.Indent(style.MutedStyle.Render("(none)"), 1) + "\n")
	}
}

func entity(b *strings.Builder, name string, e EntityStatus) {
	if e.Error != "" {
		fmt.Fprintf(b, "  %s %s  %s\n", style.Indicator(style.StatusError), name, style.ErrorStyle.Render(e.Error))
		return
	}
	st := style.ForState(e.State)
	line := fmt.Sprintf("  %s %s  %s", style.Indicator(st), name, style.StatusStyle(st).Render(style.StateLabel(e.State)))
	switch {
	case e.Detail != "":
		line += style.MutedStyle.Render(" (" + e.Detail + ")")
	case len(e.ChangedInputs) > 0:
		line += style.MutedStyle.Render(" (changed: " + strings.Join(e.ChangedInputs, ", ") + ")")
	}
	b.WriteString(line + "\n")
}

// Run renders the result of a build run.
func (r *Renderer) Run(v RunView) error {
	if r.format != FormatText {
		return WriteStructured(r.w, r.format, v)
	}
	var b strings.Builder
	header := v.Verb
	if v.DryRun {
		header += " (dry run)"
	}
	b.WriteString(style.TitleStyle.Render(header) + "\n")
	if len(v.Modules) == 0 {
		b.WriteString(style.Indent(style.MutedStyle.Render("no modules"), 1) + "\n")
	}
	for _, m := range v.Modules {
		st := outcomeStatus(m.Outcome)
		line := fmt.Sprintf("  %s %s  %s", style.Indicator(st), style.ModuleStyle.Render(m.Name), style.StatusStyle(st).Render(outcomeLabel(m.Outcome)))
		if len(m.Stages) > 0 && m.Outcome != build.Blocked {
			line += style.MutedStyle.Render(" [" + strings.Join(m.Stages, ", ") + "]")
		}
		b.WriteString(line + "\n")
		if m.Reason != "" {
			b.WriteString("      " + style.MutedStyle.Render(m.Reason) + "\n")
		}
		if m.Error != "" {
			b.WriteString("      " + style.ErrorStyle.Render(m.Error) + "\n")
		}
		if m.LogPath != "" {
			b.WriteString("      log: " + style.PathStyle.Render(m.LogPath) + "\n")
		}
		for _, s := range m.Scripts {
			fmt.Fprintf(&b, "    %s", style.CodeStyle.Render("# "+s.Stage))
			if s.Dir != "" {
				b.WriteString(style.MutedStyle.Render(" in " + s.Dir))
			}
			b.WriteString("\n")
			for _, l := range strings.Split(strings.TrimRight(s.Text, "\n"), "\n") {
				b.WriteString("    " + l + "\n")
			}
		}
	}
	b.WriteString(summary(v.Counts) + "\n")
	_, err := io.WriteString(r.w, b.String())
	return err
}

var outcomeOrder = []build.Outcome{build.Built, build.Planned, build.UpToDate, build.StaleSkipped, build.Failed, build.Blocked, build.Canceled}

func summary(counts map[build.Outcome]int) string {
	var parts []string
	for _, o := range outcomeOrder {
		if n := counts[o]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, outcomeLabel(o)))
		}
	}
	if len(parts) == 0 {
		return style.MutedStyle.Render("nothing to do")
	}
	return style.MutedStyle.Render(strings.Join(parts, ", "))
}

func outcomeStatus(o build.Outcome) style.Status {
	switch o {
	case build.Built, build.UpToDate:
		return style.StatusSuccess
	case build.Planned:
		return style.StatusQueue
	case build.StaleSkipped:
		return style.StatusAlert
	case build.Failed, build.Blocked:
		return style.StatusError
	}
	return style.StatusIgnored
}

func outcomeLabel(o build.Outcome) string {
	switch o {
	case build.UpToDate:
		return "up to date"
	case build.Planned:
		return "planned"
	}
	return string(o)
}

// Clean renders clean candidates.
func (r *Renderer) Clean(v CleanView) error {
	if r.format != FormatText {
		return WriteStructured(r.w, r.format, v)
	}
	var b strings.Builder
	if len(v.Entries) == 0 {
		b.WriteString(style.MutedStyle.Render("nothing to clean") + "\n")
		_, err := io.WriteString(r.w, b.String())
		return err
	}
	verb := "removed"
	if v.DryRun {
		verb = "would remove"
	}
	for _, e := range v.Entries {
		target := e.Path
		if target == "" {
			target = "lock entry " + e.Module
		}
		fmt.Fprintf(&b, "  %s %-6s %s %s %s\n", style.Indicator(style.StatusAlert), e.Kind, style.PathStyle.Render(target),
			style.MutedStyle.Render(HumanSize(e.Size)), style.MutedStyle.Render("("+e.Reason+")"))
	}
	fmt.Fprintf(&b, "%s %s\n", verb, HumanSize(v.Total))
	_, err := io.WriteString(r.w, b.String())
	return err
}

// Message writes a markup-rendered line.
func (r *Renderer) Message(format string, args ...interface{}) {
	fmt.Fprintln(r.w, style.Render(fmt.Sprintf(format, args...)))
}

// HumanSize formats a byte count with binary units.
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Actions renders the results of a restore, rehash or accept pass.
func (r *Renderer) Actions(v ActionView) error {
	if r.format != FormatText {
		return WriteStructured(r.w, r.format, v)
	}
	var b strings.Builder
	header := v.Title
	if v.DryRun {
		header += " (dry run)"
	}
	b.WriteString(style.TitleStyle.Render(header) + "\n")
	if len(v.Results) == 0 {
		b.WriteString(style.Indent(style.MutedStyle.Render("nothing to do"), 1) + "\n")
	}
	for _, a := range v.Results {
		if a.Error != "" {
			fmt.Fprintf(&b, "  %s %s  %s\n", style.Indicator(style.StatusError), a.Name, style.ErrorStyle.Render(a.Error))
			continue
		}
		st := style.StatusSuccess
		label := string(a.Action)
		if !a.Applied {
			st = style.StatusQueue
			label = "would " + label
		}
		fmt.Fprintf(&b, "  %s %s  %s %s\n", style.Indicator(st), a.Name, style.StatusStyle(st).Render(label),
			style.MutedStyle.Render("(was "+style.StateLabel(a.State)+")"))
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

// Hashes renders module fingerprints, one block per module.
func (r *Renderer) Hashes(hashes []ModuleHash) error {
	if r.format != FormatText {
		return WriteStructured(r.w, r.format, hashes)
	}
	var b strings.Builder
	for _, h := range hashes {
		b.WriteString(style.ModuleStyle.Render(h.Name) + "\n")
		fmt.Fprintf(&b, "  fingerprint  %s\n", h.Fingerprint)
		fmt.Fprintf(&b, "  tree         %s\n", h.Tree)
		if h.Fetch != "" {
			fmt.Fprintf(&b, "  fetch        %s\n", h.Fetch)
		}
		if h.Recorded != "" && h.Recorded != h.Tree {
			fmt.Fprintf(&b, "  %s\n", style.MutedStyle.Render("recorded tree "+h.Recorded))
		}
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}
