package display

import (
	"fmt"
	"io"
	"sync"

	"github.com/PatWie/sprout/pkg/build"
	"github.com/pterm/pterm"
)

// Progress shows which modules are running. On a terminal it drives a
// pterm spinner; otherwise it prints one line per finished module.
type Progress struct {
	w       io.Writer
	tty     bool
	mu      sync.Mutex
	running map[string]bool
	spinner *pterm.SpinnerPrinter
}

// NewProgress creates a progress reporter on w.
func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w, tty: IsTerminal(w), running: map[string]bool{}}
}

// Start marks module as running.
func (p *Progress) Start(module string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running[module] = true
	if !p.tty {
		return
	}
	text := p.text()
	if p.spinner == nil {
		sp, err := pterm.DefaultSpinner.WithWriter(p.w).WithRemoveWhenDone(true).Start(text)
		if err != nil {
			p.tty = false
			return
		}
		p.spinner = sp
		return
	}
	p.spinner.UpdateText(text)
}

// Done marks a module finished.
func (p *Progress) Done(r build.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, r.Module)
	if !p.tty {
		fmt.Fprintf(p.w, "%s: %s\n", r.Module, outcomeLabel(r.Outcome))
		return
	}
	if p.spinner != nil {
		if len(p.running) == 0 {
			_ = p.spinner.Stop()
			p.spinner = nil
			return
		}
		p.spinner.UpdateText(p.text())
	}
}

// Stop removes the spinner if it is still shown.
func (p *Progress) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spinner != nil {
		_ = p.spinner.Stop()
		p.spinner = nil
	}
}

func (p *Progress) text() string {
	names := make([]string, 0, len(p.running))
	for name := range p.running {
		names = append(names, name)
	}
	if len(names) == 1 {
		return "running " + names[0]
	}
	return fmt.Sprintf("running %d modules", len(names))
}
