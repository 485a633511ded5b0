package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
)

// Progress renders indexing progress. On a colour terminal it redraws a
// bubbles progress bar in place; elsewhere it prints a line at every tenth
// of the run so logs stay short.
type Progress struct {
	mu       sync.Mutex
	out      io.Writer
	redraw   bool
	bar      progress.Model
	label    string
	lastStep int
	done     bool
}

// NewProgress returns a progress renderer bound to w.
func (w *Writer) NewProgress(label string) *Progress {
	p := &Progress{
		out:      w.out,
		redraw:   w.tty && w.color,
		label:    label,
		lastStep: -1,
	}
	if p.redraw {
		p.bar = progress.New(
			progress.WithSolidFill(ColorAccent),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		)
	}
	return p
}

// Update records done of total. It matches the docstore progress callback.
func (p *Progress) Update(done, total int) {
	if total <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}

	pct := float64(done) / float64(total)
	if pct > 1 {
		pct = 1
	}
	if p.redraw {
		p.lastStep = int(pct * 10)
		_, _ = fmt.Fprintf(p.out, "\r%s %s %3.0f%% (%d/%d)", p.label, p.bar.ViewAs(pct), pct*100, done, total)
		if done >= total {
			_, _ = fmt.Fprintln(p.out)
			p.done = true
		}
		return
	}

	step := int(pct * 10)
	if step == p.lastStep && done < total {
		return
	}
	p.lastStep = step
	_, _ = fmt.Fprintf(p.out, "%s %d/%d files (%.0f%%)\n", p.label, done, total, pct*100)
	if done >= total {
		p.done = true
	}
}

// Finish ends an in-place bar that did not reach 100%.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.redraw && !p.done && p.lastStep != -1 {
		_, _ = fmt.Fprintln(p.out)
	}
	p.done = true
}
