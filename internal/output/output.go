// Package output renders human-facing CLI output: status lines, search hits,
// index summaries and an indexing progress bar. Styling is applied only when
// writing to a terminal and NO_COLOR is unset.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Writer formats CLI output.
type Writer struct {
	out    io.Writer
	color  bool
	tty    bool
	styles Styles
}

// New returns a writer that styles output when out is a colour terminal.
func New(out io.Writer) *Writer {
	return newWriter(out, UseColor(out), IsTTY(out) && !DetectCI())
}

func newWriter(out io.Writer, color, tty bool) *Writer {
	return &Writer{out: out, color: color, tty: tty, styles: GetStyles(color)}
}

// Color reports whether styles are applied.
func (w *Writer) Color() bool { return w.color }

// Styles returns the active style set.
func (w *Writer) Styles() Styles { return w.styles }

func (w *Writer) println(s string) {
	_, _ = fmt.Fprintln(w.out, s)
}

// Header prints a bold heading.
func (w *Writer) Header(msg string) {
	w.println(w.styles.Header.Render(msg))
}

// Status prints msg behind a short marker, or indented when marker is empty.
func (w *Writer) Status(marker, msg string) {
	if marker == "" {
		w.println("   " + msg)
		return
	}
	w.println(marker + " " + msg)
}

// Success prints a success line.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render("✓"), msg)
}

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning line.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render("!"), msg)
}

// Warningf is Warning with formatting.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error line.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render("✗"), msg)
}

// Errorf is Error with formatting.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// KeyValue prints an aligned "label: value" line.
func (w *Writer) KeyValue(label string, value any) {
	w.println(fmt.Sprintf("  %s %s",
		w.styles.Label.Render(fmt.Sprintf("%-18s", label+":")),
		w.styles.Value.Render(fmt.Sprint(value))))
}

// Code prints an indented block.
func (w *Writer) Code(content string) {
	w.Newline()
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		w.println("  " + line)
	}
	w.Newline()
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
