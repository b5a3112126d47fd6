// Package output renders command results in terminal, markdown, CSV, and
// JSON form. The auto mode picks styled output on a TTY and markdown when
// piped, so scripted callers get parseable text without extra flags.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
)

// Mode selects the output format.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeCSV      Mode = "csv"
	ModeJSON     Mode = "json"
)

// Renderer writes formatted command output.
type Renderer struct {
	out  io.Writer
	errW io.Writer
	mode Mode
}

// NewRenderer creates a renderer for the requested mode.
func NewRenderer(out, errW io.Writer, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	return &Renderer{out: out, errW: errW, mode: mode}
}

// Writer returns the output writer.
func (r *Renderer) Writer() io.Writer {
	return r.out
}

// EffectiveMode resolves auto to text on a terminal and markdown otherwise.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if f, ok := r.out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return ModeText
	}
	return ModeMarkdown
}

// Println writes a line to the output writer.
func (r *Renderer) Println(s string) {
	_, _ = fmt.Fprintln(r.out, s)
}

// Printf writes formatted text to the output writer.
func (r *Renderer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// Header writes a section header at the given level.
func (r *Renderer) Header(level int, s string) {
	if r.EffectiveMode() == ModeText {
		_, _ = fmt.Fprintln(r.out, text.Bold.Sprint(s))
		return
	}
	_, _ = fmt.Fprintln(r.out, FormatHeader(level, s))
}

// Success writes a success message.
func (r *Renderer) Success(s string) {
	if r.EffectiveMode() == ModeText {
		_, _ = fmt.Fprintln(r.out, text.FgGreen.Sprint(s))
		return
	}
	_, _ = fmt.Fprintln(r.out, s)
}

// Warn writes a warning message to the error writer.
func (r *Renderer) Warn(s string) {
	if r.EffectiveMode() == ModeText {
		_, _ = fmt.Fprintln(r.errW, text.FgYellow.Sprint("warning: "+s))
		return
	}
	_, _ = fmt.Fprintln(r.errW, "warning: "+s)
}

// StatusLine writes a one-line item with a status marker.
func (r *Renderer) StatusLine(name, status, detail string) {
	marker := "-"
	switch status {
	case "success", "completed":
		marker = "ok"
	case "failed":
		marker = "FAIL"
	case "skipped":
		marker = "skip"
	}
	if detail != "" {
		_, _ = fmt.Fprintf(r.out, "  [%s] %s  %s\n", marker, name, detail)
		return
	}
	_, _ = fmt.Fprintf(r.out, "  [%s] %s\n", marker, name)
}

// Table renders a header row and data rows in the effective mode. JSON
// callers should encode their own structures instead.
func (r *Renderer) Table(header []string, rows [][]string) {
	switch r.EffectiveMode() {
	case ModeMarkdown:
		renderMarkdownTable(r.out, header, rows)
	case ModeCSV:
		renderCSVTable(r.out, header, rows)
	default:
		t := table.NewWriter()
		t.SetOutputMirror(r.out)
		t.SetStyle(table.StyleLight)
		hr := make(table.Row, len(header))
		for i, h := range header {
			hr[i] = h
		}
		t.AppendHeader(hr)
		for _, row := range rows {
			tr := make(table.Row, len(row))
			for i, c := range row {
				tr[i] = c
			}
			t.AppendRow(tr)
		}
		t.Render()
	}
}

// JSON encodes v onto the output writer with indentation.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatHeader returns a markdown header line.
func FormatHeader(level int, s string) string {
	return strings.Repeat("#", level) + " " + s
}

// FormatKeyValue returns a markdown key-value line.
func FormatKeyValue(key, value string) string {
	return "- **" + key + "**: " + value
}

func renderMarkdownTable(w io.Writer, header []string, rows [][]string) {
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(header, " | "))
	seps := make([]string, len(header))
	for i := range seps {
		seps[i] = "---"
	}
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(row, " | "))
	}
}

func renderCSVTable(w io.Writer, header []string, rows [][]string) {
	_, _ = fmt.Fprintln(w, strings.Join(header, ","))
	for _, row := range rows {
		escaped := make([]string, len(row))
		for i, c := range row {
			escaped[i] = escapeCSV(c)
		}
		_, _ = fmt.Fprintln(w, strings.Join(escaped, ","))
	}
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
