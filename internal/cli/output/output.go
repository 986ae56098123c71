package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	json "github.com/json-iterator/go"
)

// Format is how command results are rendered
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// ParseFormat validates an --output value
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// Printer renders results to a writer
type Printer struct {
	w      io.Writer
	format Format
}

// New creates a printer; a nil writer means color.Output
func New(w io.Writer, format Format) *Printer {
	if w == nil {
		w = color.Output
	}
	return &Printer{w: w, format: format}
}

// JSON reports whether results are rendered as JSON
func (p *Printer) JSON() bool {
	return p.format == FormatJSON
}

// Data writes v as indented JSON
func (p *Printer) Data(v interface{}) error {
	data, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(p.w, string(data))
	return err
}

// Table writes rows under bold headers
func (p *Printer) Table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	bold := color.New(color.Bold)

	for i, h := range headers {
		bold.Fprint(w, h)
		if i < len(headers)-1 {
			fmt.Fprint(w, "\t")
		}
	}
	fmt.Fprintln(w)

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

// Heading writes a bold line
func (p *Printer) Heading(msg string, args ...interface{}) {
	color.New(color.Bold).Fprintf(p.w, msg+"\n", args...)
}

// Line writes a plain line
func (p *Printer) Line(msg string, args ...interface{}) {
	fmt.Fprintf(p.w, msg+"\n", args...)
}

// Success prints a success message
func (p *Printer) Success(msg string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(p.w, msg+"\n", args...)
}

// Info prints an info message
func (p *Printer) Info(msg string, args ...interface{}) {
	color.New(color.FgCyan).Fprintf(p.w, msg+"\n", args...)
}

// Warning prints a warning message
func (p *Printer) Warning(msg string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(p.w, "Warning: "+msg+"\n", args...)
}

// Error prints an error message
func (p *Printer) Error(msg string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(p.w, "Error: "+msg+"\n", args...)
}

// Check renders a done/pending marker
func Check(done bool) string {
	if done {
		return color.GreenString("✓")
	}
	return color.New(color.Faint).Sprint("·")
}
