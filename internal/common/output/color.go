package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	// Change kind colors
	Action   = color.New(color.FgCyan)
	Download = color.New(color.FgBlue)
	Lockfile = color.New(color.FgMagenta)

	// Transition colors
	Previous = color.New(color.FgRed)
	Updated  = color.New(color.FgGreen)

	// Message colors
	Success = color.New(color.FgGreen)
	Warning = color.New(color.FgYellow)
	Error   = color.New(color.FgRed)
	Info    = color.New(color.FgCyan)
	Dim     = color.New(color.Faint)

	// Structural colors
	Header  = color.New(color.FgWhite, color.Bold)
	Subject = color.New(color.FgBlue, color.Bold)
)

// Change kinds shown in the run summary
const (
	KindAction   = "action"
	KindDownload = "download"
	KindLockfile = "lockfile"
)

// NoColor disables color output
func NoColor() {
	color.NoColor = true
}

// ForceColor enables color output even when not a TTY
func ForceColor() {
	color.NoColor = false
}

// IsTerminal returns true if stdout is a terminal
func IsTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// KindColor returns the color used for a change kind
func KindColor(kind string) *color.Color {
	switch kind {
	case KindAction:
		return Action
	case KindDownload:
		return Download
	case KindLockfile:
		return Lockfile
	default:
		return color.New(color.Reset)
	}
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	Success.Printf("✓ "+format+"\n", args...)
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	Error.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	Warning.Printf("⚠ "+format+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...interface{}) {
	Info.Printf("→ "+format+"\n", args...)
}

// Sprintf returns a colored string without printing
func Sprintf(c *color.Color, format string, args ...interface{}) string {
	return c.Sprintf(format, args...)
}

// FormatKind formats a change kind tag, e.g. "[action]"
func FormatKind(kind string) string {
	return KindColor(kind).Sprintf("[%s]", kind)
}

// FormatSubject formats the file or feature a change applies to, with the
// tracked identifier appended when there is one
func FormatSubject(subject, identifier string) string {
	if identifier == "" {
		return Subject.Sprint(subject)
	}
	return Subject.Sprint(subject) + Dim.Sprintf(" (%s)", identifier)
}

// FormatTransition formats "previous → updated". Empty sides render as "none".
func FormatTransition(previous, updated string) string {
	if previous == "" {
		previous = "none"
	}
	if updated == "" {
		updated = "none"
	}
	return Previous.Sprint(previous) + " → " + Updated.Sprint(updated)
}

// Row is one line of the change summary
type Row struct {
	Kind       string
	Subject    string
	Identifier string
	Previous   string
	Updated    string
}

// PrintSummary writes a titled list of change rows to w
func PrintSummary(w io.Writer, title string, rows []Row) {
	Header.Fprintln(w, title)
	if len(rows) == 0 {
		Dim.Fprintln(w, "  no changes")
		return
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %s %s: %s\n", FormatKind(r.Kind), FormatSubject(r.Subject, r.Identifier), FormatTransition(r.Previous, r.Updated))
	}
}
