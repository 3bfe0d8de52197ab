// Package ui formats coloured CLI output. Colours switch off when output is
// not a terminal, when NO_COLOR is set, or when Init is called with
// noColor.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ad-itya07/Dionysus/internal/store"
)

var (
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
	faint  = color.New(color.Faint)
)

// Init applies the --no-color flag.
func Init(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}

// Successf writes a green line prefixed with a check mark.
func Successf(w io.Writer, format string, args ...any) {
	green.Fprintf(w, "✓ "+format+"\n", args...)
}

// Warnf writes a yellow warning line.
func Warnf(w io.Writer, format string, args ...any) {
	yellow.Fprintf(w, "! "+format+"\n", args...)
}

// Errorf writes a red error line.
func Errorf(w io.Writer, format string, args ...any) {
	red.Fprintf(w, "✗ "+format+"\n", args...)
}

// Infof writes a cyan informational line.
func Infof(w io.Writer, format string, args ...any) {
	cyan.Fprintf(w, format+"\n", args...)
}

// Header writes a bold title underlined with '='.
func Header(w io.Writer, title string) {
	bold.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", len(title)))
}

// Field writes an aligned "label: value" line.
func Field(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s %v\n", bold.Sprintf("%-18s", label+":"), value)
}

// Dim renders less important text.
func Dim(s string) string {
	return faint.Sprint(s)
}

// Status renders an ingestion status in its colour.
func Status(s store.Status) string {
	switch s {
	case store.StatusCompleted:
		return green.Sprint(s)
	case store.StatusFailed:
		return red.Sprint(s)
	case store.StatusInProgress:
		return cyan.Sprint(s)
	default:
		return yellow.Sprint(s)
	}
}

// Ago renders t relative to now, e.g. "3 hours ago".
func Ago(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < 2*time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%d sec ago", int(d.Seconds()))
	case d < time.Hour:
		return units(int(d.Minutes()), "min") + " ago"
	case d < 24*time.Hour:
		return units(int(d.Hours()), "hour") + " ago"
	default:
		return units(int(d.Hours()/24), "day") + " ago"
	}
}

func units(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
