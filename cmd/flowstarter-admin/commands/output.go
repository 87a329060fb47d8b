// ABOUTME: Terminal output helpers: aligned tables, colored status words and key/value blocks

package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/flowstarter/flowstarter-console/internal/format"
)

var numbers = format.New("en")

// table writes tab-separated rows aligned in columns.
type table struct {
	w *tabwriter.Writer
}

func newTable(out io.Writer, headers ...string) *table {
	t := &table{w: tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)}
	bold := color.New(color.Bold)
	for i, h := range headers {
		headers[i] = bold.Sprint(h)
	}
	fmt.Fprintln(t.w, strings.Join(headers, "\t"))
	return t
}

func (t *table) row(cols ...any) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprint(c)
	}
	fmt.Fprintln(t.w, strings.Join(parts, "\t"))
}

func (t *table) flush() error {
	return t.w.Flush()
}

// field prints one "label: value" line with the label dimmed.
func field(out io.Writer, label string, value any) {
	fmt.Fprintf(out, "%s %v\n", color.HiBlackString("%-14s", label+":"), value)
}

func okWord(ok bool) string {
	if ok {
		return color.GreenString("ok")
	}
	return color.RedString("fail")
}

func yesNo(b bool) string {
	if b {
		return color.GreenString("yes")
	}
	return color.YellowString("no")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
