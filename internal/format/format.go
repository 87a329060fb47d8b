// ABOUTME: Locale-aware number, currency and credit formatting for console templates
// ABOUTME: Wraps golang.org/x/text/message printers keyed by BCP 47 language tag

package format

import (
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CHF": "CHF ",
}

// Formatter renders values for one locale.
type Formatter struct {
	printer *message.Printer
	tag     language.Tag
}

// New returns a Formatter for the given locale, falling back to English
// when the tag cannot be parsed.
func New(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Formatter{printer: message.NewPrinter(tag), tag: tag}
}

// Locale returns the formatter's language tag.
func (f *Formatter) Locale() string {
	return f.tag.String()
}

// Number formats v with grouping and the given number of decimals.
func (f *Formatter) Number(v float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return f.printer.Sprintf(fmt.Sprintf("%%.%df", decimals), v)
}

// Integer formats v with grouping.
func (f *Formatter) Integer(v int64) string {
	return f.printer.Sprintf("%d", v)
}

// Currency formats an amount with the code's symbol. Unknown codes are
// appended after the amount.
func (f *Formatter) Currency(v float64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = "USD"
	}
	decimals := 2
	if code == "JPY" {
		decimals = 0
	}

	amount := f.Number(math.Abs(v), decimals)
	sign := ""
	if v < 0 {
		sign = "-"
	}
	if sym, ok := currencySymbols[code]; ok {
		return sign + sym + amount
	}
	return sign + amount + " " + code
}

// Credits formats a credit balance.
func (f *Formatter) Credits(v int64) string {
	if v == 1 || v == -1 {
		return f.Integer(v) + " credit"
	}
	return f.Integer(v) + " credits"
}

// Percent formats a ratio (0.25) as a percentage (25.0%).
func (f *Formatter) Percent(ratio float64) string {
	return f.Number(ratio*100, 1) + "%"
}

// Multiplier formats a multiplier with four decimals.
func (f *Formatter) Multiplier(v float64) string {
	return "×" + f.Number(v, 4)
}

// Timestamp formats t for tables; the zero time renders as a dash.
func Timestamp(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// Ago renders the time elapsed since t in a compact form.
func Ago(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < 0:
		return "just now"
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
