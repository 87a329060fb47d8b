// ABOUTME: Tests for number, currency and relative time formatting
// ABOUTME: Uses the English locale so grouping separators are stable

package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNumberGrouping(t *testing.T) {
	f := New("en")
	assert.Equal(t, "1,234,567", f.Integer(1234567))
	assert.Equal(t, "1,234.50", f.Number(1234.5, 2))
	assert.Equal(t, "0", f.Number(0.2, 0))
}

func TestCurrency(t *testing.T) {
	f := New("en")
	assert.Equal(t, "$1,234.56", f.Currency(1234.56, "usd"))
	assert.Equal(t, "-€5.00", f.Currency(-5, "EUR"))
	assert.Equal(t, "¥1,500", f.Currency(1500, "JPY"))
	assert.Equal(t, "10.00 SEK", f.Currency(10, "SEK"))
	assert.Equal(t, "$3.00", f.Currency(3, ""))
}

func TestCredits(t *testing.T) {
	f := New("en")
	assert.Equal(t, "1 credit", f.Credits(1))
	assert.Equal(t, "12,000 credits", f.Credits(12000))
}

func TestPercentAndMultiplier(t *testing.T) {
	f := New("en")
	assert.Equal(t, "25.0%", f.Percent(0.25))
	assert.Equal(t, "×1.2500", f.Multiplier(1.25))
}

func TestInvalidLocaleFallsBack(t *testing.T) {
	f := New("!!")
	assert.Equal(t, "en", f.Locale())
}

func TestAgo(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "never", Ago(time.Time{}, now))
	assert.Equal(t, "just now", Ago(now.Add(-10*time.Second), now))
	assert.Equal(t, "5m ago", Ago(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3h ago", Ago(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2d ago", Ago(now.Add(-49*time.Hour), now))
}
