package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// statementDateLayouts are tried in order. ISO dates come first because the
// regulator publishes them; DD/MM/YYYY shows up in hand-edited extracts.
var statementDateLayouts = []string{
	DateLayout,
	"02/01/2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
}

// ParseStatementDate parses a statement date. The second result is false for
// empty or unrecognized input.
func ParseStatementDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range statementDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// Quarter returns the calendar quarter (1-4) of t.
func Quarter(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

// ParseAmount parses a monetary amount, accepting a comma as the decimal
// separator. Empty or non-numeric input yields zero and false.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
