package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseStatementDate(t *testing.T) {
	want := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		input string
		ok    bool
	}{
		{"2024-03-31", true},
		{" 31/03/2024 ", true},
		{"2024-03-31 18:45:00", true},
		{"2024-03-31T23:30:00-03:00", true},
		{"2024/03/31", true},
		{"", false},
		{"31-03-2024", false},
		{"2024-02-30", false},
	}

	for _, tt := range tests {
		got, ok := ParseStatementDate(tt.input)
		assert.Equal(t, tt.ok, ok, tt.input)
		if tt.ok {
			assert.Equal(t, want, got, tt.input)
		}
	}
}

func TestQuarter(t *testing.T) {
	for month, want := range map[time.Month]int{
		time.January: 1, time.March: 1, time.April: 2,
		time.September: 3, time.October: 4, time.December: 4,
	} {
		assert.Equal(t, want, Quarter(time.Date(2024, month, 15, 0, 0, 0, 0, time.UTC)), month.String())
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"100.50", "100.5", true},
		{"100,50", "100.5", true},
		{"-20", "-20", true},
		{" 0 ", "0", true},
		{"", "0", false},
		{"abc", "0", false},
	}

	for _, tt := range tests {
		got, ok := ParseAmount(tt.input)
		assert.Equal(t, tt.ok, ok, tt.input)
		assert.Equal(t, tt.want, got.String(), tt.input)
	}
}
