package sheets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRow_NamePhoneDate(t *testing.T) {
	l, ok := parseRow([]interface{}{"Asha Patel", "9876543210", "2026-08-01"})
	require.True(t, ok)
	assert.Equal(t, "Asha Patel", l.Name)
	assert.Equal(t, "9876543210", l.Phone)
	assert.Equal(t, 2026, l.CapturedAt.Year())
}

func TestParseRow_DateOptional(t *testing.T) {
	l, ok := parseRow([]interface{}{"Asha", "9876543210"})
	require.True(t, ok)
	assert.True(t, l.CapturedAt.IsZero())
}

func TestParseRow_NumericPhoneCell(t *testing.T) {
	// Sheets hands numeric cells over as float64.
	l, ok := parseRow([]interface{}{"Asha", 9.87654321e9})
	require.True(t, ok)
	assert.NotEmpty(t, l.Phone)
}

func TestParseRow_MissingFieldsSkipped(t *testing.T) {
	_, ok := parseRow([]interface{}{"Asha"})
	assert.False(t, ok)
	_, ok = parseRow([]interface{}{"", "9876543210"})
	assert.False(t, ok)
	_, ok = parseRow([]interface{}{})
	assert.False(t, ok)
}

func TestParseRow_UnparseableDateIgnored(t *testing.T) {
	l, ok := parseRow([]interface{}{"Asha", "9876543210", "yesterday"})
	require.True(t, ok)
	assert.True(t, l.CapturedAt.IsZero())
}
