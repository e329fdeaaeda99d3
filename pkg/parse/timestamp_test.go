package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected time.Time
	}{
		{"rfc3339 zulu", "2024-03-01T10:30:00Z", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"rfc3339 offset", "2024-03-01T10:30:00-05:00", time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)},
		{"rfc3339 fraction", "2024-03-01T10:30:00.250Z", time.Date(2024, 3, 1, 10, 30, 0, 250_000_000, time.UTC)},
		{"space with offset", "2024-03-01 10:30:00+00:00", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"naive iso", "2024-03-01T10:30:00", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"naive space minutes", "2024-03-01 10:30", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"export with zone", "2019-09-07 20:03 (MDT)", time.Date(2019, 9, 8, 2, 3, 0, 0, time.UTC)},
		{"date only", "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"us date", "03/01/2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"epoch seconds", float64(1709289000), time.Unix(1709289000, 0).UTC()},
		{"epoch seconds int64", int64(1709289000), time.Unix(1709289000, 0).UTC()},
		{"epoch seconds string", "1709289000", time.Unix(1709289000, 0).UTC()},
		{"epoch millis", float64(1709289000123), time.UnixMilli(1709289000123).UTC()},
		{"time value", time.Date(2024, 3, 1, 10, 30, 0, 0, time.FixedZone("X", 3600)), time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Timestamp(tt.input)
			assert.True(t, tt.expected.Equal(got), "Timestamp(%v) = %v, want %v", tt.input, got, tt.expected)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestTimestampUnknown(t *testing.T) {
	inputs := []any{"", "not a date", "2024-13-45", "yesterday", nil, true, 0, -12.0, time.Time{}, map[string]any{}}
	for _, in := range inputs {
		got := Timestamp(in)
		assert.True(t, IsUnknown(got), "Timestamp(%#v) = %v, want epoch", in, got)
	}
}

func TestTimestampIn(t *testing.T) {
	denver, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)

	t.Run("naive value uses location", func(t *testing.T) {
		got := TimestampIn("2024-07-04 08:00", denver)
		assert.True(t, time.Date(2024, 7, 4, 14, 0, 0, 0, time.UTC).Equal(got))
	})

	t.Run("explicit offset wins over location", func(t *testing.T) {
		got := TimestampIn("2024-07-04T08:00:00Z", denver)
		assert.True(t, time.Date(2024, 7, 4, 8, 0, 0, 0, time.UTC).Equal(got))
	})

	t.Run("unknown abbreviation falls back to location", func(t *testing.T) {
		got := TimestampIn("2024-07-04 08:00 (XYZ)", denver)
		assert.True(t, time.Date(2024, 7, 4, 14, 0, 0, 0, time.UTC).Equal(got))
	})

	t.Run("nil location means UTC", func(t *testing.T) {
		got := TimestampIn("2024-07-04 08:00", nil)
		assert.True(t, time.Date(2024, 7, 4, 8, 0, 0, 0, time.UTC).Equal(got))
	})
}
