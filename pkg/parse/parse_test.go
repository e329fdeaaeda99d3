package parse

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected float64
	}{
		{"plain minutes number", 45.0, 45},
		{"int minutes", 30, 30},
		{"numeric string", "30", 30},
		{"minutes with unit", "30 min", 30},
		{"short minute unit", "45m", 45},
		{"seconds", "90 sec", 1.5},
		{"hours", "1.5 h", 90},
		{"hours and minutes", "1h 30m", 90},
		{"spelled out", "1 hour 15 minutes", 75},
		{"clock h:m:s", "1:30:00", 90},
		{"clock m:s", "45:30", 45.5},
		{"json number", json.Number("20"), 20},
		{"empty string", "", 0},
		{"garbage", "n/a", 0},
		{"unknown unit", "3 fortnights", 0},
		{"negative number", -5.0, 0},
		{"negative string", "-5", 0},
		{"bad clock", "1:xx", 0},
		{"nil", nil, 0},
		{"bool", true, 0},
		{"NaN", math.NaN(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Duration(tt.input), 1e-9)
		})
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected float64
	}{
		{"plain miles", 12.5, 12.5},
		{"numeric string", "12.5", 12.5},
		{"miles unit", "12.5 mi", 12.5},
		{"miles spelled", "3 miles", 3},
		{"kilometers", "10 km", 6.21371},
		{"meters", "5000 m", 3.106855},
		{"thousands separator", "1,234.5 m", 1234.5 * MetersToMiles},
		{"empty", "", 0},
		{"garbage", "far", 0},
		{"unknown unit", "4 leagues", 0},
		{"negative", -3.0, 0},
		{"nil", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Distance(tt.input), 1e-6)
		})
	}
}

func TestIntAndFloat(t *testing.T) {
	assert.Equal(t, 150, Int("150", 0))
	assert.Equal(t, 150, Int("150.7", 0))
	assert.Equal(t, 320, Int("320 kcal", 0))
	assert.Equal(t, 1200, Int("1,200", 0))
	assert.Equal(t, 42, Int(42.9, 0))
	assert.Equal(t, -1, Int("none", -1))
	assert.Equal(t, 7, Int(nil, 7))

	assert.InDelta(t, 12.25, Float("12.25", 0), 1e-9)
	assert.InDelta(t, 3.5, Float("3.5 bpm", 0), 1e-9)
	assert.InDelta(t, 9.0, Float("", 9), 1e-9)
	assert.InDelta(t, 9.0, Float(math.Inf(1), 9), 1e-9)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 12.35, Round(12.346, 2))
	assert.Equal(t, 3.0, Round(2.999, 2))
	assert.Equal(t, 0.0, Round(0, 2))
}

func TestNumberUnmarshal(t *testing.T) {
	var payload struct {
		A Number `json:"a"`
		B Number `json:"b"`
		C Number `json:"c"`
		D Number `json:"d"`
		E Number `json:"e"`
	}
	raw := `{"a": 1609.34, "b": "42.5", "c": null, "d": "12 km", "e": {"nested": true}}`

	// Objects are not numbers but must not fail the surrounding document.
	err := json.Unmarshal([]byte(raw), &payload)
	require.NoError(t, err)

	assert.InDelta(t, 1609.34, payload.A.Float64(), 1e-9)
	assert.InDelta(t, 42.5, payload.B.Float64(), 1e-9)
	assert.Zero(t, payload.C.Float64())
	assert.InDelta(t, 12.0, payload.D.Float64(), 1e-9)
	assert.Zero(t, payload.E.Float64())
}
