// Package parse converts loosely typed upstream values into safe numeric and
// time values. Every function is total: malformed input yields a documented
// default, never an error or a panic.
package parse

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	KmToMiles     = 0.621371
	MetersToMiles = 0.000621371
)

var (
	leadingNumberRe = regexp.MustCompile(`^[-+]?\d+(?:\.\d+)?`)
	durationTokenRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([a-z]*)`)
	durationFullRe  = regexp.MustCompile(`^(?:\d+(?:\.\d+)?\s*[a-z]*\s*)+$`)
	distanceRe      = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([a-z]*)\.?$`)
)

var durationUnits = map[string]float64{
	"":        1,
	"m":       1,
	"min":     1,
	"mins":    1,
	"minute":  1,
	"minutes": 1,
	"h":       60,
	"hr":      60,
	"hrs":     60,
	"hour":    60,
	"hours":   60,
	"s":       1.0 / 60,
	"sec":     1.0 / 60,
	"secs":    1.0 / 60,
	"second":  1.0 / 60,
	"seconds": 1.0 / 60,
}

var distanceUnits = map[string]float64{
	"":           1,
	"mi":         1,
	"mile":       1,
	"miles":      1,
	"km":         KmToMiles,
	"kms":        KmToMiles,
	"kilometer":  KmToMiles,
	"kilometers": KmToMiles,
	"kilometre":  KmToMiles,
	"kilometres": KmToMiles,
	"m":          MetersToMiles,
	"meter":      MetersToMiles,
	"meters":     MetersToMiles,
	"metre":      MetersToMiles,
	"metres":     MetersToMiles,
}

// Duration returns v as minutes. Bare numbers are minutes. Strings may carry
// units ("45 min", "1h 30m", "90 sec") or be clock style ("1:30:00" is
// h:m:s, "45:30" is m:s). Unparsable or negative input yields 0.
func Duration(v any) float64 {
	if f, ok := number(v); ok {
		return nonNegative(f)
	}
	s, ok := v.(string)
	if !ok {
		return 0
	}
	s = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, ",", "")))
	if s == "" {
		return 0
	}
	if strings.Contains(s, ":") {
		return clockMinutes(s)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return nonNegative(f)
	}
	if !durationFullRe.MatchString(s) {
		return 0
	}

	var total float64
	for _, m := range durationTokenRe.FindAllStringSubmatch(s, -1) {
		mult, ok := durationUnits[m[2]]
		if !ok {
			return 0
		}
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0
		}
		total += f * mult
	}
	return nonNegative(total)
}

func clockMinutes(s string) float64 {
	parts := strings.Split(s, ":")
	vals := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || f < 0 {
			return 0
		}
		vals[i] = f
	}
	switch len(vals) {
	case 2:
		return vals[0] + vals[1]/60
	case 3:
		return vals[0]*60 + vals[1] + vals[2]/60
	}
	return 0
}

// Distance returns v as miles. Bare numbers are miles; strings may carry a
// mi, km or m unit and thousands separators. Unparsable or negative input
// yields 0.
func Distance(v any) float64 {
	if f, ok := number(v); ok {
		return nonNegative(f)
	}
	s, ok := v.(string)
	if !ok {
		return 0
	}
	s = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, ",", "")))
	m := distanceRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	mult, ok := distanceUnits[m[2]]
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return nonNegative(f * mult)
}

// Int parses v as an integer, truncating fractions and ignoring trailing
// units ("150 kcal"). def is returned when nothing numeric is found.
func Int(v any, def int) int {
	f, ok := toFloat(v)
	if !ok {
		return def
	}
	return int(f)
}

// Float parses v as a float64, ignoring trailing units. def is returned when
// nothing numeric is found.
func Float(v any, def float64) float64 {
	f, ok := toFloat(v)
	if !ok {
		return def
	}
	return f
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func toFloat(v any) (float64, bool) {
	if f, ok := number(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	m := leadingNumberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// number reports v as a finite float64 when v is already numeric.
func number(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case Number:
		f = float64(x)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func nonNegative(f float64) float64 {
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Number is a float64 that decodes from JSON numbers, numeric strings
// (units ignored) and null. Anything else decodes as 0.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			*n = 0
			return nil
		}
		*n = Number(Float(str, 0))
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		*n = 0
		return nil
	}
	*n = Number(f)
	return nil
}

// Float64 returns n as a plain float64.
func (n Number) Float64() float64 {
	return float64(n)
}
