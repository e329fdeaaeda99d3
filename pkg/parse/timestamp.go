package parse

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Epoch is returned for timestamps that cannot be parsed.
var Epoch = time.Unix(0, 0).UTC()

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e11

var zoneSuffixRe = regexp.MustCompile(`^(.*?)\s*\(([A-Za-z]{2,5})\)$`)

// zoneOffsets maps the abbreviations seen in export files to fixed offsets.
var zoneOffsets = map[string]int{
	"UTC":  0,
	"GMT":  0,
	"Z":    0,
	"EST":  -5,
	"EDT":  -4,
	"CST":  -6,
	"CDT":  -5,
	"MST":  -7,
	"MDT":  -6,
	"PST":  -8,
	"PDT":  -7,
	"AKST": -9,
	"AKDT": -8,
	"HST":  -10,
	"BST":  1,
	"CET":  1,
	"CEST": 2,
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 -0700 MST",
	time.RFC1123Z,
	time.RFC1123,
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
}

// IsUnknown reports whether t is the Epoch sentinel.
func IsUnknown(t time.Time) bool {
	return t.Equal(Epoch)
}

// Timestamp parses v as an instant, treating naive values as UTC.
func Timestamp(v any) time.Time {
	return TimestampIn(v, time.UTC)
}

// TimestampIn parses v as an instant. Accepted inputs are RFC 3339 strings,
// naive ISO or US dates, export strings such as "2019-09-07 20:03 (MDT)",
// and Unix seconds or milliseconds. Naive values are read in loc. The result
// is in UTC; anything unrecognized yields Epoch.
func TimestampIn(v any, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return Epoch
		}
		return x.UTC()
	case *time.Time:
		if x == nil || x.IsZero() {
			return Epoch
		}
		return x.UTC()
	case string:
		return timestampString(strings.TrimSpace(x), loc)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Epoch
		}
		return fromUnix(f)
	}
	if f, ok := number(v); ok {
		return fromUnix(f)
	}
	return Epoch
}

func timestampString(s string, loc *time.Location) time.Time {
	if s == "" {
		return Epoch
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromUnix(f)
	}

	if m := zoneSuffixRe.FindStringSubmatch(s); m != nil {
		s = m[1]
		if hours, ok := zoneOffsets[strings.ToUpper(m[2])]; ok {
			loc = time.FixedZone(strings.ToUpper(m[2]), hours*3600)
		}
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC()
		}
	}
	return Epoch
}

func fromUnix(f float64) time.Time {
	if f <= 0 {
		return Epoch
	}
	if f >= epochMillisThreshold {
		ms := int64(f)
		return time.UnixMilli(ms).UTC()
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
