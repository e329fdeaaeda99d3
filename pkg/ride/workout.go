// Package ride holds the normalized workout model shared by both platform
// clients, the aggregator and the exporter.
package ride

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/xokvictor/miles-mcp/pkg/parse"
)

// Source identifies the platform a record came from.
type Source string

const (
	SourcePeloton Source = "peloton"
	SourceStrava  Source = "strava"
)

// Workout is a single normalized exercise session. Numeric fields always
// carry a safe value; AvgHeartRate is nil when the platform did not report one.
type Workout struct {
	ID              string    `json:"id"`
	Source          Source    `json:"source"`
	OccurredAt      time.Time `json:"occurred_at"`
	ActivityType    string    `json:"activity_type"`
	Title           string    `json:"title,omitempty"`
	DurationMinutes float64   `json:"duration_minutes"`
	DistanceMiles   float64   `json:"distance_miles"`
	Calories        int       `json:"calories"`
	AvgHeartRate    *int      `json:"avg_heart_rate,omitempty"`
}

// Totals is a platform's pre-aggregated ride statistics for a period.
type Totals struct {
	Count             int     `json:"count"`
	DistanceMiles     float64 `json:"distance_miles"`
	MovingMinutes     float64 `json:"moving_minutes"`
	ElapsedMinutes    float64 `json:"elapsed_minutes"`
	ElevationGainFeet float64 `json:"elevation_gain_feet"`
}

var cyclingFragments = []string{"cycl", "bike", "biking", "spin"}

var cyclingWords = map[string]bool{
	"ride":        true,
	"rides":       true,
	"riding":      true,
	"virtualride": true,
	"gravelride":  true,
}

// IsCycling reports whether an activity type describes a cycling session.
func IsCycling(activityType string) bool {
	s := strings.ToLower(activityType)
	for _, frag := range cyclingFragments {
		if strings.Contains(s, frag) {
			return true
		}
	}
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if cyclingWords[w] {
			return true
		}
	}
	return false
}

// CurrentYearDistance sums the positive distances of workouts that fall in
// now's calendar year, judged in now's location, rounded to two places.
func CurrentYearDistance(workouts []Workout, now time.Time) float64 {
	loc := now.Location()
	year := now.Year()

	var total float64
	for _, w := range workouts {
		if w.OccurredAt.In(loc).Year() != year {
			continue
		}
		if w.DistanceMiles > 0 {
			total += w.DistanceMiles
		}
	}
	return parse.Round(total, 2)
}

// Columns returns the CSV header matching Record.
func Columns() []string {
	return []string{
		"id",
		"source",
		"occurred_at",
		"activity_type",
		"title",
		"duration_minutes",
		"distance_miles",
		"calories",
		"avg_heart_rate",
	}
}

// Record flattens the workout into a CSV row ordered like Columns.
func (w Workout) Record() []string {
	hr := ""
	if w.AvgHeartRate != nil {
		hr = strconv.Itoa(*w.AvgHeartRate)
	}
	return []string{
		w.ID,
		string(w.Source),
		w.OccurredAt.Format(time.RFC3339),
		w.ActivityType,
		w.Title,
		strconv.FormatFloat(w.DurationMinutes, 'f', 2, 64),
		strconv.FormatFloat(w.DistanceMiles, 'f', 2, 64),
		strconv.Itoa(w.Calories),
		hr,
	}
}
