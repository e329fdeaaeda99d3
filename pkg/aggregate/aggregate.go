// Package aggregate combines Peloton workouts and Strava year-to-date totals
// into a single riding summary.
package aggregate

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/xokvictor/miles-mcp/pkg/parse"
	"github.com/xokvictor/miles-mcp/pkg/ride"
)

// NoDataMessage is the display message when no source contributed.
const NoDataMessage = "No data available"

// PlatformSummary holds one platform's totals and its share of the combined
// distance.
type PlatformSummary struct {
	Source          ride.Source `json:"source"`
	Count           int         `json:"count"`
	DistanceMiles   float64     `json:"distance_miles"`
	Calories        int         `json:"calories"`
	DurationMinutes float64     `json:"duration_minutes"`
	AvgDistance     float64     `json:"avg_distance_miles"`
	ContributionPct float64     `json:"contribution_pct"`
}

// Summary is the combined view across both platforms.
type Summary struct {
	Peloton       PlatformSummary `json:"peloton"`
	Strava        PlatformSummary `json:"strava"`
	TotalWorkouts int             `json:"total_workouts"`
	TotalMiles    float64         `json:"total_miles"`
	TotalCalories int             `json:"total_calories"`
	TotalMinutes  float64         `json:"total_minutes"`
	Sources       []ride.Source   `json:"sources"`
}

// DisplayOutput is a compact rendering of a Summary for status displays.
type DisplayOutput struct {
	TotalMiles     string `json:"total_miles"`
	LastUpdated    string `json:"last_updated"`
	SourceCount    int    `json:"source_count"`
	DisplayMessage string `json:"display_message"`
}

// Summarize combines workouts from Peloton with Strava's year-to-date ride
// totals. Strava reports no calories, so its calorie total is always zero.
func Summarize(workouts []ride.Workout, strava ride.Totals) Summary {
	peloton := PlatformSummary{Source: ride.SourcePeloton}
	for _, w := range workouts {
		peloton.Count++
		peloton.DistanceMiles += w.DistanceMiles
		peloton.Calories += w.Calories
		peloton.DurationMinutes += w.DurationMinutes
	}
	peloton.DistanceMiles = parse.Round(peloton.DistanceMiles, 2)
	peloton.DurationMinutes = parse.Round(peloton.DurationMinutes, 2)
	peloton.AvgDistance = average(peloton.DistanceMiles, peloton.Count)

	st := PlatformSummary{
		Source:          ride.SourceStrava,
		Count:           strava.Count,
		DistanceMiles:   parse.Round(strava.DistanceMiles, 2),
		DurationMinutes: parse.Round(strava.MovingMinutes, 2),
	}
	st.AvgDistance = average(st.DistanceMiles, st.Count)

	total := peloton.DistanceMiles + st.DistanceMiles
	peloton.ContributionPct = share(peloton.DistanceMiles, total)
	st.ContributionPct = share(st.DistanceMiles, total)

	s := Summary{
		Peloton:       peloton,
		Strava:        st,
		TotalWorkouts: peloton.Count + st.Count,
		TotalMiles:    parse.Round(total, 2),
		TotalCalories: peloton.Calories + st.Calories,
		TotalMinutes:  parse.Round(peloton.DurationMinutes+st.DurationMinutes, 2),
		Sources:       []ride.Source{},
	}
	for _, p := range []PlatformSummary{peloton, st} {
		if p.Count > 0 || p.DistanceMiles > 0 {
			s.Sources = append(s.Sources, p.Source)
		}
	}
	return s
}

// Display renders s for a status display. TotalMiles stays machine
// readable; the message uses grouped digits.
func Display(s Summary, now time.Time) DisplayOutput {
	out := DisplayOutput{
		TotalMiles:     fmt.Sprintf("%.2f", s.TotalMiles),
		LastUpdated:    now.Format(time.RFC3339),
		SourceCount:    len(s.Sources),
		DisplayMessage: NoDataMessage,
	}
	if len(s.Sources) == 0 {
		return out
	}

	names := make([]string, len(s.Sources))
	for i, src := range s.Sources {
		names[i] = string(src)
	}
	p := message.NewPrinter(language.English)
	out.DisplayMessage = p.Sprintf("%.2f miles from %s", s.TotalMiles, strings.Join(names, ", "))
	return out
}

func average(total float64, count int) float64 {
	if count <= 0 {
		return 0
	}
	return parse.Round(total/float64(count), 2)
}

func share(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return parse.Round(part/total*100, 2)
}
