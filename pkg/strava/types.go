package strava

import (
	"github.com/xokvictor/miles-mcp/pkg/parse"
	"github.com/xokvictor/miles-mcp/pkg/ride"
)

const feetPerMeter = 3.28084

// ActivityTotal is one rollup from the athlete stats endpoint. Distances and
// elevation are meters, times are seconds.
type ActivityTotal struct {
	Count            parse.Number `json:"count"`
	Distance         parse.Number `json:"distance"`
	MovingTime       parse.Number `json:"moving_time"`
	ElapsedTime      parse.Number `json:"elapsed_time"`
	ElevationGain    parse.Number `json:"elevation_gain"`
	AchievementCount parse.Number `json:"achievement_count,omitempty"`
}

// AthleteStats is the response of GET /athletes/{id}/stats.
type AthleteStats struct {
	BiggestRideDistance       parse.Number  `json:"biggest_ride_distance"`
	BiggestClimbElevationGain parse.Number  `json:"biggest_climb_elevation_gain"`
	RecentRideTotals          ActivityTotal `json:"recent_ride_totals"`
	RecentRunTotals           ActivityTotal `json:"recent_run_totals"`
	RecentSwimTotals          ActivityTotal `json:"recent_swim_totals"`
	YTDRideTotals             ActivityTotal `json:"ytd_ride_totals"`
	YTDRunTotals              ActivityTotal `json:"ytd_run_totals"`
	YTDSwimTotals             ActivityTotal `json:"ytd_swim_totals"`
	AllRideTotals             ActivityTotal `json:"all_ride_totals"`
	AllRunTotals              ActivityTotal `json:"all_run_totals"`
	AllSwimTotals             ActivityTotal `json:"all_swim_totals"`
}

// Totals converts the rollup to miles, minutes and feet. Negative values
// are treated as zero.
func (t ActivityTotal) Totals() ride.Totals {
	return ride.Totals{
		Count:             int(nonNegative(t.Count.Float64())),
		DistanceMiles:     parse.Round(nonNegative(t.Distance.Float64())*parse.MetersToMiles, 2),
		MovingMinutes:     parse.Round(nonNegative(t.MovingTime.Float64())/60, 2),
		ElapsedMinutes:    parse.Round(nonNegative(t.ElapsedTime.Float64())/60, 2),
		ElevationGainFeet: parse.Round(nonNegative(t.ElevationGain.Float64())*feetPerMeter, 1),
	}
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
