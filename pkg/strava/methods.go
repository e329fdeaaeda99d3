package strava

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xokvictor/miles-mcp/pkg/ride"
)

// GetAthleteStats retrieves the recent, year-to-date and all-time totals
// for the configured athlete.
func (c *Client) GetAthleteStats(ctx context.Context) (*AthleteStats, error) {
	var result AthleteStats
	if err := c.get(ctx, fmt.Sprintf("/athletes/%s/stats", c.athleteID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetYTDRideTotals returns the athlete's year-to-date riding totals.
func (c *Client) GetYTDRideTotals(ctx context.Context) (ride.Totals, error) {
	stats, err := c.GetAthleteStats(ctx)
	if err != nil {
		return ride.Totals{}, err
	}

	totals := stats.YTDRideTotals.Totals()
	c.logger.Info("retrieved strava year-to-date ride totals",
		slog.Int("rides", totals.Count),
		slog.Float64("miles", totals.DistanceMiles),
	)
	return totals, nil
}
