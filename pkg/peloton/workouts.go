package peloton

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xokvictor/miles-mcp/pkg/parse"
	"github.com/xokvictor/miles-mcp/pkg/ride"
)

// GetCyclingWorkouts returns the cycling workouts that occurred within
// [start, end], with OccurredAt in the client's location. An empty slice
// means nothing matched; an error means neither the CSV export nor the JSON
// listing could be read.
func (c *Client) GetCyclingWorkouts(ctx context.Context, start, end time.Time) ([]ride.Workout, error) {
	workouts, csvErr := c.fetchCSV(ctx)
	if csvErr != nil {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ride.ErrNetwork, err)
		}
		c.logger.Warn("peloton csv export failed, falling back to workout listing", slog.Any("error", csvErr))

		var jsonErr error
		workouts, jsonErr = c.fetchJSON(ctx, start)
		if jsonErr != nil {
			return nil, fmt.Errorf("%w: csv export: %w; workout listing: %w", ride.ErrNetwork, csvErr, jsonErr)
		}
		c.logger.Info("retrieved peloton workouts via listing", slog.Int("count", len(workouts)))
	} else {
		c.logger.Info("retrieved peloton workouts via csv export", slog.Int("count", len(workouts)))
	}

	cycling := c.filterCycling(workouts, start, end)
	c.logger.Debug("filtered peloton cycling workouts",
		slog.Int("total", len(workouts)),
		slog.Int("cycling", len(cycling)),
	)
	return cycling, nil
}

// SummarizeCurrentYearDistance sums this calendar year's miles in the
// client's location, rounded to two places.
func (c *Client) SummarizeCurrentYearDistance(workouts []ride.Workout) float64 {
	return ride.CurrentYearDistance(workouts, c.now().In(c.loc))
}

func (c *Client) fetchCSV(ctx context.Context) ([]ride.Workout, error) {
	resp, err := c.doRequest(ctx, c.exportURL())
	if err != nil {
		return nil, err
	}
	if !isCSV(resp.contentType, resp.body) {
		return nil, fmt.Errorf("%w: export returned %q instead of csv", ride.ErrUnparsable, resp.contentType)
	}
	return c.parseCSV(resp.body)
}

// filterCycling keeps rides with a known timestamp inside [start, end] and a
// positive distance, converted to the client's location.
func (c *Client) filterCycling(workouts []ride.Workout, start, end time.Time) []ride.Workout {
	out := make([]ride.Workout, 0, len(workouts))
	for _, w := range workouts {
		if !ride.IsCycling(w.ActivityType) {
			continue
		}
		if parse.IsUnknown(w.OccurredAt) {
			c.logger.Debug("skipping workout with unknown timestamp", slog.String("id", w.ID))
			continue
		}
		if w.OccurredAt.Before(start) || w.OccurredAt.After(end) {
			continue
		}
		if w.DistanceMiles <= 0 {
			continue
		}
		w.OccurredAt = w.OccurredAt.In(c.loc)
		out = append(out, w)
	}
	return out
}
