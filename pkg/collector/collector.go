// Package collector fetches from both platforms concurrently and combines
// whatever succeeded into a summary.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/xokvictor/miles-mcp/pkg/aggregate"
	"github.com/xokvictor/miles-mcp/pkg/ride"
)

// ErrAllSourcesFailed is returned when no configured source produced data.
var ErrAllSourcesFailed = errors.New("all sources failed")

// WorkoutSource lists cycling workouts in a date range.
type WorkoutSource interface {
	GetCyclingWorkouts(ctx context.Context, start, end time.Time) ([]ride.Workout, error)
}

// StatsSource reports year-to-date ride totals.
type StatsSource interface {
	GetYTDRideTotals(ctx context.Context) (ride.Totals, error)
}

// Result is the outcome of one collection run.
type Result struct {
	RunID     string                `json:"run_id"`
	Workouts  []ride.Workout        `json:"workouts"`
	Totals    ride.Totals           `json:"strava_totals"`
	Summary   aggregate.Summary     `json:"summary"`
	Succeeded []ride.Source         `json:"succeeded"`
	Failed    []ride.Source         `json:"failed"`
	Errors    map[ride.Source]error `json:"-"`
}

// Err returns the error recorded for src, if any.
func (r *Result) Err(src ride.Source) error {
	return r.Errors[src]
}

// Collector runs both fetches. Either source may be nil, in which case it is
// skipped rather than counted as failed.
type Collector struct {
	workouts WorkoutSource
	stats    StatsSource
	logger   *slog.Logger
}

// New creates a Collector.
func New(workouts WorkoutSource, stats StatsSource, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{workouts: workouts, stats: stats, logger: logger}
}

// Collect fetches Peloton workouts in [start, end] and Strava year-to-date
// totals at the same time. A failing source does not cancel the other; the
// run only fails when every configured source failed.
func (c *Collector) Collect(ctx context.Context, start, end time.Time) (*Result, error) {
	runID := uuid.NewString()
	logger := c.logger.With(slog.String("run_id", runID))

	var (
		workouts   []ride.Workout
		totals     ride.Totals
		workoutErr error
		statsErr   error
	)

	p := pool.New().WithContext(ctx)
	if c.workouts != nil {
		p.Go(func(ctx context.Context) error {
			workouts, workoutErr = c.workouts.GetCyclingWorkouts(ctx, start, end)
			return nil
		})
	}
	if c.stats != nil {
		p.Go(func(ctx context.Context) error {
			totals, statsErr = c.stats.GetYTDRideTotals(ctx)
			return nil
		})
	}
	_ = p.Wait()

	res := &Result{
		RunID:     runID,
		Workouts:  []ride.Workout{},
		Succeeded: []ride.Source{},
		Failed:    []ride.Source{},
		Errors:    map[ride.Source]error{},
	}

	configured := 0
	record := func(src ride.Source, err error) {
		configured++
		if err != nil {
			logger.Warn("source failed", slog.String("source", string(src)), slog.Any("error", err))
			res.Failed = append(res.Failed, src)
			res.Errors[src] = err
			return
		}
		res.Succeeded = append(res.Succeeded, src)
	}

	if c.workouts != nil {
		record(ride.SourcePeloton, workoutErr)
		if workoutErr == nil && workouts != nil {
			res.Workouts = workouts
		}
	}
	if c.stats != nil {
		record(ride.SourceStrava, statsErr)
		if statsErr == nil {
			res.Totals = totals
		}
	}

	res.Summary = aggregate.Summarize(res.Workouts, res.Totals)

	if configured == 0 {
		return nil, fmt.Errorf("%w: no sources configured", ride.ErrConfiguration)
	}
	if len(res.Succeeded) == 0 {
		return res, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(workoutErr, statsErr))
	}

	logger.Info("collection complete",
		slog.Int("workouts", len(res.Workouts)),
		slog.Float64("total_miles", res.Summary.TotalMiles),
		slog.Int("failed_sources", len(res.Failed)),
	)
	return res, nil
}
