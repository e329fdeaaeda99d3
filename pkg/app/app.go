// Package app builds the platform clients from configuration. Each platform
// is set up independently so one bad credential set does not take down the
// other.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xokvictor/miles-mcp/pkg/auth"
	"github.com/xokvictor/miles-mcp/pkg/collector"
	"github.com/xokvictor/miles-mcp/pkg/config"
	"github.com/xokvictor/miles-mcp/pkg/logging"
	"github.com/xokvictor/miles-mcp/pkg/peloton"
	"github.com/xokvictor/miles-mcp/pkg/ride"
	"github.com/xokvictor/miles-mcp/pkg/strava"
)

// App holds the clients for one process. Peloton, Strava and Tokens are nil
// when their setup failed; the reason is in SetupErrors.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Peloton     *peloton.Client
	Strava      *strava.Client
	Tokens      *auth.TokenManager
	Store       *auth.FileStore
	SetupErrors map[ride.Source]error
}

// New builds every client cfg allows.
func New(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Config:      cfg,
		Logger:      logger,
		SetupErrors: map[ride.Source]error{},
	}

	pc, err := peloton.NewClient(peloton.Config{
		UserID:     cfg.PelotonUserID,
		SessionID:  cfg.PelotonSessionID,
		Location:   cfg.Location,
		BaseURL:    cfg.PelotonAPIBase,
		ExportPath: cfg.PelotonAPIPath,
		Platform:   cfg.PelotonPlatform,
		Timeout:    cfg.APITimeout,
		Logger:     logging.Component(logger, "peloton"),
	})
	if err != nil {
		a.fail(ride.SourcePeloton, err)
	} else {
		a.Peloton = pc
	}

	store, err := auth.NewFileStore(cfg.StravaTokenFile)
	if err != nil {
		logger.Warn("strava token file unavailable", slog.Any("error", err))
	} else {
		a.Store = store
	}

	tm, err := auth.NewTokenManager(auth.Config{
		ClientID:     cfg.StravaClientID,
		ClientSecret: cfg.StravaClientSecret,
		RefreshToken: cfg.StravaRefreshToken,
		TokenURL:     cfg.StravaTokenURL,
		Store:        a.Store,
		Timeout:      cfg.APITimeout,
		Logger:       logging.Component(logger, "auth"),
	})
	if err != nil {
		a.fail(ride.SourceStrava, err)
		return a
	}
	a.Tokens = tm

	sc, err := strava.NewClient(strava.Config{
		AthleteID:   cfg.StravaAthleteID,
		BaseURL:     cfg.StravaAPIBase,
		Timeout:     cfg.APITimeout,
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   cfg.RetryBaseDelay,
		Logger:      logging.Component(logger, "strava"),
	}, tm)
	if err != nil {
		a.fail(ride.SourceStrava, err)
		return a
	}
	a.Strava = sc
	return a
}

func (a *App) fail(src ride.Source, err error) {
	a.Logger.Warn("platform not configured", slog.String("source", string(src)), slog.Any("error", err))
	a.SetupErrors[src] = err
}

// Collector returns a collector over the clients that were set up.
func (a *App) Collector() *collector.Collector {
	var (
		workouts collector.WorkoutSource
		stats    collector.StatsSource
	)
	if a.Peloton != nil {
		workouts = a.Peloton
	}
	if a.Strava != nil {
		stats = a.Strava
	}
	return collector.New(workouts, stats, logging.Component(a.Logger, "collector"))
}

// Location is the configured timezone, UTC if unset.
func (a *App) Location() *time.Location {
	if a.Config == nil || a.Config.Location == nil {
		return time.UTC
	}
	return a.Config.Location
}

// ParseRange resolves optional YYYY-MM-DD bounds in loc. An empty start is
// January 1 of the current year; an empty end is now. A date-only end covers
// the whole day.
func ParseRange(start, end string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)

	from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc)
	to := now

	if s := strings.TrimSpace(start); s != "" {
		t, err := parseBound(s, loc, false)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: start %q: %w", ride.ErrConfiguration, s, err)
		}
		from = t
	}
	if s := strings.TrimSpace(end); s != "" {
		t, err := parseBound(s, loc, true)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: end %q: %w", ride.ErrConfiguration, s, err)
		}
		to = t
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end %s is before start %s", ride.ErrConfiguration,
			to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	return from, to, nil
}

func parseBound(s string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, errors.New("expected YYYY-MM-DD or RFC 3339")
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}
