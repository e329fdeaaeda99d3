package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/xokvictor/miles-mcp/pkg/aggregate"
	"github.com/xokvictor/miles-mcp/pkg/app"
	"github.com/xokvictor/miles-mcp/pkg/auth"
	"github.com/xokvictor/miles-mcp/pkg/collector"
	"github.com/xokvictor/miles-mcp/pkg/config"
	"github.com/xokvictor/miles-mcp/pkg/export"
	"github.com/xokvictor/miles-mcp/pkg/logging"
	"github.com/xokvictor/miles-mcp/pkg/ride"
	"github.com/xokvictor/miles-mcp/pkg/strava"
)

const (
	serverName    = "miles-mcp"
	serverVersion = "0.1.0"
)

func main() {
	// Logs go to stderr; stdout carries the STDIO protocol.
	cfg, err := config.Read(config.DefaultEnvFile)
	if err != nil {
		logging.New(os.Stderr, config.DefaultLogLevel, serverName).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, serverName)

	if err := cfg.Validate(); err != nil {
		logger.Warn("configuration incomplete, some tools will be unavailable", "error", err)
	}

	a := app.New(cfg, logger)

	s := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(false),
	)

	registerTools(s, a)
	registerAuthTools(s, a)
	registerResources(s)

	logger.Info("starting server", "version", serverVersion)
	if err := server.ServeStdio(s); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func registerResources(s *server.MCPServer) {
	oauthResource := mcp.NewResource(
		"oauth://config",
		"Strava OAuth Configuration",
		mcp.WithResourceDescription("OAuth 2.0 configuration for Strava API authentication. Use this to understand required scopes and endpoints."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(oauthResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]interface{}, error) {
		cfg := map[string]interface{}{
			"authorization_url": auth.AuthURL,
			"token_url":         auth.TokenURL,
			"api_base":          strava.BaseURL,
			"scopes": map[string]string{
				"read":              "Read public profile data and segments",
				"activity:read_all": "Read all activities including private ones (needed for year-to-date stats)",
			},
			"peloton": "Peloton uses a browser session cookie (PELOTON_SESSION_ID), not OAuth.",
		}
		data, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal config: %w", err)
		}
		return []interface{}{
			mcp.TextResourceContents{
				ResourceContents: mcp.ResourceContents{
					URI:      request.Params.URI,
					MIMEType: "application/json",
				},
				Text: string(data),
			},
		}, nil
	})
}

func registerTools(s *server.MCPServer, a *app.App) {
	s.AddTool(
		mcp.NewTool("get_cycling_summary",
			mcp.WithDescription("Combine Peloton cycling workouts and Strava year-to-date ride totals into one summary: total miles, workouts, calories, minutes and each platform's share of the distance. A platform that fails is reported in 'errors' while the other still contributes."),
			mcp.WithString("start",
				mcp.Description("Start date (YYYY-MM-DD or ISO 8601). Defaults to January 1 of the current year in the configured timezone."),
			),
			mcp.WithString("end",
				mcp.Description("End date (YYYY-MM-DD or ISO 8601), inclusive. Defaults to now."),
			),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			start, end, err := requestRange(a, request)
			if err != nil {
				return mcp.NewToolResultError(formatError(err)), nil
			}
			res, err := a.Collector().Collect(ctx, start, end)
			if err != nil && res == nil {
				return mcp.NewToolResultError(formatError(err)), nil
			}
			return resultFromJSON(summaryResponse(res, time.Now()))
		},
	)

	s.AddTool(
		mcp.NewTool("get_peloton_workouts",
			mcp.WithDescription("List Peloton cycling workouts in a date range, normalized to miles and minutes in the configured timezone. Uses the CSV export and falls back to the paginated workout listing."),
			mcp.WithString("start",
				mcp.Description("Start date (YYYY-MM-DD or ISO 8601). Defaults to January 1 of the current year in the configured timezone."),
			),
			mcp.WithString("end",
				mcp.Description("End date (YYYY-MM-DD or ISO 8601), inclusive. Defaults to now."),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of workouts to return, newest first (default: all)."),
			),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if a.Peloton == nil {
				return mcp.NewToolResultError(formatError(a.SetupErrors[ride.SourcePeloton])), nil
			}
			start, end, err := requestRange(a, request)
			if err != nil {
				return mcp.NewToolResultError(formatError(err)), nil
			}
			workouts, err := a.Peloton.GetCyclingWorkouts(ctx, start, end)
			if err != nil {
				return mcp.NewToolResultError(formatError(err)), nil
			}
			workouts = newestFirst(workouts, getIntArg(request.Params.Arguments, "limit", 0))
			return resultFromJSON(map[string]interface{}{
				"count":       len(workouts),
				"total_miles": aggregate.Summarize(workouts, ride.Totals{}).Peloton.DistanceMiles,
				"workouts":    workouts,
				"timezone":    a.Location().String(),
				"range_start": start.Format(time.RFC3339),
				"range_end":   end.Format(time.RFC3339),
			})
		},
	)

	s.AddTool(
		mcp.NewTool("get_strava_stats",
			mcp.WithDescription("Get the athlete's Strava statistics: recent, year-to-date and all-time ride, run and swim totals, plus year-to-date riding converted to miles, minutes and feet."),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if a.Strava == nil {
				return mcp.NewToolResultError(formatError(a.SetupErrors[ride.SourceStrava])), nil
			}
			stats, err := a.Strava.GetAthleteStats(ctx)
			if err != nil {
				return mcp.NewToolResultError(formatError(err)), nil
			}
			return resultFromJSON(map[string]interface{}{
				"ytd_ride":      stats.YTDRideTotals.Totals(),
				"recent_ride":   stats.RecentRideTotals.Totals(),
				"all_time_ride": stats.AllRideTotals.Totals(),
				"raw":           stats,
			})
		},
	)

	s.AddTool(
		mcp.NewTool("export_workouts_csv",
			mcp.WithDescription("Write Peloton cycling workouts in a date range to a CSV file. The file is replaced atomically; an empty range still writes the header row."),
			mcp.WithString("start",
				mcp.Description("Start date (YYYY-MM-DD or ISO 8601). Defaults to January 1 of the current year in the configured timezone."),
			),
			mcp.WithString("end",
				mcp.Description("End date (YYYY-MM-DD or ISO 8601), inclusive. Defaults to now."),
			),
			mcp.WithString("output",
				mcp.Description("Output file path. Defaults to OUTPUT_FILE (activities.csv)."),
			),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if a.Peloton == nil {
				return mcp.NewToolResultError(formatError(a.SetupErrors[ride.SourcePeloton])), nil
			}
			start, end, err := requestRange(a, request)
			if err != nil {
				return mcp.NewToolResultError(formatError(err)), nil
			}
			output := getStringArg(request.Params.Arguments, "output")
			if output == "" {
				output = a.Config.OutputFile
			}
			workouts, err := a.Peloton.GetCyclingWorkouts(ctx, start, end)
			if err != nil {
				return mcp.NewToolResultError(formatError(err)), nil
			}
			if err := export.WriteCSV(output, workouts); err != nil {
				return mcp.NewToolResultError(formatError(err)), nil
			}
			return resultFromJSON(map[string]interface{}{
				"success":  true,
				"path":     output,
				"workouts": len(workouts),
			})
		},
	)

	s.AddTool(
		mcp.NewTool("get_config_summary",
			mcp.WithDescription("Show the current configuration with credentials masked, and whether each platform client could be set up."),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return resultFromJSON(configResponse(a))
		},
	)
}

func registerAuthTools(s *server.MCPServer, a *app.App) {
	s.AddTool(
		mcp.NewTool("strava_auth_status",
			mcp.WithDescription("Check the current Strava authentication status. Returns whether an access token is held, its expiry, and the token file location."),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			status := map[string]interface{}{
				"authenticated": false,
			}

			if a.Tokens == nil {
				status["error"] = formatError(a.SetupErrors[ride.SourceStrava])
				if a.Store != nil {
					status["token_path"] = a.Store.Path()
				}
				status["message"] = "Set STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET, then use strava_authorize to obtain a refresh token."
				return resultFromJSON(status)
			}

			ts := a.Tokens.Status()
			status["authenticated"] = ts.HasAccessToken && !ts.Expired
			status["token"] = ts
			if ts.ExpiresAt != nil {
				if d := time.Until(*ts.ExpiresAt); d > 0 {
					status["expires_in"] = formatDuration(d)
				}
			}
			if !ts.HasAccessToken {
				status["message"] = "No access token yet. One will be obtained from the refresh token on the next API call."
			} else if ts.Expired {
				status["message"] = "Token expired. Will attempt auto-refresh on next API call."
			}
			return resultFromJSON(status)
		},
	)

	s.AddTool(
		mcp.NewTool("strava_authorize",
			mcp.WithDescription("Start the Strava OAuth authorization flow. Opens a browser for authentication and saves the token for future use. Requires STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET."),
			mcp.WithString("scopes",
				mcp.Description("Comma separated Strava scopes (default: read,activity:read_all)."),
			),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			oauthCfg := auth.OAuthConfig{
				ClientID:     a.Config.StravaClientID,
				ClientSecret: a.Config.StravaClientSecret,
				TokenURL:     a.Config.StravaTokenURL,
				Scopes:       getStringArg(request.Params.Arguments, "scopes"),
				Store:        a.Store,
				Logger:       logging.Component(a.Logger, "auth"),
			}

			result, err := auth.StartAuthFlow(ctx, oauthCfg, a.Tokens)
			if err != nil {
				return resultFromJSON(map[string]interface{}{
					"success": false,
					"error":   formatError(err),
				})
			}
			// The refresh token is persisted in the token file; don't echo it.
			result.RefreshToken = ""
			return resultFromJSON(result)
		},
	)
}

// Helper functions

func requestRange(a *app.App, request mcp.CallToolRequest) (time.Time, time.Time, error) {
	args := request.Params.Arguments
	return app.ParseRange(getStringArg(args, "start"), getStringArg(args, "end"), time.Now(), a.Location())
}

func summaryResponse(res *collector.Result, now time.Time) map[string]interface{} {
	errs := map[string]string{}
	for src, err := range res.Errors {
		errs[string(src)] = formatError(err)
	}
	return map[string]interface{}{
		"run_id":  res.RunID,
		"display": aggregate.Display(res.Summary, now),
		"summary": res.Summary,
		"strava":  res.Totals,
		"errors":  errs,
	}
}

func configResponse(a *app.App) map[string]interface{} {
	platforms := map[string]interface{}{}
	for _, src := range []ride.Source{ride.SourcePeloton, ride.SourceStrava} {
		entry := map[string]interface{}{"ready": a.SetupErrors[src] == nil}
		if err := a.SetupErrors[src]; err != nil {
			entry["error"] = formatError(err)
		}
		platforms[string(src)] = entry
	}
	if a.Peloton != nil {
		platforms[string(ride.SourcePeloton)].(map[string]interface{})["client"] = a.Peloton.ConfigSummary()
	}
	if a.Strava != nil {
		platforms[string(ride.SourceStrava)].(map[string]interface{})["client"] = a.Strava.ConfigSummary()
	}
	return map[string]interface{}{
		"config":    a.Config.Summary(),
		"platforms": platforms,
	}
}

// newestFirst orders a copy of workouts by OccurredAt, most recent first, and
// keeps at most limit entries. A limit of 0 or less keeps everything.
func newestFirst(workouts []ride.Workout, limit int) []ride.Workout {
	out := make([]ride.Workout, len(workouts))
	copy(out, workouts)
	slices.SortStableFunc(out, func(a, b ride.Workout) int {
		return b.OccurredAt.Compare(a.OccurredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func getStringArg(args map[string]interface{}, key string) string {
	if args == nil {
		return ""
	}
	if val, ok := args[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getIntArg(args map[string]interface{}, key string, defaultVal int) int {
	if args == nil {
		return defaultVal
	}
	if val, ok := args[key]; ok {
		switch v := val.(type) {
		case float64:
			return int(v)
		case int:
			return v
		case int64:
			return int(v)
		}
	}
	return defaultVal
}

func formatError(err error) string {
	if err == nil {
		return "Error: platform not configured"
	}

	var rlErr *strava.RateLimitError
	if errors.As(err, &rlErr) {
		return fmt.Sprintf("Rate limited: Strava rejected %d attempts (limit %s, usage %s). Please wait and try again.",
			rlErr.Attempts, rlErr.Limit, rlErr.Usage)
	}

	var cfgErr *config.Error
	switch {
	case errors.As(err, &cfgErr):
		return fmt.Sprintf("Configuration error: %v", cfgErr)
	case errors.Is(err, collector.ErrAllSourcesFailed):
		return fmt.Sprintf("No data: every platform failed: %v", err)
	case errors.Is(err, ride.ErrConfiguration):
		return fmt.Sprintf("Configuration error: %v", err)
	case errors.Is(err, ride.ErrAuthentication):
		return fmt.Sprintf("Authentication failed: %v. Check PELOTON_SESSION_ID or re-run strava_authorize.", err)
	case errors.Is(err, ride.ErrRateLimited):
		return "Rate limited: Too many requests. Please wait a moment and try again."
	case errors.Is(err, ride.ErrUnparsable):
		return fmt.Sprintf("Unexpected response format: %v", err)
	case errors.Is(err, ride.ErrNetwork):
		return fmt.Sprintf("Network error: %v", err)
	}
	return fmt.Sprintf("Error: %v", err)
}

func resultFromJSON(data interface{}) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Serialization error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%.1f hours", d.Hours())
	}
	return fmt.Sprintf("%.1f days", d.Hours()/24)
}
