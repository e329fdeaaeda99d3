package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/xokvictor/miles-mcp/pkg/aggregate"
	"github.com/xokvictor/miles-mcp/pkg/app"
	"github.com/xokvictor/miles-mcp/pkg/collector"
	"github.com/xokvictor/miles-mcp/pkg/export"
	"github.com/xokvictor/miles-mcp/pkg/ride"
)

func newSummaryCmd(root *rootOptions) *cobra.Command {
	var (
		start, end string
		doExport   bool
		output     string
		force      bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show combined cycling miles for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd, true)
			if err != nil {
				return err
			}
			from, to, err := app.ParseRange(start, end, time.Now(), a.Location())
			if err != nil {
				return err
			}

			if force && a.Tokens != nil {
				if _, err := a.Tokens.ForceRefresh(cmd.Context()); err != nil {
					a.Logger.Warn("forced strava token refresh failed", "error", err)
				}
			}

			res, err := a.Collector().Collect(cmd.Context(), from, to)
			if res != nil {
				if asJSON {
					if werr := writeSummaryJSON(cmd.OutOrStdout(), res); werr != nil {
						return werr
					}
				} else {
					writeSummary(cmd.OutOrStdout(), res, time.Now().In(a.Location()))
				}
			}
			if err != nil {
				return err
			}

			if doExport {
				path := output
				if path == "" {
					path = a.Config.OutputFile
				}
				if err := export.WriteCSV(path, res.Workouts); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nExported %d workouts to %s\n", len(res.Workouts), path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD (default: January 1)")
	cmd.Flags().StringVar(&end, "end", "", "end date YYYY-MM-DD, inclusive (default: now)")
	cmd.Flags().BoolVar(&doExport, "export", false, "also write Peloton workouts to CSV")
	cmd.Flags().StringVar(&output, "output", "", "CSV path for --export (default: OUTPUT_FILE)")
	cmd.Flags().BoolVar(&force, "force", false, "refresh the Strava access token before fetching")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func writeSummary(w io.Writer, res *collector.Result, now time.Time) {
	s := res.Summary
	display := aggregate.Display(s, now)
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "%s\n", display.DisplayMessage)
	p.Fprintf(w, "Updated %s (run %s)\n\n", display.LastUpdated, res.RunID)

	for _, ps := range []aggregate.PlatformSummary{s.Peloton, s.Strava} {
		p.Fprintf(w, "%-8s %5d rides %10.2f mi %6.2f%%  avg %.2f mi  %d kcal  %.0f min\n",
			ps.Source, ps.Count, ps.DistanceMiles, ps.ContributionPct, ps.AvgDistance, ps.Calories, ps.DurationMinutes)
	}
	p.Fprintf(w, "%-8s %5d rides %10.2f mi\n", "total", s.TotalWorkouts, s.TotalMiles)

	for _, src := range []ride.Source{ride.SourcePeloton, ride.SourceStrava} {
		if err := res.Err(src); err != nil {
			fmt.Fprintf(w, "\nwarning: %s unavailable: %v\n", src, err)
		}
	}
}

func writeSummaryJSON(w io.Writer, res *collector.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
