package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/xokvictor/miles-mcp/pkg/ride"
)

var errNoStrava = errors.New("strava is not configured")

func newStatsCmd(root *rootOptions) *cobra.Command {
	var dump bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show Strava athlete statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd, false)
			if err != nil {
				return err
			}
			if a.Strava == nil {
				return fmt.Errorf("%w: %w", errNoStrava, a.SetupErrors[ride.SourceStrava])
			}

			stats, err := a.Strava.GetAthleteStats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dump {
				spew.Fdump(out, stats)
				return nil
			}

			data, err := json.MarshalIndent(map[string]ride.Totals{
				"recent_ride": stats.RecentRideTotals.Totals(),
				"ytd_ride":    stats.YTDRideTotals.Totals(),
				"all_ride":    stats.AllRideTotals.Totals(),
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dump, "dump", false, "print the decoded API response in full")
	return cmd
}
