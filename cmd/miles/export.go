package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xokvictor/miles-mcp/pkg/app"
	"github.com/xokvictor/miles-mcp/pkg/export"
	"github.com/xokvictor/miles-mcp/pkg/ride"
)

func newExportCmd(root *rootOptions) *cobra.Command {
	var start, end, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write Peloton cycling workouts to CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd, false)
			if err != nil {
				return err
			}
			if a.Peloton == nil {
				return a.SetupErrors[ride.SourcePeloton]
			}
			from, to, err := app.ParseRange(start, end, time.Now(), a.Location())
			if err != nil {
				return err
			}

			workouts, err := a.Peloton.GetCyclingWorkouts(cmd.Context(), from, to)
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				path = a.Config.OutputFile
			}
			if err := export.WriteCSV(path, workouts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d workouts to %s (%.2f mi this year)\n",
				len(workouts), path, a.Peloton.SummarizeCurrentYearDistance(workouts))
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD (default: January 1)")
	cmd.Flags().StringVar(&end, "end", "", "end date YYYY-MM-DD, inclusive (default: now)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "CSV path (default: OUTPUT_FILE)")
	return cmd
}
