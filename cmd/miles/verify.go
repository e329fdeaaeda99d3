package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xokvictor/miles-mcp/pkg/ride"
)

func newVerifyCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that both platforms accept the configured credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd, false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			var failed []string

			fmt.Fprintln(out, "Verifying Peloton session...")
			switch {
			case a.Peloton == nil:
				fmt.Fprintf(out, "  not configured: %v\n", a.SetupErrors[ride.SourcePeloton])
				failed = append(failed, "peloton")
			case a.Peloton.Authenticate(ctx):
				fmt.Fprintln(out, "  ok")
			default:
				fmt.Fprintln(out, "  session rejected or unreachable")
				fmt.Fprintln(out, "  Possible reasons:")
				fmt.Fprintln(out, "  - PELOTON_SESSION_ID expired (log in again and copy the peloton_session_id cookie)")
				fmt.Fprintln(out, "  - PELOTON_USER_ID does not match the session")
				fmt.Fprintln(out, "  - Network issues")
				failed = append(failed, "peloton")
			}

			fmt.Fprintln(out, "\nVerifying Strava token...")
			switch {
			case a.Strava == nil:
				fmt.Fprintf(out, "  not configured: %v\n", a.SetupErrors[ride.SourceStrava])
				failed = append(failed, "strava")
			case a.Strava.Authenticate(ctx):
				fmt.Fprintln(out, "  ok")
				if totals, err := a.Strava.GetYTDRideTotals(ctx); err != nil {
					fmt.Fprintf(out, "  token works but stats failed: %v\n", err)
				} else {
					fmt.Fprintf(out, "  year to date: %d rides, %.2f mi\n", totals.Count, totals.DistanceMiles)
				}
			default:
				fmt.Fprintln(out, "  refresh failed")
				fmt.Fprintln(out, "  Possible reasons:")
				fmt.Fprintln(out, "  - STRAVA_REFRESH_TOKEN revoked (run the auth command again)")
				fmt.Fprintln(out, "  - Wrong STRAVA_CLIENT_ID or STRAVA_CLIENT_SECRET")
				fmt.Fprintln(out, "  - Network issues")
				failed = append(failed, "strava")
			}

			if len(failed) > 0 {
				return fmt.Errorf("%w: verification failed for %v", ride.ErrAuthentication, failed)
			}
			fmt.Fprintln(out, "\nAll verifications complete!")
			return nil
		},
	}
}
