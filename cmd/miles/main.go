package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xokvictor/miles-mcp/pkg/app"
	"github.com/xokvictor/miles-mcp/pkg/config"
	"github.com/xokvictor/miles-mcp/pkg/logging"
)

const serviceName = "miles"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	envFile  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "miles",
		Short: "miles totals your cycling distance across Peloton and Strava",
		Long: `miles is a CLI that:
1. Reads Peloton cycling workouts through the CSV export or the workout listing
2. Reads Strava year-to-date ride totals
3. Combines both into a single summary with each platform's share
4. Exports Peloton workouts to CSV`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", config.DefaultEnvFile, "dotenv file with credentials")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		newSummaryCmd(opts),
		newExportCmd(opts),
		newVerifyCmd(opts),
		newStatsCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// load reads configuration and builds the clients. With strict set, any
// missing credential aborts the command.
func (o *rootOptions) load(cmd *cobra.Command, strict bool) (*app.App, error) {
	var (
		cfg *config.Config
		err error
	)
	if strict {
		cfg, err = config.Load(o.envFile)
	} else {
		cfg, err = config.Read(o.envFile)
	}
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger := logging.New(cmd.ErrOrStderr(), level, serviceName)
	return app.New(cfg, logger), nil
}
