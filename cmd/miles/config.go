package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the configuration with credentials masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd, false)
			if err != nil {
				return err
			}

			summary := a.Config.Summary()
			keys := make([]string, 0, len(summary))
			for k := range summary {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			out := cmd.OutOrStdout()
			for _, k := range keys {
				fmt.Fprintf(out, "%-22s %s\n", k, summary[k])
			}
			if err := a.Config.Validate(); err != nil {
				fmt.Fprintf(out, "\nwarning: %v\n", err)
			}
			return nil
		},
	}
}
