package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var cfgFile string
	root := &cobra.Command{
		Use:   "goalsync",
		Short: "Incremental Postgres to DuckDB sync and goal analytics",
		Long: `goalsync copies changed rows from the goal-tracking database into a DuckDB
warehouse using per-table watermarks, then computes adherence, streak and risk
metrics per user. Runs are scheduled through Temporal.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./config.yaml)")

	root.AddCommand(
		newServeCmd(&cfgFile),
		newSyncCmd(&cfgFile),
		newComputeCmd(&cfgFile),
		newMigrateCmd(&cfgFile),
		newSchedulesCmd(&cfgFile),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
