package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/internal/iocache"
	"github.com/huangsam/xray/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errRunsDisabled = errors.New("run tracking is disabled; set runs-backend to sqlite, mysql or postgresql")

// runStore returns the configured run store or errRunsDisabled.
func runStore() (contract.RunStore, error) {
	store := cacheManager.GetRunStore()
	if store == nil {
		return nil, errRunsDisabled
	}
	return store, nil
}

// runsCmd manages the run history.
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage historical run tracking and exports",
	Long: `Manage the history of analysis runs used for trend tracking and reporting.

When runs-backend is set, every job records:
- Run metadata (repository, window, start and end time, outcome)
- A snapshot of every module (bus factor, risk level, top owner)

Supported backends: SQLite, MySQL, PostgreSQL, or None (disabled)

Subcommands:
  status  - Show run tracking statistics
  export  - Export data to Parquet for analytics
  migrate - Run database schema migrations
  clear   - Remove all run data

Examples:
  # Check tracking status
  XRAY_RUNS_BACKEND=sqlite xray runs status

  # Export for analysis in pandas/DuckDB
  xray runs export --runs-backend sqlite --output-file runs.parquet`,
}

// runsStatusCmd shows run store status.
var runsStatusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Display run tracking statistics and connection details",
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		store, err := runStore()
		if err != nil {
			return err
		}
		status, err := store.GetStatus()
		if err != nil {
			return fmt.Errorf("failed to get run status: %w", err)
		}
		iocache.PrintRunStatus(os.Stdout, status)
		return nil
	},
}

// runsExportCmd exports the run history to Parquet.
var runsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export historical data to Parquet for BI tools and analytics",
	Long: `Export all stored runs to Parquet format for use with analytics tools.

Exports two datasets next to --output-file:
- Runs - metadata about each analysis job
- Module snapshots - bus factor and risk per module per run

Requires: --output-file parameter`,
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		store, err := runStore()
		if err != nil {
			return err
		}
		return iocache.ExecuteRunsExport(os.Stdout, store, cfg.OutputFile)
	},
}

// runsMigrateCmd applies the run store schema migrations.
var runsMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations for run tracking",
	Long: `Apply or roll back the run store schema migrations.

Examples:
  # Migrate to the latest version
  xray runs migrate --runs-backend sqlite

  # Roll back everything
  xray runs migrate --runs-backend sqlite --target-version 0`,
	PreRunE: configSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		if cfg.RunsBackend == "" || cfg.RunsBackend == schema.NoneBackend {
			return errRunsDisabled
		}
		result, err := iocache.MigrateRuns(cfg.RunsBackend, cfg.RunsDBConnect, viper.GetInt("target-version"))
		if err != nil {
			return err
		}
		if !result.Changed {
			fmt.Printf("Run store already at version %d.\n", result.ToVersion)
			return nil
		}
		fmt.Printf("Migrated run store from version %d to %d.\n", result.FromVersion, result.ToVersion)
		return nil
	},
}

// runsClearCmd removes the run history.
var runsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all historical run data",
	Long: `Delete all stored runs and module snapshots.

WARNING: This action cannot be undone. Consider exporting data first.

Examples:
  xray runs export --output-file backup.parquet
  xray runs clear`,
	PreRunE: configSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := iocache.ClearRuns(cfg.RunsBackend, sqlitePath(cfg.RunsDBConnect, contract.GetRunsDBFilePath()), cfg.RunsDBConnect); err != nil {
			contract.LogFatal("Failed to clear run data", err)
		}
		fmt.Println("Run data cleared successfully.")
	},
}
