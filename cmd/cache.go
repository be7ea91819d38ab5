package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/internal/iocache"
	"github.com/huangsam/xray/internal/outwriter"
	"github.com/huangsam/xray/schema"
	"github.com/spf13/cobra"
)

// cacheCmd focused on stored analysis results.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage stored analysis results",
	Long: `Manage the durable analysis results, one per repository.

Every completed analysis is stored under its owner/repo identity and replaces
the previous one. The server serves them from /api/cached.

Supported backends: File (default), SQLite, MySQL, PostgreSQL, or None (in-memory)

Subcommands:
  list   - List stored analyses, most recent first
  show   - Print a stored analysis
  delete - Remove a stored analysis
  status - Show cache statistics and connection info
  clear  - Remove all stored analyses

Examples:
  # List stored analyses
  xray cache list

  # Show one as JSON
  xray cache show acme/billing --output json`,
}

// cacheListCmd lists stored analyses.
var cacheListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List stored analyses, most recent first",
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		list, err := cacheManager.GetResultCache().List()
		if err != nil {
			return fmt.Errorf("failed to list cached analyses: %w", err)
		}
		return outwriter.NewOutWriter().WriteCachedList(list, cfg)
	},
}

// cacheShowCmd prints one stored analysis.
var cacheShowCmd = &cobra.Command{
	Use:     "show <repo>",
	Short:   "Print the stored analysis of a repository",
	Args:    cobra.ExactArgs(1),
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, args []string) error {
		identity, err := schema.RepoIdentity(args[0])
		if err != nil {
			return err
		}
		entry, err := cacheManager.GetResultCache().Get(identity)
		if errors.Is(err, contract.ErrNotFound) {
			return fmt.Errorf("no cached analysis for %s", identity)
		}
		if err != nil {
			return err
		}
		if cfg.Output == schema.TextOut {
			fmt.Printf("Analyzed at %s\n", entry.AnalyzedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return outwriter.NewOutWriter().WriteResult(&entry.AnalysisResult, cfg, 0)
	},
}

// cacheDeleteCmd removes one stored analysis.
var cacheDeleteCmd = &cobra.Command{
	Use:     "delete <repo>",
	Short:   "Remove the stored analysis of a repository",
	Args:    cobra.ExactArgs(1),
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, args []string) error {
		identity, err := schema.RepoIdentity(args[0])
		if err != nil {
			return err
		}
		if err := cacheManager.GetResultCache().Delete(identity); err != nil {
			if errors.Is(err, contract.ErrNotFound) {
				return fmt.Errorf("no cached analysis for %s", identity)
			}
			return err
		}
		fmt.Printf("Deleted cached analysis for %s.\n", identity)
		return nil
	},
}

// cacheStatusCmd shows cache status.
var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display cache statistics and connection details",
	Long: `Show detailed information about the result cache.

Displays:
- Backend type and connection status
- Total number of stored analyses
- Last and oldest entry timestamps
- Storage size

Examples:
  # Check cache status
  xray cache status`,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		status, err := cacheManager.GetResultCache().GetStatus()
		if err != nil {
			contract.LogFatal("Failed to get cache status", err)
		}
		iocache.PrintCacheStatus(os.Stdout, status)
	},
}

// cacheClearCmd clears the cache.
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all stored analyses",
	Long: `Delete every stored analysis from the configured backend.

For File: Deletes the result documents
For SQLite: Deletes the database file
For MySQL/PostgreSQL: Drops the results table

Examples:
  # Clear the file cache (default)
  xray cache clear

  # Clear MySQL cache (set connection string via env variable)
  XRAY_CACHE_BACKEND=mysql XRAY_CACHE_DB_CONNECT="..." xray cache clear`,
	PreRunE: configSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := iocache.ClearCache(cfg.CacheBackend, cfg.ResultsDir, sqlitePath(cfg.CacheDBConnect, contract.GetCacheDBFilePath()), cfg.CacheDBConnect); err != nil {
			contract.LogFatal("Failed to clear cache", err)
		}
		fmt.Println("Cache cleared successfully.")
	},
}

// sqlitePath resolves the SQLite file of a store, which defaults when no connection string is set.
func sqlitePath(connStr, def string) string {
	if connStr == "" {
		return def
	}
	return connStr
}
