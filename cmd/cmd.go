// Package cmd defines the command-line interface for xray.
package cmd

import (
	"strings"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)

	// Add the cache subcommands to the parent cache command
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheDeleteCmd)
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	// Add the runs subcommands to the parent runs command
	runsCmd.AddCommand(runsStatusCmd)
	runsCmd.AddCommand(runsExportCmd)
	runsCmd.AddCommand(runsMigrateCmd)
	runsCmd.AddCommand(runsClearCmd)

	// Bind all persistent flags of rootCmd to Viper
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().IntP("months", "m", contract.DefaultMonths, "Months of history to analyze (1-24)")
	rootCmd.PersistentFlags().String("exclude", "", "Comma-separated list of path prefixes or patterns to ignore")
	rootCmd.PersistentFlags().String("ai-provider", string(schema.AnthropicProvider), "Classification provider: anthropic or openai or none")
	rootCmd.PersistentFlags().String("ai-model", "", "Model name for the classification provider")
	rootCmd.PersistentFlags().String("ai-base-url", "", "Base URL override for the classification provider")
	rootCmd.PersistentFlags().Int("max-concurrent-ai", contract.DefaultMaxConcurrentAI, "Concurrent classifier calls per job")
	rootCmd.PersistentFlags().String("clone-dir", contract.DefaultCloneDir, "Directory holding repository clones")
	rootCmd.PersistentFlags().Bool("keep-clones", false, "Keep clones after a job finishes")
	rootCmd.PersistentFlags().String("results-dir", "", "Directory of the file result cache (default ~/.xray/results)")
	rootCmd.PersistentFlags().String("cache-backend", string(schema.FileBackend), "Result cache backend: file or sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("cache-db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname)")
	rootCmd.PersistentFlags().String("runs-backend", "", "Run tracking backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("runs-db-connect", "", "Database connection string for run tracking (must differ from cache-db-connect)")
	rootCmd.PersistentFlags().String("output", string(schema.TextOut), "Output format: text or json")
	rootCmd.PersistentFlags().String("output-file", "", "Optional path to write output to")
	rootCmd.PersistentFlags().Int("width", 0, "Terminal width override (0 = auto-detect)")
	rootCmd.PersistentFlags().String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug or info or warn or error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all flags of serveCmd to Viper
	serveCmd.Flags().String("addr", contract.DefaultAddr, "Listen address")
	serveCmd.Flags().String("cors-origins", strings.Join(contract.DefaultCORSOrigins, ","), "Comma-separated allowed CORS origins")
	serveCmd.Flags().Int("rate-limit-max", contract.DefaultRateLimitMax, "Submissions allowed per client within the rate-limit window (0 disables)")
	serveCmd.Flags().String("rate-limit-window", contract.DefaultRateLimitWindow.String(), "Rate-limit window")
	serveCmd.Flags().Int("max-concurrent-analyses", contract.DefaultMaxConcurrentAnalyses, "Pipelines allowed to run at once")
	if err := viper.BindPFlags(serveCmd.Flags()); err != nil {
		contract.LogFatal("Error binding serve flags", err)
	}

	// Bind all flags of runsMigrateCmd to Viper
	runsMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(runsMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding runs migrate flags", err)
	}
}
