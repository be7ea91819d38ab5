package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/internal/iocache"
	"github.com/huangsam/xray/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// All linker flags will be set by goreleaser infra at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCtx is the root context for all operations.
var rootCtx = context.Background()

// cfg will hold the validated, final configuration.
var cfg = &contract.Config{}

// input holds the raw, unvalidated configuration from all sources (file, env, flags).
// Viper will unmarshal into this struct.
var input = &contract.ConfigRawInput{}

// logger is the process logger, installed as the slog default during setup.
var logger = slog.Default()

// cacheManager is the global persistence manager instance.
var cacheManager contract.CacheManager

// rootCmd is the command-line entrypoint for all other commands.
var rootCmd = &cobra.Command{
	Use:                "xray",
	Short:              "Map who knows what in a GitHub repository.",
	Long:               `Xray mines Git history, blame and pull requests to show module ownership, bus factor risk and review culture.`,
	Version:            version,
	SilenceErrors:      true,
	SilenceUsage:       true,
	DisableSuggestions: true,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Set environment variable prefix
	viper.SetEnvPrefix("XRAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // Read in environment variables that match

	// Server
	viper.SetDefault("addr", contract.DefaultAddr)
	viper.SetDefault("cors-origins", strings.Join(contract.DefaultCORSOrigins, ","))
	viper.SetDefault("rate-limit-max", contract.DefaultRateLimitMax)
	viper.SetDefault("rate-limit-window", contract.DefaultRateLimitWindow.String())
	viper.SetDefault("keepalive", contract.DefaultKeepalive.String())

	// Pipeline
	viper.SetDefault("months", contract.DefaultMonths)
	viper.SetDefault("max-concurrent-ai", contract.DefaultMaxConcurrentAI)
	viper.SetDefault("max-prs-code", contract.DefaultMaxPRsCode)
	viper.SetDefault("max-prs-review", contract.DefaultMaxPRsReview)
	viper.SetDefault("max-blame-files", contract.DefaultMaxBlameFiles)
	viper.SetDefault("diff-truncate-chars", contract.DefaultDiffTruncateChars)
	viper.SetDefault("max-concurrent-analyses", contract.DefaultMaxConcurrentAnalyses)
	viper.SetDefault("job-ttl", contract.DefaultJobTTL.String())
	viper.SetDefault("error-job-ttl", contract.DefaultErrorJobTTL.String())
	viper.SetDefault("cleanup-interval", contract.DefaultCleanupInterval.String())
	viper.SetDefault("exclude", "")

	// Classifier
	viper.SetDefault("ai-provider", schema.AnthropicProvider)
	viper.SetDefault("ai-model", "")
	viper.SetDefault("ai-api-key", "")
	viper.SetDefault("ai-base-url", "")
	viper.SetDefault("ai-timeout", contract.DefaultAITimeout.String())
	viper.SetDefault("ai-rpm", contract.DefaultAIRPM)
	viper.SetDefault("pattern-thinking-budget", contract.DefaultPatternThinkingBudget)

	// Ingestion
	viper.SetDefault("clone-dir", contract.DefaultCloneDir)
	viper.SetDefault("keep-clones", false)
	viper.SetDefault("max-repo-size-mb", contract.DefaultMaxRepoSizeMB)

	// Storage
	viper.SetDefault("results-dir", "")
	viper.SetDefault("cache-backend", schema.FileBackend)
	viper.SetDefault("cache-db-connect", "")
	viper.SetDefault("runs-backend", "")
	viper.SetDefault("runs-db-connect", "")

	// Output
	viper.SetDefault("output", schema.TextOut)
	viper.SetDefault("color", "yes")
	viper.SetDefault("width", 0)
	viper.SetDefault("log-level", "info")
	viper.SetDefault("log-format", "text")
}

// loadConfigFile handles config file loading logic common to all setup functions.
func loadConfigFile() error {
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName(".xray") // Name of config file (without extension)
		viper.SetConfigType("yaml")  // We'll use YAML format
		viper.AddConfigPath(".")     // Look in the current directory
		viper.AddConfigPath("$HOME") // Look in the home directory
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, which is fine; we'll use defaults/env/flags.
	}
	return nil
}

// configSetup merges defaults, file, env and flags into cfg and installs the logger.
func configSetup() error {
	// 1. Read config file. This merges defaults, file, env, and flags.
	if err := loadConfigFile(); err != nil {
		return err
	}

	// 2. Unmarshal all resolved values from Viper into our raw input struct.
	if err := viper.Unmarshal(input); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	// 3. Run all validation and complex parsing.
	if err := contract.ProcessAndValidate(cfg, input); err != nil {
		return err
	}

	logger = contract.NewLogger(os.Stderr, contract.LevelFromString(cfg.LogLevel), cfg.LogFormat)
	slog.SetDefault(logger)
	if !cfg.UseColors {
		color.NoColor = true
	}
	return nil
}

// sharedSetup loads the configuration and opens the durable stores.
func sharedSetup(_ context.Context, _ *cobra.Command, _ []string) error {
	if err := configSetup(); err != nil {
		return err
	}
	if err := iocache.InitCaching(cfg); err != nil {
		return fmt.Errorf("failed to initialize persistence: %w", err)
	}
	cacheManager = iocache.Manager
	return nil
}

// sharedSetupWrapper wraps sharedSetup to provide context for Cobra's PreRunE.
func sharedSetupWrapper(cmd *cobra.Command, args []string) error {
	return sharedSetup(rootCtx, cmd, args)
}

// configSetupWrapper provides PreRunE for commands that must not open the stores.
func configSetupWrapper(_ *cobra.Command, _ []string) error {
	return configSetup()
}

// Execute runs the root command.
func Execute() error {
	defer iocache.CloseCaching()
	return rootCmd.Execute()
}

// SetCacheManager sets the global cache manager.
func SetCacheManager(mgr contract.CacheManager) {
	cacheManager = mgr
}
