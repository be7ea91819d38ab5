package contract

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/huangsam/xray/schema"
)

// Default values for configuration.
const (
	DefaultMonths                = 6
	MaxMonths                    = 24
	DefaultMaxConcurrentAI       = 5
	DefaultMaxPRsCode            = 30
	DefaultMaxPRsReview          = 20
	DefaultMaxBlameFiles         = 30
	DefaultDiffTruncateChars     = 8000
	DefaultAITimeout             = 60 * time.Second
	DefaultPatternThinkingBudget = 10000
	DefaultAIRPM                 = 50
	DefaultMaxRepoSizeMB         = 500
	DefaultMaxConcurrentAnalyses = 3
	DefaultRateLimitMax          = 10
	DefaultRateLimitWindow       = time.Hour
	DefaultJobTTL                = time.Hour
	DefaultErrorJobTTL           = 10 * time.Minute
	DefaultCleanupInterval       = 5 * time.Minute
	DefaultKeepalive             = 60 * time.Second
	DefaultAddr                  = ":8000"
	DefaultCloneDir              = "tmp/xray-repos"
)

// DefaultCORSOrigins are the development front-end origins.
var DefaultCORSOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5174",
	"http://localhost:3000",
}

// DefaultExcludes lists lockfiles, vendored trees and generated assets left out of the history.
var DefaultExcludes = []string{
	"Cargo.lock", "go.sum", "package-lock.json", "yarn.lock", "pnpm-lock.yaml", "composer.lock", "uv.lock", "poetry.lock", "Gemfile.lock",
	".min.js", ".min.css", ".map",
	".jpg", ".jpeg", ".png", ".gif", ".svg", ".ico", ".mp4", ".mov", ".webm", ".mp3", ".ogg", ".pdf", ".webp", ".woff", ".woff2", ".ttf",
	"*.pb.go", "*_generated.go",
	".DS_Store",
	"vendor/", "node_modules/", "dist/", "build/", "third_party/",
}

// Config holds the runtime configuration for the server, the pipeline and the CLI.
// This struct remains the "final, validated" config.
type Config struct {
	// --- Server ---
	Addr            string
	CORSOrigins     []string
	RateLimitMax    int
	RateLimitWindow time.Duration
	Keepalive       time.Duration

	// --- Pipeline ---
	Months                int
	MaxConcurrentAI       int
	MaxPRsCode            int
	MaxPRsReview          int
	MaxBlameFiles         int
	DiffTruncateChars     int
	MaxConcurrentAnalyses int
	JobTTL                time.Duration
	ErrorJobTTL           time.Duration
	CleanupInterval       time.Duration
	Excludes              []string

	// --- Classifier ---
	AIProvider            schema.ProviderKind
	AIModel               string
	AIAPIKey              string // Please use env var as this is plaintext
	AIBaseURL             string
	AITimeout             time.Duration
	AIRPM                 int
	PatternThinkingBudget int

	// --- Ingestion ---
	CloneDir      string
	KeepClones    bool
	MaxRepoSizeMB int

	// --- Storage ---
	ResultsDir     string
	CacheBackend   schema.DatabaseBackend
	CacheDBConnect string // Please use env var as this is plaintext
	RunsBackend    schema.DatabaseBackend
	RunsDBConnect  string // Please use env var as this is plaintext

	// --- Output ---
	Output     schema.OutputMode
	OutputFile string
	Width      int // Terminal width override (0 = auto-detect)
	UseColors  bool
	LogLevel   string
	LogFormat  string
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	Addr            string `mapstructure:"addr"`
	CORSOrigins     string `mapstructure:"cors-origins"`
	RateLimitMax    int    `mapstructure:"rate-limit-max"`
	RateLimitWindow string `mapstructure:"rate-limit-window"`
	Keepalive       string `mapstructure:"keepalive"`

	Months                int    `mapstructure:"months"`
	MaxConcurrentAI       int    `mapstructure:"max-concurrent-ai"`
	MaxPRsCode            int    `mapstructure:"max-prs-code"`
	MaxPRsReview          int    `mapstructure:"max-prs-review"`
	MaxBlameFiles         int    `mapstructure:"max-blame-files"`
	DiffTruncateChars     int    `mapstructure:"diff-truncate-chars"`
	MaxConcurrentAnalyses int    `mapstructure:"max-concurrent-analyses"`
	JobTTL                string `mapstructure:"job-ttl"`
	ErrorJobTTL           string `mapstructure:"error-job-ttl"`
	CleanupInterval       string `mapstructure:"cleanup-interval"`
	Exclude               string `mapstructure:"exclude"`

	AIProvider            string `mapstructure:"ai-provider"`
	AIModel               string `mapstructure:"ai-model"`
	AIAPIKey              string `mapstructure:"ai-api-key"`
	AIBaseURL             string `mapstructure:"ai-base-url"`
	AITimeout             string `mapstructure:"ai-timeout"`
	AIRPM                 int    `mapstructure:"ai-rpm"`
	PatternThinkingBudget int    `mapstructure:"pattern-thinking-budget"`

	CloneDir      string `mapstructure:"clone-dir"`
	KeepClones    bool   `mapstructure:"keep-clones"`
	MaxRepoSizeMB int    `mapstructure:"max-repo-size-mb"`

	ResultsDir     string `mapstructure:"results-dir"`
	CacheBackend   string `mapstructure:"cache-backend"`
	CacheDBConnect string `mapstructure:"cache-db-connect"`
	RunsBackend    string `mapstructure:"runs-backend"`
	RunsDBConnect  string `mapstructure:"runs-db-connect"`

	Output     string `mapstructure:"output"`
	OutputFile string `mapstructure:"output-file"`
	Width      int    `mapstructure:"width"`
	Color      string `mapstructure:"color"`
	LogLevel   string `mapstructure:"log-level"`
	LogFormat  string `mapstructure:"log-format"`
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	clone.CORSOrigins = slices.Clone(c.CORSOrigins)
	clone.Excludes = slices.Clone(c.Excludes)
	return &clone
}

// ProcessAndValidate performs all parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := processDurations(cfg, input); err != nil {
		return err
	}
	if err := processPipelineLimits(cfg, input); err != nil {
		return err
	}
	if err := processClassifier(cfg, input); err != nil {
		return err
	}
	return validateBackendConfigs(cfg, input)
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.FileBackend, schema.SQLiteBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

// validateBackendConfigs validates result cache and run store backend configurations.
func validateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	// --- Result Cache Validation ---
	cfg.CacheBackend = schema.DatabaseBackend(strings.ToLower(input.CacheBackend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = schema.FileBackend
	}
	if _, ok := schema.ValidResultBackends[cfg.CacheBackend]; !ok {
		return fmt.Errorf("invalid cache backend '%s'. must be file, sqlite, mysql, postgresql, none", input.CacheBackend)
	}
	cfg.CacheDBConnect = input.CacheDBConnect
	if err := ValidateDatabaseConnectionString(cfg.CacheBackend, cfg.CacheDBConnect); err != nil {
		return fmt.Errorf("cache-db-connect: %w", err)
	}
	cfg.ResultsDir = ExpandHome(input.ResultsDir)
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = GetResultsDir()
	}

	// --- Run Store Validation ---
	cfg.RunsBackend = schema.DatabaseBackend(strings.ToLower(input.RunsBackend))
	if cfg.RunsBackend == "" {
		return nil
	}
	if _, ok := schema.ValidDatabaseBackends[cfg.RunsBackend]; !ok {
		return fmt.Errorf("invalid runs backend '%s'. must be sqlite, mysql, postgresql, none", input.RunsBackend)
	}
	cfg.RunsDBConnect = input.RunsDBConnect
	if err := ValidateDatabaseConnectionString(cfg.RunsBackend, cfg.RunsDBConnect); err != nil {
		return fmt.Errorf("runs-db-connect: %w", err)
	}

	// The cache and the run store must not share a SQLite file
	if cfg.CacheBackend == schema.SQLiteBackend && cfg.RunsBackend == schema.SQLiteBackend {
		cacheDBPath := cfg.CacheDBConnect
		if cacheDBPath == "" {
			cacheDBPath = GetCacheDBFilePath()
		}
		runsDBPath := cfg.RunsDBConnect
		if runsDBPath == "" {
			runsDBPath = GetRunsDBFilePath()
		}
		if filepath.Clean(cacheDBPath) == filepath.Clean(runsDBPath) {
			return fmt.Errorf("cache and runs storage must use different SQLite database files. Both resolve to %q", cacheDBPath)
		}
	}
	return nil
}

// validateSimpleInputs processes and validates the server and output fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	cfg.Addr = input.Addr
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	cfg.OutputFile = input.OutputFile
	cfg.Width = input.Width
	cfg.LogLevel = input.LogLevel
	cfg.LogFormat = strings.ToLower(input.LogFormat)
	if cfg.LogFormat != "" && cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("invalid log format '%s'. must be text, json", input.LogFormat)
	}

	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, json", input.Output)
	}

	cfg.CORSOrigins = splitList(input.CORSOrigins)
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = slices.Clone(DefaultCORSOrigins)
	}

	cfg.Excludes = slices.Clone(DefaultExcludes)
	cfg.Excludes = append(cfg.Excludes, splitList(input.Exclude)...)
	return nil
}

// processDurations parses every duration key.
func processDurations(cfg *Config, input *ConfigRawInput) error {
	fields := []struct {
		name string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"rate-limit-window", input.RateLimitWindow, DefaultRateLimitWindow, &cfg.RateLimitWindow},
		{"keepalive", input.Keepalive, DefaultKeepalive, &cfg.Keepalive},
		{"job-ttl", input.JobTTL, DefaultJobTTL, &cfg.JobTTL},
		{"error-job-ttl", input.ErrorJobTTL, DefaultErrorJobTTL, &cfg.ErrorJobTTL},
		{"cleanup-interval", input.CleanupInterval, DefaultCleanupInterval, &cfg.CleanupInterval},
		{"ai-timeout", input.AITimeout, DefaultAITimeout, &cfg.AITimeout},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.raw) == "" {
			*f.dst = f.def
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(f.raw))
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive (received %s)", f.name, f.raw)
		}
		*f.dst = d
	}
	return nil
}

// processPipelineLimits validates the window and the pool widths.
func processPipelineLimits(cfg *Config, input *ConfigRawInput) error {
	if input.Months < 1 || input.Months > MaxMonths {
		return fmt.Errorf("months must be between 1 and %d (received %d)", MaxMonths, input.Months)
	}
	cfg.Months = input.Months

	positives := []struct {
		name string
		val  int
		dst  *int
	}{
		{"max-concurrent-ai", input.MaxConcurrentAI, &cfg.MaxConcurrentAI},
		{"max-concurrent-analyses", input.MaxConcurrentAnalyses, &cfg.MaxConcurrentAnalyses},
		{"rate-limit-max", input.RateLimitMax, &cfg.RateLimitMax},
		{"diff-truncate-chars", input.DiffTruncateChars, &cfg.DiffTruncateChars},
		{"max-repo-size-mb", input.MaxRepoSizeMB, &cfg.MaxRepoSizeMB},
	}
	for _, p := range positives {
		if p.val <= 0 {
			return fmt.Errorf("%s must be greater than 0 (received %d)", p.name, p.val)
		}
		*p.dst = p.val
	}

	nonNegatives := []struct {
		name string
		val  int
		dst  *int
	}{
		{"max-prs-code", input.MaxPRsCode, &cfg.MaxPRsCode},
		{"max-prs-review", input.MaxPRsReview, &cfg.MaxPRsReview},
		{"max-blame-files", input.MaxBlameFiles, &cfg.MaxBlameFiles},
	}
	for _, p := range nonNegatives {
		if p.val < 0 {
			return fmt.Errorf("%s cannot be negative (received %d)", p.name, p.val)
		}
		*p.dst = p.val
	}

	cfg.CloneDir = ExpandHome(input.CloneDir)
	if cfg.CloneDir == "" {
		cfg.CloneDir = DefaultCloneDir
	}
	cfg.KeepClones = input.KeepClones
	return nil
}

// processClassifier validates the provider selection.
func processClassifier(cfg *Config, input *ConfigRawInput) error {
	cfg.AIProvider = schema.ProviderKind(strings.ToLower(input.AIProvider))
	if cfg.AIProvider == "" {
		cfg.AIProvider = schema.AnthropicProvider
	}
	if _, ok := schema.ValidProviders[cfg.AIProvider]; !ok {
		return fmt.Errorf("invalid ai provider '%s'. must be anthropic, openai, none", input.AIProvider)
	}
	cfg.AIModel = input.AIModel
	cfg.AIAPIKey = input.AIAPIKey
	cfg.AIBaseURL = input.AIBaseURL
	if input.AIRPM < 0 {
		return fmt.Errorf("ai-rpm cannot be negative (received %d)", input.AIRPM)
	}
	cfg.AIRPM = input.AIRPM
	if input.PatternThinkingBudget < 0 {
		return fmt.Errorf("pattern-thinking-budget cannot be negative (received %d)", input.PatternThinkingBudget)
	}
	cfg.PatternThinkingBudget = input.PatternThinkingBudget
	return nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
