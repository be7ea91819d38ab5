// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"
	"time"

	"github.com/huangsam/xray/schema"
)

// GitClient defines the git operations needed to ingest a repository.
// This allows the ingestion logic to be tested without needing a real git executable.
type GitClient interface {
	// --- Generic / Low-Level ---

	// Run executes a git command and returns the standard output.
	// Its use should be minimized in favor of the explicit methods below.
	Run(ctx context.Context, repoPath string, args ...string) ([]byte, error)

	// --- Clone Lifecycle ---

	// Clone clones url into dest, calling onProgress with every progress line git prints.
	Clone(ctx context.Context, url, dest string, onProgress func(line string)) error

	// Pull fast-forwards an existing clone.
	Pull(ctx context.Context, repoPath string) error

	// IsPartialClone reports whether the clone was made with a filter (promisor remote).
	IsPartialClone(ctx context.Context, repoPath string) bool

	// --- History ---

	// GetActivityLog returns the raw commit log with numstat rows since the given time.
	GetActivityLog(ctx context.Context, repoPath string, since time.Time) ([]byte, error)

	// Blame returns the line-porcelain blame of a file at HEAD.
	Blame(ctx context.Context, repoPath, path string) ([]byte, error)

	// FindCommit returns the hash of the newest commit matching the log filter args, or "".
	FindCommit(ctx context.Context, repoPath string, filter ...string) (string, error)

	// ShowCommit returns the stat and patch of a single commit.
	ShowCommit(ctx context.Context, repoPath, hash string) ([]byte, error)
}

// GitHubClient defines the hosted-repository metadata operations.
type GitHubClient interface {
	// RepoSizeKB returns the repository size reported by the hosting service.
	RepoSizeKB(ctx context.Context, slug string) (int, error)

	// PullRequests returns merged pull requests with their reviews since the given time.
	PullRequests(ctx context.Context, slug string, since time.Time, limit int) ([]schema.PullRequest, error)
}

// ProgressFunc receives human-readable progress within a stage.
type ProgressFunc func(message string, progress float64)

// Ingestor produces everything the statistics and classification stages consume.
type Ingestor interface {
	// Ingest clones or refreshes the repository and collects history for the window.
	Ingest(ctx context.Context, repoURL string, months int, onProgress ProgressFunc) (*schema.IngestionOutput, error)

	// Diff returns the truncated diff that best represents a pull request.
	Diff(ctx context.Context, out *schema.IngestionOutput, pr schema.PullRequest) (string, error)

	// Cleanup releases the local clone unless clones are kept.
	Cleanup(out *schema.IngestionOutput)
}

// Classifier exposes the three AI capabilities as independent, individually-failable calls.
type Classifier interface {
	ClassifyCode(ctx context.Context, pr schema.PullRequest, diff string) (*schema.ExpertiseClassification, error)
	ClassifyReview(ctx context.Context, pr schema.PullRequest) ([]schema.ReviewClassification, error)
	DetectPatterns(ctx context.Context, result *schema.AnalysisResult) (*schema.PatternResult, error)
}

// JobStore is the in-memory registry of jobs.
// Implementations must serialize updates and enforce forward-only transitions.
type JobStore interface {
	// Create registers a queued job, or returns the non-terminal job with the same key.
	// The boolean reports whether a new job was created.
	Create(repoURL, identity string, months int) (schema.Job, bool)

	// Get returns a copy of the job or ErrNotFound.
	Get(id string) (schema.Job, error)

	// Update applies fn to the job and rejects regressions with ErrInvalidTransition.
	Update(id string, fn func(job *schema.Job)) (schema.Job, error)

	// List returns copies of all jobs ordered by creation time.
	List() []schema.Job

	// Evict removes complete jobs last updated before cutoff and failed jobs
	// last updated before errorCutoff, and returns their ids.
	Evict(cutoff, errorCutoff time.Time) []string
}

// ResultCache defines the durable cache of finished analyses keyed by repository identity.
type ResultCache interface {
	Put(entry *schema.CacheEntry) error
	Get(identity string) (*schema.CacheEntry, error)
	List() ([]schema.CachedSummary, error)
	Delete(identity string) error
	GetStatus() (schema.CacheStatus, error)
	Clear() error
	Close() error
}

// CacheStore defines the interface for key/value storage under a ResultCache.
// This allows mocking the store for testing.
type CacheStore interface {
	Get(key string) ([]byte, int, int64, error)
	Set(key string, value []byte, version int, timestamp int64) error
	Delete(key string) error
	Keys() ([]string, error)
	GetStatus() (schema.CacheStatus, error)
	Close() error
}

// RunStore defines the interface for tracking analysis runs and module snapshots.
type RunStore interface {
	// BeginRun creates a new run row and returns its unique ID
	BeginRun(jobID, identity string, months int, startTime time.Time) (int64, error)

	// EndRun updates the run with its outcome
	EndRun(runID int64, outcome schema.RunOutcome) error

	// RecordModule stores the ownership profile of one module
	RecordModule(runID int64, analysisTime time.Time, module schema.Module) error

	// GetStatus returns status information about the run store
	GetStatus() (schema.RunStatus, error)

	// GetAllRuns retrieves all runs ordered by run ID
	GetAllRuns() ([]schema.RunRecord, error)

	// GetAllModuleSnapshots retrieves all module snapshots ordered by run ID and path
	GetAllModuleSnapshots() ([]schema.ModuleSnapshotRecord, error)

	// Close closes the underlying connection
	Close() error
}

// CacheManager defines the interface for managing stores.
// This allows the persistence layer to be mocked for testing.
type CacheManager interface {
	GetResultCache() ResultCache
	GetRunStore() RunStore
}
