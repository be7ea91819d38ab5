package schema

import "time"

// CacheStatus represents the status of the result cache.
type CacheStatus struct {
	Backend         string    `json:"backend"`
	Connected       bool      `json:"connected"`
	TotalEntries    int       `json:"total_entries"`
	LastEntryTime   time.Time `json:"last_entry_time"`
	OldestEntryTime time.Time `json:"oldest_entry_time"`
	TableSizeBytes  int64     `json:"table_size_bytes"`
}

// RunStatus represents the status of the run store.
type RunStatus struct {
	Backend        string           `json:"backend"`
	Connected      bool             `json:"connected"`
	TotalRuns      int              `json:"total_runs"`
	LastRunID      int64            `json:"last_run_id"`
	LastRunTime    time.Time        `json:"last_run_time"`
	OldestRunTime  time.Time        `json:"oldest_run_time"`
	TotalSnapshots int              `json:"total_module_snapshots"`
	TableSizes     map[string]int64 `json:"table_sizes"`
}

// RunRecord represents a row from the xray_runs table.
type RunRecord struct {
	RunID         int64
	JobID         string
	RepoIdentity  string
	MonthsWindow  int32
	StartTime     time.Time
	EndTime       *time.Time
	RunDurationMs *int32
	Status        string
	StageReached  int32
	TotalModules  int32
	ErrorMessage  *string
}

// ModuleSnapshotRecord represents a row from the xray_module_snapshots table.
type ModuleSnapshotRecord struct {
	RunID            int64
	ModulePath       string
	AnalysisTime     time.Time
	TotalCommits     int32
	TotalLines       int32
	ContributorCount int32
	BusFactor        float64
	RiskLevel        string
	OwnershipSource  string
	TopOwner         *string
}

// RunOutcome is what a finished job reports to the run store.
type RunOutcome struct {
	EndTime      time.Time
	Status       JobStatus
	StageReached int
	TotalModules int
	ErrorMessage string
}
