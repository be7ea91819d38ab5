// Package parquet provides data structures and functions for exporting xray
// run history to Parquet files using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"os"
	"time"

	"github.com/huangsam/xray/schema"
	"github.com/parquet-go/parquet-go"
)

// Run represents a single pipeline run.
// This struct maps to the xray_runs database table.
type Run struct {
	// RunID is the unique identifier for this run
	RunID int64 `parquet:"run_id,snappy"`

	// JobID is the short job identifier handed to clients
	JobID string `parquet:"job_id,snappy"`

	// RepoIdentity is the normalized owner/repo of the analyzed repository
	RepoIdentity string `parquet:"repo_identity,snappy"`

	// MonthsWindow is the history window in months
	MonthsWindow int32 `parquet:"months_window,snappy"`

	// StartTime is when the run began (stored as TIMESTAMP with nanosecond precision)
	StartTime time.Time `parquet:"start_time,snappy"`

	// EndTime is when the run finished (nullable)
	EndTime *time.Time `parquet:"end_time,optional,snappy"`

	// RunDurationMs is the duration of the run in milliseconds (nullable)
	RunDurationMs *int32 `parquet:"run_duration_ms,optional,snappy"`

	// Status is the terminal job status, or running
	Status string `parquet:"status,snappy"`

	// StageReached is the highest pipeline stage entered
	StageReached int32 `parquet:"stage_reached,snappy"`

	// TotalModules is the number of modules in the result
	TotalModules int32 `parquet:"total_modules,snappy"`

	// ErrorMessage is the terminal error, if any (nullable)
	ErrorMessage *string `parquet:"error_message,optional,snappy"`
}

// ModuleSnapshot represents the ownership profile of a module in one run.
// This struct maps to the xray_module_snapshots database table.
type ModuleSnapshot struct {
	// RunID references the parent run
	RunID int64 `parquet:"run_id,snappy"`

	// ModulePath is the logical module (top two directories)
	ModulePath string `parquet:"module_path,snappy"`

	// AnalysisTime is when the snapshot was taken
	AnalysisTime time.Time `parquet:"analysis_time,snappy"`

	TotalCommits     int32   `parquet:"total_commits,snappy"`
	TotalLines       int32   `parquet:"total_lines,snappy"`
	ContributorCount int32   `parquet:"contributor_count,snappy"`
	BusFactor        float64 `parquet:"bus_factor,snappy"`
	RiskLevel        string  `parquet:"risk_level,snappy"`
	OwnershipSource  string  `parquet:"ownership_source,snappy"`

	// TopOwner is the identity with the largest share (nullable)
	TopOwner *string `parquet:"top_owner,optional,snappy"`
}

// writeParquet writes rows of any struct type to a Parquet file.
// The schema is derived from the struct tags.
func writeParquet[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// WriteRunsParquet writes a slice of Run structs to a Parquet file.
func WriteRunsParquet(data []Run, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteModuleSnapshotsParquet writes a slice of ModuleSnapshot structs to a Parquet file.
func WriteModuleSnapshotsParquet(data []ModuleSnapshot, outputPath string) error {
	return writeParquet(data, outputPath)
}

// ConvertRunRecords converts schema.RunRecord to Run for Parquet export.
func ConvertRunRecords(records []schema.RunRecord) []Run {
	result := make([]Run, len(records))
	for i, record := range records {
		result[i] = Run{
			RunID:         record.RunID,
			JobID:         record.JobID,
			RepoIdentity:  record.RepoIdentity,
			MonthsWindow:  record.MonthsWindow,
			StartTime:     record.StartTime,
			EndTime:       record.EndTime,
			RunDurationMs: record.RunDurationMs,
			Status:        record.Status,
			StageReached:  record.StageReached,
			TotalModules:  record.TotalModules,
			ErrorMessage:  record.ErrorMessage,
		}
	}
	return result
}

// ConvertModuleSnapshotRecords converts schema.ModuleSnapshotRecord to ModuleSnapshot for Parquet export.
func ConvertModuleSnapshotRecords(records []schema.ModuleSnapshotRecord) []ModuleSnapshot {
	result := make([]ModuleSnapshot, len(records))
	for i, record := range records {
		result[i] = ModuleSnapshot{
			RunID:            record.RunID,
			ModulePath:       record.ModulePath,
			AnalysisTime:     record.AnalysisTime,
			TotalCommits:     record.TotalCommits,
			TotalLines:       record.TotalLines,
			ContributorCount: record.ContributorCount,
			BusFactor:        record.BusFactor,
			RiskLevel:        record.RiskLevel,
			OwnershipSource:  record.OwnershipSource,
			TopOwner:         record.TopOwner,
		}
	}
	return result
}
