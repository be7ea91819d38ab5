package iocache

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
)

// Table names for run tracking.
const (
	runsTable            = "xray_runs"
	moduleSnapshotsTable = "xray_module_snapshots"
)

// RunStoreImpl implements the RunStore interface.
type RunStoreImpl struct {
	db      *sql.DB
	backend schema.DatabaseBackend
}

var _ contract.RunStore = &RunStoreImpl{} // Compile-time check

// NewRunStore migrates the schema to the latest version and opens the store.
func NewRunStore(backend schema.DatabaseBackend, connStr string) (contract.RunStore, error) {
	if backend == schema.NoneBackend {
		// Return a no-op store for disabled tracking
		return &RunStoreImpl{backend: backend}, nil
	}
	if _, err := MigrateRuns(backend, connStr, -1); err != nil {
		return nil, fmt.Errorf("failed to prepare run tables: %w", err)
	}
	db, err := openDB(backend, connStr, GetRunsDBFilePath())
	if err != nil {
		return nil, err
	}
	return &RunStoreImpl{db: db, backend: backend}, nil
}

func (rs *RunStoreImpl) disabled() bool {
	return rs.backend == schema.NoneBackend || rs.db == nil
}

// args builds a placeholder list "?, ?, ?" or "$1, $2, $3".
func (rs *RunStoreImpl) args(n int) string {
	out := ""
	for i := 1; i <= n; i++ {
		if i > 1 {
			out += ", "
		}
		out += placeholder(rs.backend, i)
	}
	return out
}

// BeginRun creates a new run row in the running state and returns its ID.
func (rs *RunStoreImpl) BeginRun(jobID, identity string, months int, startTime time.Time) (int64, error) {
	if rs.disabled() {
		return 0, nil
	}

	query := fmt.Sprintf(`INSERT INTO %s (job_id, repo_identity, months_window, start_time, status) VALUES (%s)`,
		quoteTableName(runsTable, rs.backend), rs.args(5))
	values := []any{jobID, identity, months, formatTime(startTime, rs.backend), string(schema.JobRunning)}

	var runID int64
	if rs.backend == schema.PostgreSQLBackend {
		if err := rs.db.QueryRow(query+" RETURNING run_id", values...).Scan(&runID); err != nil {
			return 0, fmt.Errorf("failed to insert run: %w", err)
		}
		return runID, nil
	}

	result, err := rs.db.Exec(query, values...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}
	return runID, nil
}

// EndRun stores the outcome of a run and its duration.
func (rs *RunStoreImpl) EndRun(runID int64, outcome schema.RunOutcome) error {
	if rs.disabled() {
		return nil
	}

	table := quoteTableName(runsTable, rs.backend)
	row := rs.db.QueryRow(fmt.Sprintf(`SELECT start_time FROM %s WHERE run_id = %s`, table, placeholder(rs.backend, 1)), runID)
	startTime, err := scanTime(row)
	if err != nil {
		return fmt.Errorf("failed to get start_time for run %d: %w", runID, err)
	}
	durationMs := outcome.EndTime.Sub(startTime).Milliseconds()

	var errMsg *string
	if outcome.ErrorMessage != "" {
		errMsg = &outcome.ErrorMessage
	}

	p := func(n int) string { return placeholder(rs.backend, n) }
	query := fmt.Sprintf(`UPDATE %s SET end_time = %s, run_duration_ms = %s, status = %s, stage_reached = %s, total_modules = %s, error_message = %s WHERE run_id = %s`,
		table, p(1), p(2), p(3), p(4), p(5), p(6), p(7))
	_, err = rs.db.Exec(query,
		formatTime(outcome.EndTime, rs.backend), durationMs, string(outcome.Status),
		outcome.StageReached, outcome.TotalModules, errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// RecordModule stores the ownership profile of one module.
func (rs *RunStoreImpl) RecordModule(runID int64, analysisTime time.Time, module schema.Module) error {
	if rs.disabled() {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, module_path, analysis_time, total_commits, total_lines,
		                contributor_count, bus_factor, risk_level, ownership_source, top_owner)
		VALUES (%s)
	`, quoteTableName(moduleSnapshotsTable, rs.backend), rs.args(10))

	_, err := rs.db.Exec(query,
		runID, module.Path, formatTime(analysisTime, rs.backend), module.TotalCommits, module.TotalLines,
		len(module.OwnershipShares), module.BusFactor, string(module.RiskLevel), module.OwnershipSource, topOwner(module))
	if err != nil {
		return fmt.Errorf("failed to insert module snapshot: %w", err)
	}
	return nil
}

// topOwner returns the identity with the largest share, or nil for an unowned module.
func topOwner(module schema.Module) *string {
	ids := make([]string, 0, len(module.OwnershipShares))
	for id := range module.OwnershipShares {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := module.OwnershipShares[ids[i]], module.OwnershipShares[ids[j]]
		if si != sj {
			return si > sj
		}
		return ids[i] < ids[j]
	})
	return &ids[0]
}

// Close closes the underlying connection.
func (rs *RunStoreImpl) Close() error {
	if rs.db != nil {
		return rs.db.Close()
	}
	return nil
}

// GetStatus returns status information about the run store.
func (rs *RunStoreImpl) GetStatus() (schema.RunStatus, error) {
	status := schema.RunStatus{
		Backend:    string(rs.backend),
		Connected:  rs.db != nil,
		TableSizes: make(map[string]int64),
	}
	if rs.disabled() {
		return status, nil
	}

	runs := quoteTableName(runsTable, rs.backend)
	if err := rs.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", runs)).Scan(&status.TotalRuns); err != nil {
		return status, fmt.Errorf("failed to get total runs: %w", err)
	}

	if status.TotalRuns > 0 {
		row := rs.db.QueryRow(fmt.Sprintf("SELECT run_id FROM %s ORDER BY run_id DESC LIMIT 1", runs))
		if err := row.Scan(&status.LastRunID); err != nil {
			return status, fmt.Errorf("failed to get last run id: %w", err)
		}
		last, err := scanTime(rs.db.QueryRow(fmt.Sprintf("SELECT start_time FROM %s ORDER BY run_id DESC LIMIT 1", runs)))
		if err != nil {
			return status, fmt.Errorf("failed to get last run time: %w", err)
		}
		status.LastRunTime = last
		oldest, err := scanTime(rs.db.QueryRow(fmt.Sprintf("SELECT start_time FROM %s ORDER BY run_id ASC LIMIT 1", runs)))
		if err != nil {
			return status, fmt.Errorf("failed to get oldest run time: %w", err)
		}
		status.OldestRunTime = oldest
	}

	for _, table := range []string{runsTable, moduleSnapshotsTable} {
		var count int64
		if err := rs.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteTableName(table, rs.backend))).Scan(&count); err != nil {
			return status, fmt.Errorf("failed to get count for table %s: %w", table, err)
		}
		status.TableSizes[table] = count
	}
	status.TotalSnapshots = int(status.TableSizes[moduleSnapshotsTable])

	return status, nil
}

// GetAllRuns retrieves all runs ordered by run ID.
func (rs *RunStoreImpl) GetAllRuns() ([]schema.RunRecord, error) {
	if rs.disabled() {
		return nil, nil
	}

	rows, err := rs.db.Query(fmt.Sprintf(`SELECT run_id, job_id, repo_identity, months_window, start_time, end_time,
		run_duration_ms, status, stage_reached, total_modules, error_message FROM %s ORDER BY run_id`, quoteTableName(runsTable, rs.backend)))
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.RunRecord
	for rows.Next() {
		var r schema.RunRecord
		var start, end timeScanner
		if err := rows.Scan(&r.RunID, &r.JobID, &r.RepoIdentity, &r.MonthsWindow, &start, &end,
			&r.RunDurationMs, &r.Status, &r.StageReached, &r.TotalModules, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartTime = start.t
		if end.valid {
			endTime := end.t
			r.EndTime = &endTime
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return results, nil
}

// GetAllModuleSnapshots retrieves all module snapshots ordered by run ID and path.
func (rs *RunStoreImpl) GetAllModuleSnapshots() ([]schema.ModuleSnapshotRecord, error) {
	if rs.disabled() {
		return nil, nil
	}

	rows, err := rs.db.Query(fmt.Sprintf(`SELECT run_id, module_path, analysis_time, total_commits, total_lines,
		contributor_count, bus_factor, risk_level, ownership_source, top_owner
		FROM %s ORDER BY run_id, module_path`, quoteTableName(moduleSnapshotsTable, rs.backend)))
	if err != nil {
		return nil, fmt.Errorf("failed to query module snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.ModuleSnapshotRecord
	for rows.Next() {
		var r schema.ModuleSnapshotRecord
		var at timeScanner
		if err := rows.Scan(&r.RunID, &r.ModulePath, &at, &r.TotalCommits, &r.TotalLines,
			&r.ContributorCount, &r.BusFactor, &r.RiskLevel, &r.OwnershipSource, &r.TopOwner); err != nil {
			return nil, fmt.Errorf("failed to scan module snapshot: %w", err)
		}
		r.AnalysisTime = at.t
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating module snapshots: %w", err)
	}
	return results, nil
}

// formatTime converts a time.Time to the appropriate format for the backend.
func formatTime(t time.Time, backend schema.DatabaseBackend) any {
	if backend == schema.SQLiteBackend {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t
}

// timeScanner reads a nullable timestamp stored natively or as RFC 3339 text.
type timeScanner struct {
	t     time.Time
	valid bool
}

// Scan implements sql.Scanner.
func (s *timeScanner) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		s.valid = false
		return nil
	case time.Time:
		s.t, s.valid = v, true
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

// timeLayouts covers SQLite text and MySQL DATETIME without parseTime.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999", "2006-01-02 15:04:05"}

func (s *timeScanner) parse(v string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			s.t, s.valid = t, true
			return nil
		}
	}
	return fmt.Errorf("failed to parse time %q", v)
}

// scanTime reads a single non-null timestamp from a row.
func scanTime(row *sql.Row) (time.Time, error) {
	var ts timeScanner
	if err := row.Scan(&ts); err != nil {
		return time.Time{}, err
	}
	if !ts.valid {
		return time.Time{}, fmt.Errorf("unexpected NULL time")
	}
	return ts.t, nil
}
