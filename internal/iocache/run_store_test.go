package iocache

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/huangsam/xray/internal/parquet"
	"github.com/huangsam/xray/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteRunStore(t *testing.T) (*RunStoreImpl, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	store, err := NewRunStore(schema.SQLiteBackend, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store.(*RunStoreImpl), dbPath
}

func sampleModules() []schema.Module {
	return []schema.Module{
		{
			Path:            "billing/api",
			TotalCommits:    5,
			TotalLines:      120,
			OwnershipShares: map[string]float64{"alice@example.com": 0.8, "bob@example.com": 0.2},
			OwnershipSource: schema.OwnershipBlame,
			BusFactor:       0.7,
			RiskLevel:       schema.RiskLow,
		},
		{
			Path:            "billing/core",
			TotalCommits:    1,
			TotalLines:      10,
			OwnershipShares: map[string]float64{"alice@example.com": 1},
			OwnershipSource: schema.OwnershipCommits,
			RiskLevel:       schema.RiskCritical,
		},
	}
}

func TestMigrateRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	result, err := MigrateRuns(schema.SQLiteBackend, dbPath, -1)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, uint(0), result.FromVersion)
	assert.Equal(t, uint(2), result.ToVersion)

	result, err = MigrateRuns(schema.SQLiteBackend, dbPath, -1)
	require.NoError(t, err)
	assert.False(t, result.Changed, "already at latest")
	assert.Equal(t, uint(2), result.ToVersion)

	result, err = MigrateRuns(schema.SQLiteBackend, dbPath, 1)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, uint(1), result.ToVersion)

	result, err = MigrateRuns(schema.SQLiteBackend, dbPath, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(0), result.ToVersion)

	_, err = MigrateRuns(schema.NoneBackend, "", -1)
	assert.Error(t, err)
	_, err = MigrateRuns(schema.FileBackend, "", -1)
	assert.Error(t, err)
}

func TestRunStore_Lifecycle(t *testing.T) {
	store, _ := newSQLiteRunStore(t)
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	runID, err := store.BeginRun("ab12cd34", "acme/billing", 6, start)
	require.NoError(t, err)
	assert.Equal(t, int64(1), runID)

	for _, m := range sampleModules() {
		require.NoError(t, store.RecordModule(runID, start.Add(time.Second), m))
	}
	require.NoError(t, store.EndRun(runID, schema.RunOutcome{
		EndTime:      start.Add(1500 * time.Millisecond),
		Status:       schema.JobComplete,
		StageReached: schema.StagePatterns,
		TotalModules: 2,
	}))

	failedID, err := store.BeginRun("ef56ab78", "acme/broken", 3, start.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, store.EndRun(failedID, schema.RunOutcome{
		EndTime:      start.Add(2 * time.Minute),
		Status:       schema.JobError,
		StageReached: schema.StageIngestion,
		ErrorMessage: "clone failed",
	}))

	runs, err := store.GetAllRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)

	ok := runs[0]
	assert.Equal(t, "ab12cd34", ok.JobID)
	assert.Equal(t, "acme/billing", ok.RepoIdentity)
	assert.Equal(t, int32(6), ok.MonthsWindow)
	assert.True(t, start.Equal(ok.StartTime))
	require.NotNil(t, ok.EndTime)
	require.NotNil(t, ok.RunDurationMs)
	assert.Equal(t, int32(1500), *ok.RunDurationMs)
	assert.Equal(t, "complete", ok.Status)
	assert.Equal(t, int32(5), ok.StageReached)
	assert.Equal(t, int32(2), ok.TotalModules)
	assert.Nil(t, ok.ErrorMessage)

	failed := runs[1]
	assert.Equal(t, "error", failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "clone failed", *failed.ErrorMessage)

	snapshots, err := store.GetAllModuleSnapshots()
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, "billing/api", snapshots[0].ModulePath)
	assert.Equal(t, int32(2), snapshots[0].ContributorCount)
	assert.Equal(t, 0.7, snapshots[0].BusFactor)
	assert.Equal(t, "low", snapshots[0].RiskLevel)
	assert.Equal(t, "blame", snapshots[0].OwnershipSource)
	require.NotNil(t, snapshots[0].TopOwner)
	assert.Equal(t, "alice@example.com", *snapshots[0].TopOwner)
	assert.True(t, start.Add(time.Second).Equal(snapshots[0].AnalysisTime))

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", status.Backend)
	assert.True(t, status.Connected)
	assert.Equal(t, 2, status.TotalRuns)
	assert.Equal(t, failedID, status.LastRunID)
	assert.True(t, start.Add(time.Minute).Equal(status.LastRunTime))
	assert.True(t, start.Equal(status.OldestRunTime))
	assert.Equal(t, 2, status.TotalSnapshots)
	assert.Equal(t, int64(2), status.TableSizes[runsTable])

	var buf bytes.Buffer
	PrintRunStatus(&buf, status)
	assert.Contains(t, buf.String(), "Total Runs: 2")
	assert.Contains(t, buf.String(), "xray_module_snapshots: 2 rows")
}

func TestRunStore_ReopenKeepsHistory(t *testing.T) {
	store, dbPath := newSQLiteRunStore(t)
	_, err := store.BeginRun("ab12cd34", "acme/billing", 6, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewRunStore(schema.SQLiteBackend, dbPath)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	runs, err := reopened.GetAllRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "running", runs[0].Status)
	assert.Nil(t, runs[0].EndTime)
}

func TestRunStore_EndUnknownRun(t *testing.T) {
	store, _ := newSQLiteRunStore(t)
	err := store.EndRun(99, schema.RunOutcome{EndTime: time.Now(), Status: schema.JobComplete})
	assert.Error(t, err)
}

func TestRunStore_NoneBackend(t *testing.T) {
	store, err := NewRunStore(schema.NoneBackend, "")
	require.NoError(t, err)

	id, err := store.BeginRun("ab12cd34", "acme/billing", 6, time.Now())
	assert.NoError(t, err)
	assert.Zero(t, id)
	assert.NoError(t, store.EndRun(id, schema.RunOutcome{}))
	assert.NoError(t, store.RecordModule(id, time.Now(), sampleModules()[0]))

	runs, err := store.GetAllRuns()
	assert.NoError(t, err)
	assert.Empty(t, runs)

	status, err := store.GetStatus()
	assert.NoError(t, err)
	assert.False(t, status.Connected)
	assert.NoError(t, store.Close())
}

func TestTopOwner(t *testing.T) {
	assert.Nil(t, topOwner(schema.Module{}))

	tie := schema.Module{OwnershipShares: map[string]float64{"zed@example.com": 0.5, "amy@example.com": 0.5}}
	require.NotNil(t, topOwner(tie))
	assert.Equal(t, "amy@example.com", *topOwner(tie))
}

func TestTimeScanner(t *testing.T) {
	tests := []struct {
		name    string
		src     any
		want    time.Time
		valid   bool
		wantErr bool
	}{
		{name: "null", src: nil},
		{name: "native", src: time.Unix(1000, 0).UTC(), want: time.Unix(1000, 0).UTC(), valid: true},
		{name: "rfc3339", src: "2025-03-01T12:00:00.5Z", want: time.Date(2025, 3, 1, 12, 0, 0, 5e8, time.UTC), valid: true},
		{name: "mysql bytes", src: []byte("2025-03-01 12:00:00.250000"), want: time.Date(2025, 3, 1, 12, 0, 0, 25e7, time.UTC), valid: true},
		{name: "mysql seconds", src: "2025-03-01 12:00:00", want: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), valid: true},
		{name: "garbage", src: "yesterday", wantErr: true},
		{name: "wrong type", src: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts timeScanner
			err := ts.Scan(tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.valid, ts.valid)
			assert.True(t, tt.want.Equal(ts.t))
		})
	}
}

func TestExecuteRunsExport(t *testing.T) {
	t.Run("writes both files", func(t *testing.T) {
		store, _ := newSQLiteRunStore(t)
		start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		runID, err := store.BeginRun("ab12cd34", "acme/billing", 6, start)
		require.NoError(t, err)
		for _, m := range sampleModules() {
			require.NoError(t, store.RecordModule(runID, start, m))
		}
		require.NoError(t, store.EndRun(runID, schema.RunOutcome{EndTime: start.Add(time.Second), Status: schema.JobComplete, StageReached: 5, TotalModules: 2}))

		prefix := filepath.Join(t.TempDir(), "export")
		var buf bytes.Buffer
		require.NoError(t, ExecuteRunsExport(&buf, store, prefix))
		assert.Contains(t, buf.String(), "Exported 1 runs")
		assert.Contains(t, buf.String(), "Exported 2 module snapshots")
		assert.FileExists(t, prefix+".runs.parquet")
		assert.FileExists(t, prefix+".module_snapshots.parquet")
	})

	t.Run("validation", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Error(t, ExecuteRunsExport(&buf, nil, "out"))

		store, _ := newSQLiteRunStore(t)
		assert.Error(t, ExecuteRunsExport(&buf, store, ""))
		assert.Error(t, ExecuteRunsExport(&buf, store, "out"), "empty history has nothing to export")
	})

	t.Run("store failure", func(t *testing.T) {
		store := &MockRunStore{}
		store.On("GetStatus").Return(schema.RunStatus{Backend: "mysql", Connected: true, TotalRuns: 1}, nil)
		store.On("GetAllRuns").Return(nil, errors.New("connection reset"))

		var buf bytes.Buffer
		err := ExecuteRunsExport(&buf, store, filepath.Join(t.TempDir(), "export"))
		assert.ErrorContains(t, err, "connection reset")
		store.AssertExpectations(t)
	})

	t.Run("converted rows", func(t *testing.T) {
		rows := parquet.ConvertModuleSnapshotRecords([]schema.ModuleSnapshotRecord{{RunID: 1, ModulePath: "billing/api", BusFactor: 0.7}})
		require.Len(t, rows, 1)
		assert.Equal(t, "billing/api", rows[0].ModulePath)
	})
}
