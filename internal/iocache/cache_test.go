package iocache

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidateTableName tests the validateTableName function with various inputs.
func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name      string
		tableName string
		wantErr   bool
	}{
		{name: "valid simple name", tableName: "xray_results"},
		{name: "valid name with numbers", tableName: "results_123"},
		{name: "valid name starting with underscore", tableName: "_results"},
		{name: "valid mixed case", tableName: "Results_v2"},
		{name: "empty name", tableName: "", wantErr: true},
		{name: "starts with number", tableName: "1results", wantErr: true},
		{name: "contains dash", tableName: "xray-results", wantErr: true},
		{name: "contains dot", tableName: "db.results", wantErr: true},
		{name: "sql injection attempt", tableName: "t'; DROP TABLE users; --", wantErr: true},
		{name: "unicode", tableName: "results_表", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTableName(tt.tableName)
			if tt.wantErr {
				assert.Error(t, err, "validateTableName should error for %q", tt.tableName)
			} else {
				assert.NoError(t, err, "validateTableName should not error for %q", tt.tableName)
			}
		})
	}
}

// TestQuoteTableName tests the quoteTableName function for all backends.
func TestQuoteTableName(t *testing.T) {
	tests := []struct {
		backend schema.DatabaseBackend
		want    string
	}{
		{backend: schema.SQLiteBackend, want: `"xray_runs"`},
		{backend: schema.MySQLBackend, want: "`xray_runs`"},
		{backend: schema.PostgreSQLBackend, want: `"xray_runs"`},
		{backend: schema.NoneBackend, want: `"xray_runs"`},
	}

	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			assert.Equal(t, tt.want, quoteTableName("xray_runs", tt.backend))
		})
	}
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "?", placeholder(schema.SQLiteBackend, 1))
	assert.Equal(t, "?", placeholder(schema.MySQLBackend, 3))
	assert.Equal(t, "$1", placeholder(schema.PostgreSQLBackend, 1))
	assert.Equal(t, "$7", placeholder(schema.PostgreSQLBackend, 7))

	rs := &RunStoreImpl{backend: schema.PostgreSQLBackend}
	assert.Equal(t, "$1, $2, $3", rs.args(3))
	rs = &RunStoreImpl{backend: schema.MySQLBackend}
	assert.Equal(t, "?, ?", rs.args(2))
}

func TestDriverName(t *testing.T) {
	assert.Equal(t, "sqlite", driverName(schema.SQLiteBackend))
	assert.Equal(t, "mysql", driverName(schema.MySQLBackend))
	assert.Equal(t, "pgx", driverName(schema.PostgreSQLBackend))
}

// TestGetUpsertQuery tests the getUpsertQuery method for different backends.
func TestGetUpsertQuery(t *testing.T) {
	tests := []struct {
		name         string
		backend      schema.DatabaseBackend
		wantContains []string
	}{
		{
			name:         "SQLite backend",
			backend:      schema.SQLiteBackend,
			wantContains: []string{"INSERT OR REPLACE", `"xray_results"`},
		},
		{
			name:         "MySQL backend",
			backend:      schema.MySQLBackend,
			wantContains: []string{"INSERT INTO", "ON DUPLICATE KEY UPDATE", "`xray_results`"},
		},
		{
			name:         "PostgreSQL backend",
			backend:      schema.PostgreSQLBackend,
			wantContains: []string{"ON CONFLICT", "DO UPDATE SET", `"xray_results"`, "$1", "$4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &CacheStoreImpl{backend: tt.backend, tableName: resultsTable}
			got := store.getUpsertQuery()
			for _, want := range tt.wantContains {
				assert.Contains(t, got, want)
			}
		})
	}
}

// TestSQLiteBackendOperations tests the full lifecycle of SQLite key/value operations.
func TestSQLiteBackendOperations(t *testing.T) {
	newStore := func(t *testing.T) contract.CacheStore {
		store, err := NewCacheStore("test_table", schema.SQLiteBackend, ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	}

	t.Run("set and get", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set("owner/repo", []byte("doc"), 1, 1234567890))

		value, version, ts, err := store.Get("owner/repo")
		require.NoError(t, err)
		assert.Equal(t, "doc", string(value))
		assert.Equal(t, 1, version)
		assert.Equal(t, int64(1234567890), ts)
	})

	t.Run("upsert replaces", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set("k", []byte("v1"), 1, 1000))
		require.NoError(t, store.Set("k", []byte("v2"), 2, 2000))

		value, version, ts, err := store.Get("k")
		require.NoError(t, err)
		assert.Equal(t, "v2", string(value))
		assert.Equal(t, 2, version)
		assert.Equal(t, int64(2000), ts)
	})

	t.Run("missing key", func(t *testing.T) {
		store := newStore(t)
		_, _, _, err := store.Get("missing")
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})

	t.Run("keys and delete", func(t *testing.T) {
		store := newStore(t)
		for _, k := range []string{"b/2", "a/1", "c/3"} {
			require.NoError(t, store.Set(k, []byte(k), 1, 1))
		}
		keys, err := store.Keys()
		require.NoError(t, err)
		assert.Equal(t, []string{"a/1", "b/2", "c/3"}, keys)

		require.NoError(t, store.Delete("b/2"))
		require.NoError(t, store.Delete("b/2"), "deleting a missing key is not an error")
		keys, err = store.Keys()
		require.NoError(t, err)
		assert.Equal(t, []string{"a/1", "c/3"}, keys)
	})
}

func TestNewCacheStoreErrors(t *testing.T) {
	_, err := NewCacheStore("bad-name", schema.SQLiteBackend, ":memory:")
	assert.Error(t, err)

	_, err = NewCacheStore("test_table", "unsupported", "")
	assert.Error(t, err)
}

func TestCacheStoreNoneBackend(t *testing.T) {
	store, err := NewCacheStore("test_none", schema.NoneBackend, "")
	require.NoError(t, err)

	assert.NoError(t, store.Set("k", []byte("v"), 1, 1))
	_, _, _, err = store.Get("k")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	keys, err := store.Keys()
	assert.NoError(t, err)
	assert.Empty(t, keys)

	status, err := store.GetStatus()
	assert.NoError(t, err)
	assert.Equal(t, "none", status.Backend)
	assert.False(t, status.Connected)
	assert.NoError(t, store.Close())
}

// TestCacheStoreGetStatus tests the GetStatus method on SQLite.
func TestCacheStoreGetStatus(t *testing.T) {
	t.Run("with data", func(t *testing.T) {
		store, err := NewCacheStore("test_status_table", schema.SQLiteBackend, ":memory:")
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		for _, ts := range []int64{1000, 2000, 1500} {
			require.NoError(t, store.Set(time.Unix(ts, 0).String(), []byte("value"), 1, ts))
		}

		status, err := store.GetStatus()
		require.NoError(t, err)
		assert.Equal(t, "sqlite", status.Backend)
		assert.True(t, status.Connected)
		assert.Equal(t, 3, status.TotalEntries)
		assert.Equal(t, time.Unix(2000, 0), status.LastEntryTime)
		assert.Equal(t, time.Unix(1000, 0), status.OldestEntryTime)
		assert.Greater(t, status.TableSizeBytes, int64(0))
	})

	t.Run("empty", func(t *testing.T) {
		store, err := NewCacheStore("test_empty_table", schema.SQLiteBackend, ":memory:")
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		status, err := store.GetStatus()
		require.NoError(t, err)
		assert.Equal(t, 0, status.TotalEntries)
		assert.True(t, status.LastEntryTime.IsZero())
		assert.Equal(t, int64(0), status.TableSizeBytes)
	})
}

// TestClearCache tests the ClearCache function.
func TestClearCache(t *testing.T) {
	t.Run("SQLite removes the file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "cache.db")
		store, err := NewCacheStore(resultsTable, schema.SQLiteBackend, dbPath)
		require.NoError(t, err)
		require.NoError(t, store.Set("k", []byte("v"), 1, 1))
		require.NoError(t, store.Close())

		require.NoError(t, ClearCache(schema.SQLiteBackend, "", dbPath, ""))
		_, err = os.Stat(dbPath)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("SQLite missing file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "missing.db")
		assert.NoError(t, ClearCache(schema.SQLiteBackend, "", dbPath, ""))
	})

	t.Run("SQLite empty path", func(t *testing.T) {
		assert.Error(t, ClearCache(schema.SQLiteBackend, "", "", ""))
	})

	t.Run("file backend", func(t *testing.T) {
		dir := t.TempDir()
		cache, err := NewFileResultCache(dir)
		require.NoError(t, err)
		require.NoError(t, cache.Put(sampleEntry("acme/billing", time.Now())))

		require.NoError(t, ClearCache(schema.FileBackend, dir, "", ""))
		list, err := cache.List()
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("none backend", func(t *testing.T) {
		assert.NoError(t, ClearCache(schema.NoneBackend, "", "", ""))
	})

	t.Run("unsupported backend", func(t *testing.T) {
		assert.Error(t, ClearCache("unsupported", "", "", ""))
	})
}

func TestClearRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	store, err := NewRunStore(schema.SQLiteBackend, dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	require.NoError(t, ClearRuns(schema.SQLiteBackend, dbPath, ""))
	_, err = os.Stat(dbPath)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, ClearRuns(schema.NoneBackend, "", ""))
	assert.NoError(t, ClearRuns("", "", ""))
	assert.Error(t, ClearRuns(schema.FileBackend, "", ""))
}

// resetManager restores the global manager between tests.
func resetManager(t *testing.T) {
	t.Helper()
	reset := func() {
		initOnce = sync.Once{}
		closeOnce = sync.Once{}
		Manager = &CacheStoreManager{}
	}
	reset()
	t.Cleanup(func() {
		CloseCaching()
		reset()
	})
}

func TestInitCaching(t *testing.T) {
	t.Run("file results without run tracking", func(t *testing.T) {
		resetManager(t)
		cfg := &contract.Config{CacheBackend: schema.FileBackend, ResultsDir: t.TempDir()}
		require.NoError(t, InitCaching(cfg))

		assert.IsType(t, &FileResultCache{}, Manager.GetResultCache())
		assert.Nil(t, Manager.GetRunStore())
	})

	t.Run("sqlite results and runs", func(t *testing.T) {
		resetManager(t)
		dir := t.TempDir()
		cfg := &contract.Config{
			CacheBackend:   schema.SQLiteBackend,
			CacheDBConnect: filepath.Join(dir, "cache.db"),
			RunsBackend:    schema.SQLiteBackend,
			RunsDBConnect:  filepath.Join(dir, "runs.db"),
		}
		require.NoError(t, InitCaching(cfg))

		assert.IsType(t, &SQLResultCache{}, Manager.GetResultCache())
		require.NotNil(t, Manager.GetRunStore())
		status, err := Manager.GetRunStore().GetStatus()
		require.NoError(t, err)
		assert.True(t, status.Connected)
	})

	t.Run("none backends", func(t *testing.T) {
		resetManager(t)
		cfg := &contract.Config{CacheBackend: schema.NoneBackend, RunsBackend: schema.NoneBackend}
		require.NoError(t, InitCaching(cfg))

		_, err := Manager.GetResultCache().Get("acme/billing")
		assert.ErrorIs(t, err, contract.ErrNotFound)
		id, err := Manager.GetRunStore().BeginRun("j", "acme/billing", 6, time.Now())
		assert.NoError(t, err)
		assert.Zero(t, id)
	})

	t.Run("bad connection", func(t *testing.T) {
		resetManager(t)
		cfg := &contract.Config{CacheBackend: schema.MySQLBackend, CacheDBConnect: "invalid://connection"}
		assert.Error(t, InitCaching(cfg))
	})
}

// TestCacheStoreManagerConcurrency tests concurrent access to the global manager.
func TestCacheStoreManagerConcurrency(t *testing.T) {
	resetManager(t)
	require.NoError(t, InitCaching(&contract.Config{CacheBackend: schema.SQLiteBackend, CacheDBConnect: ":memory:"}))

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Go(func() {
			cache := Manager.GetResultCache()
			assert.NotNil(t, cache)
			assert.NoError(t, cache.Put(sampleEntry("acme/billing", time.Unix(int64(1000+i), 0))))
		})
	}
	wg.Wait()

	entry, err := Manager.GetResultCache().Get("acme/billing")
	require.NoError(t, err)
	assert.Equal(t, "acme/billing", entry.RepoIdentity)
}

func TestPrintCacheStatus(t *testing.T) {
	var buf bytes.Buffer
	PrintCacheStatus(&buf, schema.CacheStatus{
		Backend:         "file",
		Connected:       true,
		TotalEntries:    2,
		LastEntryTime:   time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC),
		OldestEntryTime: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		TableSizeBytes:  2048,
	})
	out := buf.String()
	assert.Contains(t, out, "Cache Backend: file")
	assert.Contains(t, out, "Total Entries: 2")
	assert.Contains(t, out, "Last Entry: 2025-03-02 10:00:00")
	assert.Contains(t, out, "Size: 2048 bytes")

	buf.Reset()
	PrintCacheStatus(&buf, schema.CacheStatus{Backend: "none"})
	assert.NotContains(t, buf.String(), "Total Entries")
}

func TestKeyedMutex(t *testing.T) {
	var km keyedMutex
	var mu sync.Mutex
	counter := map[string]int{}

	var wg sync.WaitGroup
	for i := range 50 {
		key := []string{"a", "b"}[i%2]
		wg.Go(func() {
			unlock := km.Lock(key)
			defer unlock()
			mu.Lock()
			counter[key]++
			mu.Unlock()
		})
	}
	wg.Wait()
	assert.Equal(t, 25, counter["a"])
	assert.Equal(t, 25, counter["b"])
}
