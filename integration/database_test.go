//go:build database

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/huangsam/xray/internal/iocache"
	"github.com/huangsam/xray/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startMySQL starts a MySQL container and returns its connection string.
func startMySQL(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mysql:8",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "secret123",
			"MYSQL_DATABASE":      "xray",
		},
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").WithStartupTimeout(60 * time.Second),
	}
	mysqlC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mysqlC.Terminate(ctx) })

	host, err := mysqlC.Host(ctx)
	require.NoError(t, err)
	port, err := mysqlC.MappedPort(ctx, "3306")
	require.NoError(t, err)
	return fmt.Sprintf("root:secret123@tcp(%s:%s)/xray?parseTime=true", host, port.Port())
}

// startPostgres starts a PostgreSQL container and returns its connection string.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_HOST_AUTH_METHOD": "trust",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return fmt.Sprintf("host=%s port=%s user=postgres dbname=postgres sslmode=disable", host, port.Port())
}

func TestDatabaseBackends(t *testing.T) {
	backends := []struct {
		backend schema.DatabaseBackend
		start   func(t *testing.T) string
	}{
		{schema.MySQLBackend, startMySQL},
		{schema.PostgreSQLBackend, startPostgres},
	}
	for _, b := range backends {
		t.Run(string(b.backend), func(t *testing.T) {
			connStr := b.start(t)
			t.Run("result cache", func(t *testing.T) { exerciseResultCache(t, b.backend, connStr) })
			t.Run("run store", func(t *testing.T) { exerciseRunStore(t, b.backend, connStr) })
			t.Run("cli", func(t *testing.T) { exerciseCLI(t, b.backend, connStr) })
		})
	}
}

func exerciseResultCache(t *testing.T, backend schema.DatabaseBackend, connStr string) {
	cache, err := iocache.NewResultCache(backend, "", connStr)
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()
	require.NoError(t, cache.Clear())

	older := schema.NewAnalysisResult("https://github.com/acme/billing", "acme/billing", 6)
	older.TotalCommits = 10
	require.NoError(t, cache.Put(&schema.CacheEntry{AnalysisResult: *older, AnalyzedAt: time.Now().Add(-time.Hour).UTC()}))

	newer := schema.NewAnalysisResult("https://github.com/acme/billing", "acme/billing", 12)
	newer.TotalCommits = 25
	require.NoError(t, cache.Put(&schema.CacheEntry{AnalysisResult: *newer, AnalyzedAt: time.Now().UTC()}))

	got, err := cache.Get("acme/billing")
	require.NoError(t, err)
	assert.Equal(t, 25, got.TotalCommits, "the last write replaces the entry")
	assert.Equal(t, 12, got.MonthsWindow)

	list, err := cache.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	status, err := cache.GetStatus()
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, 1, status.TotalEntries)

	require.NoError(t, cache.Delete("acme/billing"))
	_, err = cache.Get("acme/billing")
	assert.Error(t, err)
}

func exerciseRunStore(t *testing.T, backend schema.DatabaseBackend, connStr string) {
	require.NoError(t, iocache.ClearRuns(backend, "", connStr))
	_, err := iocache.MigrateRuns(backend, connStr, -1)
	require.NoError(t, err)

	store, err := iocache.NewRunStore(backend, connStr)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	start := time.Now().UTC().Truncate(time.Second)
	runID, err := store.BeginRun("ab12cd34", "acme/billing", 6, start)
	require.NoError(t, err)

	module := schema.Module{
		Path: "src/billing", TotalCommits: 18, TotalLines: 900, BusFactor: 0, RiskLevel: schema.RiskCritical,
		OwnershipSource: schema.OwnershipBlame, OwnershipShares: map[string]float64{"alice@acme.io": 1},
		PerContributorStats: map[string]schema.ContributorModuleStats{"alice@acme.io": {Commits: 18}},
	}
	require.NoError(t, store.RecordModule(runID, start, module))
	require.NoError(t, store.EndRun(runID, schema.RunOutcome{
		EndTime: start.Add(time.Minute), Status: schema.JobComplete, StageReached: schema.StagePatterns, TotalModules: 1,
	}))

	runs, err := store.GetAllRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "acme/billing", runs[0].RepoIdentity)
	assert.Equal(t, string(schema.JobComplete), runs[0].Status)

	snaps, err := store.GetAllModuleSnapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "src/billing", snaps[0].ModulePath)
	require.NotNil(t, snaps[0].TopOwner)
	assert.Equal(t, "alice@acme.io", *snaps[0].TopOwner)
}

func exerciseCLI(t *testing.T, backend schema.DatabaseBackend, connStr string) {
	env := []string{
		"XRAY_CACHE_BACKEND=" + string(backend),
		"XRAY_CACHE_DB_CONNECT=" + connStr,
		"XRAY_RUNS_BACKEND=" + string(backend),
		"XRAY_RUNS_DB_CONNECT=" + connStr,
	}

	_, err := runXray(t, env, "cache", "clear")
	require.NoError(t, err)

	_, err = runXray(t, env, "runs", "clear")
	require.NoError(t, err)

	out, err := runXray(t, env, "runs", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrated run store")

	out, err = runXray(t, env, "cache", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Connected: true")

	out, err = runXray(t, env, "runs", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Total Runs: 0")
}
