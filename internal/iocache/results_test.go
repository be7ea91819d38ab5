package iocache

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// sampleEntry builds a small finished analysis for identity.
func sampleEntry(identity string, at time.Time) *schema.CacheEntry {
	result := schema.NewAnalysisResult("https://github.com/"+identity, identity, 6)
	result.TotalCommits = 42
	result.TotalContributors = 3
	result.Modules = []schema.Module{{
		Path:            "billing/api",
		TotalCommits:    42,
		OwnershipShares: map[string]float64{"alice@example.com": 0.8, "bob@example.com": 0.2},
		OwnershipSource: schema.OwnershipCommits,
		BusFactor:       0.7,
		RiskLevel:       schema.RiskLow,
	}}
	result.PatternResult = schema.EmptyPatternResult()
	return &schema.CacheEntry{AnalysisResult: *result, AnalyzedAt: at.UTC()}
}

// resultCaches returns one cache per backend that runs without external services.
func resultCaches(t *testing.T) map[string]contract.ResultCache {
	t.Helper()
	file, err := NewFileResultCache(t.TempDir())
	require.NoError(t, err)

	sqlite, err := NewResultCache(schema.SQLiteBackend, "", filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]contract.ResultCache{"file": file, "sqlite": sqlite}
}

func TestResultCache_PutGet(t *testing.T) {
	at := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)
	for name, cache := range resultCaches(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, cache.Put(sampleEntry("acme/billing", at)))

			got, err := cache.Get("acme/billing")
			require.NoError(t, err)
			assert.Equal(t, "acme/billing", got.RepoIdentity)
			assert.Equal(t, 6, got.MonthsWindow)
			assert.Equal(t, 42, got.TotalCommits)
			assert.True(t, at.Equal(got.AnalyzedAt))
			require.Len(t, got.Modules, 1)
			assert.Equal(t, 0.7, got.Modules[0].BusFactor)
			require.NotNil(t, got.PatternResult)
			assert.NotNil(t, got.PatternResult.Insights)

			_, err = cache.Get("acme/missing")
			assert.ErrorIs(t, err, contract.ErrNotFound)
		})
	}
}

func TestResultCache_LastWriterWins(t *testing.T) {
	for name, cache := range resultCaches(t) {
		t.Run(name, func(t *testing.T) {
			first := sampleEntry("acme/billing", time.Unix(1000, 0))
			second := sampleEntry("acme/billing", time.Unix(2000, 0))
			second.TotalCommits = 99

			require.NoError(t, cache.Put(first))
			require.NoError(t, cache.Put(second))

			got, err := cache.Get("acme/billing")
			require.NoError(t, err)
			assert.Equal(t, 99, got.TotalCommits)
		})
	}
}

func TestResultCache_ListDeleteClear(t *testing.T) {
	for name, cache := range resultCaches(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, cache.Put(sampleEntry("acme/old", time.Unix(1000, 0))))
			require.NoError(t, cache.Put(sampleEntry("acme/new", time.Unix(3000, 0))))
			require.NoError(t, cache.Put(sampleEntry("acme/alpha", time.Unix(3000, 0))))

			list, err := cache.List()
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, "acme/alpha", list[0].RepoIdentity)
			assert.Equal(t, "acme/new", list[1].RepoIdentity)
			assert.Equal(t, "acme/old", list[2].RepoIdentity)
			assert.Equal(t, 42, list[0].TotalCommits)
			assert.Equal(t, "https://github.com/acme/alpha", list[0].RepoURL)

			status, err := cache.GetStatus()
			require.NoError(t, err)
			assert.Equal(t, 3, status.TotalEntries)
			assert.Equal(t, time.Unix(3000, 0).Unix(), status.LastEntryTime.Unix())
			assert.Equal(t, time.Unix(1000, 0).Unix(), status.OldestEntryTime.Unix())

			require.NoError(t, cache.Delete("acme/old"))
			assert.ErrorIs(t, cache.Delete("acme/old"), contract.ErrNotFound)

			require.NoError(t, cache.Clear())
			list, err = cache.List()
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestResultCache_ConcurrentPut(t *testing.T) {
	for name, cache := range resultCaches(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := range 20 {
				wg.Go(func() {
					entry := sampleEntry("acme/billing", time.Unix(int64(1000+i), 0))
					entry.TotalCommits = i
					assert.NoError(t, cache.Put(entry))
				})
			}
			wg.Wait()

			got, err := cache.Get("acme/billing")
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got.TotalCommits, 0)
			assert.Less(t, got.TotalCommits, 20)
		})
	}
}

func TestResultCache_UnderscoreIdentitiesStayDistinct(t *testing.T) {
	for name, cache := range resultCaches(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, cache.Put(sampleEntry("a_b/c", time.Unix(1000, 0))))
			require.NoError(t, cache.Put(sampleEntry("a/b_c", time.Unix(2000, 0))))

			first, err := cache.Get("a_b/c")
			require.NoError(t, err)
			assert.Equal(t, "a_b/c", first.RepoIdentity)
			second, err := cache.Get("a/b_c")
			require.NoError(t, err)
			assert.Equal(t, "a/b_c", second.RepoIdentity)

			list, err := cache.List()
			require.NoError(t, err)
			assert.Len(t, list, 2)
		})
	}
}

func TestFileResultCache_SkipsUnreadableDocuments(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewFileResultCache(dir)
	require.NoError(t, err)
	require.NoError(t, cache.Put(sampleEntry("acme/billing", time.Unix(1000, 0))))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	list, err := cache.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "acme/billing", list[0].RepoIdentity)

	// No temporary files are left behind after a successful write
	files, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = os.Stat(filepath.Join(dir, "acme_billing.json"))
	assert.NoError(t, err)
}

func TestFileResultCache_CorruptDocument(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewFileResultCache(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "acme_billing.json"), []byte("{"), 0o644))

	_, err = cache.Get("acme/billing")
	var cacheErr *contract.CacheError
	assert.True(t, errors.As(err, &cacheErr))
}

func TestSQLResultCache_WithMockStore(t *testing.T) {
	t.Run("stale document version reads as missing", func(t *testing.T) {
		store := &MockCacheStore{}
		store.On("Get", "acme/billing").Return([]byte(`{}`), resultVersion+1, int64(0), nil)

		cache := NewSQLResultCache(store, schema.SQLiteBackend)
		_, err := cache.Get("acme/billing")
		assert.ErrorIs(t, err, contract.ErrNotFound)
		store.AssertExpectations(t)
	})

	t.Run("store failure is a cache error", func(t *testing.T) {
		store := &MockCacheStore{}
		store.On("Set", "acme/billing", mock.Anything, resultVersion, mock.Anything).Return(errors.New("disk full"))

		cache := NewSQLResultCache(store, schema.SQLiteBackend)
		err := cache.Put(sampleEntry("acme/billing", time.Unix(1000, 0)))
		var cacheErr *contract.CacheError
		require.True(t, errors.As(err, &cacheErr))
		assert.Equal(t, "put", cacheErr.Op)
		store.AssertExpectations(t)
	})

	t.Run("delete missing key", func(t *testing.T) {
		store := &MockCacheStore{}
		store.On("Get", "acme/missing").Return(nil, 0, int64(0), sql.ErrNoRows)

		cache := NewSQLResultCache(store, schema.SQLiteBackend)
		assert.ErrorIs(t, cache.Delete("acme/missing"), contract.ErrNotFound)
		store.AssertNotCalled(t, "Delete", mock.Anything)
	})
}
