package iocache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
)

// resultsTable is the name of the table for the SQL result cache.
const resultsTable = "xray_results"

// resultVersion is bumped whenever the cached document shape changes.
const resultVersion = 1

// NewResultCache creates the durable result cache for a backend.
// The file backend stores documents under dir; SQL backends use connStr.
func NewResultCache(backend schema.DatabaseBackend, dir, connStr string) (contract.ResultCache, error) {
	if backend == schema.FileBackend {
		return NewFileResultCache(dir)
	}
	store, err := NewCacheStore(resultsTable, backend, connStr)
	if err != nil {
		return nil, err
	}
	return NewSQLResultCache(store, backend), nil
}

// sortSummaries orders listings newest first, then by identity.
func sortSummaries(out []schema.CachedSummary) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AnalyzedAt.Equal(out[j].AnalyzedAt) {
			return out[i].AnalyzedAt.After(out[j].AnalyzedAt)
		}
		return out[i].RepoIdentity < out[j].RepoIdentity
	})
}

// --- File backend ---

// FileResultCache stores one JSON document per repository identity.
// Writes go to a temporary file in the same directory and are renamed into place,
// so readers never observe a partial document.
type FileResultCache struct {
	dir   string
	locks keyedMutex
}

var _ contract.ResultCache = &FileResultCache{} // Compile-time check

// NewFileResultCache creates the directory if needed.
func NewFileResultCache(dir string) (*FileResultCache, error) {
	if dir == "" {
		dir = contract.GetResultsDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory %q: %w", dir, err)
	}
	return &FileResultCache{dir: dir}, nil
}

func (c *FileResultCache) path(identity string) string {
	return filepath.Join(c.dir, schema.IdentityFileName(identity)+".json")
}

// Put atomically replaces the document of the entry's identity. Last writer wins.
func (c *FileResultCache) Put(entry *schema.CacheEntry) error {
	identity := entry.RepoIdentity
	data, err := json.Marshal(entry)
	if err != nil {
		return &contract.CacheError{Op: "encode", Key: identity, Err: err}
	}

	unlock := c.locks.Lock(identity)
	defer unlock()

	tmp, err := os.CreateTemp(c.dir, schema.IdentityFileName(identity)+".*.tmp")
	if err != nil {
		return &contract.CacheError{Op: "put", Key: identity, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &contract.CacheError{Op: "put", Key: identity, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &contract.CacheError{Op: "put", Key: identity, Err: err}
	}
	if err := os.Rename(tmpName, c.path(identity)); err != nil {
		_ = os.Remove(tmpName)
		return &contract.CacheError{Op: "put", Key: identity, Err: err}
	}
	return nil
}

// Get returns the cached entry or ErrNotFound.
func (c *FileResultCache) Get(identity string) (*schema.CacheEntry, error) {
	data, err := os.ReadFile(c.path(identity))
	if errors.Is(err, os.ErrNotExist) {
		return nil, contract.ErrNotFound
	}
	if err != nil {
		return nil, &contract.CacheError{Op: "get", Key: identity, Err: err}
	}
	var entry schema.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, &contract.CacheError{Op: "decode", Key: identity, Err: err}
	}
	return &entry, nil
}

// entries reads every readable document in the directory.
func (c *FileResultCache) entries() ([]*schema.CacheEntry, int64, error) {
	files, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, 0, &contract.CacheError{Op: "list", Key: c.dir, Err: err}
	}
	var out []*schema.CacheEntry
	var size int64
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.dir, f.Name()))
		if err != nil {
			continue
		}
		var entry schema.CacheEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue // Unreadable documents are skipped
		}
		size += int64(len(data))
		out = append(out, &entry)
	}
	return out, size, nil
}

// List returns summaries of every cached analysis, newest first.
func (c *FileResultCache) List() ([]schema.CachedSummary, error) {
	entries, _, err := c.entries()
	if err != nil {
		return nil, err
	}
	out := make([]schema.CachedSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Summary())
	}
	sortSummaries(out)
	return out, nil
}

// Delete removes the cached entry or returns ErrNotFound.
func (c *FileResultCache) Delete(identity string) error {
	unlock := c.locks.Lock(identity)
	defer unlock()

	err := os.Remove(c.path(identity))
	if errors.Is(err, os.ErrNotExist) {
		return contract.ErrNotFound
	}
	if err != nil {
		return &contract.CacheError{Op: "delete", Key: identity, Err: err}
	}
	return nil
}

// GetStatus returns status information about the file cache.
func (c *FileResultCache) GetStatus() (schema.CacheStatus, error) {
	status := schema.CacheStatus{Backend: string(schema.FileBackend), Connected: true}
	entries, size, err := c.entries()
	if err != nil {
		return status, err
	}
	status.TotalEntries = len(entries)
	status.TableSizeBytes = size
	for _, e := range entries {
		if status.LastEntryTime.IsZero() || e.AnalyzedAt.After(status.LastEntryTime) {
			status.LastEntryTime = e.AnalyzedAt
		}
		if status.OldestEntryTime.IsZero() || e.AnalyzedAt.Before(status.OldestEntryTime) {
			status.OldestEntryTime = e.AnalyzedAt
		}
	}
	return status, nil
}

// Clear removes every cached document.
func (c *FileResultCache) Clear() error {
	files, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &contract.CacheError{Op: "clear", Key: c.dir, Err: err}
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, f.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return &contract.CacheError{Op: "clear", Key: f.Name(), Err: err}
		}
	}
	return nil
}

// Close is a no-op for the file backend.
func (c *FileResultCache) Close() error { return nil }

// --- SQL backends ---

// SQLResultCache stores result documents in a key/value table.
type SQLResultCache struct {
	store   contract.CacheStore
	backend schema.DatabaseBackend
	locks   keyedMutex
}

var _ contract.ResultCache = &SQLResultCache{} // Compile-time check

// NewSQLResultCache wraps a key/value store.
func NewSQLResultCache(store contract.CacheStore, backend schema.DatabaseBackend) *SQLResultCache {
	return &SQLResultCache{store: store, backend: backend}
}

// Put upserts the document of the entry's identity. Last writer wins.
func (c *SQLResultCache) Put(entry *schema.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return &contract.CacheError{Op: "encode", Key: entry.RepoIdentity, Err: err}
	}
	unlock := c.locks.Lock(entry.RepoIdentity)
	defer unlock()
	if err := c.store.Set(entry.RepoIdentity, data, resultVersion, entry.AnalyzedAt.Unix()); err != nil {
		return &contract.CacheError{Op: "put", Key: entry.RepoIdentity, Err: err}
	}
	return nil
}

// Get returns the cached entry or ErrNotFound.
func (c *SQLResultCache) Get(identity string) (*schema.CacheEntry, error) {
	data, version, _, err := c.store.Get(identity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contract.ErrNotFound
	}
	if err != nil {
		return nil, &contract.CacheError{Op: "get", Key: identity, Err: err}
	}
	if version != resultVersion {
		return nil, contract.ErrNotFound // Stale document shape
	}
	var entry schema.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, &contract.CacheError{Op: "decode", Key: identity, Err: err}
	}
	return &entry, nil
}

// List returns summaries of every cached analysis, newest first.
func (c *SQLResultCache) List() ([]schema.CachedSummary, error) {
	keys, err := c.store.Keys()
	if err != nil {
		return nil, &contract.CacheError{Op: "list", Err: err}
	}
	out := make([]schema.CachedSummary, 0, len(keys))
	for _, key := range keys {
		entry, err := c.Get(key)
		if err != nil {
			continue
		}
		out = append(out, entry.Summary())
	}
	sortSummaries(out)
	return out, nil
}

// Delete removes the cached entry or returns ErrNotFound.
func (c *SQLResultCache) Delete(identity string) error {
	unlock := c.locks.Lock(identity)
	defer unlock()

	if _, _, _, err := c.store.Get(identity); errors.Is(err, sql.ErrNoRows) {
		return contract.ErrNotFound
	}
	if err := c.store.Delete(identity); err != nil {
		return &contract.CacheError{Op: "delete", Key: identity, Err: err}
	}
	return nil
}

// GetStatus returns status information about the underlying store.
func (c *SQLResultCache) GetStatus() (schema.CacheStatus, error) {
	return c.store.GetStatus()
}

// Clear removes every cached document.
func (c *SQLResultCache) Clear() error {
	keys, err := c.store.Keys()
	if err != nil {
		return &contract.CacheError{Op: "clear", Err: err}
	}
	for _, key := range keys {
		if err := c.store.Delete(key); err != nil {
			return &contract.CacheError{Op: "clear", Key: key, Err: err}
		}
	}
	return nil
}

// Close closes the underlying store.
func (c *SQLResultCache) Close() error {
	return c.store.Close()
}
