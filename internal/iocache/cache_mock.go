package iocache

import (
	"time"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
	"github.com/stretchr/testify/mock"
)

// MockCacheManager is a mock implementation of CacheManager for testing.
type MockCacheManager struct {
	mock.Mock
}

var _ contract.CacheManager = &MockCacheManager{} // Compile-time check

// GetResultCache implements the CacheManager interface.
func (m *MockCacheManager) GetResultCache() contract.ResultCache {
	ret := m.Called()
	cache, _ := ret.Get(0).(contract.ResultCache)
	return cache
}

// GetRunStore implements the CacheManager interface.
func (m *MockCacheManager) GetRunStore() contract.RunStore {
	ret := m.Called()
	store, _ := ret.Get(0).(contract.RunStore)
	return store
}

// MockCacheStore is a mock implementation of CacheStore for testing.
type MockCacheStore struct {
	mock.Mock
}

var _ contract.CacheStore = &MockCacheStore{} // Compile-time check

// Get implements the CacheStore interface.
func (m *MockCacheStore) Get(key string) ([]byte, int, int64, error) {
	args := m.Called(key)
	data, _ := args.Get(0).([]byte)
	return data, args.Int(1), args.Get(2).(int64), args.Error(3)
}

// Set implements the CacheStore interface.
func (m *MockCacheStore) Set(key string, data []byte, version int, ts int64) error {
	args := m.Called(key, data, version, ts)
	return args.Error(0)
}

// Delete implements the CacheStore interface.
func (m *MockCacheStore) Delete(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

// Keys implements the CacheStore interface.
func (m *MockCacheStore) Keys() ([]string, error) {
	args := m.Called()
	keys, _ := args.Get(0).([]string)
	return keys, args.Error(1)
}

// GetStatus implements the CacheStore interface.
func (m *MockCacheStore) GetStatus() (schema.CacheStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.CacheStatus), args.Error(1)
}

// Close implements the CacheStore interface.
func (m *MockCacheStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockResultCache is a mock implementation of ResultCache for testing.
type MockResultCache struct {
	mock.Mock
}

var _ contract.ResultCache = &MockResultCache{} // Compile-time check

// Put implements the ResultCache interface.
func (m *MockResultCache) Put(entry *schema.CacheEntry) error {
	args := m.Called(entry)
	return args.Error(0)
}

// Get implements the ResultCache interface.
func (m *MockResultCache) Get(identity string) (*schema.CacheEntry, error) {
	args := m.Called(identity)
	entry, _ := args.Get(0).(*schema.CacheEntry)
	return entry, args.Error(1)
}

// List implements the ResultCache interface.
func (m *MockResultCache) List() ([]schema.CachedSummary, error) {
	args := m.Called()
	list, _ := args.Get(0).([]schema.CachedSummary)
	return list, args.Error(1)
}

// Delete implements the ResultCache interface.
func (m *MockResultCache) Delete(identity string) error {
	args := m.Called(identity)
	return args.Error(0)
}

// GetStatus implements the ResultCache interface.
func (m *MockResultCache) GetStatus() (schema.CacheStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.CacheStatus), args.Error(1)
}

// Clear implements the ResultCache interface.
func (m *MockResultCache) Clear() error {
	args := m.Called()
	return args.Error(0)
}

// Close implements the ResultCache interface.
func (m *MockResultCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockRunStore is a mock implementation of RunStore for testing.
type MockRunStore struct {
	mock.Mock
}

var _ contract.RunStore = &MockRunStore{} // Compile-time check

// BeginRun implements the RunStore interface.
func (m *MockRunStore) BeginRun(jobID, identity string, months int, startTime time.Time) (int64, error) {
	args := m.Called(jobID, identity, months, startTime)
	return args.Get(0).(int64), args.Error(1)
}

// EndRun implements the RunStore interface.
func (m *MockRunStore) EndRun(runID int64, outcome schema.RunOutcome) error {
	args := m.Called(runID, outcome)
	return args.Error(0)
}

// RecordModule implements the RunStore interface.
func (m *MockRunStore) RecordModule(runID int64, analysisTime time.Time, module schema.Module) error {
	args := m.Called(runID, analysisTime, module)
	return args.Error(0)
}

// GetStatus implements the RunStore interface.
func (m *MockRunStore) GetStatus() (schema.RunStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.RunStatus), args.Error(1)
}

// GetAllRuns implements the RunStore interface.
func (m *MockRunStore) GetAllRuns() ([]schema.RunRecord, error) {
	args := m.Called()
	runs, _ := args.Get(0).([]schema.RunRecord)
	return runs, args.Error(1)
}

// GetAllModuleSnapshots implements the RunStore interface.
func (m *MockRunStore) GetAllModuleSnapshots() ([]schema.ModuleSnapshotRecord, error) {
	args := m.Called()
	snapshots, _ := args.Get(0).([]schema.ModuleSnapshotRecord)
	return snapshots, args.Error(1)
}

// Close implements the RunStore interface.
func (m *MockRunStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
