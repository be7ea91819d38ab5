package iocache

import (
	"sync"

	"github.com/huangsam/xray/internal/contract"
)

// CacheStoreManager manages the durable stores.
type CacheStoreManager struct {
	sync.RWMutex // Protects the store pointers during initialization
	results      contract.ResultCache
	runs         contract.RunStore
}

var _ contract.CacheManager = &CacheStoreManager{} // Compile-time check

// GetResultCache returns the result cache.
func (mgr *CacheStoreManager) GetResultCache() contract.ResultCache {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.results
}

// GetRunStore returns the run store, or nil when run tracking is disabled.
func (mgr *CacheStoreManager) GetRunStore() contract.RunStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.runs
}
