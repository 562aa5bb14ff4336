package cache

import (
	"sync"
	"time"
)

// MemoryStore is the in-process cache tier. It is the only structure in the
// core mutated from multiple concurrent call sites; every mutation swaps a
// whole entry pointer so readers never observe a half-written entry.
type MemoryStore struct {
	entries map[string]*Entry
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-process tier
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

// Get returns a copy of the entry, or false when absent or expired. Expired
// entries are removed lazily here so stale state is never served even before
// the background sweep runs.
func (s *MemoryStore) Get(key string) (*Entry, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if entry.Expired(time.Now()) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// refreshed the entry.
		if current, ok := s.entries[key]; ok && current.Expired(time.Now()) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false
	}

	return entry.clone(), true
}

// Set stores an entry, replacing any previous value wholesale
func (s *MemoryStore) Set(entry *Entry) {
	stored := entry.clone()
	s.mu.Lock()
	s.entries[entry.Key] = stored
	s.mu.Unlock()
}

// Update merges a patch into an existing entry and returns the merged copy.
// It returns false when the key does not exist; it never creates a partial
// entry.
func (s *MemoryStore) Update(key string, patch Patch) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[key]
	if !ok || current.Expired(time.Now()) {
		return nil, false
	}

	merged := current.clone()
	if patch.LastTraded != nil {
		merged.LastTraded = *patch.LastTraded
	}
	if len(patch.Metadata) > 0 {
		if merged.Metadata == nil {
			merged.Metadata = make(map[string]string, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			merged.Metadata[k] = v
		}
	}

	s.entries[key] = merged
	return merged.clone(), true
}

// Delete removes an entry
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// GetAll returns copies of all live entries
func (s *MemoryStore) GetAll() map[string]*Entry {
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*Entry, len(s.entries))
	for key, entry := range s.entries {
		if entry.Expired(now) {
			continue
		}
		result[key] = entry.clone()
	}
	return result
}

// Len returns the number of entries currently held, expired or not
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SweepExpired removes every entry past its TTL and returns the evicted keys
func (s *MemoryStore) SweepExpired(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
			evicted = append(evicted, key)
		}
	}
	return evicted
}
