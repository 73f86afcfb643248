// Package store provides the volatile, in-process validation-result store.
// Entries are immutable value snapshots with a timestamp; a stale entry is
// simply recomputed and overwritten by the caller (last-writer-wins, which is
// safe because validation is idempotent). Nothing here survives a restart.
package store

import (
	"sync"
	"time"

	"github.com/partfinder/identify/models"
)

// Config contains store configuration.
type Config struct {
	TTL time.Duration // entry time-to-live
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{TTL: 24 * time.Hour}
}

type entry struct {
	result models.ValidationResult
	at     time.Time
}

// Store is a TTL-bounded map from candidate URL to validation result,
// shared across concurrent requests.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// New creates a new Store.
func New(cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	return &Store{
		entries: make(map[string]entry),
		ttl:     cfg.TTL,
		now:     time.Now,
	}
}

// Get returns the cached result for url if present and fresh.
func (s *Store) Get(url string) (models.ValidationResult, bool) {
	s.mu.RLock()
	e, ok := s.entries[url]
	s.mu.RUnlock()
	if !ok || s.now().Sub(e.at) > s.ttl {
		return models.ValidationResult{}, false
	}
	return e.result, true
}

// Save stores a result for url, replacing any previous entry.
func (s *Store) Save(url string, res models.ValidationResult) {
	s.mu.Lock()
	s.entries[url] = entry{result: res, at: s.now()}
	s.mu.Unlock()
}

// Count returns the number of entries, fresh or stale. Used by /health.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// PurgeExpired removes stale entries and returns how many were dropped.
func (s *Store) PurgeExpired() int {
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for url, e := range s.entries {
		if e.at.Before(cutoff) {
			delete(s.entries, url)
			dropped++
		}
	}
	return dropped
}

// SetClock overrides the store's clock. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}
