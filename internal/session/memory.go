// ABOUTME: In-memory session store with periodic expiry sweeps
// ABOUTME: Default backend for single-process deployments and tests

package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps session records in a mutex-guarded map. A background
// janitor sweeps expired records once a minute; Get treats expired records
// as absent in the meantime.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	cancel  context.CancelFunc
}

// NewMemoryStore creates a memory store and starts its cleanup loop
func NewMemoryStore() *MemoryStore {
	ctx, cancel := context.WithCancel(context.Background())
	s := &MemoryStore{
		records: make(map[string]*Record),
		cancel:  cancel,
	}
	go s.cleanupLoop(ctx)
	return s
}

// Get returns a copy of the record for token, or ErrNotFound
func (s *MemoryStore) Get(_ context.Context, token string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[token]
	if !ok || time.Now().After(rec.ExpiresAt) {
		return nil, ErrNotFound
	}

	cp := *rec
	if rec.Ceremony != nil {
		ceremony := *rec.Ceremony
		cp.Ceremony = &ceremony
	}
	return &cp, nil
}

// Put stores a copy of rec keyed by its token
func (s *MemoryStore) Put(_ context.Context, rec *Record) error {
	cp := *rec
	if rec.Ceremony != nil {
		ceremony := *rec.Ceremony
		cp.Ceremony = &ceremony
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Token] = &cp
	return nil
}

// Delete removes the record for token if present
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, token)
	return nil
}

// Close stops the cleanup loop
func (s *MemoryStore) Close() error {
	s.cancel()
	return nil
}

func (s *MemoryStore) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *MemoryStore) removeExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, rec := range s.records {
		if now.After(rec.ExpiresAt) {
			delete(s.records, token)
		}
	}
}
