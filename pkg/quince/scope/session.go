package scope

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// DefaultSessionTTL is the default session duration.
const DefaultSessionTTL = 24 * time.Hour

// Sessions owns the per-user Session stores. Stores outlive individual
// requests and expire after a period of inactivity.
type Sessions struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*sessionEntry
	now     func() time.Time // swappable for tests
}

type sessionEntry struct {
	store     *Store
	expiresAt time.Time
}

// NewSessions creates a session registry. ttl <= 0 uses DefaultSessionTTL.
func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{
		ttl:     ttl,
		entries: make(map[string]*sessionEntry),
		now:     time.Now,
	}
}

// Get returns the store for a session ID, creating it when absent and
// extending its expiry. Concurrent requests for the same session share one
// store; the store's own lock serializes their writes.
func (s *Sessions) Get(id string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[id]; ok && now.Before(e.expiresAt) {
		e.expiresAt = now.Add(s.ttl)
		return e.store
	}

	e := &sessionEntry{store: NewStore(), expiresAt: now.Add(s.ttl)}
	s.entries[id] = e
	return e.store
}

// Delete removes a session (logout).
func (s *Sessions) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Prune drops expired sessions and returns how many were removed.
func (s *Sessions) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// NewSessionID generates a random, URL-safe session identifier.
func NewSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
