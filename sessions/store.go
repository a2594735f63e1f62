// Package sessions caches per-browser-session tokens, keyed by the opaque
// session identifier minted by the cookie middleware.
package sessions

import (
	"sync"
	"time"
)

// Session is the token state cached for one browser session.
type Session struct {
	AccessToken string
	IDToken     string

	// ExpiresAt is the absolute instant captured when the token response
	// was received plus its expires_in. It is never recomputed.
	ExpiresAt time.Time
}

// Store holds session token state. Implementations must be safe for
// concurrent use; Put replaces any prior state for the identifier as a
// single atomic operation.
type Store interface {
	Put(sessionID string, s Session)
	Get(sessionID string) (Session, bool)
	IsAuthenticated(sessionID string, now time.Time) bool
	Clear(sessionID string)
}

// MemoryStore is an in-memory Store. Expired sessions are treated as
// anonymous on read rather than proactively purged; the cookie middleware
// already bounds session lifetime.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

// Put stores the session state, overwriting any prior state for the
// identifier.
func (m *MemoryStore) Put(sessionID string, s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = s
}

// Get returns the stored session state, if any.
func (m *MemoryStore) Get(sessionID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// IsAuthenticated reports whether the session holds an access token that is
// still valid at the given instant. At exactly ExpiresAt the session is
// expired.
func (m *MemoryStore) IsAuthenticated(sessionID string, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return ok && s.AccessToken != "" && now.Before(s.ExpiresAt)
}

// Clear removes the session state. Clearing an unknown or already-anonymous
// session is a no-op.
func (m *MemoryStore) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}
