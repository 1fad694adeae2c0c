package mcp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// sessionLimit caps the session table. Creating past it drops the
	// least recently active session.
	sessionLimit = 1000

	sessionIdleTTL    = 30 * time.Minute
	sessionSweepEvery = 5 * time.Minute
)

// Session is one initialized MCP client. Its ID travels in the
// Mcp-Session-Id header.
type Session struct {
	ID      string
	Client  ClientInfo
	Started time.Time
	Active  time.Time
}

// SessionManager tracks client sessions between initialize and DELETE.
// Sessions carry no authorization state; they exist so idle clients can be
// dropped.
type SessionManager struct {
	mu   sync.Mutex
	byID map[string]*Session
	now  func() time.Time
}

func NewSessionManager() *SessionManager {
	return &SessionManager{byID: make(map[string]*Session), now: time.Now}
}

// Create registers a session for client.
func (m *SessionManager) Create(client ClientInfo) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.byID) >= sessionLimit {
		m.dropIdlest()
	}
	at := m.now()
	s := &Session{ID: uuid.NewString(), Client: client, Started: at, Active: at}
	m.byID[s.ID] = s
	return s
}

// m.mu must be held.
func (m *SessionManager) dropIdlest() {
	var idlest *Session
	for _, s := range m.byID {
		if idlest == nil || s.Active.Before(idlest.Active) {
			idlest = s
		}
	}
	if idlest != nil {
		delete(m.byID, idlest.ID)
	}
}

// Touch marks id as active and reports whether it is a live session.
func (m *SessionManager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if ok {
		s.Active = m.now()
	}
	return ok
}

func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	delete(m.byID, id)
	m.mu.Unlock()
}

// Sweep drops sessions idle for longer than ttl. It returns how many were
// dropped and how many are left.
func (m *SessionManager) Sweep(ttl time.Duration) (dropped, live int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-ttl)
	for id, s := range m.byID {
		if s.Active.Before(cutoff) {
			delete(m.byID, id)
			dropped++
		}
	}
	return dropped, len(m.byID)
}
