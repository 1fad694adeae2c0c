package mcp

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeClock is a settable time source for session tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClockedSessions() (*SessionManager, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := NewSessionManager()
	m.now = clock.now
	return m, clock
}

func TestSessionManager_Create(t *testing.T) {
	m, clock := newClockedSessions()
	s := m.Create(ClientInfo{Name: "inspector", Version: "0.9"})

	if _, err := uuid.Parse(s.ID); err != nil {
		t.Fatalf("session ID %q is not a UUID: %v", s.ID, err)
	}
	if s.Client.Name != "inspector" || !s.Started.Equal(clock.now()) {
		t.Errorf("session = %+v", s)
	}
	if !m.Touch(s.ID) {
		t.Error("new session is not live")
	}
	if m.Touch("missing") {
		t.Error("unknown session reported live")
	}
}

func TestSessionManager_LimitDropsIdlest(t *testing.T) {
	m, clock := newClockedSessions()
	idle := m.Create(ClientInfo{Name: "idle"})
	clock.advance(time.Minute)

	for range sessionLimit {
		m.Create(ClientInfo{Name: "filler"})
	}
	if m.Touch(idle.ID) {
		t.Error("idlest session survived the limit")
	}
	if _, live := m.Sweep(time.Hour); live != sessionLimit {
		t.Errorf("live = %d, want %d", live, sessionLimit)
	}
}

func TestSessionManager_Sweep(t *testing.T) {
	m, clock := newClockedSessions()
	stale := m.Create(ClientInfo{Name: "stale"})
	kept := m.Create(ClientInfo{Name: "kept"})

	clock.advance(45 * time.Minute)
	m.Touch(kept.ID)
	clock.advance(time.Minute)

	dropped, live := m.Sweep(sessionIdleTTL)
	if dropped != 1 || live != 1 {
		t.Errorf("Sweep = (%d, %d), want (1, 1)", dropped, live)
	}
	if m.Touch(stale.ID) {
		t.Error("stale session survived the sweep")
	}
	if !m.Touch(kept.ID) {
		t.Error("recently touched session was dropped")
	}
}

func TestSessionManager_Delete(t *testing.T) {
	m, _ := newClockedSessions()
	s := m.Create(ClientInfo{Name: "c"})
	m.Delete(s.ID)
	m.Delete(s.ID)

	if m.Touch(s.ID) {
		t.Error("deleted session still live")
	}
	if _, live := m.Sweep(time.Hour); live != 0 {
		t.Errorf("live = %d after delete", live)
	}
}

func TestSessionManager_Concurrent(t *testing.T) {
	m := NewSessionManager()
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := m.Create(ClientInfo{Name: "c"})
			m.Touch(s.ID)
			m.Sweep(time.Hour)
		}()
	}
	wg.Wait()
	if _, live := m.Sweep(time.Hour); live != 20 {
		t.Errorf("live = %d, want 20", live)
	}
}

func TestGateway_SweepSessionsLogsLiveCount(t *testing.T) {
	var buf bytes.Buffer
	g := NewGateway(nil, nil, nil, nil, nil)
	g.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	g.sessions.now = clock.now
	g.sessions.Create(ClientInfo{Name: "old"})
	clock.advance(sessionIdleTTL + time.Minute)
	g.sessions.Create(ClientInfo{Name: "new"})

	g.sweepSessions()
	out := buf.String()
	if !strings.Contains(out, "idle sessions dropped") || !strings.Contains(out, "dropped=1") || !strings.Contains(out, "live=1") {
		t.Errorf("log = %q", out)
	}

	buf.Reset()
	g.sweepSessions()
	if !strings.Contains(buf.String(), "session sweep") || !strings.Contains(buf.String(), "live=1") {
		t.Errorf("log = %q", buf.String())
	}
}
