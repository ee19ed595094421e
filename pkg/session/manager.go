package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SweepInterval is how often the staleness sweep runs.
const SweepInterval = 60 * time.Second

// CloseFunc is invoked for each stale session; it must close the
// owning connection, which drives the normal unregister path.
type CloseFunc func(connID string, s *Session)

// Manager is the connection→session registry. It owns lifecycle
// (create, lookup, destroy) and the periodic staleness sweep; it never
// mutates session content.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

func (m *Manager) Create(connID string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[connID] = s
}

// Lookup returns the session for a connection, or nil.
func (m *Manager) Lookup(connID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[connID]
}

func (m *Manager) Destroy(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, connID)
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// SweepStale collects idle sessions and invokes close on each outside
// the registry lock. Returns how many were swept.
func (m *Manager) SweepStale(close CloseFunc) int {
	m.mu.Lock()
	stale := make(map[string]*Session)
	for id, s := range m.sessions {
		if s.IsStale() {
			stale[id] = s
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for id, s := range stale {
		m.logger.Info("closing stale session", "session_id", s.ID().String())
		if close != nil {
			close(id, s)
		}
	}
	return len(stale)
}

// StartSweeper runs the staleness sweep on a fixed interval until ctx
// is cancelled.
func (m *Manager) StartSweeper(ctx context.Context, close CloseFunc) {
	go func() {
		ticker := time.NewTicker(SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SweepStale(close)
			}
		}
	}()
}
