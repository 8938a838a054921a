package httpserver

import (
	"sync"
	"time"

	"github.com/foodmine/literature-mining-service/internal/store"
)

// Session lifecycle states exposed by the scrapes API.
const (
	sessionStatusRunning   = "running"
	sessionStatusCompleted = "completed"
	sessionStatusFailed    = "failed"
)

// sessionState tracks one background scrape session.
type sessionState struct {
	SessionID string               `json:"session_id"`
	Status    string               `json:"status"`
	Keyword   string               `json:"keyword"`
	StartedAt time.Time            `json:"started_at"`
	Report    *store.SessionReport `json:"report,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// sessionStore is an in-memory index of scrape sessions started through the
// API. Sessions are kept for the lifetime of the process; a restart forgets
// them, which is acceptable because every batch's writes are already durable.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]sessionState
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]sessionState)}
}

func (s *sessionStore) start(sessionID, keyword string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = sessionState{
		SessionID: sessionID,
		Status:    sessionStatusRunning,
		Keyword:   keyword,
		StartedAt: time.Now().UTC(),
	}
}

func (s *sessionStore) complete(sessionID string, report *store.SessionReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.sessions[sessionID]
	state.Status = sessionStatusCompleted
	state.Report = report
	s.sessions[sessionID] = state
}

func (s *sessionStore) fail(sessionID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.sessions[sessionID]
	state.Status = sessionStatusFailed
	state.Error = err.Error()
	s.sessions[sessionID] = state
}

func (s *sessionStore) get(sessionID string) (sessionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	return state, ok
}
