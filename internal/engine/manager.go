package engine

import (
	"sync"

	"github.com/legalconnect/scheduler/internal/cache"
	"github.com/legalconnect/scheduler/internal/gateway"
	"github.com/legalconnect/scheduler/internal/model"
	"github.com/legalconnect/scheduler/internal/service/appointment"
	"github.com/legalconnect/scheduler/internal/service/refresh"
	"github.com/legalconnect/scheduler/pkg/clock"
	"github.com/legalconnect/scheduler/pkg/logger"
)

// Manager hands out one Session per user id.
type Manager struct {
	api          gateway.API
	availability *cache.Availability
	appointments *appointment.Service
	coordinator  *refresh.Coordinator
	clk          clock.Clock
	log          *logger.Logger

	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewManager(api gateway.API, availability *cache.Availability, appts *appointment.Service, coord *refresh.Coordinator, clk clock.Clock, log *logger.Logger) *Manager {
	return &Manager{
		api:          api,
		availability: availability,
		appointments: appts,
		coordinator:  coord,
		clk:          clk,
		log:          log,
		sessions:     make(map[int64]*Session),
	}
}

// Session returns the existing session for the user or creates one with
// the given role. A role change on an existing session is ignored;
// sessions are keyed by user, not by claim.
func (m *Manager) Session(userID int64, role model.Role) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s
	}
	s := NewSession(userID, role, m.api, m.availability, m.appointments, m.coordinator, m.clk, m.log)
	m.sessions[userID] = s
	return s
}

// Drop closes and removes a user's session.
func (m *Manager) Drop(userID int64) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Close shuts down every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[int64]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
