package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/domain"
)

// memStore mirrors the repository's write semantics in memory.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	order    []string
	events   []domain.Event
	failWith error
	queueCap int
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*domain.Session), queueCap: -1}
}

func (m *memStore) CreateSession(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	existing, ok := m.sessions[s.SessionID]
	if !ok {
		cp := *s
		cp.LastHeartbeat = s.StartedAt
		m.sessions[s.SessionID] = &cp
		m.order = append(m.order, s.SessionID)
		return nil
	}

	// A row without a device type was opened by an update that came first.
	pending := existing.DeviceType == ""
	existing.DeviceType = s.DeviceType
	existing.Referrer = s.Referrer
	existing.UserAgent = s.UserAgent
	existing.ScreenWidth = s.ScreenWidth
	existing.ScreenHeight = s.ScreenHeight
	if s.StartedAt.Before(existing.StartedAt) {
		existing.StartedAt = s.StartedAt
	}
	if s.StartedAt.After(existing.LastHeartbeat) {
		existing.LastHeartbeat = s.StartedAt
	}
	if !pending {
		existing.IsActive = true
		existing.EndedAt = nil
		existing.DurationSeconds = nil
	}
	return nil
}

// open adds a row for an update that arrived before its create.
func (m *memStore) open(id string, startedAt time.Time) *domain.Session {
	s := &domain.Session{
		SessionID:     id,
		Referrer:      domain.ReferrerDirect,
		StartedAt:     startedAt,
		LastHeartbeat: startedAt,
		IsActive:      true,
	}
	m.sessions[id] = s
	m.order = append(m.order, id)
	return s
}

func (m *memStore) Heartbeat(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	s, ok := m.sessions[id]
	if !ok {
		m.open(id, at)
		return nil
	}
	if at.After(s.LastHeartbeat) {
		s.LastHeartbeat = at
	}
	if s.EndedAt == nil || at.After(*s.EndedAt) {
		s.IsActive = true
	}
	return nil
}

func (m *memStore) CloseSession(_ context.Context, id string, endedAt time.Time, duration *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	s, ok := m.sessions[id]
	if !ok {
		start := endedAt
		if duration != nil {
			start = endedAt.Add(-time.Duration(*duration) * time.Second)
		}
		s = m.open(id, start)
	}
	d := domain.DurationBetween(s.StartedAt, endedAt)
	if duration != nil {
		d = *duration
	}
	s.EndedAt = &endedAt
	s.DurationSeconds = &d
	s.IsActive = false
	return nil
}

// Send stores the event immediately; a queueCap of 0 rejects everything.
func (m *memStore) Send(e domain.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queueCap >= 0 && len(m.events) >= m.queueCap {
		return false
	}
	m.events = append(m.events, e)
	if e.EventType == domain.EventPageView {
		if s, ok := m.sessions[e.SessionID]; ok {
			s.PageCount++
		}
	}
	return true
}

func (m *memStore) ListSessions(context.Context) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]domain.Session, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.sessions[id])
	}
	return out, nil
}

func (m *memStore) ListEvents(context.Context) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.events...), nil
}

func (m *memStore) session(id string) domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.sessions[id]
}
