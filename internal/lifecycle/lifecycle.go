// Package lifecycle opens, keeps alive and closes a tab's analytics session.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/domain"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/transport"
)

// HeartbeatInterval is the period between heartbeats while the session is
// active.
const HeartbeatInterval = 30 * time.Second

// State of a session within its tab.
type State int

const (
	StateUninitialized State = iota
	StateActive
	// StateClosed follows a hide or unload. A visible signal before release
	// is the only way back to StateActive.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// Visibility of the page.
type Visibility int

const (
	Visible Visibility = iota
	Hidden
)

// Environment describes the tab at session start.
type Environment struct {
	UserAgent     string
	Referrer      string // raw referring URL, empty for direct visits
	ViewportWidth int
	ScreenWidth   int
	ScreenHeight  int
}

// Manager drives one session through Uninitialized, Active and Closed.
// Every transport call runs on its own goroutine and is never retried.
type Manager struct {
	sessionID string
	env       Environment
	submitter transport.Submitter
	clock     clockwork.Clock
	log       logger.Logger

	mu        sync.Mutex
	state     State
	startedAt time.Time
	ticker    clockwork.Ticker
	stop      chan struct{}
	loopDone  chan struct{}
	released  bool

	inflight sync.WaitGroup
}

// New creates a Manager for sessionID.
func New(sessionID string, env Environment, submitter transport.Submitter, clk clockwork.Clock, log logger.Logger) *Manager {
	return &Manager{
		sessionID: sessionID,
		env:       env,
		submitter: submitter,
		clock:     clk,
		log:       log.With(logger.String("session_id", sessionID)),
	}
}

// SessionID returns the id this manager reports under.
func (m *Manager) SessionID() string { return m.sessionID }

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StartedAt returns when Start ran, or the zero time.
func (m *Manager) StartedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startedAt
}

// Start opens the session and starts the heartbeat ticker. Only the first
// call has any effect.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateUninitialized || m.released {
		m.mu.Unlock()
		return
	}
	m.state = StateActive
	m.startedAt = m.clock.Now()
	m.ticker = m.clock.NewTicker(HeartbeatInterval)
	m.stop = make(chan struct{})
	m.loopDone = make(chan struct{})
	go m.heartbeatLoop(context.WithoutCancel(ctx), m.ticker, m.stop, m.loopDone)
	m.mu.Unlock()

	m.log.Debug("Session started")
	m.submit(ctx, transport.ActionCreateSession, transport.CreateSession{
		SessionID:    m.sessionID,
		DeviceType:   domain.DeviceTypeForWidth(m.env.ViewportWidth),
		Referrer:     domain.ReferrerSource(m.env.Referrer),
		UserAgent:    m.env.UserAgent,
		ScreenWidth:  m.env.ScreenWidth,
		ScreenHeight: m.env.ScreenHeight,
		IsActive:     true,
	})
}

func (m *Manager) heartbeatLoop(ctx context.Context, ticker clockwork.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ticker.Chan():
			m.Heartbeat(ctx)
		case <-stop:
			return
		}
	}
}

// Heartbeat reports the session alive. It does nothing unless Active.
func (m *Manager) Heartbeat(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return
	}
	now := m.clock.Now().UTC()
	m.mu.Unlock()

	m.submit(ctx, transport.ActionUpdateSession, transport.UpdateSession{
		SessionID:     m.sessionID,
		LastHeartbeat: &now,
		IsActive:      true,
	})
}

// HandleVisibility closes the session when the page is hidden. When the
// page becomes visible again the session resumes and heartbeats at once.
func (m *Manager) HandleVisibility(ctx context.Context, v Visibility) {
	if v == Hidden {
		m.Close(ctx)
		return
	}

	m.mu.Lock()
	if m.state == StateClosed && !m.released {
		m.state = StateActive
		m.log.Debug("Session resumed")
	}
	m.mu.Unlock()

	m.Heartbeat(ctx)
}

// HandleUnload closes the session and releases its timer.
func (m *Manager) HandleUnload(ctx context.Context) {
	m.Close(ctx)
	m.Release()
}

// Close reports the session ended now. A repeated close sends another
// complete record; the server keeps the last one.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	if m.state == StateUninitialized {
		m.mu.Unlock()
		return
	}
	m.state = StateClosed
	now := m.clock.Now().UTC()
	duration := domain.DurationBetween(m.startedAt, now)
	m.mu.Unlock()

	m.log.Debug("Session closed", logger.Int("duration_seconds", duration))
	m.submit(ctx, transport.ActionUpdateSession, transport.UpdateSession{
		SessionID:       m.sessionID,
		EndedAt:         &now,
		DurationSeconds: &duration,
		IsActive:        false,
	})
}

// Release stops the heartbeat ticker. It is safe to call more than once.
func (m *Manager) Release() {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return
	}
	m.released = true
	done := m.loopDone
	if m.ticker != nil {
		m.ticker.Stop()
		close(m.stop)
	}
	m.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Wait blocks until every submitted call has returned.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

func (m *Manager) submit(ctx context.Context, action transport.Action, payload any) {
	detached := context.WithoutCancel(ctx)
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		if !m.submitter.Submit(detached, action, payload) {
			m.log.Warn("Session update not delivered", logger.String("action", string(action)))
		}
	}()
}
