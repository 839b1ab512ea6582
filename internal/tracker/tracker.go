// Package tracker emits page view, button click and scroll depth events for
// a tab's session.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/domain"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/transport"
)

// ScrollDebounce is the quiet period after the last scroll sample before
// thresholds are evaluated.
const ScrollDebounce = 100 * time.Millisecond

// Tracker emits events tied to one session id. Emission is fire-and-forget.
type Tracker struct {
	sessionID string
	submitter transport.Submitter
	clock     clockwork.Clock
	log       logger.Logger

	mu       sync.Mutex
	path     string
	scroll   ScrollState
	released bool

	inflight sync.WaitGroup
}

// New creates a Tracker for sessionID.
func New(sessionID string, submitter transport.Submitter, clk clockwork.Clock, log logger.Logger) *Tracker {
	return &Tracker{
		sessionID: sessionID,
		submitter: submitter,
		clock:     clk,
		log:       log.With(logger.String("session_id", sessionID)),
		scroll:    newScrollState(),
	}
}

// CurrentPath returns the path of the last page view.
func (t *Tracker) CurrentPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path
}

// ConsumedThresholds returns the scroll thresholds already reported for the
// current page.
func (t *Tracker) ConsumedThresholds() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scroll.Consumed()
}

// TrackPageView reports a navigation to path and starts fresh scroll
// bookkeeping for it.
func (t *Tracker) TrackPageView(ctx context.Context, path string) {
	t.mu.Lock()
	t.path = path
	t.scroll.reset()
	t.mu.Unlock()

	t.emit(ctx, transport.TrackEvent{
		EventType: domain.EventPageView,
		PagePath:  path,
	})
}

// TrackButtonClick reports a click on an opted-in element. Elements without
// a tracking id are ignored.
func (t *Tracker) TrackButtonClick(ctx context.Context, elementID, buttonText string) {
	if elementID == "" {
		return
	}

	ev := transport.TrackEvent{
		EventType: domain.EventButtonClick,
		EventName: buttonText,
		PagePath:  t.CurrentPath(),
		ElementID: elementID,
	}
	if buttonText != "" {
		ev.Metadata = map[string]any{"button_text": buttonText}
	}
	t.emit(ctx, ev)
}

// TrackScrollDepth reports that the visitor reached percent of the page.
func (t *Tracker) TrackScrollDepth(ctx context.Context, percent int) {
	t.emit(ctx, scrollEvent(percent, t.CurrentPath()))
}

func scrollEvent(percent int, path string) transport.TrackEvent {
	depth := percent
	return transport.TrackEvent{
		EventType:   domain.EventScrollDepth,
		EventName:   fmt.Sprintf("scroll_%d%%", percent),
		PagePath:    path,
		ScrollDepth: &depth,
	}
}

// HandleScroll records a scroll sample. Thresholds are evaluated once
// ScrollDebounce passes without another sample; an evaluation scheduled
// before a navigation is discarded.
func (t *Tracker) HandleScroll(ctx context.Context, pos ScrollPosition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return
	}

	t.scroll.cancel()
	t.scroll.latest = pos
	t.scroll.ticket++
	generation, ticket := t.scroll.generation, t.scroll.ticket
	t.scroll.timer = t.clock.AfterFunc(ScrollDebounce, func() {
		t.evaluateScroll(ctx, generation, ticket)
	})
}

// evaluateScroll runs when a debounce timer fires. A timer that already
// started running when it was superseded sees a stale ticket and exits.
// Reached thresholds are counted in flight before the lock is released so
// Wait covers them once ConsumedThresholds reports them.
func (t *Tracker) evaluateScroll(ctx context.Context, generation, ticket uint64) {
	t.mu.Lock()
	if t.released || generation != t.scroll.generation || ticket != t.scroll.ticket {
		t.mu.Unlock()
		return
	}
	t.scroll.timer = nil
	pos := t.scroll.latest
	path := t.path
	reached := t.scroll.reach(ScrollPercent(pos.ScrollY, pos.DocumentHeight, pos.ViewportHeight))
	t.inflight.Add(len(reached))
	t.mu.Unlock()

	for _, threshold := range reached {
		t.dispatch(ctx, scrollEvent(threshold, path))
	}
}

// Release cancels a pending scroll evaluation. It is safe to call more than
// once.
func (t *Tracker) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.released = true
	t.scroll.cancel()
}

// Wait blocks until every emitted event has been handed to the transport.
func (t *Tracker) Wait() {
	t.inflight.Wait()
}

func (t *Tracker) emit(ctx context.Context, ev transport.TrackEvent) {
	t.inflight.Add(1)
	t.dispatch(ctx, ev)
}

// dispatch submits ev on its own goroutine. The caller has already counted
// it in inflight.
func (t *Tracker) dispatch(ctx context.Context, ev transport.TrackEvent) {
	ev.SessionID = t.sessionID
	detached := context.WithoutCancel(ctx)

	go func() {
		defer t.inflight.Done()
		if !t.submitter.Submit(detached, transport.ActionTrackEvent, ev) {
			t.log.Warn("Event not delivered",
				logger.String("event_type", string(ev.EventType)),
				logger.String("page_path", ev.PagePath),
			)
		}
	}()
}
