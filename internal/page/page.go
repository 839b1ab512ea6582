// Package page hosts the tracking components for one browser tab and feeds
// them the tab's signals one at a time.
package page

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"

	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/identity"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/tracker"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/transport"
)

// ErrClosed is returned when a signal is sent to a page that has unloaded.
var ErrClosed = errors.New("page context closed")

// Kind identifies a tab signal.
type Kind int

const (
	KindNavigate Kind = iota
	KindScroll
	KindClick
	KindVisibility
	KindUnload
)

// Signal is one browser event delivered to the page.
type Signal struct {
	Kind       Kind
	Path       string
	Scroll     tracker.ScrollPosition
	ElementID  string
	ButtonText string
	Visibility lifecycle.Visibility
}

// Config wires a page context.
type Config struct {
	// Storage is the tab storage; reuse it across loads of the same tab.
	Storage     identity.Storage
	Environment lifecycle.Environment
	Submitter   transport.Submitter
	Clock       clockwork.Clock
	Logger      logger.Logger
	// InitialPath is the path of the first page view.
	InitialPath string
}

// Context is one loaded page. Run processes signals sequentially until the
// page unloads or ctx is cancelled.
type Context struct {
	sessionID string
	initial   string
	lifecycle *lifecycle.Manager
	tracker   *tracker.Tracker
	log       logger.Logger

	signals chan envelope
	done    chan struct{}
}

type envelope struct {
	sig     Signal
	handled chan struct{}
}

// New resolves the tab's session id and builds the lifecycle manager and
// tracker around it.
func New(cfg Config) *Context {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.InitialPath == "" {
		cfg.InitialPath = "/"
	}

	sessionID := identity.NewStore(cfg.Storage, cfg.Clock, cfg.Logger).GetOrCreateSessionID()
	manager := lifecycle.New(sessionID, cfg.Environment, cfg.Submitter, cfg.Clock, cfg.Logger)

	return &Context{
		sessionID: sessionID,
		initial:   cfg.InitialPath,
		lifecycle: manager,
		tracker:   tracker.New(manager.SessionID(), cfg.Submitter, cfg.Clock, cfg.Logger),
		log:       cfg.Logger.With(logger.String("session_id", sessionID)),
		signals:   make(chan envelope),
		done:      make(chan struct{}),
	}
}

// SessionID returns the tab's session id.
func (p *Context) SessionID() string { return p.sessionID }

// Lifecycle exposes the session manager.
func (p *Context) Lifecycle() *lifecycle.Manager { return p.lifecycle }

// Tracker exposes the event tracker.
func (p *Context) Tracker() *tracker.Tracker { return p.tracker }

// Run starts the session, records the initial page view and then handles
// signals until unload or ctx cancellation. Both exits close the session
// and release its timers.
func (p *Context) Run(ctx context.Context) error {
	defer close(p.done)

	p.lifecycle.Start(ctx)
	p.tracker.TrackPageView(ctx, p.initial)

	for {
		select {
		case <-ctx.Done():
			p.teardown(ctx)
			return ctx.Err()
		case env := <-p.signals:
			if env.sig.Kind == KindUnload {
				p.teardown(ctx)
				return nil
			}
			p.handle(ctx, env.sig)
			close(env.handled)
		}
	}
}

func (p *Context) handle(ctx context.Context, sig Signal) {
	switch sig.Kind {
	case KindNavigate:
		// Same-path navigation does not change the location.
		if sig.Path != p.tracker.CurrentPath() {
			p.tracker.TrackPageView(ctx, sig.Path)
		}
	case KindScroll:
		p.tracker.HandleScroll(ctx, sig.Scroll)
	case KindClick:
		p.tracker.TrackButtonClick(ctx, sig.ElementID, sig.ButtonText)
	case KindVisibility:
		p.lifecycle.HandleVisibility(ctx, sig.Visibility)
	default:
		p.log.Debug("Ignoring unknown page signal", logger.Int("kind", int(sig.Kind)))
	}
}

func (p *Context) teardown(ctx context.Context) {
	p.tracker.Release()
	p.lifecycle.HandleUnload(ctx)
}

// Send delivers a signal to the running page and returns once the page has
// handled it. It fails with ErrClosed once the page has unloaded.
func (p *Context) Send(ctx context.Context, sig Signal) error {
	env := envelope{sig: sig, handled: make(chan struct{})}
	select {
	case p.signals <- env:
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-env.handled:
	case <-p.done:
	}
	return nil
}

// Navigate moves the tab to path.
func (p *Context) Navigate(ctx context.Context, path string) error {
	return p.Send(ctx, Signal{Kind: KindNavigate, Path: path})
}

// Scroll reports a scroll sample.
func (p *Context) Scroll(ctx context.Context, pos tracker.ScrollPosition) error {
	return p.Send(ctx, Signal{Kind: KindScroll, Scroll: pos})
}

// Click reports a click; elementID is the element's tracking id, empty when
// the element did not opt in.
func (p *Context) Click(ctx context.Context, elementID, buttonText string) error {
	return p.Send(ctx, Signal{Kind: KindClick, ElementID: elementID, ButtonText: buttonText})
}

// SetVisibility reports the page becoming visible or hidden.
func (p *Context) SetVisibility(ctx context.Context, v lifecycle.Visibility) error {
	return p.Send(ctx, Signal{Kind: KindVisibility, Visibility: v})
}

// Unload ends the page.
func (p *Context) Unload(ctx context.Context) error {
	return p.Send(ctx, Signal{Kind: KindUnload})
}

// Done is closed when Run returns.
func (p *Context) Done() <-chan struct{} { return p.done }

// Wait blocks until every transport call issued by the page has returned.
// Call it after Run returns.
func (p *Context) Wait() {
	p.lifecycle.Wait()
	p.tracker.Wait()
}
