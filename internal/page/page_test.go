package page_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/domain"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/identity"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/page"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/tracker"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/transport"
)

type tab struct {
	page  *page.Context
	rec   *transport.Recorder
	clk   *clockwork.FakeClock
	runCh chan error
}

func openTab(t *testing.T, ctx context.Context, storage identity.Storage) *tab {
	t.Helper()
	rec := transport.NewRecorder(true)
	clk := clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	p := page.New(page.Config{
		Storage: storage,
		Environment: lifecycle.Environment{
			UserAgent:     "Mozilla/5.0 (Macintosh)",
			ViewportWidth: 1280,
			ScreenWidth:   1440,
			ScreenHeight:  900,
		},
		Submitter: rec,
		Clock:     clk,
		Logger:    logger.NewNop(),
	})

	runCh := make(chan error, 1)
	go func() { runCh <- p.Run(ctx) }()
	return &tab{page: p, rec: rec, clk: clk, runCh: runCh}
}

func (tb *tab) finish(t *testing.T) error {
	t.Helper()
	select {
	case err := <-tb.runCh:
		tb.page.Wait()
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("page did not stop")
		return nil
	}
}

func requireWaiters(t *testing.T, clk *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clk.BlockUntilContext(ctx, n), "timers released on unload")
}

func pageViews(events []transport.TrackEvent) []string {
	var out []string
	for _, ev := range events {
		if ev.EventType == domain.EventPageView {
			out = append(out, ev.PagePath)
		}
	}
	return out
}

func TestContext_FullVisit(t *testing.T) {
	ctx := context.Background()
	tb := openTab(t, ctx, identity.NewMemoryStorage())
	p := tb.page

	require.NoError(t, p.Scroll(ctx, tracker.ScrollPosition{ScrollY: 1000, DocumentHeight: 3000, ViewportHeight: 1000}))
	tb.clk.Advance(tracker.ScrollDebounce)
	require.Eventually(t, func() bool {
		return len(p.Tracker().ConsumedThresholds()) == 2
	}, time.Second, time.Millisecond)
	require.NoError(t, p.Click(ctx, "hero-cta", "Listen"))
	require.NoError(t, p.Click(ctx, "", "Untracked"))
	require.NoError(t, p.Navigate(ctx, "/writing"))
	require.NoError(t, p.Navigate(ctx, "/writing"))
	assert.Empty(t, p.Tracker().ConsumedThresholds())

	tb.clk.Advance(45 * time.Second)
	require.NoError(t, p.SetVisibility(ctx, lifecycle.Hidden))
	require.NoError(t, p.SetVisibility(ctx, lifecycle.Visible))
	require.NoError(t, p.Unload(ctx))
	require.NoError(t, tb.finish(t))

	assert.ErrorIs(t, p.Navigate(ctx, "/"), page.ErrClosed)
	requireWaiters(t, tb.clk, 0)

	assert.Len(t, tb.rec.Filter(transport.ActionCreateSession), 1)
	assert.ElementsMatch(t, []string{"/", "/writing"}, pageViews(tb.rec.Events()))

	var clicks, scrolls int
	for _, ev := range tb.rec.Events() {
		assert.Equal(t, p.SessionID(), ev.SessionID)
		switch ev.EventType {
		case domain.EventButtonClick:
			clicks++
		case domain.EventScrollDepth:
			scrolls++
			assert.Equal(t, "/", ev.PagePath)
		}
	}
	assert.Equal(t, 1, clicks)
	assert.Equal(t, 2, scrolls, "25 and 50 reached on /")

	var closes int
	for _, u := range tb.rec.Updates() {
		if u.IsClose() {
			closes++
			assert.Equal(t, 45, *u.DurationSeconds)
		}
	}
	assert.Equal(t, 2, closes, "hidden and unload each close")
	assert.Equal(t, lifecycle.StateClosed, p.Lifecycle().State())
}

func TestContext_ReloadKeepsSessionID(t *testing.T) {
	ctx := context.Background()
	storage := identity.NewMemoryStorage()

	first := openTab(t, ctx, storage)
	require.NoError(t, first.page.Unload(ctx))
	require.NoError(t, first.finish(t))

	second := openTab(t, ctx, storage)
	require.NoError(t, second.page.Unload(ctx))
	require.NoError(t, second.finish(t))

	assert.Equal(t, first.page.SessionID(), second.page.SessionID())
}

func TestContext_CancelClosesSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tb := openTab(t, ctx, identity.NewMemoryStorage())

	require.NoError(t, tb.page.Navigate(ctx, "/photography"))
	cancel()
	require.ErrorIs(t, tb.finish(t), context.Canceled)

	updates := tb.rec.Updates()
	require.NotEmpty(t, updates)
	assert.True(t, updates[len(updates)-1].IsClose())
	requireWaiters(t, tb.clk, 0)
}
