package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/identity"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/page"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/tracker"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/transport"
)

const simulatorUserAgent = "Mozilla/5.0 (X11; Linux x86_64) analyticsctl-simulate/1.0"

// scrollSteps are the scroll samples taken on every page, as a fraction of
// the scrollable distance.
var scrollSteps = []float64{0.3, 0.55, 0.8, 1}

var sitePaths = []string{"/", "/writing", "/projects", "/about", "/contact"}

var referrers = []string{
	"",
	"https://www.google.com/search?q=go+telemetry",
	"https://news.ycombinator.com/item?id=1",
	"https://github.com/jonesrussell",
	"not a url",
}

type device struct {
	viewport, screenWidth, screenHeight int
}

var devices = []device{
	{viewport: 390, screenWidth: 390, screenHeight: 844},
	{viewport: 820, screenWidth: 820, screenHeight: 1180},
	{viewport: 1440, screenWidth: 1440, screenHeight: 900},
}

type buttons struct{ id, text string }

var trackedButtons = []buttons{
	{"subscribe-btn", "Subscribe"},
	{"contact-btn", "Get in touch"},
	{"", "Untracked"},
}

type simulateOptions struct {
	tabs        int
	pages       int
	dwell       time.Duration
	scrollPause time.Duration
	seed        uint64
}

// simulateStats counts tracking calls across all tabs.
type simulateStats struct {
	calls    atomic.Int64
	accepted atomic.Int64
}

func newSimulateCommand(global *globalOptions) *cobra.Command {
	opts := simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay simulated visitor tabs against the ingest API",
		Long: `Open --tabs concurrent simulated tabs. Each tab visits --pages pages,
scrolls through each one, clicks tracked buttons, then hides and closes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := global.logger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			client := transport.NewHTTPClient(global.serverURL, log, transport.WithUserAgent(simulatorUserAgent))

			start := time.Now()
			stats, err := simulate(cmd.Context(), opts, client, log)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d tabs, %d tracking calls, %d accepted in %s\n",
				opts.tabs, stats.calls.Load(), stats.accepted.Load(), time.Since(start).Round(time.Millisecond))
			return err
		},
	}

	cmd.Flags().IntVar(&opts.tabs, "tabs", 3, "number of concurrent tabs")
	cmd.Flags().IntVar(&opts.pages, "pages", 3, "pages visited per tab")
	cmd.Flags().DurationVar(&opts.dwell, "duration", 2*time.Second, "time spent on each page")
	cmd.Flags().DurationVar(&opts.scrollPause, "scroll-pause", 150*time.Millisecond,
		"pause between scroll samples (must exceed the scroll debounce)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", uint64(time.Now().UnixNano()), "random seed")
	return cmd
}

// simulate runs every tab concurrently and returns once all tabs closed.
func simulate(ctx context.Context, opts simulateOptions, sub transport.Submitter, log logger.Logger) (*simulateStats, error) {
	if opts.tabs < 1 || opts.pages < 1 {
		return nil, errors.New("--tabs and --pages must be at least 1")
	}

	stats := &simulateStats{}
	counting := transport.Func(func(ctx context.Context, action transport.Action, payload any) bool {
		stats.calls.Add(1)
		ok := sub.Submit(ctx, action, payload)
		if ok {
			stats.accepted.Add(1)
		}
		return ok
	})

	g, gctx := errgroup.WithContext(ctx)
	for tab := range opts.tabs {
		rng := rand.New(rand.NewPCG(opts.seed, uint64(tab)))
		g.Go(func() error {
			return visitTab(gctx, tab, opts, rng, counting, log)
		})
	}
	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("simulate tabs: %w", err)
	}
	return stats, nil
}

// visitTab plays one visitor: a page load, a walk through the site, a hide
// and an unload.
func visitTab(
	ctx context.Context,
	tab int,
	opts simulateOptions,
	rng *rand.Rand,
	sub transport.Submitter,
	log logger.Logger,
) error {
	dev := devices[rng.IntN(len(devices))]
	tabLog := log.With(logger.Int("tab", tab))

	p := page.New(page.Config{
		Storage: identity.NewMemoryStorage(),
		Environment: lifecycle.Environment{
			UserAgent:     simulatorUserAgent,
			Referrer:      referrers[rng.IntN(len(referrers))],
			ViewportWidth: dev.viewport,
			ScreenWidth:   dev.screenWidth,
			ScreenHeight:  dev.screenHeight,
		},
		Submitter:   sub,
		Logger:      tabLog,
		InitialPath: sitePaths[0],
	})

	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	tabLog.Debug("Tab opened", logger.String("session_id", p.SessionID()))

	err := walk(ctx, p, opts, rng)
	if err == nil {
		err = p.SetVisibility(ctx, lifecycle.Hidden)
	}
	if err == nil {
		err = p.Unload(ctx)
	}

	if rErr := <-runErr; err == nil && rErr != nil {
		err = rErr
	}
	p.Wait()

	tabLog.Debug("Tab closed", logger.String("session_id", p.SessionID()))
	return err
}

func walk(ctx context.Context, p *page.Context, opts simulateOptions, rng *rand.Rand) error {
	const viewportHeight, documentHeight = 800.0, 4000.0

	for i := range opts.pages {
		if i > 0 {
			next := sitePaths[1+rng.IntN(len(sitePaths)-1)]
			if err := p.Navigate(ctx, next); err != nil {
				return err
			}
		}

		// Readers often stop before the end of the page.
		steps := scrollSteps[:1+rng.IntN(len(scrollSteps))]
		for _, f := range steps {
			pos := tracker.ScrollPosition{
				ScrollY:        f * (documentHeight - viewportHeight),
				DocumentHeight: documentHeight,
				ViewportHeight: viewportHeight,
			}
			if err := p.Scroll(ctx, pos); err != nil {
				return err
			}
			if err := sleep(ctx, opts.scrollPause); err != nil {
				return err
			}
		}

		b := trackedButtons[rng.IntN(len(trackedButtons))]
		if err := p.Click(ctx, b.id, b.text); err != nil {
			return err
		}

		if err := sleep(ctx, opts.dwell); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
