package storage

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/domain"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/telemetry"
)

const (
	// insertBatchSize is the maximum number of rows per INSERT statement.
	insertBatchSize = 50

	// flushTimeout is the context timeout for each flush operation.
	flushTimeout = 5 * time.Second

	insertAttempts = 3
	insertBackoff  = 100 * time.Millisecond
)

// EventBuffer is a channel-based buffer decoupling event ingestion from
// database writes.
type EventBuffer struct {
	events chan domain.Event
	closed chan struct{}
	once   sync.Once
}

// NewEventBuffer creates a buffer holding up to capacity events.
func NewEventBuffer(capacity int) *EventBuffer {
	return &EventBuffer{
		events: make(chan domain.Event, capacity),
		closed: make(chan struct{}),
	}
}

// Send enqueues an event without blocking. It returns false when the buffer
// is full or closed.
func (b *EventBuffer) Send(event domain.Event) bool {
	select {
	case <-b.closed:
		return false
	default:
	}

	select {
	case b.events <- event:
		return true
	default:
		return false
	}
}

// Len returns the number of queued events.
func (b *EventBuffer) Len() int {
	return len(b.events)
}

// Close stops the buffer accepting events. Safe to call more than once.
func (b *EventBuffer) Close() {
	b.once.Do(func() {
		close(b.closed)
	})
}

// EventSink persists flushed events.
type EventSink interface {
	InsertEvents(ctx context.Context, events []domain.Event) error
	IncrementPageCounts(ctx context.Context, counts map[string]int) error
}

// EventWriter drains an EventBuffer into an EventSink, flushing when the
// batch reaches the threshold, on every interval tick, and on Stop.
type EventWriter struct {
	sink           EventSink
	buffer         *EventBuffer
	log            logger.Logger
	metrics        *telemetry.Metrics
	flushInterval  time.Duration
	flushThreshold int
	wg             sync.WaitGroup
}

// NewEventWriter creates a writer. metrics may be nil.
func NewEventWriter(
	sink EventSink,
	buffer *EventBuffer,
	log logger.Logger,
	metrics *telemetry.Metrics,
	flushInterval time.Duration,
	flushThreshold int,
) *EventWriter {
	return &EventWriter{
		sink:           sink,
		buffer:         buffer,
		log:            log,
		metrics:        metrics,
		flushInterval:  flushInterval,
		flushThreshold: flushThreshold,
	}
}

// Start launches the flush goroutine.
func (w *EventWriter) Start() {
	w.wg.Add(1)
	go w.flushLoop()
}

// Stop closes the buffer and waits until every queued event is flushed.
func (w *EventWriter) Stop() {
	w.buffer.Close()
	w.wg.Wait()
}

func (w *EventWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]domain.Event, 0, w.flushThreshold)

	for {
		select {
		case event := <-w.buffer.events:
			batch = append(batch, event)
			if len(batch) >= w.flushThreshold {
				w.flush(batch)
				batch = make([]domain.Event, 0, w.flushThreshold)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = make([]domain.Event, 0, w.flushThreshold)
			}

		case <-w.buffer.closed:
			w.drain(&batch)
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *EventWriter) drain(batch *[]domain.Event) {
	for {
		select {
		case event := <-w.buffer.events:
			*batch = append(*batch, event)
		default:
			return
		}
	}
}

// flush writes a batch in chunks of insertBatchSize, then bumps page counts
// for the page views that were stored.
func (w *EventWriter) flush(batch []domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	written := 0
	pageViews := make(map[string]int)
	var lastErr error

	for start := 0; start < len(batch); start += insertBatchSize {
		end := min(start+insertBatchSize, len(batch))
		chunk := batch[start:end]

		err := retry.Do(ctx, retry.Config{MaxAttempts: insertAttempts, InitialDelay: insertBackoff},
			func(ctx context.Context) error { return w.sink.InsertEvents(ctx, chunk) })
		if err != nil {
			lastErr = err
			w.log.Error("Failed to insert events",
				logger.Error(err),
				logger.Int("batch_size", len(chunk)),
			)
			continue
		}

		written += len(chunk)
		for i := range chunk {
			if chunk[i].EventType == domain.EventPageView {
				pageViews[chunk[i].SessionID]++
			}
		}
	}

	if err := w.sink.IncrementPageCounts(ctx, pageViews); err != nil {
		lastErr = err
		w.log.Error("Failed to update page counts",
			logger.Error(err),
			logger.Int("sessions", len(pageViews)),
		)
	}

	w.metrics.RecordFlush(written, lastErr, w.buffer.Len())

	w.log.Debug("Flushed events",
		logger.Int("total", len(batch)),
		logger.Int("written", written),
	)
}
