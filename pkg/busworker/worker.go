// Package busworker implements the generic read-handle-publish-advance
// loop every stage service runs, ported from the Python source's
// run_stream_worker but reshaped into the teacher's goroutine/select/
// stop-channel worker idiom (pkg/queue/worker.go).
package busworker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
)

// Output is one (stream, payload) pair a Handler wants published after it
// successfully processes a record.
type Output struct {
	Stream  string
	Payload []byte
}

// Handler processes a single bus record and returns the outputs to
// publish. Returning an error leaves the cursor unadvanced — the worker
// logs the failure and will re-read the same record on next poll, so
// handlers must be idempotent.
type Handler func(ctx context.Context, record bus.Record) ([]Output, error)

// Config controls polling cadence; it is intentionally a small plain
// struct rather than the full AppSettings so a worker can be unit tested
// without constructing config.AppSettings.
type Config struct {
	ServiceName   string
	InputStream   string
	PollMs        int
	IdleSleepSec  float64
	StartID       string
}

// Worker runs one stage's read -> handle -> publish -> advance loop
// against a single input stream, single-consumer FIFO.
type Worker struct {
	cfg     Config
	busConn bus.EventBus
	handler Handler

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu                sync.RWMutex
	lastID            string
	recordsProcessed  int
	recordsFailed     int
	lastActivity      time.Time
}

// New constructs a Worker. cfg.StartID defaults to "0-0" (read from the
// beginning of the stream) when empty.
func New(cfg Config, busConn bus.EventBus, handler Handler) *Worker {
	startID := cfg.StartID
	if startID == "" {
		startID = "0-0"
	}
	if cfg.PollMs <= 0 {
		cfg.PollMs = 1000
	}
	if cfg.IdleSleepSec <= 0 {
		cfg.IdleSleepSec = 0.2
	}
	return &Worker{
		cfg:          cfg,
		busConn:      busConn,
		handler:      handler,
		stopCh:       make(chan struct{}),
		lastID:       startID,
		lastActivity: time.Now(),
	}
}

// Start begins the polling loop in a new goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the loop to exit and blocks until it has. Safe to call
// more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Cursor returns the last successfully processed record id.
func (w *Worker) Cursor() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastID
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("component", "busworker", "service", w.cfg.ServiceName, "stream", w.cfg.InputStream)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker stopping")
			return
		case <-ctx.Done():
			log.Info("context canceled, worker stopping")
			return
		default:
		}

		records, err := w.busConn.Read(ctx, w.cfg.InputStream, w.Cursor(), w.cfg.PollMs, 100)
		if err != nil {
			log.Error("read failed", "error", err)
			sleepOrStop(ctx, w.stopCh, time.Duration(w.cfg.IdleSleepSec*float64(time.Second)))
			continue
		}
		if len(records) == 0 {
			sleepOrStop(ctx, w.stopCh, time.Duration(w.cfg.IdleSleepSec*float64(time.Second)))
			continue
		}

		for _, rec := range records {
			outputs, err := w.handler(ctx, rec)
			if err != nil {
				log.Error("handler failed, cursor not advanced", "record_id", rec.ID, "error", err)
				w.mu.Lock()
				w.recordsFailed++
				w.mu.Unlock()
				break
			}
			for _, out := range outputs {
				if _, err := w.busConn.Publish(ctx, out.Stream, out.Payload); err != nil {
					log.Error("publish failed", "stream", out.Stream, "error", err)
				}
			}
			w.mu.Lock()
			w.lastID = rec.ID
			w.recordsProcessed++
			w.lastActivity = time.Now()
			w.mu.Unlock()
		}
	}
}

func sleepOrStop(ctx context.Context, stopCh chan struct{}, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-stopCh:
	case <-ctx.Done():
	}
}
