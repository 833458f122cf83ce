// Package replay implements the news-window replay engine: scanning a
// historical slice of a stream by published_at, re-publishing clones of
// each matching event with a derived replay event_id, and tracking the
// resulting task through a pending/running/completed|failed|canceled
// lifecycle.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

// Status values a Task moves through. A task never leaves a terminal
// status once reached.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// Task is the persisted record of one replay run.
type Task struct {
	TaskID      string     `json:"task_id"`
	ReplayID    string     `json:"replay_id"`
	Status      string     `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	SourceStream  string    `json:"source_stream"`
	TargetStream  string    `json:"target_stream"`
	MaxScan       int       `json:"max_scan"`
	MaxPublish    int       `json:"max_publish"`
	DryRun        bool      `json:"dry_run"`

	Scanned   int `json:"scanned"`
	Matched   int `json:"matched"`
	Published int `json:"published"`
}

// durationSec returns the task's run duration once it has finished, or
// zero if it hasn't.
func (t *Task) durationSec() (float64, bool) {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0, false
	}
	d := t.CompletedAt.Sub(*t.StartedAt).Seconds()
	if d < 0 {
		d = 0
	}
	return d, true
}

func isActive(status string) bool {
	return status == StatusPending || status == StatusRunning
}

func isTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCanceled
}

// WindowRequest describes a replay submission.
type WindowRequest struct {
	Start        time.Time
	End          time.Time
	SourceStream string
	TargetStream string
	MaxScan      int
	MaxPublish   int
	DryRun       bool
}

func (r WindowRequest) withDefaults() WindowRequest {
	if r.SourceStream == "" {
		r.SourceStream = models.StreamNewsRaw
	}
	if r.TargetStream == "" {
		r.TargetStream = models.StreamNewsRaw
	}
	if r.MaxScan <= 0 {
		r.MaxScan = 5000
	}
	if r.MaxPublish <= 0 {
		r.MaxPublish = 1000
	}
	return r
}

// Engine owns task persistence and the in-process cancel-handle registry.
// The registry is cache only: a "running" task whose process restarted
// has no local cancel func, and Cancel rejects it rather than pretending
// to stop work that no longer exists.
type Engine struct {
	store TaskStore
	bus   bus.EventBus

	mu      sync.Mutex
	workers map[string]context.CancelFunc
}

// New wires an Engine to its task store and the event bus it replays
// against.
func New(store TaskStore, eventBus bus.EventBus) *Engine {
	return &Engine{store: store, bus: eventBus, workers: make(map[string]context.CancelFunc)}
}

func shortID() string {
	return uuid.NewString()[:12]
}

func newTask(req WindowRequest) *Task {
	return &Task{
		TaskID:       shortID(),
		ReplayID:     shortID(),
		Status:       StatusPending,
		SubmittedAt:  time.Now().UTC(),
		Start:        req.Start,
		End:          req.End,
		SourceStream: req.SourceStream,
		TargetStream: req.TargetStream,
		MaxScan:      req.MaxScan,
		MaxPublish:   req.MaxPublish,
		DryRun:       req.DryRun,
	}
}

// Submit creates a pending task. When async is true it is started
// asynchronously and Submit returns immediately with the pending task;
// otherwise Submit blocks until the task reaches a terminal status.
func (e *Engine) Submit(ctx context.Context, req WindowRequest, async bool) (*Task, error) {
	if req.End.Before(req.Start) {
		return nil, fmt.Errorf("replay: end must be greater than or equal to start")
	}
	req = req.withDefaults()
	task := newTask(req)
	if err := e.store.Save(ctx, task); err != nil {
		return nil, err
	}
	if err := e.store.Trim(ctx, maxStoredTasks); err != nil {
		return nil, err
	}

	if async {
		e.schedule(task.TaskID)
		return task, nil
	}
	e.runSync(ctx, task.TaskID)
	return e.store.Load(ctx, task.TaskID)
}

// schedule launches the background worker goroutine for a task,
// registering its cancel handle for the duration of the run.
func (e *Engine) schedule(taskID string) {
	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.workers[taskID] = cancel
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.workers, taskID)
			e.mu.Unlock()
		}()
		e.runSync(runCtx, taskID)
	}()
}

func (e *Engine) runSync(ctx context.Context, taskID string) {
	task, err := e.store.Load(ctx, taskID)
	if err != nil || task == nil {
		return
	}

	now := time.Now().UTC()
	task.Status = StatusRunning
	task.StartedAt = &now
	_ = e.store.Save(ctx, task)

	scanned, matched, runErr := e.scanWindow(ctx, task)
	published := 0
	if runErr == nil && !task.DryRun {
		toPublish := matched
		if len(toPublish) > task.MaxPublish {
			toPublish = toPublish[:task.MaxPublish]
		}
		for idx, news := range toPublish {
			clone := buildReplayPayload(news, task.ReplayID, idx+1)
			payload, merr := json.Marshal(clone)
			if merr != nil {
				continue
			}
			if _, perr := e.bus.Publish(ctx, task.TargetStream, payload); perr != nil {
				runErr = perr
				break
			}
			published++
		}
	}

	finished := time.Now().UTC()
	task.CompletedAt = &finished
	task.Scanned = scanned
	task.Matched = len(matched)
	task.Published = published

	switch {
	case ctx.Err() != nil:
		task.Status = StatusCanceled
		if task.Error == "" {
			task.Error = "Task canceled"
		}
	case runErr != nil:
		task.Status = StatusFailed
		task.Error = runErr.Error()
	default:
		task.Status = StatusCompleted
	}
	_ = e.store.Save(ctx, task)
}

// scanWindow pages through SourceStream up to MaxScan records, returning
// every NewsEvent whose published_at falls within [Start, End].
func (e *Engine) scanWindow(ctx context.Context, task *Task) (int, []models.NewsEvent, error) {
	scanned := 0
	var matched []models.NewsEvent
	lastID := "0-0"

	for scanned < task.MaxScan {
		if ctx.Err() != nil {
			return scanned, matched, nil
		}
		count := task.MaxScan - scanned
		if count > 500 {
			count = 500
		}
		records, err := e.bus.ReadRange(ctx, task.SourceStream, lastID, count)
		if err != nil {
			return scanned, matched, err
		}
		if len(records) == 0 {
			break
		}
		for _, rec := range records {
			lastID = rec.ID
			scanned++
			var news models.NewsEvent
			if err := json.Unmarshal(rec.Payload, &news); err != nil {
				continue
			}
			if news.PublishedAt.IsZero() {
				continue
			}
			if inWindow(news.PublishedAt, task.Start, task.End) {
				matched = append(matched, news)
			}
		}
	}
	return scanned, matched, nil
}

func inWindow(ts, from, to time.Time) bool {
	return !ts.Before(from) && !ts.After(to)
}

// buildReplayPayload clones a news event with a derived event_id so the
// pipeline can distinguish replayed events from the originals while still
// exercising every downstream stage on them.
func buildReplayPayload(news models.NewsEvent, replayID string, index int) models.NewsEvent {
	clone := news
	clone.EventID = fmt.Sprintf("%s:replay:%s:%d", news.EventID, replayID, index)
	return clone
}

// Get returns the current state of a task, or nil if it does not exist.
func (e *Engine) Get(ctx context.Context, taskID string) (*Task, error) {
	return e.store.Load(ctx, taskID)
}

// List returns the most recently submitted tasks, newest first.
func (e *Engine) List(ctx context.Context, limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = 20
	}
	return e.store.List(ctx, limit)
}

// Cancel stops a pending or running task. It rejects the task if it is
// already terminal, or if it is marked running but this process holds no
// local cancel handle for it (the process restarted since it started),
// matching the orchestrator's refusal to pretend it can stop work that no
// longer exists.
func (e *Engine) Cancel(ctx context.Context, taskID string) (*Task, error) {
	task, err := e.store.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("replay: task %s not found", taskID)
	}
	if !isActive(task.Status) {
		return task, fmt.Errorf("replay: task is not cancellable in status=%s", task.Status)
	}

	e.mu.Lock()
	cancel, ok := e.workers[taskID]
	e.mu.Unlock()

	if ok {
		cancel()
		return e.store.Load(ctx, taskID)
	}

	if task.Status == StatusRunning {
		return task, fmt.Errorf("replay: task is marked running but no local worker exists (likely after restart); cannot cancel safely")
	}

	now := time.Now().UTC()
	task.Status = StatusCanceled
	task.Error = "Task canceled before worker start"
	task.CompletedAt = &now
	if err := e.store.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Retry clones a finished task's window into a brand new task.
func (e *Engine) Retry(ctx context.Context, taskID string, async bool) (*Task, error) {
	old, err := e.store.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, fmt.Errorf("replay: task %s not found", taskID)
	}
	if isActive(old.Status) {
		return nil, fmt.Errorf("replay: task is still active; cancel or wait before retry")
	}

	req := WindowRequest{
		Start: old.Start, End: old.End,
		SourceStream: old.SourceStream, TargetStream: old.TargetStream,
		MaxScan: old.MaxScan, MaxPublish: old.MaxPublish, DryRun: old.DryRun,
	}
	return e.Submit(ctx, req, async)
}

// Metrics aggregates basic health stats over the most recently stored
// tasks.
type Metrics struct {
	SampleSize     int            `json:"sample_size"`
	Counts         map[string]int `json:"counts"`
	AvgDurationSec float64        `json:"avg_duration_sec"`
	SuccessRate    float64        `json:"success_rate"`
}

// Metrics computes aggregate stats over the limit most recently submitted
// tasks.
func (e *Engine) Metrics(ctx context.Context, limit int) (Metrics, error) {
	if limit <= 0 {
		limit = maxStoredTasks
	}
	tasks, err := e.store.List(ctx, limit)
	if err != nil {
		return Metrics{}, err
	}

	m := Metrics{
		SampleSize: len(tasks),
		Counts: map[string]int{
			StatusPending: 0, StatusRunning: 0, StatusCompleted: 0, StatusFailed: 0, StatusCanceled: 0,
		},
	}

	var durationSum float64
	var durationCount, terminal, completed int
	for _, t := range tasks {
		m.Counts[t.Status]++
		if d, ok := t.durationSec(); ok {
			durationSum += d
			durationCount++
		}
		if isTerminal(t.Status) {
			terminal++
		}
		if t.Status == StatusCompleted {
			completed++
		}
	}
	if durationCount > 0 {
		m.AvgDurationSec = durationSum / float64(durationCount)
	}
	if terminal > 0 {
		m.SuccessRate = float64(completed) / float64(terminal)
	}
	return m, nil
}
