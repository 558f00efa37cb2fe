package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a submitted run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
)

// ErrQueueFull is returned by Submit when no more runs can be queued.
var ErrQueueFull = errors.New("ingestion queue is full")

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("ingestion runner stopped")

// Executor runs one plan to completion.
type Executor interface {
	Run(ctx context.Context, runID string, plan Plan) Report
}

// Run is a submitted plan and, once finished, its report.
type Run struct {
	ID          string     `json:"id"`
	Plan        Plan       `json:"plan"`
	Status      RunStatus  `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Summary     *Summary   `json:"summary,omitempty"`
	Report      *Report    `json:"report,omitempty"`
}

// Runner executes submitted plans one at a time in the background.
type Runner struct {
	exec    Executor
	logger  *slog.Logger
	queue   chan *Run
	history int

	mu      sync.RWMutex
	runs    map[string]*Run
	order   []string // submission order, oldest first
	stopped bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner holding up to queueSize pending runs and
// remembering the last history runs.
func NewRunner(exec Executor, queueSize, history int, logger *slog.Logger) *Runner {
	if queueSize < 1 {
		queueSize = 8
	}
	if history < 1 {
		history = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		exec:    exec,
		logger:  logger.With(slog.String("component", "runner")),
		queue:   make(chan *Run, queueSize),
		history: history,
		runs:    make(map[string]*Run),
	}
}

// Start launches the worker. Cancelling ctx, or calling Stop, stops it.
func (r *Runner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.worker(ctx)
	r.logger.Info("runner started")
}

// Stop cancels the active run, which stops starting new units, and waits up
// to timeout for the worker to exit. Queued runs are marked cancelled.
func (r *Runner) Stop(timeout time.Duration) error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ingestion runner")
	}

	for {
		select {
		case run := <-r.queue:
			r.finish(run, RunCancelled, nil)
		default:
			r.logger.Info("runner stopped")
			return nil
		}
	}
}

// Submit validates and queues plan, returning its run id immediately.
func (r *Runner) Submit(plan Plan) (string, error) {
	if err := plan.Validate(); err != nil {
		return "", err
	}

	run := &Run{
		ID:          uuid.NewString(),
		Plan:        plan,
		Status:      RunPending,
		SubmittedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return "", ErrStopped
	}

	select {
	case r.queue <- run:
	default:
		return "", ErrQueueFull
	}
	r.runs[run.ID] = run
	r.order = append(r.order, run.ID)
	r.trimLocked()

	r.logger.Info("run queued", slog.String("run_id", run.ID))
	return run.ID, nil
}

// Get returns a snapshot of a run.
func (r *Runner) Get(id string) (Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// Recent returns up to n runs, newest first, without their full reports.
func (r *Runner) Recent(n int) []Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n = max(n, 0)
	out := make([]Run, 0, min(n, len(r.order)))
	for i := len(r.order) - 1; i >= 0 && len(out) < n; i-- {
		run := *r.runs[r.order[i]]
		run.Report = nil
		out = append(out, run)
	}
	return out
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case run := <-r.queue:
			r.execute(ctx, run)
		}
	}
}

func (r *Runner) execute(ctx context.Context, run *Run) {
	if ctx.Err() != nil {
		r.finish(run, RunCancelled, nil)
		return
	}

	now := time.Now().UTC()
	r.mu.Lock()
	run.Status = RunRunning
	run.StartedAt = &now
	r.mu.Unlock()

	report := r.exec.Run(ctx, run.ID, run.Plan)

	status := RunCompleted
	if ctx.Err() != nil {
		status = RunCancelled
	}
	r.finish(run, status, &report)
}

func (r *Runner) finish(run *Run, status RunStatus, report *Report) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	run.Status = status
	run.FinishedAt = &now
	if report != nil {
		s := report.Summary()
		run.Summary = &s
		run.Report = report
	}
}

// trimLocked forgets the oldest finished runs beyond the history limit.
func (r *Runner) trimLocked() {
	for len(r.order) > r.history {
		oldest := r.runs[r.order[0]]
		if oldest.Status == RunPending || oldest.Status == RunRunning {
			return
		}
		delete(r.runs, r.order[0])
		r.order = r.order[1:]
	}
}
