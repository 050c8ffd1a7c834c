// Package jobs runs bulk escalation work in the background.
package jobs

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"intldossier/api/internal/store"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ProcessFunc escalates one assignment and returns the escalation record id.
// Errors are per-item outcomes, not job failures.
type ProcessFunc func(ctx context.Context, assignmentID string) (string, error)

// Recorder persists per-item outcomes and the final job accounting.
type Recorder interface {
	InsertJobItem(ctx context.Context, item store.JobItem) error
	FinishEscalationJob(ctx context.Context, jobID, status string, successful, failed int, completedAt time.Time) error
}

// Runner owns the worker pools for in-flight bulk jobs. Jobs run on a
// detached context so they survive the request that started them; Shutdown
// cancels whatever is still running.
type Runner struct {
	workers  int
	recorder Recorder

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewRunner(workers int, recorder Recorder) *Runner {
	if workers <= 0 {
		workers = 4
	}
	return &Runner{
		workers:  workers,
		recorder: recorder,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Launch starts processing a job's items on the bounded pool and returns
// immediately. Each item is independent: one failure never stops the rest.
func (r *Runner) Launch(jobID string, assignmentIDs []string, process ProcessFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.cancels[jobID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.cancels, jobID)
			r.mu.Unlock()
			cancel()
		}()
		r.run(ctx, jobID, assignmentIDs, process)
	}()
}

func (r *Runner) run(ctx context.Context, jobID string, assignmentIDs []string, process ProcessFunc) {
	var successful, failed atomic.Int64

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.workers)

	for position, assignmentID := range assignmentIDs {
		position, assignmentID := position, assignmentID
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return egCtx.Err()
			}

			item := store.JobItem{
				JobID:        jobID,
				Position:     position,
				AssignmentID: assignmentID,
			}
			escalationID, err := process(egCtx, assignmentID)
			if err != nil {
				failed.Add(1)
				item.Error = err.Error()
			} else {
				successful.Add(1)
				item.Success = true
				item.EscalationID = &escalationID
			}

			if err := r.recorder.InsertJobItem(egCtx, item); err != nil {
				log.Printf("bulk job %s: record item %d: %v", jobID, position, err)
			}
			return nil
		})
	}

	waitErr := eg.Wait()

	// Bookkeeping must land even when the job context was cancelled.
	finishCtx, finishCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer finishCancel()

	status := StatusCompleted
	if waitErr != nil || ctx.Err() != nil {
		status = StatusFailed
	}
	if err := r.recorder.FinishEscalationJob(finishCtx, jobID, status,
		int(successful.Load()), int(failed.Load()), time.Now()); err != nil {
		log.Printf("bulk job %s: finish: %v", jobID, err)
	}
}

// Cancel stops a single in-flight job.
func (r *Runner) Cancel(jobID string) {
	r.mu.Lock()
	cancel, ok := r.cancels[jobID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// Shutdown cancels every in-flight job and waits for their bookkeeping to
// finish.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}
