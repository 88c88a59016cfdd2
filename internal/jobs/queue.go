package jobs

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/splitmate/billscan/internal/entity"
)

// RetryBaseDelay and RetryMaxDelay bound the transient-retry schedule:
// 30s, 90s, 270s... capped at 300s.
const (
	RetryBaseDelay = 30 * time.Second
	RetryMaxDelay  = 300 * time.Second
)

// RetryDelay returns the backoff before re-delivering a job whose given
// attempt failed transiently.
func RetryDelay(attempt int) time.Duration {
	d := RetryBaseDelay
	for i := 0; i < attempt; i++ {
		d *= 3
		if d >= RetryMaxDelay {
			return RetryMaxDelay
		}
	}
	if d > RetryMaxDelay {
		return RetryMaxDelay
	}
	return d
}

// Processor handles one job delivery. A non-nil error means "transient, retry
// budget left"; every resolved outcome is a Result.
type Processor interface {
	Process(ctx context.Context, job entity.ProcessingJob) (Result, error)
}

// ProcessorQueue fans jobs out to a fixed worker pool. Transient failures are
// re-enqueued after a backoff delay with the attempt counter bumped.
type ProcessorQueue struct {
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan entity.ProcessingJob
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan entity.ProcessingJob, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(proc Processor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 10 * time.Minute,
		ch:      make(chan entity.ProcessingJob, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					res, err := q.proc.Process(ctx, job)
					cancel()

					if err != nil {
						q.scheduleRetry(job, err)
						continue
					}
					q.logger.Info("job resolved",
						"worker_id", workerID,
						"expense_id", job.ExpenseID,
						"status", res.Status,
						"reason", res.Reason,
					)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// scheduleRetry re-enqueues the job after the backoff for the attempt that
// just failed. If the queue shuts down in the meantime the redelivery is
// dropped; the poller reclaims nothing because the expense stays PROCESSING,
// so a restart relies on the retry budget having been spent already or on
// operator intervention.
func (q *ProcessorQueue) scheduleRetry(job entity.ProcessingJob, cause error) {
	delay := RetryDelay(job.Attempt)
	next := job
	next.Attempt++
	q.logger.Warn("job retry scheduled",
		"expense_id", job.ExpenseID,
		"attempt", next.Attempt,
		"delay", delay.String(),
		"error", cause,
	)
	time.AfterFunc(delay, func() {
		if err := q.Enqueue(context.Background(), next); err != nil {
			q.logger.Error("job retry enqueue failed", "expense_id", next.ExpenseID, "error", err)
		}
	})
}

func (q *ProcessorQueue) Enqueue(_ context.Context, job entity.ProcessingJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "expense_id", job.ExpenseID)
		return nil
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued bill for processing", "expense_id", job.ExpenseID, "attempt", job.Attempt)
	default:
		q.logger.Warn("queue full, applying backpressure", "expense_id", job.ExpenseID)
		q.ch <- job
	}
	return nil
}

func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
