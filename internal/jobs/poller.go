package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/splitmate/billscan/internal/repository"
)

// Poller periodically claims PENDING bill-image expenses and feeds them to the
// queue. Claiming flips the row to PROCESSING, so each expense is delivered to
// exactly one poller across all instances.
type Poller struct {
	expenses repository.ExpenseRepository
	queue    *ProcessorQueue
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

func NewPoller(expenses repository.ExpenseRepository, queue *ProcessorQueue, interval time.Duration, batch int, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch <= 0 {
		batch = 10
	}
	return &Poller{expenses: expenses, queue: queue, interval: interval, batch: batch, logger: logger}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started", "interval", p.interval.String(), "batch", p.batch)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	jobs, err := p.expenses.ClaimPending(ctx, p.batch)
	if err != nil {
		p.logger.Error("poller claim failed", "error", err)
		return
	}
	for _, job := range jobs {
		job.TraceID = uuid.New().String()
		if err := p.queue.Enqueue(ctx, job); err != nil {
			p.logger.Error("poller enqueue failed", "expense_id", job.ExpenseID, "error", err)
		}
	}
	if len(jobs) > 0 {
		p.logger.Info("poller claimed batch", "count", len(jobs))
	}
}
