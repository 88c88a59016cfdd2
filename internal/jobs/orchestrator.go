package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/splitmate/billscan/constants"
	"github.com/splitmate/billscan/internal/billdata"
	"github.com/splitmate/billscan/internal/common"
	"github.com/splitmate/billscan/internal/entity"
	"github.com/splitmate/billscan/internal/pipeline"
	"github.com/splitmate/billscan/internal/repository"
)

// MaxAttempts is the total delivery budget per job: the first run plus three
// retries. Only transient failures consume retries; domain failures are
// terminal on first occurrence.
const MaxAttempts = 4

// Result statuses.
const (
	ResultSuccess = "success"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// Result summarizes one job delivery.
type Result struct {
	Status        string                  `json:"status"`
	ItemsCount    int                     `json:"items_count,omitempty"`
	Total         decimal.Decimal         `json:"total,omitempty"`
	CurrentStatus constants.ExpenseStatus `json:"current_status,omitempty"`
	Reason        string                  `json:"reason,omitempty"`
}

// BillPipeline is the extraction pipeline as the orchestrator sees it.
type BillPipeline interface {
	Run(ctx context.Context, imagePath string) (pipeline.Result, error)
}

// Orchestrator drives one expense through the pipeline and owns every status
// transition out of PROCESSING. It is safe for concurrent use; each call
// operates on its own expense row.
type Orchestrator struct {
	pipe     BillPipeline
	expenses repository.ExpenseRepository
	groups   repository.GroupRepository
	balances repository.BalanceRepository
	logger   *slog.Logger
}

func NewOrchestrator(
	pipe BillPipeline,
	expenses repository.ExpenseRepository,
	groups repository.GroupRepository,
	balances repository.BalanceRepository,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		pipe:     pipe,
		expenses: expenses,
		groups:   groups,
		balances: balances,
		logger:   logger,
	}
}

// Process runs one delivery of a job. A non-nil error is returned ONLY for
// transient failures with retry budget left; every other outcome resolves the
// job and comes back as a Result.
//
// Delivery is idempotent: an expense not in PROCESSING is skipped untouched,
// so duplicate deliveries and post-retry re-deliveries are harmless.
func (o *Orchestrator) Process(ctx context.Context, job entity.ProcessingJob) (res Result, err error) {
	log := o.logger.With("expense_id", job.ExpenseID, "attempt", job.Attempt, "trace_id", job.TraceID)
	start := time.Now()
	if job.TraceID != "" {
		ctx = common.WithTraceID(ctx, job.TraceID)
	}

	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("internal error: %v", r)
			log.Error("job.panic", "panic", r)
			o.failExpense(ctx, job.ExpenseID, reason, log)
			res, err = Result{Status: ResultFailed, Reason: reason}, nil
		}
	}()

	exp, gerr := o.expenses.GetByID(ctx, job.ExpenseID)
	if gerr != nil {
		if errors.Is(gerr, common.ErrNotFound) {
			log.Error("job.expense_missing")
			return Result{Status: ResultFailed, Reason: "expense not found"}, nil
		}
		// Cannot even read the row; let the queue retry.
		return Result{}, o.transientOrFail(ctx, job, common.NewTransientError("persist", "load expense", gerr), log)
	}

	if exp.Status != constants.StatusProcessing {
		log.Info("job.skipped", "current_status", exp.Status)
		return Result{Status: ResultSkipped, CurrentStatus: exp.Status}, nil
	}

	pres, perr := o.pipe.Run(ctx, job.ImagePath)

	// Recognized text is kept even when a later stage fails, so failed
	// expenses stay inspectable.
	if pres.RawText != "" {
		if serr := o.expenses.SaveRawText(ctx, job.ExpenseID, pres.RawText); serr != nil {
			log.Warn("job.raw_text_save_failed", "error", serr)
		}
	}

	if perr != nil {
		if common.IsTransient(perr) {
			return Result{}, o.transientOrFail(ctx, job, perr, log)
		}
		reason := common.Reason(perr)
		log.Error("job.failed", "reason", reason, "error", perr)
		o.failExpense(ctx, job.ExpenseID, reason, log)
		return Result{Status: ResultFailed, Reason: reason}, nil
	}

	members, merr := o.groups.MemberIDs(ctx, job.GroupID)
	if merr != nil {
		return Result{}, o.transientOrFail(ctx, job,
			common.NewTransientError("persist", "load group members", merr), log)
	}

	params := repository.FinalizeParams{
		ExpenseID: job.ExpenseID,
		RawText:   pres.RawText,
		Bill:      pres.Bill,
		Shares:    EqualShares(pres.Bill.Items, members),
	}
	if ferr := o.expenses.FinalizeReady(ctx, params); ferr != nil {
		return Result{}, o.transientOrFail(ctx, job,
			common.NewTransientError("persist", "finalize expense", ferr), log)
	}

	o.recomputeBalances(job.GroupID, log)

	log.Info("job.ok",
		"items", len(pres.Bill.Items),
		"total", pres.Bill.Total.String(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Result{
		Status:     ResultSuccess,
		ItemsCount: len(pres.Bill.Items),
		Total:      pres.Bill.Total,
	}, nil
}

// transientOrFail returns the transient error when retry budget remains, and
// otherwise finalizes the expense as FAILED and returns nil.
func (o *Orchestrator) transientOrFail(ctx context.Context, job entity.ProcessingJob, err error, log *slog.Logger) error {
	if job.Attempt < MaxAttempts-1 {
		log.Warn("job.transient", "error", err, "next_attempt", job.Attempt+1)
		return err
	}
	reason := fmt.Sprintf("giving up after %d attempts: %s", MaxAttempts, common.Reason(err))
	log.Error("job.retries_exhausted", "reason", reason)
	o.failExpense(ctx, job.ExpenseID, reason, log)
	return nil
}

func (o *Orchestrator) failExpense(ctx context.Context, id uuid.UUID, reason string, log *slog.Logger) {
	if err := o.expenses.MarkFailed(ctx, id, reason); err != nil {
		log.Error("job.mark_failed_error", "error", err)
	}
}

// recomputeBalances refreshes the group's balance cache off the job's critical
// path. A failure here never fails the job; the next READY expense in the
// group repairs the cache.
func (o *Orchestrator) recomputeBalances(groupID uuid.UUID, log *slog.Logger) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := o.balances.Recompute(ctx, groupID); err != nil {
			log.Warn("job.balance_recompute_failed", "group_id", groupID, "error", err)
		}
	}()
}

// EqualShares splits each item's line total evenly across members, rounded to
// 2 decimals per share. Rounding residue stays unallocated rather than being
// pushed onto an arbitrary member. No members means no splits.
func EqualShares(items []billdata.Item, members []uuid.UUID) [][]repository.SplitShare {
	shares := make([][]repository.SplitShare, len(items))
	if len(members) == 0 {
		return shares
	}
	n := decimal.NewFromInt(int64(len(members)))
	for i, item := range items {
		per := item.LineTotal().DivRound(n, 2)
		row := make([]repository.SplitShare, 0, len(members))
		for _, m := range members {
			row = append(row, repository.SplitShare{UserID: m, Amount: per})
		}
		shares[i] = row
	}
	return shares
}
