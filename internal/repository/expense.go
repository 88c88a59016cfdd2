package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/splitmate/billscan/constants"
	"github.com/splitmate/billscan/internal/billdata"
	"github.com/splitmate/billscan/internal/common"
	"github.com/splitmate/billscan/internal/entity"
)

// SplitShare is one member's computed share of one item.
type SplitShare struct {
	UserID uuid.UUID
	Amount decimal.Decimal
}

// FinalizeParams carries everything FinalizeReady writes in one transaction.
// Shares[i] holds the per-member shares for Bill.Items[i].
type FinalizeParams struct {
	ExpenseID uuid.UUID
	RawText   string
	Bill      billdata.Bill
	Shares    [][]SplitShare
}

// GroupExpense pairs a READY expense with its line items, for export.
type GroupExpense struct {
	Expense entity.Expense
	Items   []entity.ExpenseItem
}

// ExpenseRepository is the persistence surface the orchestrator drives.
type ExpenseRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Expense, error)
	SaveRawText(ctx context.Context, id uuid.UUID, text string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	FinalizeReady(ctx context.Context, p FinalizeParams) error
	ClaimPending(ctx context.Context, limit int) ([]entity.ProcessingJob, error)
	ListReadyByGroup(ctx context.Context, groupID uuid.UUID) ([]GroupExpense, error)
}

type expenseRepository struct {
	db     DB
	logger *slog.Logger
}

func NewExpenseRepository(db DB, logger *slog.Logger) ExpenseRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &expenseRepository{db: db, logger: logger}
}

const expenseColumns = `id, group_id, created_by, source_type,
	COALESCE(image_path, ''), COALESCE(raw_text, ''), status, COALESCE(fail_reason, ''),
	COALESCE(subtotal, 0), COALESCE(tax, 0), COALESCE(total, 0), created_at`

func (r *expenseRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Expense, error) {
	row := r.db.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id)

	var e entity.Expense
	err := row.Scan(&e.ID, &e.GroupID, &e.CreatedBy, &e.SourceType,
		&e.ImagePath, &e.RawText, &e.Status, &e.FailReason,
		&e.Subtotal, &e.Tax, &e.Total, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "get expense")
	}
	return &e, nil
}

// SaveRawText persists recognized text as soon as OCR succeeds, so a later
// failure still leaves the text inspectable.
func (r *expenseRepository) SaveRawText(ctx context.Context, id uuid.UUID, text string) error {
	_, err := r.db.Exec(ctx, `UPDATE expenses SET raw_text = $2 WHERE id = $1`, id, text)
	return common.WrapError(err, "save raw text")
}

func (r *expenseRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE expenses SET status = $2, fail_reason = $3 WHERE id = $1`,
		id, constants.StatusFailed, reason)
	if err != nil {
		return common.WrapError(err, "mark expense failed")
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	r.logger.Info("repo.expense.marked_failed", "expense_id", id, "reason", reason)
	return nil
}

// FinalizeReady writes items, splits and totals and flips the status to READY
// in one transaction. The status update is guarded on PROCESSING so a stale
// duplicate finalize cannot overwrite a terminal record.
func (r *expenseRepository) FinalizeReady(ctx context.Context, p FinalizeParams) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return common.WrapError(err, "begin finalize transaction")
	}
	defer func() {
		if rerr := tx.Rollback(ctx); rerr != nil && !errors.Is(rerr, pgx.ErrTxClosed) {
			r.logger.Warn("repo.expense.rollback_error", "expense_id", p.ExpenseID, "error", rerr)
		}
	}()

	for i, item := range p.Bill.Items {
		itemID := uuid.New()
		_, err = tx.Exec(ctx,
			`INSERT INTO expense_items (id, expense_id, name, quantity, price) VALUES ($1, $2, $3, $4, $5)`,
			itemID, p.ExpenseID, item.Name, item.Quantity, item.Price)
		if err != nil {
			return common.WrapError(err, "insert expense item")
		}
		if i >= len(p.Shares) {
			continue
		}
		for _, share := range p.Shares[i] {
			_, err = tx.Exec(ctx,
				`INSERT INTO splits (id, item_id, user_id, amount, split_type) VALUES ($1, $2, $3, $4, $5)`,
				uuid.New(), itemID, share.UserID, share.Amount, constants.SplitEqual)
			if err != nil {
				return common.WrapError(err, "insert split")
			}
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE expenses
		 SET raw_text = $2, subtotal = $3, tax = $4, total = $5, status = $6, fail_reason = NULL
		 WHERE id = $1 AND status = $7`,
		p.ExpenseID, p.RawText, p.Bill.Subtotal, p.Bill.Tax, p.Bill.Total,
		constants.StatusReady, constants.StatusProcessing)
	if err != nil {
		return common.WrapError(err, "update expense totals")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("expense %s left PROCESSING before finalize could commit", p.ExpenseID)
	}

	if err := tx.Commit(ctx); err != nil {
		return common.WrapError(err, "commit finalize transaction")
	}
	r.logger.Info("repo.expense.finalized",
		"expense_id", p.ExpenseID,
		"items", len(p.Bill.Items),
		"total", p.Bill.Total.String(),
	)
	return nil
}

// ClaimPending atomically moves up to limit PENDING bill-image expenses to
// PROCESSING and returns jobs for them. SKIP LOCKED keeps concurrent pollers
// from claiming the same row.
func (r *expenseRepository) ClaimPending(ctx context.Context, limit int) ([]entity.ProcessingJob, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE expenses SET status = $1
		 WHERE id IN (
		     SELECT id FROM expenses
		     WHERE status = $2 AND source_type = $3 AND image_path IS NOT NULL
		     ORDER BY created_at
		     LIMIT $4
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, group_id, COALESCE(image_path, '')`,
		constants.StatusProcessing, constants.StatusPending, constants.SourceBillImage, limit)
	if err != nil {
		return nil, common.WrapError(err, "claim pending expenses")
	}
	defer rows.Close()

	now := time.Now().UTC()
	var jobs []entity.ProcessingJob
	for rows.Next() {
		var j entity.ProcessingJob
		if err := rows.Scan(&j.ExpenseID, &j.GroupID, &j.ImagePath); err != nil {
			return nil, common.WrapError(err, "scan claimed expense")
		}
		j.SubmittedAt = now
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(err, "iterate claimed expenses")
	}
	return jobs, nil
}

// ListReadyByGroup returns a group's READY expenses with their items, ordered
// by creation time, for spreadsheet export.
func (r *expenseRepository) ListReadyByGroup(ctx context.Context, groupID uuid.UUID) ([]GroupExpense, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE group_id = $1 AND status = $2
		 ORDER BY created_at`, groupID, constants.StatusReady)
	if err != nil {
		return nil, common.WrapError(err, "list ready expenses")
	}
	defer rows.Close()

	var out []GroupExpense
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var e entity.Expense
		if err := rows.Scan(&e.ID, &e.GroupID, &e.CreatedBy, &e.SourceType,
			&e.ImagePath, &e.RawText, &e.Status, &e.FailReason,
			&e.Subtotal, &e.Tax, &e.Total, &e.CreatedAt); err != nil {
			return nil, common.WrapError(err, "scan ready expense")
		}
		index[e.ID] = len(out)
		out = append(out, GroupExpense{Expense: e})
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(err, "iterate ready expenses")
	}
	if len(out) == 0 {
		return out, nil
	}

	itemRows, err := r.db.Query(ctx,
		`SELECT i.id, i.expense_id, i.name, i.quantity, i.price
		 FROM expense_items i
		 JOIN expenses e ON e.id = i.expense_id
		 WHERE e.group_id = $1 AND e.status = $2
		 ORDER BY i.expense_id, i.name`, groupID, constants.StatusReady)
	if err != nil {
		return nil, common.WrapError(err, "list expense items")
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var it entity.ExpenseItem
		if err := itemRows.Scan(&it.ID, &it.ExpenseID, &it.Name, &it.Quantity, &it.Price); err != nil {
			return nil, common.WrapError(err, "scan expense item")
		}
		if pos, ok := index[it.ExpenseID]; ok {
			out[pos].Items = append(out[pos].Items, it)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, common.WrapError(err, "iterate expense items")
	}
	return out, nil
}
