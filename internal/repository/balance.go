package repository

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/splitmate/billscan/constants"
	"github.com/splitmate/billscan/internal/common"
	"github.com/splitmate/billscan/internal/entity"
)

// BalanceRepository maintains the derived per-group net-balance cache.
type BalanceRepository interface {
	Recompute(ctx context.Context, groupID uuid.UUID) error
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]entity.GroupBalance, error)
}

type balanceRepository struct {
	db     DB
	logger *slog.Logger
}

func NewBalanceRepository(db DB, logger *slog.Logger) BalanceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &balanceRepository{db: db, logger: logger}
}

// recomputeBalancesSQL derives each member's net position from READY expenses:
// what they paid for, minus the split shares assigned to them. A single upsert
// keeps concurrent recomputes last-writer-wins without explicit locking.
const recomputeBalancesSQL = `
INSERT INTO group_balances (group_id, user_id, net_balance, updated_at)
SELECT $1, m.user_id, COALESCE(p.paid, 0) - COALESCE(o.owed, 0), now()
FROM group_members m
LEFT JOIN (
    SELECT created_by, SUM(total) AS paid
    FROM expenses
    WHERE group_id = $1 AND status = $2 AND created_by IS NOT NULL
    GROUP BY created_by
) p ON p.created_by = m.user_id
LEFT JOIN (
    SELECT s.user_id, SUM(s.amount) AS owed
    FROM splits s
    JOIN expense_items i ON i.id = s.item_id
    JOIN expenses e ON e.id = i.expense_id
    WHERE e.group_id = $1 AND e.status = $2
    GROUP BY s.user_id
) o ON o.user_id = m.user_id
WHERE m.group_id = $1
ON CONFLICT (group_id, user_id)
DO UPDATE SET net_balance = EXCLUDED.net_balance, updated_at = EXCLUDED.updated_at`

func (r *balanceRepository) Recompute(ctx context.Context, groupID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, recomputeBalancesSQL, groupID, constants.StatusReady)
	if err != nil {
		return common.WrapError(err, "recompute group balances")
	}
	r.logger.Info("repo.balance.recomputed", "group_id", groupID, "members", tag.RowsAffected())
	return nil
}

// ListByGroup returns the cached net position per member, creditors first.
func (r *balanceRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]entity.GroupBalance, error) {
	rows, err := r.db.Query(ctx,
		`SELECT group_id, user_id, net_balance, updated_at
		 FROM group_balances
		 WHERE group_id = $1
		 ORDER BY net_balance DESC, user_id`, groupID)
	if err != nil {
		return nil, common.WrapError(err, "list group balances")
	}
	defer rows.Close()

	var out []entity.GroupBalance
	for rows.Next() {
		var b entity.GroupBalance
		if err := rows.Scan(&b.GroupID, &b.UserID, &b.Net, &b.UpdatedAt); err != nil {
			return nil, common.WrapError(err, "scan group balance")
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(err, "iterate group balances")
	}
	return out, nil
}
