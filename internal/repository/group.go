package repository

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/splitmate/billscan/internal/common"
)

// GroupRepository answers membership questions for split computation.
type GroupRepository interface {
	MemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
}

type groupRepository struct {
	db     DB
	logger *slog.Logger
}

func NewGroupRepository(db DB, logger *slog.Logger) GroupRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &groupRepository{db: db, logger: logger}
}

// MemberIDs returns the group's members in join order. Empty result means the
// group does not exist or has no members; callers treat both the same way.
func (r *groupRepository) MemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY joined_at, user_id`, groupID)
	if err != nil {
		return nil, common.WrapError(err, "list group members")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, common.WrapError(err, "scan group member")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(err, "iterate group members")
	}
	return ids, nil
}
