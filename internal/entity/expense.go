package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/splitmate/billscan/constants"
)

// Expense is the owning record the pipeline drives through its lifecycle.
// Money fields are NULL (zero decimals here) while the expense is PROCESSING.
type Expense struct {
	ID         uuid.UUID               `json:"id"`
	GroupID    uuid.UUID               `json:"group_id"`
	CreatedBy  *uuid.UUID              `json:"created_by,omitempty"`
	SourceType constants.SourceType    `json:"source_type"`
	ImagePath  string                  `json:"image_path,omitempty"`
	RawText    string                  `json:"raw_text,omitempty"`
	Status     constants.ExpenseStatus `json:"status"`
	FailReason string                  `json:"fail_reason,omitempty"`
	Subtotal   decimal.Decimal         `json:"subtotal"`
	Tax        decimal.Decimal         `json:"tax"`
	Total      decimal.Decimal         `json:"total"`
	CreatedAt  time.Time               `json:"created_at"`
}

// ExpenseItem is one line item extracted from a bill.
type ExpenseItem struct {
	ID        uuid.UUID       `json:"id"`
	ExpenseID uuid.UUID       `json:"expense_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Split is one member's share of one expense item.
type Split struct {
	ID     uuid.UUID           `json:"id"`
	ItemID uuid.UUID           `json:"item_id"`
	UserID uuid.UUID           `json:"user_id"`
	Amount decimal.Decimal     `json:"amount"`
	Type   constants.SplitType `json:"type"`
}

// GroupBalance is one row of the derived per-group balance cache.
// Positive means the user is owed money; negative means they owe.
type GroupBalance struct {
	GroupID   uuid.UUID       `json:"group_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Net       decimal.Decimal `json:"net_balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}
