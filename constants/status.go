package constants

// ExpenseStatus is the canonical lifecycle status for rows in expenses.
type ExpenseStatus string

// Stable values (store these exact strings in DB).
const (
	StatusPending    ExpenseStatus = "PENDING"    // uploaded, not yet claimed by a worker
	StatusProcessing ExpenseStatus = "PROCESSING" // the only state the pipeline may act on
	StatusReady      ExpenseStatus = "READY"      // items, splits and totals persisted
	StatusFailed     ExpenseStatus = "FAILED"     // terminal; no automatic retries
)

// Terminal reports whether no further automatic processing may touch the expense.
func (s ExpenseStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// SourceType distinguishes scanned bills from manually entered expenses.
type SourceType string

const (
	SourceBillImage SourceType = "BILL_IMAGE"
	SourceManual    SourceType = "MANUAL"
)

// SplitType is how an expense item's cost was divided.
type SplitType string

const (
	SplitEqual  SplitType = "EQUAL"
	SplitItem   SplitType = "ITEM"
	SplitCustom SplitType = "CUSTOM"
)
