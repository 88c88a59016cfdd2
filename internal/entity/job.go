package entity

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingJob is the orchestrated unit of work: one bill image to turn into
// a READY expense. Created when a client submits an image, discarded once the
// expense reaches a terminal status.
type ProcessingJob struct {
	ExpenseID   uuid.UUID `json:"expense_id"`
	GroupID     uuid.UUID `json:"group_id"`
	ImagePath   string    `json:"image_path"`
	Attempt     int       `json:"attempt"` // 0 on first delivery
	SubmittedAt time.Time `json:"submitted_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}
