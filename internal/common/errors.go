package common

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure for the orchestrator's retry decision.
type Kind int

const (
	// KindExtraction covers OCR and inference failures that a retry cannot fix:
	// unreadable images, garbled text, malformed or incomplete model output.
	KindExtraction Kind = iota
	// KindValidation covers schema, item-cleaning and math-reconciliation failures.
	KindValidation
	// KindTransient covers transport-class failures: service unreachable,
	// timeout, connection reset. The whole job is retried with backoff.
	KindTransient
	// KindNotFound means the owning record does not exist; there is nothing to update.
	KindNotFound
	// KindInternal is anything uncaught; treated as terminal.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindExtraction:
		return "extraction"
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// PipelineError is the typed error every pipeline stage returns. Message is
// human-readable and is what gets stored on a FAILED expense.
type PipelineError struct {
	Kind    Kind
	Stage   string // "ocr" | "llm" | "validate" | "persist" | ...
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Stage, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Stage, e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Common sentinel errors.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
)

func NewExtractionError(stage, message string, cause error) *PipelineError {
	return &PipelineError{Kind: KindExtraction, Stage: stage, Message: message, Cause: cause}
}

func NewValidationError(message string, cause error) *PipelineError {
	return &PipelineError{Kind: KindValidation, Stage: "validate", Message: message, Cause: cause}
}

func NewTransientError(stage, message string, cause error) *PipelineError {
	return &PipelineError{Kind: KindTransient, Stage: stage, Message: message, Cause: cause}
}

func NewInternalError(stage, message string, cause error) *PipelineError {
	return &PipelineError{Kind: KindInternal, Stage: stage, Message: message, Cause: cause}
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind == KindTransient
	}
	return false
}

// Reason extracts the human-readable message to store on a FAILED expense.
func Reason(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		if pe.Cause != nil {
			return fmt.Sprintf("%s: %v", pe.Message, pe.Cause)
		}
		return pe.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
