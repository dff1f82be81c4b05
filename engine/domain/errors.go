package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for collaborator failures. External failures are surfaced
// to the caller of the run, never silently replaced with default data.
var (
	// ErrEmbeddingService signals the embedding generator was unavailable
	// after its own retry policy was exhausted.
	ErrEmbeddingService = errors.New("embedding service unavailable")
	// ErrIndexUnavailable signals the similarity index was unreachable.
	// Ingestion must fail closed: never proceed as "not duplicate".
	ErrIndexUnavailable = errors.New("similarity index unavailable")
	// ErrExtraction signals an entity extractor transport failure. Absence of
	// entities is not an extraction error.
	ErrExtraction = errors.New("entity extraction failed")
	// ErrStoreUnavailable signals the relational store was unreachable.
	ErrStoreUnavailable = errors.New("relational store unavailable")

	// Validation sentinels.
	ErrInvalidArticle    = errors.New("invalid article")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrUnknownEntityType = errors.New("unknown entity type")
	ErrConfidenceRange   = errors.New("confidence out of [0,1]")
)

// ValidationError wraps a sentinel with field context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
