package types

import (
	"errors"
	"fmt"
)

// Domain errors for type validation
var (
	ErrInvalidChunkID    = errors.New("invalid chunk ID")
	ErrMissingDocumentID = errors.New("document ID is required")
	ErrEmptyContent      = errors.New("content cannot be empty")

	// ErrValidation matches every ValidationError via errors.Is
	ErrValidation = errors.New("validation failed")
)

// Pipeline stages named in FatalRetrievalError
const (
	StageEmbed          = "embed"
	StageVectorSearch   = "vector_search"
	StageFullTextSearch = "fulltext_search"
	StageRetrieve       = "retrieve"
	StageHistory        = "history"
)

// FatalRetrievalError reports a pipeline failure after which no result can be
// computed. Stage names the failing step; Err is the unmodified cause.
type FatalRetrievalError struct {
	Stage string
	Err   error
}

func (e *FatalRetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed at %s: %v", e.Stage, e.Err)
}

func (e *FatalRetrievalError) Unwrap() error {
	return e.Err
}

// NewFatalRetrievalError attaches a stage name to a cause
func NewFatalRetrievalError(stage string, err error) *FatalRetrievalError {
	return &FatalRetrievalError{Stage: stage, Err: err}
}

// ValidationError rejects a malformed request before any external call
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) true for every ValidationError
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError for a request field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
