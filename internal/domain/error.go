package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrAlreadyExists        = errors.New("entity already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrInvalidTransition    = errors.New("invalid unit status transition")
	ErrConflict             = errors.New("concurrent update")
	ErrQueueEmpty           = errors.New("dispatch queue empty")
	ErrStore                = errors.New("durable store error")
	ErrGeneration           = errors.New("generation failed")
	ErrGeneratorUnavailable = errors.New("generator unavailable")
	ErrLockNotAcquired      = errors.New("lock not acquired")
	ErrArchiveDisabled      = errors.New("library archive is not configured")

	// Postgres helpers
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
)

// StoreError reports a Durable Store failure: unreachable backend or malformed data.
type StoreError struct {
	Op  string
	Err error
}

func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

// ValidationError is returned synchronously for bad job-creation input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidArgument }

// GenerationError is raised by the chunk engine when a unit produced no usable text.
type GenerationError struct {
	JobID     string
	UnitIndex int
	Chunk     int
	Err       error
}

func (e *GenerationError) Error() string {
	if e.Chunk >= 0 {
		return fmt.Sprintf("generate unit %s/%d chunk %d: %v", e.JobID, e.UnitIndex, e.Chunk, e.Err)
	}
	return fmt.Sprintf("generate unit %s/%d: %v", e.JobID, e.UnitIndex, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// IsStoreError reports whether err originates from the Durable Store.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStore)
}
