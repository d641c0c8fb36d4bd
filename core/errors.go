package core

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the engine's error taxonomy. Callers branch with
// errors.Is; typed wrappers below add context while preserving identity.
var (
	// ErrTimeout indicates a per-call or per-budget deadline elapsed.
	ErrTimeout = errors.New("deadline exceeded")
	// ErrNoSourcesAvailable indicates every adapter in a fan-out failed.
	// Fatal for that single search only.
	ErrNoSourcesAvailable = errors.New("no retrieval sources available")
	// ErrThreadBusy indicates another caller holds the thread's lock.
	// Retry later.
	ErrThreadBusy = errors.New("thread busy")
	// ErrOverloaded indicates thread admission was rejected under load.
	// Retry later.
	ErrOverloaded = errors.New("engine overloaded")
	// ErrCancelled indicates a run was cancelled by the caller.
	ErrCancelled = errors.New("run cancelled")
	// ErrThreadNotFound indicates the thread id has no persisted state.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrUnknownWorker indicates a task named a worker kind with no
	// registered implementation.
	ErrUnknownWorker = errors.New("unknown worker kind")
)

// AdapterError wraps a failure from a single retrieval source. The fan-out
// coordinator absorbs these into the degraded-source list; they never abort
// a search on their own.
type AdapterError struct {
	Source SourceKind
	Err    error
}

// Error implements error.
func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s: %v", e.Source, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *AdapterError) Unwrap() error { return e.Err }

// NewAdapterError wraps err with its originating source.
func NewAdapterError(source SourceKind, err error) *AdapterError {
	return &AdapterError{Source: source, Err: err}
}

// DecompositionError indicates planning could not break the request into
// tasks. Terminal for the run.
type DecompositionError struct {
	Reason string
}

// Error implements error.
func (e *DecompositionError) Error() string {
	return fmt.Sprintf("task decomposition failed: %s", e.Reason)
}
