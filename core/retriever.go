package core

import "context"

// Retriever is the uniform read contract over one knowledge back-end.
// Implementations must honor ctx cancellation and deadlines, returning an
// *AdapterError wrapping ErrTimeout when the deadline is exceeded. Fetch is
// read-only; sources with write paths expose them on their concrete adapter
// types, not here.
type Retriever interface {
	// Kind identifies the source this adapter fronts.
	Kind() SourceKind

	// Fetch returns up to k items ranked by the source's own scoring.
	Fetch(ctx context.Context, query string, k int) ([]RetrievalItem, error)
}
