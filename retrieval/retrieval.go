// Package retrieval implements the adapters that front the engine's
// heterogeneous knowledge back-ends behind the uniform core.Retriever read
// contract: vector similarity, graph traversal, memory scoring and web
// search. Adapters are stateless aside from their pooled backend clients and
// are safe for concurrent use.
//
// Read paths honor context deadlines and surface failures as
// *core.AdapterError so the fan-out coordinator can degrade instead of
// aborting. The memory and graph adapters additionally expose the write
// paths used by maintenance workers and the façade's memory.* operations.
package retrieval

import (
	"context"
	"errors"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
)

// VectorHit is one raw result from the vector store collaborator.
type VectorHit struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]string
}

// VectorIndex is the dense similarity store collaborator.
type VectorIndex interface {
	KNN(ctx context.Context, vector []float32, k int) ([]VectorHit, error)
}

// GraphHit is one raw result from the graph store collaborator.
type GraphHit struct {
	NodeID     string
	Relation   string
	Content    string
	Confidence float64
}

// GraphNode is a node upserted through the graph write path.
type GraphNode struct {
	ID      string
	Content string
	Labels  []string
}

// GraphEdge is a relation upserted through the graph write path.
type GraphEdge struct {
	From, To, Relation string
	Confidence         float64
}

// GraphStore is the graph relationship store collaborator. Traverse is
// read-only; the upsert methods form the write path used by maintenance
// workers.
type GraphStore interface {
	Traverse(ctx context.Context, pattern string, depth int) ([]GraphHit, error)
	UpsertNode(ctx context.Context, node GraphNode) error
	UpsertEdge(ctx context.Context, edge GraphEdge) error
}

// MemoryEntity is a unit of persistent memory.
type MemoryEntity struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// MemoryHit is one scored result from the memory service.
type MemoryHit struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]string
}

// MemoryService is the persistent memory scoring collaborator. ObserveUsage
// feeds the service's usage statistics; the memory adapter calls it
// fire-and-forget, off the search critical path.
type MemoryService interface {
	Search(ctx context.Context, query string, k int) ([]MemoryHit, error)
	Upsert(ctx context.Context, entity MemoryEntity) error
	Delete(ctx context.Context, entityID string) error
	ObserveUsage(ctx context.Context, entityIDs []string) error
}

// WebHit is one raw result from the web search collaborator.
type WebHit struct {
	URL     string
	Snippet string
	Score   float64
}

// WebSearcher is the external web search collaborator.
type WebSearcher interface {
	Search(ctx context.Context, query string, k int) ([]WebHit, error)
}

// wrapErr converts a backend failure into an *core.AdapterError, mapping
// context expiry onto the engine's timeout/cancellation sentinels.
func wrapErr(kind core.SourceKind, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return core.NewAdapterError(kind, core.ErrTimeout)
	case errors.Is(err, context.Canceled):
		return core.NewAdapterError(kind, core.ErrCancelled)
	default:
		return core.NewAdapterError(kind, err)
	}
}

// guard short-circuits a fetch whose context already expired.
func guard(ctx context.Context, kind core.SourceKind) error {
	if err := ctx.Err(); err != nil {
		return wrapErr(kind, err)
	}
	return nil
}
