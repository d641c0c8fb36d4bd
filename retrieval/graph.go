package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/logging"
)

// GraphAdapter fronts the graph relationship store. Fetch runs a traversal
// with the query as pattern; raw scores are the store's edge confidences.
// The upsert methods are the write path used by graph-maintenance workers.
type GraphAdapter struct {
	store  GraphStore
	depth  int
	logger logging.Logger
}

// GraphOptions configures a GraphAdapter.
type GraphOptions struct {
	// Depth bounds traversals started from the query pattern.
	Depth  int
	Logger logging.Logger
}

// NewGraphAdapter constructs a graph adapter with default traversal depth 2.
func NewGraphAdapter(store GraphStore, optFns ...func(o *GraphOptions)) *GraphAdapter {
	opts := GraphOptions{Depth: 2, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &GraphAdapter{store: store, depth: opts.Depth, logger: opts.Logger}
}

// Kind implements core.Retriever.
func (a *GraphAdapter) Kind() core.SourceKind { return core.SourceGraph }

// Fetch implements core.Retriever.
func (a *GraphAdapter) Fetch(ctx context.Context, query string, k int) ([]core.RetrievalItem, error) {
	if err := guard(ctx, core.SourceGraph); err != nil {
		return nil, err
	}

	start := time.Now()

	hits, err := a.store.Traverse(ctx, query, a.depth)
	if err != nil {
		return nil, wrapErr(core.SourceGraph, err)
	}
	if len(hits) > k {
		hits = hits[:k]
	}

	items := make([]core.RetrievalItem, 0, len(hits))
	for _, h := range hits {
		md := map[string]string{"node_id": h.NodeID}
		if h.Relation != "" {
			md["relation"] = h.Relation
		}
		items = append(items, core.NewRetrievalItem(h.NodeID, core.SourceGraph, h.Content, h.Confidence, md))
	}

	a.logger.Debug("graph fetch completed", "hits", len(items), "duration", time.Since(start))

	return items, nil
}

// UpsertNode writes a node through to the graph store.
func (a *GraphAdapter) UpsertNode(ctx context.Context, node GraphNode) error {
	if node.ID == "" {
		return fmt.Errorf("graph node id must not be empty")
	}
	return wrapErr(core.SourceGraph, a.store.UpsertNode(ctx, node))
}

// UpsertEdge writes a relation through to the graph store.
func (a *GraphAdapter) UpsertEdge(ctx context.Context, edge GraphEdge) error {
	if edge.From == "" || edge.To == "" {
		return fmt.Errorf("graph edge endpoints must not be empty")
	}
	return wrapErr(core.SourceGraph, a.store.UpsertEdge(ctx, edge))
}
