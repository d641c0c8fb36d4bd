package retrieval

import (
	"context"
	"time"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/logging"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/model"
)

// VectorAdapter fronts the dense vector similarity store. Fetch embeds the
// query text through the configured Embedder and runs a KNN search; raw
// scores are the store's similarity scores.
type VectorAdapter struct {
	embedder model.Embedder
	index    VectorIndex
	logger   logging.Logger
}

// VectorOptions configures a VectorAdapter.
type VectorOptions struct {
	Logger logging.Logger
}

// NewVectorAdapter constructs a vector adapter over an embedder and index.
func NewVectorAdapter(embedder model.Embedder, index VectorIndex, optFns ...func(o *VectorOptions)) *VectorAdapter {
	opts := VectorOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &VectorAdapter{embedder: embedder, index: index, logger: opts.Logger}
}

// Kind implements core.Retriever.
func (a *VectorAdapter) Kind() core.SourceKind { return core.SourceVector }

// Fetch implements core.Retriever.
func (a *VectorAdapter) Fetch(ctx context.Context, query string, k int) ([]core.RetrievalItem, error) {
	if err := guard(ctx, core.SourceVector); err != nil {
		return nil, err
	}

	start := time.Now()

	vec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, wrapErr(core.SourceVector, err)
	}

	hits, err := a.index.KNN(ctx, vec, k)
	if err != nil {
		return nil, wrapErr(core.SourceVector, err)
	}

	items := make([]core.RetrievalItem, 0, len(hits))
	for _, h := range hits {
		items = append(items, core.NewRetrievalItem(h.ID, core.SourceVector, h.Content, h.Score, h.Metadata))
	}

	a.logger.Debug("vector fetch completed", "hits", len(items), "duration", time.Since(start))

	return items, nil
}
