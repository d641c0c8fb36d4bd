package retrieval

import (
	"context"
	"time"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/logging"
)

// WebAdapter fronts the external web search service. Item ids are result
// URLs; raw scores are the service's relevance scores.
type WebAdapter struct {
	searcher WebSearcher
	logger   logging.Logger
}

// WebOptions configures a WebAdapter.
type WebOptions struct {
	Logger logging.Logger
}

// NewWebAdapter constructs a web search adapter.
func NewWebAdapter(searcher WebSearcher, optFns ...func(o *WebOptions)) *WebAdapter {
	opts := WebOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &WebAdapter{searcher: searcher, logger: opts.Logger}
}

// Kind implements core.Retriever.
func (a *WebAdapter) Kind() core.SourceKind { return core.SourceWeb }

// Fetch implements core.Retriever.
func (a *WebAdapter) Fetch(ctx context.Context, query string, k int) ([]core.RetrievalItem, error) {
	if err := guard(ctx, core.SourceWeb); err != nil {
		return nil, err
	}

	start := time.Now()

	hits, err := a.searcher.Search(ctx, query, k)
	if err != nil {
		return nil, wrapErr(core.SourceWeb, err)
	}

	items := make([]core.RetrievalItem, 0, len(hits))
	for _, h := range hits {
		items = append(items, core.NewRetrievalItem(h.URL, core.SourceWeb, h.Snippet, h.Score, map[string]string{"url": h.URL}))
	}

	a.logger.Debug("web fetch completed", "hits", len(items), "duration", time.Since(start))

	return items, nil
}
