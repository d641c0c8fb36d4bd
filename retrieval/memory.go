package retrieval

import (
	"context"
	"time"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/logging"
)

// MemoryAdapter fronts the persistent memory scoring service. Fetch is a
// scored search; every successful search additionally reports the returned
// entity ids back to the service as a usage observation, fire-and-forget off
// the critical path. Upsert/Delete form the write path used by the façade's
// memory.* operations and memory-maintenance workers.
type MemoryAdapter struct {
	service        MemoryService
	observeTimeout time.Duration
	logger         logging.Logger
}

// MemoryOptions configures a MemoryAdapter.
type MemoryOptions struct {
	// ObserveTimeout bounds the background usage-observation write.
	ObserveTimeout time.Duration
	Logger         logging.Logger
}

// NewMemoryAdapter constructs a memory adapter.
func NewMemoryAdapter(service MemoryService, optFns ...func(o *MemoryOptions)) *MemoryAdapter {
	opts := MemoryOptions{ObserveTimeout: 2 * time.Second, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &MemoryAdapter{service: service, observeTimeout: opts.ObserveTimeout, logger: opts.Logger}
}

// Kind implements core.Retriever.
func (a *MemoryAdapter) Kind() core.SourceKind { return core.SourceMemory }

// Fetch implements core.Retriever.
func (a *MemoryAdapter) Fetch(ctx context.Context, query string, k int) ([]core.RetrievalItem, error) {
	if err := guard(ctx, core.SourceMemory); err != nil {
		return nil, err
	}

	start := time.Now()

	hits, err := a.service.Search(ctx, query, k)
	if err != nil {
		return nil, wrapErr(core.SourceMemory, err)
	}

	items := make([]core.RetrievalItem, 0, len(hits))
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		items = append(items, core.NewRetrievalItem(h.ID, core.SourceMemory, h.Content, h.Score, h.Metadata))
		ids = append(ids, h.ID)
	}

	if len(ids) > 0 {
		// Usage observation is detached from the caller's context so a search
		// deadline never truncates it, and its failure never fails the search.
		go func() {
			obsCtx, cancel := context.WithTimeout(context.Background(), a.observeTimeout)
			defer cancel()
			if err := a.service.ObserveUsage(obsCtx, ids); err != nil {
				a.logger.Warn("memory usage observation failed", "error", err)
			}
		}()
	}

	a.logger.Debug("memory fetch completed", "hits", len(items), "duration", time.Since(start))

	return items, nil
}

// Upsert writes an entity through to the memory service.
func (a *MemoryAdapter) Upsert(ctx context.Context, entity MemoryEntity) error {
	return wrapErr(core.SourceMemory, a.service.Upsert(ctx, entity))
}

// Delete removes an entity from the memory service.
func (a *MemoryAdapter) Delete(ctx context.Context, entityID string) error {
	return wrapErr(core.SourceMemory, a.service.Delete(ctx, entityID))
}
