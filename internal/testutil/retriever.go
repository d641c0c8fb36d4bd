package testutil

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
)

// Item builds a retrieval item with a derived fingerprint. Terse on purpose;
// most tests only care about id, source and score.
func Item(id string, source core.SourceKind, content string, score float64) core.RetrievalItem {
	return core.NewRetrievalItem(id, source, content, score, nil)
}

// ScriptedRetriever is a core.Retriever whose behavior is fully scripted:
// fixed items, an optional error, and an optional delay that respects
// context cancellation. It counts Fetch calls for assertions.
type ScriptedRetriever struct {
	Source core.SourceKind
	Items  []core.RetrievalItem
	Err    error
	Delay  time.Duration

	calls atomic.Int64
}

// NewScriptedRetriever returns a retriever that yields the given items.
func NewScriptedRetriever(source core.SourceKind, items ...core.RetrievalItem) *ScriptedRetriever {
	return &ScriptedRetriever{Source: source, Items: items}
}

// Kind implements core.Retriever.
func (r *ScriptedRetriever) Kind() core.SourceKind { return r.Source }

// Fetch implements core.Retriever.
func (r *ScriptedRetriever) Fetch(ctx context.Context, _ string, k int) ([]core.RetrievalItem, error) {
	r.calls.Add(1)

	if r.Delay > 0 {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, core.NewAdapterError(r.Source, core.ErrTimeout)
			}
			return nil, core.NewAdapterError(r.Source, core.ErrCancelled)
		case <-time.After(r.Delay):
		}
	}

	if r.Err != nil {
		return nil, core.NewAdapterError(r.Source, r.Err)
	}

	items := r.Items
	if len(items) > k {
		items = items[:k]
	}
	return append([]core.RetrievalItem(nil), items...), nil
}

// Calls returns how many times Fetch has been invoked.
func (r *ScriptedRetriever) Calls() int { return int(r.calls.Load()) }
