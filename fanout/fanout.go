// Package fanout implements the coordinator that issues one concurrent fetch
// per allowed retrieval adapter under a shared deadline, tolerating partial
// failure. Failed or unfinished sources are reported as degraded; a search
// only fails outright when no source succeeds.
package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/logging"
)

// Options configures a Coordinator.
type Options struct {
	// Deadline is the ceiling for one fan-out call. Per-query deadlines are
	// capped by it; the coordinator never runs longer.
	Deadline time.Duration
	// Quorum is the number of adapter successes that completes the call
	// early, bounding tail latency. Zero waits for every allowed adapter
	// (at least one success is always required).
	Quorum int
	// PerSourceK is the default number of hits requested from each adapter.
	PerSourceK int
	Logger     logging.Logger
}

// Coordinator fans a query out to its registered adapters. It is immutable
// after construction and safe for concurrent use.
type Coordinator struct {
	retrievers map[core.SourceKind]core.Retriever
	opts       Options
}

// New constructs a Coordinator over the given adapters. Registering two
// adapters for the same source kind keeps the last one.
func New(retrievers []core.Retriever, optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		Deadline:   5 * time.Second,
		Quorum:     0,
		PerSourceK: 5,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	byKind := make(map[core.SourceKind]core.Retriever, len(retrievers))
	for _, r := range retrievers {
		byKind[r.Kind()] = r
	}

	return &Coordinator{retrievers: byKind, opts: opts}
}

// Sources returns the registered source kinds in canonical order.
func (c *Coordinator) Sources() []core.SourceKind {
	var kinds []core.SourceKind
	for _, k := range core.AllSources() {
		if _, ok := c.retrievers[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

type attempt struct {
	kind  core.SourceKind
	items []core.RetrievalItem
	err   error
}

// Search issues one concurrent fetch per allowed adapter and collects the
// per-source batches. It returns when every allowed adapter has responded,
// the deadline elapses, or the configured quorum of successes is reached —
// whichever comes first. Sources that failed, timed out, or were still
// outstanding at completion are listed in the result's Degraded set.
//
// Zero successes fail the search: core.ErrCancelled if the caller cancelled,
// core.ErrTimeout if the deadline consumed every attempt, otherwise
// core.ErrNoSourcesAvailable.
func (c *Coordinator) Search(ctx context.Context, q core.Query) (core.FanOutResult, error) {
	allowed := c.allowed(q)
	if len(allowed) == 0 {
		return core.FanOutResult{}, fmt.Errorf("allow-list matches no registered source: %w", core.ErrNoSourcesAvailable)
	}

	deadline := c.opts.Deadline
	if q.Deadline > 0 && q.Deadline < deadline {
		deadline = q.Deadline
	}
	k := c.opts.PerSourceK
	if q.PerSourceK > 0 {
		k = q.PerSourceK
	}

	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	resCh := make(chan attempt, len(allowed))
	for _, kind := range allowed {
		r := c.retrievers[kind]
		go func(kind core.SourceKind, r core.Retriever) {
			start := time.Now()
			items, err := r.Fetch(callCtx, q.Text, k)
			if err != nil {
				c.opts.Logger.Warn("fanout source failed", "source", string(kind), "duration", time.Since(start), "error", err)
			} else {
				c.opts.Logger.Debug("fanout source succeeded", "source", string(kind), "hits", len(items), "duration", time.Since(start))
			}
			resCh <- attempt{kind: kind, items: items, err: err}
		}(kind, r)
	}

	bySource := make(map[core.SourceKind][]core.RetrievalItem)
	failed := make(map[core.SourceKind]bool)
	responded := make(map[core.SourceKind]bool)
	successes := 0

collect:
	for len(responded) < len(allowed) {
		select {
		case <-callCtx.Done():
			break collect
		case a := <-resCh:
			responded[a.kind] = true
			if a.err != nil {
				failed[a.kind] = true
				continue
			}
			bySource[a.kind] = a.items
			successes++
			if c.opts.Quorum > 0 && successes >= c.opts.Quorum {
				// Quorum met: stop waiting for stragglers.
				cancel()
				break collect
			}
		}
	}

	var degraded []core.SourceKind
	for _, kind := range allowed {
		if failed[kind] || !responded[kind] {
			degraded = append(degraded, kind)
		}
	}

	if successes == 0 {
		switch {
		case ctx.Err() == context.Canceled:
			return core.FanOutResult{}, fmt.Errorf("fan-out cancelled: %w", core.ErrCancelled)
		case callCtx.Err() == context.DeadlineExceeded:
			return core.FanOutResult{}, fmt.Errorf("fan-out deadline elapsed before any source responded: %w", core.ErrTimeout)
		default:
			return core.FanOutResult{}, fmt.Errorf("all %d sources failed: %w", len(allowed), core.ErrNoSourcesAvailable)
		}
	}

	return core.FanOutResult{BySource: bySource, Degraded: degraded}, nil
}

// allowed intersects the query's allow-list with registered adapters,
// preserving canonical source order.
func (c *Coordinator) allowed(q core.Query) []core.SourceKind {
	var kinds []core.SourceKind
	for _, kind := range core.AllSources() {
		if _, ok := c.retrievers[kind]; !ok {
			continue
		}
		if q.Allows(kind) {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}
