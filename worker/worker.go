// Package worker implements the worker agents the supervisor dispatches
// tasks to: research (retrieval plus fusion into a cited draft) and the
// graph/memory maintenance workers that exercise the back-end write paths.
package worker

import (
	"context"
	"fmt"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
)

// Worker executes one task against a read-only snapshot of the thread. A
// worker never mutates thread state; it reports everything through its
// result, which the supervisor critiques and records.
type Worker interface {
	Kind() core.WorkerKind
	Execute(ctx context.Context, task core.TaskSpec, snapshot *core.ThreadState) (core.WorkerResult, error)
}

// Searcher is the fan-out read path a research worker draws context from.
type Searcher interface {
	Search(ctx context.Context, q core.Query) (core.FanOutResult, error)
}

// Fuser merges fan-out batches into one ranked, deduplicated context set.
type Fuser interface {
	Fuse(res core.FanOutResult, topN int) core.FusedResult
}

// Registry maps worker kinds to implementations. The kind set is closed;
// dispatching an unregistered kind is a programming error surfaced as
// core.ErrUnknownWorker, not a silent fallback.
type Registry struct {
	workers map[core.WorkerKind]Worker
}

// NewRegistry builds a registry over the given workers.
func NewRegistry(workers ...Worker) *Registry {
	r := &Registry{workers: make(map[core.WorkerKind]Worker, len(workers))}
	for _, w := range workers {
		r.Register(w)
	}
	return r
}

// Register adds or replaces the worker for its kind.
func (r *Registry) Register(w Worker) {
	r.workers[w.Kind()] = w
}

// For resolves a task's worker. An empty kind defaults to research.
func (r *Registry) For(kind core.WorkerKind) (Worker, error) {
	if kind == "" {
		kind = core.WorkerResearch
	}
	w, ok := r.workers[kind]
	if !ok {
		return nil, fmt.Errorf("worker kind %q: %w", kind, core.ErrUnknownWorker)
	}
	return w, nil
}

// Kinds returns the registered worker kinds.
func (r *Registry) Kinds() []core.WorkerKind {
	kinds := make([]core.WorkerKind, 0, len(r.workers))
	for k := range r.workers {
		kinds = append(kinds, k)
	}
	return kinds
}
