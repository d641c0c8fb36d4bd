package worker

import (
	"context"
	"fmt"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/logging"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/retrieval"
)

// GraphMaintenanceWorker projects a thread's accepted research results into
// the graph store: one node per result, linked to the thread node so later
// traversals can surface prior findings.
type GraphMaintenanceWorker struct {
	graph  *retrieval.GraphAdapter
	logger logging.Logger
}

// NewGraphMaintenanceWorker constructs a graph maintenance worker.
func NewGraphMaintenanceWorker(graph *retrieval.GraphAdapter, logger logging.Logger) *GraphMaintenanceWorker {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &GraphMaintenanceWorker{graph: graph, logger: logger}
}

// Kind implements Worker.
func (w *GraphMaintenanceWorker) Kind() core.WorkerKind { return core.WorkerGraphMaintenance }

// Execute implements Worker. The first write failure aborts the task; graph
// writes are idempotent upserts, so a retry redoes the whole projection.
func (w *GraphMaintenanceWorker) Execute(ctx context.Context, task core.TaskSpec, snapshot *core.ThreadState) (core.WorkerResult, error) {
	threadNode := retrieval.GraphNode{
		ID:      "thread:" + snapshot.ThreadID,
		Content: snapshot.LastMessage().Content,
		Labels:  []string{"thread"},
	}
	if err := w.graph.UpsertNode(ctx, threadNode); err != nil {
		return core.WorkerResult{TaskID: task.ID, Status: core.ResultFailed}, err
	}

	written := 0
	for _, r := range snapshot.Results {
		if r.Status == core.ResultFailed || r.Draft == "" {
			continue
		}
		node := retrieval.GraphNode{
			ID:      "finding:" + r.TaskID,
			Content: r.Draft,
			Labels:  []string{"finding"},
		}
		if err := w.graph.UpsertNode(ctx, node); err != nil {
			return core.WorkerResult{TaskID: task.ID, Status: core.ResultFailed}, err
		}
		edge := retrieval.GraphEdge{
			From:       threadNode.ID,
			To:         node.ID,
			Relation:   "produced",
			Confidence: r.Confidence,
		}
		if err := w.graph.UpsertEdge(ctx, edge); err != nil {
			return core.WorkerResult{TaskID: task.ID, Status: core.ResultFailed}, err
		}
		written++
	}

	w.logger.Debug("graph maintenance completed", "task_id", task.ID, "findings", written)

	return core.WorkerResult{
		TaskID:     task.ID,
		Draft:      fmt.Sprintf("projected %d findings into the graph", written),
		Confidence: 1,
		Status:     core.ResultOK,
	}, nil
}

// MemoryMaintenanceWorker persists a thread's accepted research results into
// the memory service so future searches can recall them.
type MemoryMaintenanceWorker struct {
	memory *retrieval.MemoryAdapter
	logger logging.Logger
}

// NewMemoryMaintenanceWorker constructs a memory maintenance worker.
func NewMemoryMaintenanceWorker(memory *retrieval.MemoryAdapter, logger logging.Logger) *MemoryMaintenanceWorker {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &MemoryMaintenanceWorker{memory: memory, logger: logger}
}

// Kind implements Worker.
func (w *MemoryMaintenanceWorker) Kind() core.WorkerKind { return core.WorkerMemoryMaintenance }

// Execute implements Worker.
func (w *MemoryMaintenanceWorker) Execute(ctx context.Context, task core.TaskSpec, snapshot *core.ThreadState) (core.WorkerResult, error) {
	written := 0
	for _, r := range snapshot.Results {
		if r.Status == core.ResultFailed || r.Draft == "" {
			continue
		}
		entity := retrieval.MemoryEntity{
			ID:      "finding:" + r.TaskID,
			Content: r.Draft,
			Metadata: map[string]string{
				"thread_id": snapshot.ThreadID,
				"task_id":   r.TaskID,
			},
		}
		if err := w.memory.Upsert(ctx, entity); err != nil {
			return core.WorkerResult{TaskID: task.ID, Status: core.ResultFailed}, err
		}
		written++
	}

	w.logger.Debug("memory maintenance completed", "task_id", task.ID, "entities", written)

	return core.WorkerResult{
		TaskID:     task.ID,
		Draft:      fmt.Sprintf("persisted %d findings to memory", written),
		Confidence: 1,
		Status:     core.ResultOK,
	}, nil
}

var (
	_ Worker = (*GraphMaintenanceWorker)(nil)
	_ Worker = (*MemoryMaintenanceWorker)(nil)
)
