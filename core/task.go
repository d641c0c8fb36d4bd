package core

// WorkerKind is the closed capability set of worker agents. New kinds are
// explicit additions here plus a worker implementation, never runtime
// registration of arbitrary strings.
type WorkerKind string

const (
	// WorkerResearch answers questions through fan-out retrieval and fusion.
	WorkerResearch WorkerKind = "research"
	// WorkerGraphMaintenance mutates the graph store's write path.
	WorkerGraphMaintenance WorkerKind = "graph-maintenance"
	// WorkerMemoryMaintenance mutates the memory service's write path.
	WorkerMemoryMaintenance WorkerKind = "memory-maintenance"
)

// Budget bounds how much work the supervisor may spend on one task.
type Budget struct {
	// MaxIterations caps critique-driven revision loops.
	MaxIterations int `json:"max_iterations"`
	// MaxToolCalls caps tool invocations across the task's lifetime.
	MaxToolCalls int `json:"max_tool_calls"`
}

// TaskSpec describes one unit of work produced by planning.
type TaskSpec struct {
	ID           string     `json:"id"`
	Description  string     `json:"description"`
	Worker       WorkerKind `json:"worker"`
	Budget       Budget     `json:"budget"`
	ParentID     string     `json:"parent_id,omitempty"`
	RevisionNote string     `json:"revision_note,omitempty"`
	// Attempts counts dispatches, including timeout retries.
	Attempts int `json:"attempts"`
	// Done marks the task as having reached a terminal outcome.
	Done bool `json:"done"`
}

// ResultStatus categorizes a worker result.
type ResultStatus string

const (
	// ResultOK is a successful result.
	ResultOK ResultStatus = "ok"
	// ResultDegraded succeeded with reduced quality (partial sources,
	// exhausted revision budget).
	ResultDegraded ResultStatus = "degraded"
	// ResultFailed is a failed result.
	ResultFailed ResultStatus = "failed"
)

// WorkerResult is a worker's answer for one task. Citations reference fused
// item ids and must be a subset of ContextIDs, the ids of the fused result
// the draft was derived from; the critique phase enforces this.
type WorkerResult struct {
	TaskID     string       `json:"task_id"`
	Draft      string       `json:"draft"`
	Confidence float64      `json:"confidence"`
	Citations  []string     `json:"citations,omitempty"`
	ContextIDs []string     `json:"context_ids,omitempty"`
	Status     ResultStatus `json:"status"`
}

func (r WorkerResult) clone() WorkerResult {
	c := r
	c.Citations = append([]string(nil), r.Citations...)
	c.ContextIDs = append([]string(nil), r.ContextIDs...)
	return c
}
