package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/model"
)

// Planner decomposes a user query into an ordered stack of task specs.
type Planner interface {
	Plan(ctx context.Context, query string, snapshot *core.ThreadState) ([]core.TaskSpec, error)
}

// RulePlanner is the deterministic default planner. It splits the query on
// conjunction markers into independent research tasks; a query with no
// markers becomes a single task. No model call, so planning never adds
// latency or nondeterminism.
type RulePlanner struct{}

var conjunctions = []string{"; ", " and also ", " and then ", ", then "}

// Plan implements Planner.
func (RulePlanner) Plan(_ context.Context, query string, _ *core.ThreadState) ([]core.TaskSpec, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &core.DecompositionError{Reason: "empty query"}
	}

	parts := []string{query}
	for _, sep := range conjunctions {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, sep)...)
		}
		parts = next
	}

	var tasks []core.TaskSpec
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tasks = append(tasks, core.TaskSpec{
			ID:          uuid.NewString(),
			Description: p,
			Worker:      core.WorkerResearch,
		})
	}
	if len(tasks) == 0 {
		return nil, &core.DecompositionError{Reason: "query reduced to no tasks"}
	}
	return tasks, nil
}

// ModelPlanner asks a generator to decompose the query, one sub-task per
// output line. Malformed or empty output falls back to the rule planner so
// planning cannot strand a thread.
type ModelPlanner struct {
	generator model.Generator
	fallback  RulePlanner
}

// NewModelPlanner constructs a model-backed planner.
func NewModelPlanner(generator model.Generator) *ModelPlanner {
	return &ModelPlanner{generator: generator}
}

// Plan implements Planner.
func (p *ModelPlanner) Plan(ctx context.Context, query string, snapshot *core.ThreadState) ([]core.TaskSpec, error) {
	prompt := fmt.Sprintf(
		"Decompose the following request into independent research sub-tasks, one per line. Reply with the sub-tasks only.\n\nRequest: %s",
		query)

	out, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return p.fallback.Plan(ctx, query, snapshot)
	}

	var tasks []core.TaskSpec
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789. "))
		if line == "" {
			continue
		}
		tasks = append(tasks, core.TaskSpec{
			ID:          uuid.NewString(),
			Description: line,
			Worker:      core.WorkerResearch,
		})
	}
	if len(tasks) == 0 {
		return p.fallback.Plan(ctx, query, snapshot)
	}
	return tasks, nil
}

var (
	_ Planner = RulePlanner{}
	_ Planner = (*ModelPlanner)(nil)
)
