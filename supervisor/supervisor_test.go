package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/thread"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/worker"
)

// step is one scripted worker invocation outcome.
type step struct {
	result core.WorkerResult
	err    error
}

// scriptedWorker plays back a fixed sequence of outcomes and records the
// task specs it was dispatched with.
type scriptedWorker struct {
	kind  core.WorkerKind
	steps []step

	mu    sync.Mutex
	tasks []core.TaskSpec
}

func (w *scriptedWorker) Kind() core.WorkerKind { return w.kind }

func (w *scriptedWorker) Execute(_ context.Context, task core.TaskSpec, _ *core.ThreadState) (core.WorkerResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := len(w.tasks)
	w.tasks = append(w.tasks, task)
	if i >= len(w.steps) {
		i = len(w.steps) - 1
	}
	st := w.steps[i]
	res := st.result
	res.TaskID = task.ID
	return res, st.err
}

func (w *scriptedWorker) calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tasks)
}

func okResult(draft string) core.WorkerResult {
	return core.WorkerResult{Draft: draft, Confidence: 0.9, Status: core.ResultOK}
}

func newSupervisor(w worker.Worker, optFns ...func(o *Options)) (*Supervisor, *thread.InMemoryStore) {
	store := thread.NewInMemoryStore()
	return New(store, worker.NewRegistry(w), optFns...), store
}

func TestRun_HappyPath(t *testing.T) {
	w := &scriptedWorker{kind: core.WorkerResearch, steps: []step{{result: okResult("fusion combines rankings")}}}
	s, _ := newSupervisor(w)

	state, err := s.Run(context.Background(), "t-1", "what is rank fusion?")
	require.NoError(t, err)

	assert.Equal(t, core.PhaseDone, state.Phase)
	assert.False(t, state.Degraded)
	require.Len(t, state.Results, 1)
	assert.Equal(t, "assistant", state.LastMessage().Role)
	assert.Equal(t, "fusion combines rankings", state.LastMessage().Content)
	assert.Equal(t, 1, w.calls())
	assert.NotEmpty(t, state.ToolCalls)
}

func TestRun_MultiTaskQuery(t *testing.T) {
	w := &scriptedWorker{kind: core.WorkerResearch, steps: []step{
		{result: okResult("first answer")},
		{result: okResult("second answer")},
	}}
	s, _ := newSupervisor(w)

	state, err := s.Run(context.Background(), "t-1", "compare vector stores; compare graph stores")
	require.NoError(t, err)

	assert.Equal(t, core.PhaseDone, state.Phase)
	require.Len(t, state.TaskStack, 2)
	require.Len(t, state.Results, 2)
	assert.Equal(t, "first answer\n\nsecond answer", state.LastMessage().Content)
}

func TestRun_CritiqueRejectionFeedsRevisionNote(t *testing.T) {
	w := &scriptedWorker{kind: core.WorkerResearch, steps: []step{
		{result: core.WorkerResult{Draft: "weak", Confidence: 0.2, Status: core.ResultOK}},
		{result: okResult("revised and grounded")},
	}}
	s, _ := newSupervisor(w)

	state, err := s.Run(context.Background(), "t-1", "q")
	require.NoError(t, err)

	assert.Equal(t, core.PhaseDone, state.Phase)
	assert.Equal(t, 2, w.calls())
	// The re-dispatch carried the critic's note.
	assert.Empty(t, w.tasks[0].RevisionNote)
	assert.Contains(t, w.tasks[1].RevisionNote, "confidence")
	assert.Equal(t, "revised and grounded", state.LastMessage().Content)
	assert.False(t, state.Degraded)
}

func TestRun_RevisionBudgetExhaustionAcceptsDegraded(t *testing.T) {
	w := &scriptedWorker{kind: core.WorkerResearch, steps: []step{
		{result: core.WorkerResult{Draft: "always weak", Confidence: 0.1, Status: core.ResultOK}},
	}}
	s, _ := newSupervisor(w, func(o *Options) {
		o.DefaultBudget = core.Budget{MaxIterations: 2, MaxToolCalls: 10}
	})

	state, err := s.Run(context.Background(), "t-1", "q")
	require.NoError(t, err)

	assert.Equal(t, core.PhaseDone, state.Phase)
	assert.True(t, state.Degraded)
	assert.Equal(t, 2, w.calls())
	require.Len(t, state.Results, 1)
	assert.Equal(t, core.ResultDegraded, state.Results[0].Status)
	assert.Equal(t, "always weak", state.LastMessage().Content)
}

func TestRun_UngroundedCitationRejected(t *testing.T) {
	w := &scriptedWorker{kind: core.WorkerResearch, steps: []step{
		{result: core.WorkerResult{
			Draft:      "cites thin air",
			Confidence: 0.9,
			Citations:  []string{"ghost"},
			ContextIDs: []string{"v1", "v2"},
			Status:     core.ResultOK,
		}},
		{result: okResult("grounded now")},
	}}
	s, _ := newSupervisor(w)

	state, err := s.Run(context.Background(), "t-1", "q")
	require.NoError(t, err)

	assert.Equal(t, 2, w.calls())
	assert.Contains(t, w.tasks[1].RevisionNote, "ghost")
	assert.Equal(t, "grounded now", state.LastMessage().Content)
}

func TestRun_TimeoutRetriesThenSucceeds(t *testing.T) {
	w := &scriptedWorker{kind: core.WorkerResearch, steps: []step{
		{err: fmt.Errorf("fan-out: %w", core.ErrTimeout)},
		{result: okResult("answer after retry")},
	}}
	s, _ := newSupervisor(w)

	state, err := s.Run(context.Background(), "t-1", "q")
	require.NoError(t, err)

	assert.Equal(t, core.PhaseDone, state.Phase)
	assert.Equal(t, 2, w.calls())
	assert.Equal(t, 2, state.TaskStack[0].Attempts)
	assert.False(t, state.Degraded)
}

func TestRun_RetriesExhaustedFailsTask(t *testing.T) {
	w := &scriptedWorker{kind: core.WorkerResearch, steps: []step{
		{err: fmt.Errorf("fan-out: %w", core.ErrTimeout)},
	}}
	s, _ := newSupervisor(w, func(o *Options) { o.MaxRetries = 1 })

	state, err := s.Run(context.Background(), "t-1", "q")
	// The only task failed, so there is nothing to respond with.
	require.Error(t, err)
	assert.Equal(t, core.PhaseFailed, state.Phase)
	assert.Equal(t, 2, w.calls())
	assert.True(t, state.Degraded)
}

func TestRun_NonRetryableFailureMovesToNextTask(t *testing.T) {
	w := &scriptedWorker{kind: core.WorkerResearch, steps: []step{
		{err: errors.New("backend exploded")},
		{result: okResult("second task still answers")},
	}}
	s, _ := newSupervisor(w)

	state, err := s.Run(context.Background(), "t-1", "first thing; second thing")
	require.NoError(t, err)

	assert.Equal(t, core.PhaseDone, state.Phase)
	assert.True(t, state.Degraded)
	require.Len(t, state.Results, 2)
	assert.Equal(t, core.ResultFailed, state.Results[0].Status)
	assert.Equal(t, "second task still answers", state.LastMessage().Content)
}

func TestRun_ToolBudgetExhaustionRespondsDegraded(t *testing.T) {
	w := &scriptedWorker{kind: core.WorkerResearch, steps: []step{
		{result: okResult("only the first task ran")},
	}}
	s, _ := newSupervisor(w, func(o *Options) {
		o.DefaultBudget = core.Budget{MaxIterations: 3, MaxToolCalls: 1}
	})

	state, err := s.Run(context.Background(), "t-1", "first; second; third")
	require.NoError(t, err)

	assert.Equal(t, core.PhaseDone, state.Phase)
	assert.True(t, state.Degraded)
	assert.Equal(t, 1, w.calls())
	assert.Equal(t, "only the first task ran", state.LastMessage().Content)
}

func TestRun_ThreadBusy(t *testing.T) {
	w := &scriptedWorker{kind: core.WorkerResearch, steps: []step{{result: okResult("x")}}}
	s, store := newSupervisor(w)

	release, err := store.Acquire("t-1")
	require.NoError(t, err)
	defer release()

	_, err = s.Run(context.Background(), "t-1", "q")
	assert.ErrorIs(t, err, core.ErrThreadBusy)
}

func TestRun_CancelledContextFailsThread(t *testing.T) {
	w := &scriptedWorker{kind: core.WorkerResearch, steps: []step{{result: okResult("x")}}}
	s, store := newSupervisor(w)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := s.Run(ctx, "t-1", "q")
	assert.ErrorIs(t, err, core.ErrCancelled)
	assert.Equal(t, core.PhaseFailed, state.Phase)
	assert.Equal(t, "cancelled", state.FailReason)

	// The failure is checkpointed.
	persisted, err := store.Load("t-1")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseFailed, persisted.Phase)
}

func TestRun_ResumeReDispatchesAwaitingWorker(t *testing.T) {
	w := &scriptedWorker{kind: core.WorkerResearch, steps: []step{{result: okResult("resumed answer")}}}
	s, store := newSupervisor(w)

	// A checkpoint left behind by a run that died mid-execution: the dispatch
	// was persisted but its result never arrived.
	state := core.NewThreadState("t-1")
	state.AppendMessage("user", "q")
	state.Phase = core.PhaseAwaitingWorker
	state.TaskStack = []core.TaskSpec{{
		ID:          "task-1",
		Description: "q",
		Worker:      core.WorkerResearch,
		Budget:      core.Budget{MaxIterations: 3, MaxToolCalls: 8},
		Attempts:    1,
	}}
	require.NoError(t, store.Save(state))

	resumed, err := s.Run(context.Background(), "t-1", "")
	require.NoError(t, err)

	assert.Equal(t, core.PhaseDone, resumed.Phase)
	assert.Equal(t, 1, w.calls())
	assert.Equal(t, "resumed answer", resumed.LastMessage().Content)
	assert.Equal(t, 2, resumed.TaskStack[0].Attempts)
}

func TestRun_ResumeUnknownThread(t *testing.T) {
	w := &scriptedWorker{kind: core.WorkerResearch, steps: []step{{result: okResult("x")}}}
	s, _ := newSupervisor(w)

	_, err := s.Run(context.Background(), "never-started", "")
	assert.ErrorIs(t, err, core.ErrThreadNotFound)
}

func TestRun_NewQueryOnFinishedThreadStartsNewTurn(t *testing.T) {
	w := &scriptedWorker{kind: core.WorkerResearch, steps: []step{
		{result: okResult("first turn")},
		{result: okResult("second turn")},
	}}
	s, _ := newSupervisor(w)

	first, err := s.Run(context.Background(), "t-1", "first question")
	require.NoError(t, err)
	require.Equal(t, core.PhaseDone, first.Phase)

	second, err := s.Run(context.Background(), "t-1", "second question")
	require.NoError(t, err)

	assert.Equal(t, core.PhaseDone, second.Phase)
	// History survives the new turn; tasks and results are per-turn.
	assert.Len(t, second.Messages, 4)
	assert.Len(t, second.Results, 1)
	assert.Equal(t, "second turn", second.LastMessage().Content)
}

func TestRun_PlanningFailureFailsThread(t *testing.T) {
	w := &scriptedWorker{kind: core.WorkerResearch, steps: []step{{result: okResult("x")}}}
	s, _ := newSupervisor(w)

	state, err := s.Run(context.Background(), "t-1", "   ")
	require.Error(t, err)

	var decompErr *core.DecompositionError
	assert.ErrorAs(t, err, &decompErr)
	assert.Equal(t, core.PhaseFailed, state.Phase)
	assert.Equal(t, 0, w.calls())
}

func TestCancel_NoActiveRun(t *testing.T) {
	w := &scriptedWorker{kind: core.WorkerResearch, steps: []step{{result: okResult("x")}}}
	s, _ := newSupervisor(w)

	assert.False(t, s.Cancel("t-1"))
}
