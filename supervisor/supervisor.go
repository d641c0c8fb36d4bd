// Package supervisor drives the thread state machine: it plans a query into
// tasks, dispatches them to workers, critiques the results and assembles the
// final response. Every phase transition is checkpointed to the thread store
// before control moves on, so a crashed run resumes from its last phase
// instead of starting over.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/logging"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/worker"
)

// Options configures a Supervisor.
type Options struct {
	// MaxRetries bounds re-dispatches of a task after retryable worker
	// failures (timeouts).
	MaxRetries int
	// DefaultBudget fills in task budgets the planner left at zero.
	DefaultBudget core.Budget
	// Planner decomposes queries into tasks.
	Planner Planner
	// Critic reviews worker results.
	Critic *Critic
	Logger logging.Logger
}

// Supervisor owns all thread state transitions. One supervisor serves many
// threads; each Run holds its thread's store lock for the whole run, so two
// runs on the same thread cannot interleave.
type Supervisor struct {
	store   core.ThreadStore
	workers *worker.Registry
	opts    Options

	mu         sync.Mutex
	activeRuns map[string]context.CancelFunc
}

// New constructs a supervisor over the given store and worker registry.
func New(store core.ThreadStore, workers *worker.Registry, optFns ...func(o *Options)) *Supervisor {
	opts := Options{
		MaxRetries:    2,
		DefaultBudget: core.Budget{MaxIterations: 3, MaxToolCalls: 8},
		Planner:       RulePlanner{},
		Critic:        NewCritic(),
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Supervisor{
		store:      store,
		workers:    workers,
		opts:       opts,
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Cancel aborts the thread's active run, if any. The run fails with
// core.ErrCancelled and the thread checkpoint records the failure. Reports
// whether a run was active.
func (s *Supervisor) Cancel(threadID string) bool {
	s.mu.Lock()
	cancel, ok := s.activeRuns[threadID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Run executes the state machine for one thread until a terminal phase. A
// non-empty query starts (or restarts) the conversation turn; an empty query
// resumes an interrupted run from its checkpointed phase. The returned state
// is the final checkpoint.
//
// Errors: core.ErrThreadBusy when another run holds the thread,
// core.ErrCancelled when the caller or Cancel aborted it. Planning and
// dispatch failures fail the thread and are returned as-is.
func (s *Supervisor) Run(ctx context.Context, threadID, query string) (*core.ThreadState, error) {
	release, err := s.store.Acquire(threadID)
	if err != nil {
		return nil, err
	}
	defer release()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.activeRuns[threadID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.activeRuns, threadID)
		s.mu.Unlock()
	}()

	state, err := s.loadOrCreate(threadID, query)
	if err != nil {
		return nil, err
	}

	r := &run{
		s:      s,
		state:  state,
		logger: s.opts.Logger,
	}
	return r.loop(runCtx)
}

// loadOrCreate fetches the thread or starts a fresh one. A new query on a
// finished thread starts a new turn: conversation history stays, the
// previous turn's tasks and results are cleared.
func (s *Supervisor) loadOrCreate(threadID, query string) (*core.ThreadState, error) {
	state, err := s.store.Load(threadID)
	switch {
	case errors.Is(err, core.ErrThreadNotFound):
		if query == "" {
			// Resuming a thread that was never started.
			return nil, err
		}
		state = core.NewThreadState(threadID)
	case err != nil:
		return nil, err
	}

	if query != "" {
		if state.Phase.Terminal() {
			state.Phase = core.PhasePlanning
			state.TaskStack = nil
			state.Results = nil
			state.IterationCount = 0
			state.FailReason = ""
			state.Degraded = false
		}
		state.AppendMessage("user", query)
	} else if state.Phase.Terminal() {
		return nil, fmt.Errorf("thread %q already finished and no query given: %w", threadID, core.ErrThreadNotFound)
	}

	return state, nil
}

// run is the per-invocation state of one supervisor loop. pending holds an
// unreviewed worker result; it is deliberately not persisted, so a crash
// between dispatch and critique re-dispatches the task.
type run struct {
	s       *Supervisor
	state   *core.ThreadState
	pending *core.WorkerResult
	calls   *core.CallLimiter
	logger  logging.Logger
}

func (r *run) loop(ctx context.Context) (*core.ThreadState, error) {
	r.calls = core.NewCallLimiter(r.budget().MaxToolCalls)

	for !r.state.Phase.Terminal() {
		if err := ctx.Err(); err != nil {
			r.fail("cancelled")
			return r.state, fmt.Errorf("thread %q: %w", r.state.ThreadID, core.ErrCancelled)
		}

		var err error
		switch r.state.Phase {
		case core.PhasePlanning:
			err = r.plan(ctx)
		case core.PhaseDispatch:
			err = r.dispatch(ctx)
		case core.PhaseAwaitingWorker:
			// Reachable only on resume: the pre-crash run checkpointed the
			// dispatch but its in-flight result died with it. Re-dispatch.
			err = r.transition(core.PhaseDispatch)
		case core.PhaseCritique:
			err = r.critique()
		case core.PhaseResponding:
			err = r.respond()
		default:
			err = fmt.Errorf("thread %q in unknown phase %q", r.state.ThreadID, r.state.Phase)
		}
		if err != nil {
			return r.state, err
		}
	}

	return r.state, nil
}

func (r *run) budget() core.Budget {
	return r.s.opts.DefaultBudget
}

// transition moves to the next phase and checkpoints before returning.
func (r *run) transition(to core.Phase) error {
	from := r.state.Phase
	r.state.Phase = to
	if err := r.s.store.Save(r.state); err != nil {
		return fmt.Errorf("checkpoint %s->%s: %w", from, to, err)
	}
	r.logger.Debug("phase transition", "thread_id", r.state.ThreadID, "from", string(from), "to", string(to), "iteration", r.state.IterationCount)
	return nil
}

// fail moves to the failure terminal phase. Checkpointing here is
// best-effort: the failure itself is what the caller needs to see.
func (r *run) fail(reason string) {
	r.state.FailReason = reason
	r.state.Phase = core.PhaseFailed
	if err := r.s.store.Save(r.state); err != nil {
		r.logger.Error("failed to checkpoint failure", "thread_id", r.state.ThreadID, "error", err)
	}
}

func (r *run) plan(ctx context.Context) error {
	tasks, err := r.s.opts.Planner.Plan(ctx, r.state.LastMessage().Content, r.state.Clone())
	if err != nil {
		r.fail(err.Error())
		return err
	}

	budget := r.budget()
	for i := range tasks {
		if tasks[i].Budget.MaxIterations == 0 {
			tasks[i].Budget.MaxIterations = budget.MaxIterations
		}
		if tasks[i].Budget.MaxToolCalls == 0 {
			tasks[i].Budget.MaxToolCalls = budget.MaxToolCalls
		}
	}
	r.state.TaskStack = tasks

	return r.transition(core.PhaseDispatch)
}

// next returns the first unfinished task, or nil.
func (r *run) next() *core.TaskSpec {
	for i := range r.state.TaskStack {
		if !r.state.TaskStack[i].Done {
			return &r.state.TaskStack[i]
		}
	}
	return nil
}

func (r *run) dispatch(ctx context.Context) error {
	task := r.next()
	if task == nil {
		return r.transition(core.PhaseResponding)
	}

	w, err := r.s.workers.For(task.Worker)
	if err != nil {
		r.fail(err.Error())
		return err
	}

	if err := r.calls.Increment(); err != nil {
		// Tool budget exhausted: answer with what we have instead of failing.
		r.logger.Warn("tool call budget exhausted", "thread_id", r.state.ThreadID, "task_id", task.ID)
		r.state.Degraded = true
		task.Done = true
		return r.transition(core.PhaseResponding)
	}

	task.Attempts++
	// Checkpoint the dispatch before executing: a crash mid-execution
	// resumes here and re-dispatches the same task.
	if err := r.transition(core.PhaseAwaitingWorker); err != nil {
		return err
	}

	result, execErr := w.Execute(ctx, *task, r.state.Clone())
	r.state.RecordToolCall(string(task.Worker), task.ID, task.Description, execErr)

	if execErr != nil {
		return r.handleWorkerError(ctx, task, execErr)
	}

	r.pending = &result
	return r.transition(core.PhaseCritique)
}

func (r *run) handleWorkerError(ctx context.Context, task *core.TaskSpec, execErr error) error {
	if errors.Is(execErr, core.ErrCancelled) || ctx.Err() != nil {
		r.fail("cancelled")
		return fmt.Errorf("thread %q: %w", r.state.ThreadID, core.ErrCancelled)
	}

	if errors.Is(execErr, core.ErrTimeout) && task.Attempts <= r.s.opts.MaxRetries {
		r.logger.Warn("worker timed out, retrying", "thread_id", r.state.ThreadID, "task_id", task.ID, "attempt", task.Attempts)
		return r.transition(core.PhaseDispatch)
	}

	// Out of retries or non-retryable: record the failure and move on to the
	// remaining tasks rather than stranding the whole thread.
	r.logger.Warn("task failed", "thread_id", r.state.ThreadID, "task_id", task.ID, "error", execErr)
	task.Done = true
	r.state.Degraded = true
	r.state.Results = append(r.state.Results, core.WorkerResult{TaskID: task.ID, Status: core.ResultFailed})
	return r.transition(core.PhaseDispatch)
}

func (r *run) critique() error {
	if r.pending == nil {
		// Defensive: nothing to review means the dispatch never completed.
		return r.transition(core.PhaseDispatch)
	}
	result := *r.pending
	r.pending = nil

	task := r.next()
	if task == nil || task.ID != result.TaskID {
		return fmt.Errorf("thread %q: pending result for %q does not match current task", r.state.ThreadID, result.TaskID)
	}

	r.state.IterationCount++

	accepted, note := r.s.opts.Critic.Review(result)
	if accepted {
		task.Done = true
		task.RevisionNote = ""
		if result.Status == core.ResultDegraded {
			r.state.Degraded = true
		}
		r.state.Results = append(r.state.Results, result)
		return r.transition(core.PhaseDispatch)
	}

	if task.Attempts >= task.Budget.MaxIterations {
		// Revision budget spent: keep the best effort, flagged degraded.
		r.logger.Warn("revision budget exhausted, accepting degraded result", "thread_id", r.state.ThreadID, "task_id", task.ID)
		task.Done = true
		result.Status = core.ResultDegraded
		r.state.Degraded = true
		r.state.Results = append(r.state.Results, result)
		return r.transition(core.PhaseDispatch)
	}

	r.logger.Debug("critique rejected result", "thread_id", r.state.ThreadID, "task_id", task.ID, "note", note)
	task.RevisionNote = note
	return r.transition(core.PhaseDispatch)
}

func (r *run) respond() error {
	var parts []string
	for _, res := range r.state.Results {
		if res.Status == core.ResultFailed || res.Draft == "" {
			continue
		}
		parts = append(parts, res.Draft)
	}

	answer := strings.Join(parts, "\n\n")
	if answer == "" {
		r.fail("no task produced a usable result")
		return fmt.Errorf("thread %q: no task produced a usable result", r.state.ThreadID)
	}

	r.state.AppendMessage("assistant", answer)
	return r.transition(core.PhaseDone)
}
