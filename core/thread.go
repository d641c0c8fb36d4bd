package core

import "time"

// Phase enumerates the supervisor state machine. Transitions are driven
// exclusively by the supervisor; every transition is persisted before control
// returns, so a thread can resume from its last phase after a crash.
type Phase string

const (
	// PhasePlanning decomposes the request into task specs.
	PhasePlanning Phase = "planning"
	// PhaseDispatch selects and invokes a worker for the next pending task.
	PhaseDispatch Phase = "dispatch"
	// PhaseAwaitingWorker waits for the dispatched worker's result.
	PhaseAwaitingWorker Phase = "awaiting_worker"
	// PhaseCritique reviews a worker result for acceptance or revision.
	PhaseCritique Phase = "critique"
	// PhaseResponding assembles the final answer from accepted results.
	PhaseResponding Phase = "responding"
	// PhaseDone is the successful terminal phase.
	PhaseDone Phase = "done"
	// PhaseFailed is the failure terminal phase, reachable from any phase.
	PhaseFailed Phase = "failed"
)

// Terminal reports whether the phase ends the state machine.
func (p Phase) Terminal() bool { return p == PhaseDone || p == PhaseFailed }

// Message is one conversational turn recorded on a thread.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolCall records one tool invocation made on behalf of a thread (fan-out
// searches, adapter writes). The log is append-only.
type ToolCall struct {
	Tool      string    `json:"tool"`
	TaskID    string    `json:"task_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Err       string    `json:"err,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ThreadState is the checkpointed state of one conversation thread. It is
// exclusively owned and mutated by the supervisor holding that thread's lock;
// everyone else sees snapshots. IterationCount only ever grows and is bounded
// by the task budget.
type ThreadState struct {
	ThreadID       string         `json:"thread_id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Messages       []Message      `json:"messages"`
	TaskStack      []TaskSpec     `json:"task_stack"`
	ToolCalls      []ToolCall     `json:"tool_calls"`
	Results        []WorkerResult `json:"results"`
	IterationCount int            `json:"iteration_count"`
	Phase          Phase          `json:"phase"`
	FailReason     string         `json:"fail_reason,omitempty"`
	Degraded       bool           `json:"degraded,omitempty"`
}

// NewThreadState creates a fresh thread in the planning phase.
func NewThreadState(threadID string) *ThreadState {
	now := time.Now().UTC()
	return &ThreadState{
		ThreadID:  threadID,
		CreatedAt: now,
		UpdatedAt: now,
		Phase:     PhasePlanning,
	}
}

// AppendMessage records a conversational turn and bumps UpdatedAt.
func (s *ThreadState) AppendMessage(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: time.Now().UTC()})
	s.UpdatedAt = time.Now().UTC()
}

// RecordToolCall appends to the tool call log.
func (s *ThreadState) RecordToolCall(tool, taskID, detail string, err error) {
	tc := ToolCall{Tool: tool, TaskID: taskID, Detail: detail, Timestamp: time.Now().UTC()}
	if err != nil {
		tc.Err = err.Error()
	}
	s.ToolCalls = append(s.ToolCalls, tc)
	s.UpdatedAt = time.Now().UTC()
}

// LastMessage returns the most recent message or the zero value.
func (s *ThreadState) LastMessage() Message {
	if len(s.Messages) == 0 {
		return Message{}
	}
	return s.Messages[len(s.Messages)-1]
}

// Clone returns a deep copy safe for independent mutation. Stores hand out
// clones so callers can never alias the persisted record.
func (s *ThreadState) Clone() *ThreadState {
	clone := *s
	clone.Messages = append([]Message(nil), s.Messages...)
	clone.ToolCalls = append([]ToolCall(nil), s.ToolCalls...)
	clone.Results = make([]WorkerResult, len(s.Results))
	for i, r := range s.Results {
		clone.Results[i] = r.clone()
	}
	clone.TaskStack = make([]TaskSpec, len(s.TaskStack))
	copy(clone.TaskStack, s.TaskStack)
	return &clone
}
