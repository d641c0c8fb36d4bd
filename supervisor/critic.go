package supervisor

import (
	"fmt"
	"strings"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
)

// Critic reviews worker results before they are accepted onto the thread.
// Rejections carry a revision note that is fed back into the next dispatch
// of the same task.
type Critic struct {
	// Threshold is the minimum confidence an accepted result needs.
	Threshold float64
}

// NewCritic constructs a critic with the default confidence threshold 0.5.
func NewCritic() *Critic {
	return &Critic{Threshold: 0.5}
}

// Review checks a worker result. It returns whether the result is accepted
// and, when rejected, a note describing what the revision must fix.
func (c *Critic) Review(result core.WorkerResult) (bool, string) {
	if strings.TrimSpace(result.Draft) == "" {
		return false, "draft is empty"
	}
	if result.Confidence < c.Threshold {
		return false, fmt.Sprintf("confidence %.2f below threshold %.2f; ground the answer in stronger context", result.Confidence, c.Threshold)
	}
	if note, ok := citationsGrounded(result); !ok {
		return false, note
	}
	return true, ""
}

// citationsGrounded verifies every citation references an id from the
// context set the draft was derived from. A citation outside that set means
// the draft cites material it never retrieved.
func citationsGrounded(result core.WorkerResult) (string, bool) {
	if len(result.Citations) == 0 {
		return "", true
	}
	known := make(map[string]bool, len(result.ContextIDs))
	for _, id := range result.ContextIDs {
		known[id] = true
	}
	for _, id := range result.Citations {
		if !known[id] {
			return fmt.Sprintf("citation %q does not reference retrieved context", id), false
		}
	}
	return "", true
}
