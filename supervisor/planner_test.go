package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/model"
)

func TestRulePlanner_SingleTask(t *testing.T) {
	tasks, err := RulePlanner{}.Plan(context.Background(), "what is rank fusion?", nil)
	require.NoError(t, err)

	require.Len(t, tasks, 1)
	assert.Equal(t, "what is rank fusion?", tasks[0].Description)
	assert.Equal(t, core.WorkerResearch, tasks[0].Worker)
	assert.NotEmpty(t, tasks[0].ID)
}

func TestRulePlanner_SplitsConjunctions(t *testing.T) {
	tasks, err := RulePlanner{}.Plan(context.Background(), "compare vector stores; compare graph stores and also summarize tradeoffs", nil)
	require.NoError(t, err)

	require.Len(t, tasks, 3)
	assert.Equal(t, "compare vector stores", tasks[0].Description)
	assert.Equal(t, "compare graph stores", tasks[1].Description)
	assert.Equal(t, "summarize tradeoffs", tasks[2].Description)
}

func TestRulePlanner_EmptyQuery(t *testing.T) {
	_, err := RulePlanner{}.Plan(context.Background(), "   ", nil)

	var decompErr *core.DecompositionError
	assert.ErrorAs(t, err, &decompErr)
}

func TestModelPlanner_OneTaskPerLine(t *testing.T) {
	gen := model.NewMockGenerator("- find fusion papers\n- summarize weighting schemes\n")
	p := NewModelPlanner(gen)

	tasks, err := p.Plan(context.Background(), "research rank fusion", nil)
	require.NoError(t, err)

	require.Len(t, tasks, 2)
	assert.Equal(t, "find fusion papers", tasks[0].Description)
	assert.Equal(t, "summarize weighting schemes", tasks[1].Description)
}

func TestModelPlanner_EmptyOutputFallsBackToRules(t *testing.T) {
	gen := model.NewMockGenerator("   \n  ")
	p := NewModelPlanner(gen)

	tasks, err := p.Plan(context.Background(), "research rank fusion", nil)
	require.NoError(t, err)

	require.Len(t, tasks, 1)
	assert.Equal(t, "research rank fusion", tasks[0].Description)
}

func TestCritic_AcceptsConfidentGroundedResult(t *testing.T) {
	c := NewCritic()

	ok, note := c.Review(core.WorkerResult{
		Draft:      "a grounded answer",
		Confidence: 0.8,
		Citations:  []string{"v1"},
		ContextIDs: []string{"v1", "g1"},
	})
	assert.True(t, ok)
	assert.Empty(t, note)
}

func TestCritic_RejectsEmptyDraft(t *testing.T) {
	c := NewCritic()

	ok, note := c.Review(core.WorkerResult{Draft: "  ", Confidence: 0.9})
	assert.False(t, ok)
	assert.Contains(t, note, "empty")
}

func TestCritic_RejectsLowConfidence(t *testing.T) {
	c := NewCritic()

	ok, note := c.Review(core.WorkerResult{Draft: "weak", Confidence: 0.3})
	assert.False(t, ok)
	assert.Contains(t, note, "confidence")
}

func TestCritic_RejectsUngroundedCitation(t *testing.T) {
	c := NewCritic()

	ok, note := c.Review(core.WorkerResult{
		Draft:      "cites thin air",
		Confidence: 0.9,
		Citations:  []string{"ghost"},
		ContextIDs: []string{"v1"},
	})
	assert.False(t, ok)
	assert.Contains(t, note, "ghost")
}
