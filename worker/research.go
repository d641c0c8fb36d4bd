package worker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/logging"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/model"
)

// ResearchOptions configures a ResearchWorker.
type ResearchOptions struct {
	// TopN bounds the fused context set a draft is built from.
	TopN int
	// CitationLimit bounds how many context items the draft cites.
	CitationLimit int
	// Generator, when set, synthesizes the draft from the fused context. Nil
	// falls back to an extractive draft of the top items.
	Generator model.Generator
	Logger    logging.Logger
}

// ResearchWorker answers a task by fanning the task description out to the
// retrieval sources, fusing the batches and drafting an answer grounded in
// the fused context. Every citation in the result references a fused item id.
type ResearchWorker struct {
	searcher Searcher
	fuser    Fuser
	opts     ResearchOptions
}

// NewResearchWorker constructs a research worker over the given read path.
func NewResearchWorker(searcher Searcher, fuser Fuser, optFns ...func(o *ResearchOptions)) *ResearchWorker {
	opts := ResearchOptions{
		TopN:          10,
		CitationLimit: 3,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ResearchWorker{searcher: searcher, fuser: fuser, opts: opts}
}

// Kind implements Worker.
func (w *ResearchWorker) Kind() core.WorkerKind { return core.WorkerResearch }

// Execute implements Worker. Retrieval failures propagate so the supervisor
// can retry or fail the task; degraded sources only lower confidence.
func (w *ResearchWorker) Execute(ctx context.Context, task core.TaskSpec, _ *core.ThreadState) (core.WorkerResult, error) {
	start := time.Now()

	fanRes, err := w.searcher.Search(ctx, core.Query{Text: task.Description, TopN: w.opts.TopN})
	if err != nil {
		return core.WorkerResult{TaskID: task.ID, Status: core.ResultFailed}, err
	}

	fused := w.fuser.Fuse(fanRes, w.opts.TopN)
	if len(fused.Items) == 0 {
		return core.WorkerResult{TaskID: task.ID, Status: core.ResultFailed},
			fmt.Errorf("no context retrieved for task %q: %w", task.ID, core.ErrNoSourcesAvailable)
	}

	cited := fused.Items
	if len(cited) > w.opts.CitationLimit {
		cited = cited[:w.opts.CitationLimit]
	}

	draft, degradedDraft := w.draft(ctx, task, cited)

	citations := make([]string, 0, len(cited))
	for _, it := range cited {
		citations = append(citations, it.ID)
	}

	status := core.ResultOK
	if len(fused.Degraded) > 0 || degradedDraft {
		status = core.ResultDegraded
	}

	result := core.WorkerResult{
		TaskID:     task.ID,
		Draft:      draft,
		Confidence: w.confidence(fused),
		Citations:  citations,
		ContextIDs: fused.IDs(),
		Status:     status,
	}

	w.opts.Logger.Debug("research task completed", "task_id", task.ID, "context_items", len(fused.Items), "status", string(status), "duration", time.Since(start))

	return result, nil
}

// draft produces the answer text. It reports true when generation failed and
// the extractive fallback was used instead.
func (w *ResearchWorker) draft(ctx context.Context, task core.TaskSpec, cited []core.FusedItem) (string, bool) {
	if w.opts.Generator != nil {
		out, err := w.opts.Generator.Generate(ctx, w.prompt(task, cited))
		if err == nil && strings.TrimSpace(out) != "" {
			return out, false
		}
		if err != nil {
			w.opts.Logger.Warn("draft generation failed, using extractive fallback", "task_id", task.ID, "error", err)
		}
		return extractive(cited), true
	}
	return extractive(cited), false
}

func (w *ResearchWorker) prompt(task core.TaskSpec, cited []core.FusedItem) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context passages below.\n\n")
	b.WriteString("Question: ")
	b.WriteString(task.Description)
	if task.RevisionNote != "" {
		b.WriteString("\nReviewer note on the previous attempt: ")
		b.WriteString(task.RevisionNote)
	}
	b.WriteString("\n\nContext:\n")
	for _, it := range cited {
		fmt.Fprintf(&b, "[%s] %s\n", it.ID, it.Content)
	}
	b.WriteString("\nAnswer:")
	return b.String()
}

// extractive joins the cited passages, highest-ranked first.
func extractive(cited []core.FusedItem) string {
	parts := make([]string, 0, len(cited))
	for _, it := range cited {
		parts = append(parts, it.Content)
	}
	return strings.Join(parts, "\n")
}

// confidence maps the fused context quality to [0, 1]: the top item's
// normalized score, discounted when sources degraded.
func (w *ResearchWorker) confidence(fused core.FusedResult) float64 {
	conf := fused.Items[0].NormalizedScore
	conf = math.Max(0, math.Min(1, conf))
	if len(fused.Degraded) > 0 {
		conf *= 0.8
	}
	return conf
}

var _ Worker = (*ResearchWorker)(nil)
