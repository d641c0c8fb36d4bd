// Package emvr provides a high-level façade over the knowledge fusion and
// agent orchestration engine. Most applications interact with this package
// by:
//  1. Creating an Engine via New() (optionally overriding the default
//     in-memory back-ends with real vector, graph, memory and web clients)
//  2. Running one-shot fused retrieval with HybridSearch
//  3. Running supervised agent turns on conversation threads with RunAgent
//
// The façade delegates retrieval to the fan-out coordinator and fusion
// engine, and thread orchestration to the supervisor, while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments supply durable stores, real back-ends and
// a structured logger.
package emvr

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/config"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/fanout"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/fusion"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/logging"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/model"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/retrieval"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/supervisor"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/thread"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/thread/sqlite"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/worker"
)

// Options configures the Engine.
type Options struct {
	// Config carries the tunables (fusion, fan-out, supervisor, thread,
	// admission). Defaults to config.Default().
	Config config.Config

	// Back-ends (default to in-memory implementations if not provided).
	VectorIndex   retrieval.VectorIndex
	GraphStore    retrieval.GraphStore
	MemoryService retrieval.MemoryService
	WebSearcher   retrieval.WebSearcher

	// Embedder feeds the vector adapter. Defaults to a deterministic mock;
	// production wires model/openai here.
	Embedder model.Embedder
	// Generator, when set, synthesizes research drafts and can back the
	// planner. Nil keeps drafting extractive and planning rule-based.
	Generator model.Generator

	// ThreadStore overrides the checkpoint store the config selects.
	ThreadStore core.ThreadStore
	// Planner overrides the default planner (rule-based, or model-backed
	// when a Generator is set).
	Planner supervisor.Planner

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Engine is the high-level façade aggregating fan-out retrieval, rank
// fusion, the worker pool and the thread supervisor.
type Engine struct {
	opts        Options
	coordinator *fanout.Coordinator
	fuser       *fusion.Engine
	supervisor  *supervisor.Supervisor
	threads     core.ThreadStore
	memory      *retrieval.MemoryAdapter
	graph       *retrieval.GraphAdapter

	admission *rate.Limiter
	slots     chan struct{}
	watcher   *config.Watcher
	ownsStore bool
}

// New creates an Engine with optional overrides. Any unset back-end is
// initialized with an in-memory implementation, so a bare New() yields a
// fully functional engine for development and tests.
func New(optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		Config:        config.Default(),
		VectorIndex:   retrieval.NewInMemoryVectorIndex(),
		GraphStore:    retrieval.NewInMemoryGraphStore(),
		MemoryService: retrieval.NewInMemoryMemoryService(),
		WebSearcher:   &retrieval.StaticWebSearcher{},
		Embedder:      model.NewMockEmbedder(0),
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{opts: opts}

	vector := retrieval.NewVectorAdapter(opts.Embedder, opts.VectorIndex, func(o *retrieval.VectorOptions) { o.Logger = opts.Logger })
	e.graph = retrieval.NewGraphAdapter(opts.GraphStore, func(o *retrieval.GraphOptions) { o.Logger = opts.Logger })
	e.memory = retrieval.NewMemoryAdapter(opts.MemoryService, func(o *retrieval.MemoryOptions) { o.Logger = opts.Logger })
	web := retrieval.NewWebAdapter(opts.WebSearcher, func(o *retrieval.WebOptions) { o.Logger = opts.Logger })

	e.coordinator = fanout.New(
		[]core.Retriever{vector, e.graph, e.memory, web},
		func(o *fanout.Options) {
			o.Deadline = cfg.FanOut.Deadline()
			o.Quorum = cfg.FanOut.Quorum
			o.PerSourceK = cfg.FanOut.PerSourceK
			o.Logger = opts.Logger
		},
	)

	e.fuser = fusion.New(func(o *fusion.Options) {
		o.K = cfg.Fusion.K
		o.TopN = cfg.Fusion.TopN
		o.Weights = cfg.Fusion.SourceWeights()
		o.DiversityBonus = cfg.Fusion.DiversityBonus
		if cfg.Fusion.Normalization == "zscore" {
			o.Normalization = fusion.ZScore
		}
		o.Logger = opts.Logger
	})

	if err := e.initThreadStore(cfg); err != nil {
		return nil, err
	}

	registry := worker.NewRegistry(
		worker.NewResearchWorker(e.coordinator, e.fuser, func(o *worker.ResearchOptions) {
			o.TopN = cfg.Fusion.TopN
			o.Generator = opts.Generator
			o.Logger = opts.Logger
		}),
		worker.NewGraphMaintenanceWorker(e.graph, opts.Logger),
		worker.NewMemoryMaintenanceWorker(e.memory, opts.Logger),
	)

	planner := opts.Planner
	if planner == nil {
		if opts.Generator != nil {
			planner = supervisor.NewModelPlanner(opts.Generator)
		} else {
			planner = supervisor.RulePlanner{}
		}
	}

	e.supervisor = supervisor.New(e.threads, registry, func(o *supervisor.Options) {
		o.MaxRetries = cfg.Supervisor.MaxRetries
		o.DefaultBudget = core.Budget{
			MaxIterations: cfg.Supervisor.MaxIterations,
			MaxToolCalls:  cfg.Supervisor.MaxToolCalls,
		}
		o.Planner = planner
		o.Critic = &supervisor.Critic{Threshold: cfg.Supervisor.CritiqueThreshold}
		o.Logger = opts.Logger
	})

	if cfg.Engine.AdmissionRate > 0 {
		burst := cfg.Engine.MaxConcurrentRuns
		if burst < 1 {
			burst = 1
		}
		e.admission = rate.NewLimiter(rate.Limit(cfg.Engine.AdmissionRate), burst)
	}
	if cfg.Engine.MaxConcurrentRuns > 0 {
		e.slots = make(chan struct{}, cfg.Engine.MaxConcurrentRuns)
	}

	return e, nil
}

func (e *Engine) initThreadStore(cfg config.Config) error {
	if e.opts.ThreadStore != nil {
		e.threads = e.opts.ThreadStore
		return nil
	}
	switch cfg.Thread.Store {
	case "sqlite":
		store, err := sqlite.Open(cfg.Thread.SQLitePath)
		if err != nil {
			return err
		}
		e.threads = store
		e.ownsStore = true
	default:
		e.threads = thread.NewInMemoryStore()
	}
	return nil
}

// HybridSearch runs one fused retrieval pass: concurrent fan-out to the
// allowed sources, then weighted rank fusion of the batches. Partial source
// failure degrades the result; see core.FusedResult.Degraded.
func (e *Engine) HybridSearch(ctx context.Context, q core.Query) (core.FusedResult, error) {
	fanRes, err := e.coordinator.Search(ctx, q)
	if err != nil {
		return core.FusedResult{}, err
	}
	return e.fuser.Fuse(fanRes, q.TopN), nil
}

// RunAgent executes one supervised agent turn on the thread, creating the
// thread if threadID is empty. The returned state is the thread's final
// checkpoint for this turn.
//
// Admission control rejects the run with core.ErrOverloaded when the
// concurrent-run cap is reached or the configured rate is exceeded.
func (e *Engine) RunAgent(ctx context.Context, threadID, query string) (*core.ThreadState, error) {
	if threadID == "" {
		threadID = uuid.NewString()
	}

	if e.admission != nil && !e.admission.Allow() {
		return nil, fmt.Errorf("run admission rate exceeded: %w", core.ErrOverloaded)
	}
	if e.slots != nil {
		select {
		case e.slots <- struct{}{}:
			defer func() { <-e.slots }()
		default:
			return nil, fmt.Errorf("concurrent run limit reached: %w", core.ErrOverloaded)
		}
	}

	return e.supervisor.Run(ctx, threadID, query)
}

// ResumeAgent continues an interrupted run from the thread's checkpointed
// phase without adding a new user message.
func (e *Engine) ResumeAgent(ctx context.Context, threadID string) (*core.ThreadState, error) {
	return e.RunAgent(ctx, threadID, "")
}

// CancelRun aborts the thread's active run, if any. Reports whether a run
// was active.
func (e *Engine) CancelRun(threadID string) bool {
	return e.supervisor.Cancel(threadID)
}

// Thread returns a snapshot of the thread's last checkpoint.
func (e *Engine) Thread(threadID string) (*core.ThreadState, error) {
	return e.threads.Load(threadID)
}

// DeleteThread removes the thread's checkpoint.
func (e *Engine) DeleteThread(threadID string) error {
	return e.threads.Delete(threadID)
}

// UpsertMemory writes an entity through the memory adapter's write path.
func (e *Engine) UpsertMemory(ctx context.Context, entity retrieval.MemoryEntity) error {
	return e.memory.Upsert(ctx, entity)
}

// DeleteMemory removes an entity from the memory service.
func (e *Engine) DeleteMemory(ctx context.Context, entityID string) error {
	return e.memory.Delete(ctx, entityID)
}

// FetchMemory searches only the memory source, bypassing fusion.
func (e *Engine) FetchMemory(ctx context.Context, query string, k int) ([]core.RetrievalItem, error) {
	return e.memory.Fetch(ctx, query, k)
}

// QueryGraph traverses only the graph source, bypassing fusion.
func (e *Engine) QueryGraph(ctx context.Context, pattern string, k int) ([]core.RetrievalItem, error) {
	return e.graph.Fetch(ctx, pattern, k)
}

// UpsertGraphNode writes a node through the graph adapter's write path.
func (e *Engine) UpsertGraphNode(ctx context.Context, node retrieval.GraphNode) error {
	return e.graph.UpsertNode(ctx, node)
}

// UpsertGraphEdge writes a relation through the graph adapter's write path.
func (e *Engine) UpsertGraphEdge(ctx context.Context, edge retrieval.GraphEdge) error {
	return e.graph.UpsertEdge(ctx, edge)
}

// WatchConfig starts live-reloading fusion weights from the TOML file at
// path. Only fusion weights are applied at runtime; other changed settings
// take effect on the next engine start.
func (e *Engine) WatchConfig(path string) error {
	if e.watcher != nil {
		return fmt.Errorf("config watcher already running")
	}
	w, err := config.Watch(path, func(cfg config.Config) {
		e.fuser.SetWeights(cfg.Fusion.SourceWeights())
	}, e.opts.Logger)
	if err != nil {
		return err
	}
	e.watcher = w
	return nil
}

// Close stops the config watcher and releases the thread store if the
// engine owns it.
func (e *Engine) Close() error {
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			return err
		}
		e.watcher = nil
	}
	if e.ownsStore {
		if closer, ok := e.threads.(interface{ Close() error }); ok {
			return closer.Close()
		}
	}
	return nil
}
