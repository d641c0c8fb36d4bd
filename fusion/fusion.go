// Package fusion merges independently-scored batches from heterogeneous
// retrieval sources into one deterministic ranking. Raw scores are never
// compared across sources: each batch is normalized on its own, then batches
// are combined with weighted reciprocal-rank fusion. Ties are broken by a
// fixed rule chain so identical inputs always produce identical output.
package fusion

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
	"github.com/yooeonwoo/enhanced-mem-vector-rag/logging"
)

// Normalization selects how raw scores are normalized within one source's
// batch before fusion.
type Normalization int

const (
	// MinMax rescales a batch to [0, 1].
	MinMax Normalization = iota
	// ZScore centers a batch on its mean in standard deviations.
	ZScore
)

// Options configures an Engine.
type Options struct {
	// K is the reciprocal-rank constant κ. Larger values flatten the
	// influence of rank position.
	K float64
	// Weights assigns a per-source multiplier to reciprocal-rank
	// contributions. Missing sources weigh 1.
	Weights map[core.SourceKind]float64
	// Normalization selects the per-batch score normalization.
	Normalization Normalization
	// TopN bounds the fused result length when the query does not.
	TopN int
	// DiversityBonus, when positive, adds bonus × (sources−1) to an item's
	// fused score, rewarding items corroborated by multiple sources beyond
	// what their summed rank contributions already do.
	DiversityBonus float64
	Logger         logging.Logger
}

// Engine fuses fan-out results. Weights may be swapped at runtime (live
// config reload); everything else is immutable after construction. Safe for
// concurrent use.
type Engine struct {
	mu      sync.RWMutex
	weights map[core.SourceKind]float64
	opts    Options
}

// New constructs a fusion engine. Defaults: κ=60, equal weights, min-max
// normalization, top 10.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		K:             60,
		Normalization: MinMax,
		TopN:          10,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	weights := make(map[core.SourceKind]float64, len(opts.Weights))
	for k, v := range opts.Weights {
		weights[k] = v
	}

	return &Engine{weights: weights, opts: opts}
}

// SetWeights atomically replaces the per-source weights. Non-positive
// weights are ignored.
func (e *Engine) SetWeights(weights map[core.SourceKind]float64) {
	clean := make(map[core.SourceKind]float64, len(weights))
	for k, v := range weights {
		if v > 0 {
			clean[k] = v
		}
	}
	e.mu.Lock()
	e.weights = clean
	e.mu.Unlock()
}

func (e *Engine) weight(kind core.SourceKind) float64 {
	if w, ok := e.weights[kind]; ok {
		return w
	}
	return 1
}

// candidate accumulates one fingerprint's contributions across sources.
type candidate struct {
	item        core.RetrievalItem
	bestNorm    float64
	fused       float64
	sources     []core.SourceKind
	firstSource int
	metadata    map[string]string
}

// Fuse merges the fan-out batches into a deterministic ranking, truncated to
// topN (the engine default when topN <= 0). Empty input yields an empty
// result, not an error; the input's degraded-source list is carried through.
func (e *Engine) Fuse(res core.FanOutResult, topN int) core.FusedResult {
	start := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	if topN <= 0 {
		topN = e.opts.TopN
	}

	byFingerprint := make(map[string]*candidate)
	var order []string // fingerprints in first-seen order, for stable iteration
	total := 0

	for _, kind := range core.AllSources() {
		batch := res.BySource[kind]
		if len(batch) == 0 {
			continue
		}
		total += len(batch)

		ranked := rankBatch(batch)
		norms := normalize(ranked, e.opts.Normalization)
		w := e.weight(kind)

		for i, item := range ranked {
			contribution := w / (float64(i+1) + e.opts.K)

			c, ok := byFingerprint[item.Fingerprint]
			if !ok {
				c = &candidate{
					item:        item,
					bestNorm:    norms[i],
					sources:     []core.SourceKind{kind},
					firstSource: core.SourceOrder(kind),
					metadata:    cloneMetadata(item.Metadata),
				}
				byFingerprint[item.Fingerprint] = c
				order = append(order, item.Fingerprint)
			} else {
				// Duplicate content: keep the representative with the higher
				// normalized score, union metadata and sources.
				if norms[i] > c.bestNorm {
					c.item = item
					c.bestNorm = norms[i]
				}
				mergeMetadata(c.metadata, item.Metadata)
				if !containsSource(c.sources, kind) {
					c.sources = append(c.sources, kind)
				}
			}
			c.fused += contribution
		}
	}

	candidates := make([]*candidate, 0, len(byFingerprint))
	for _, fp := range order {
		candidates = append(candidates, byFingerprint[fp])
	}

	if e.opts.DiversityBonus > 0 {
		for _, c := range candidates {
			c.fused += e.opts.DiversityBonus * float64(len(c.sources)-1)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.fused != b.fused {
			return a.fused > b.fused
		}
		if a.bestNorm != b.bestNorm {
			return a.bestNorm > b.bestNorm
		}
		if a.firstSource != b.firstSource {
			return a.firstSource < b.firstSource
		}
		return a.item.ID < b.item.ID
	})

	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	out := core.FusedResult{Degraded: res.Degraded}
	for i, c := range candidates {
		item := c.item
		item.Metadata = c.metadata
		out.Items = append(out.Items, core.FusedItem{
			RetrievalItem:   item,
			NormalizedScore: c.bestNorm,
			FusedScore:      c.fused,
			Rank:            i + 1,
			Sources:         c.sources,
		})
	}

	e.opts.Logger.Debug("fusion pass completed", "items_in", total, "items_out", len(out.Items), "duration", time.Since(start))

	return out
}

// rankBatch orders one source's batch by raw score descending, keeping the
// adapter's own order on equal scores.
func rankBatch(batch []core.RetrievalItem) []core.RetrievalItem {
	ranked := append([]core.RetrievalItem(nil), batch...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RawScore > ranked[j].RawScore
	})
	return ranked
}

// normalize computes per-item normalized scores for one ranked batch. A
// degenerate batch (constant scores, NaN or infinite values, or too few
// samples for z-score) falls back to scores derived purely from the batch's
// rank order.
func normalize(ranked []core.RetrievalItem, mode Normalization) []float64 {
	n := len(ranked)
	for _, it := range ranked {
		if math.IsNaN(it.RawScore) || math.IsInf(it.RawScore, 0) {
			return rankFallback(n)
		}
	}

	switch mode {
	case ZScore:
		if n < 2 {
			return rankFallback(n)
		}
		var mean float64
		for _, it := range ranked {
			mean += it.RawScore
		}
		mean /= float64(n)
		var variance float64
		for _, it := range ranked {
			d := it.RawScore - mean
			variance += d * d
		}
		std := math.Sqrt(variance / float64(n))
		if std == 0 {
			return rankFallback(n)
		}
		out := make([]float64, n)
		for i, it := range ranked {
			out[i] = (it.RawScore - mean) / std
		}
		return out

	default: // MinMax
		lo, hi := ranked[0].RawScore, ranked[0].RawScore
		for _, it := range ranked {
			lo = math.Min(lo, it.RawScore)
			hi = math.Max(hi, it.RawScore)
		}
		if hi == lo {
			return rankFallback(n)
		}
		out := make([]float64, n)
		for i, it := range ranked {
			out[i] = (it.RawScore - lo) / (hi - lo)
		}
		return out
	}
}

// rankFallback assigns (n-i)/n so the batch's own ordering survives.
func rankFallback(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(n-i) / float64(n)
	}
	return out
}

func cloneMetadata(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// mergeMetadata unions src into dst without overwriting existing keys.
func mergeMetadata(dst, src map[string]string) {
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}

func containsSource(sources []core.SourceKind, kind core.SourceKind) bool {
	for _, s := range sources {
		if s == kind {
			return true
		}
	}
	return false
}
