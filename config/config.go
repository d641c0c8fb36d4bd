// Package config loads engine configuration from TOML and supports live
// reloading of the tunables that are safe to change at runtime (fusion
// weights). Everything else requires a restart.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/yooeonwoo/enhanced-mem-vector-rag/core"
)

// Config is the full engine configuration.
type Config struct {
	Fusion     FusionConfig     `toml:"fusion"`
	FanOut     FanOutConfig     `toml:"fanout"`
	Supervisor SupervisorConfig `toml:"supervisor"`
	Thread     ThreadConfig     `toml:"thread"`
	Engine     EngineConfig     `toml:"engine"`
}

// FusionConfig tunes the rank fusion engine.
type FusionConfig struct {
	K              float64            `toml:"k"`
	TopN           int                `toml:"top_n"`
	Normalization  string             `toml:"normalization"` // "minmax" or "zscore"
	DiversityBonus float64            `toml:"diversity_bonus"`
	Weights        map[string]float64 `toml:"weights"`
}

// SourceWeights converts the raw weight map onto source kinds, dropping
// unknown names and non-positive weights.
func (c FusionConfig) SourceWeights() map[core.SourceKind]float64 {
	out := make(map[core.SourceKind]float64)
	for name, w := range c.Weights {
		if w <= 0 {
			continue
		}
		kind := core.SourceKind(name)
		for _, known := range core.AllSources() {
			if kind == known {
				out[kind] = w
				break
			}
		}
	}
	return out
}

// FanOutConfig tunes the fan-out coordinator.
type FanOutConfig struct {
	DeadlineMS int `toml:"deadline_ms"`
	Quorum     int `toml:"quorum"`
	PerSourceK int `toml:"per_source_k"`
}

// Deadline returns the fan-out ceiling as a duration.
func (c FanOutConfig) Deadline() time.Duration {
	return time.Duration(c.DeadlineMS) * time.Millisecond
}

// SupervisorConfig tunes the thread state machine.
type SupervisorConfig struct {
	MaxRetries        int     `toml:"max_retries"`
	MaxIterations     int     `toml:"max_iterations"`
	MaxToolCalls      int     `toml:"max_tool_calls"`
	CritiqueThreshold float64 `toml:"critique_threshold"`
}

// ThreadConfig selects the thread checkpoint store.
type ThreadConfig struct {
	Store      string `toml:"store"` // "memory" or "sqlite"
	SQLitePath string `toml:"sqlite_path"`
}

// EngineConfig tunes run admission at the façade.
type EngineConfig struct {
	// MaxConcurrentRuns caps simultaneously active supervisor runs.
	MaxConcurrentRuns int `toml:"max_concurrent_runs"`
	// AdmissionRate caps new runs per second. Zero disables rate admission.
	AdmissionRate float64 `toml:"admission_rate"`
}

// Default returns the configuration the engine runs with when no file is
// given.
func Default() Config {
	return Config{
		Fusion: FusionConfig{
			K:             60,
			TopN:          10,
			Normalization: "minmax",
		},
		FanOut: FanOutConfig{
			DeadlineMS: 5000,
			PerSourceK: 5,
		},
		Supervisor: SupervisorConfig{
			MaxRetries:        2,
			MaxIterations:     3,
			MaxToolCalls:      8,
			CritiqueThreshold: 0.5,
		},
		Thread: ThreadConfig{
			Store: "memory",
		},
		Engine: EngineConfig{
			MaxConcurrentRuns: 16,
		},
	}
}

// Load reads a TOML config file, layered over the defaults: sections the
// file omits keep their default values.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Fusion.K <= 0 {
		return fmt.Errorf("fusion.k must be positive, got %v", c.Fusion.K)
	}
	if c.Fusion.TopN <= 0 {
		return fmt.Errorf("fusion.top_n must be positive, got %d", c.Fusion.TopN)
	}
	switch c.Fusion.Normalization {
	case "minmax", "zscore":
	default:
		return fmt.Errorf("fusion.normalization must be minmax or zscore, got %q", c.Fusion.Normalization)
	}
	if c.FanOut.DeadlineMS <= 0 {
		return fmt.Errorf("fanout.deadline_ms must be positive, got %d", c.FanOut.DeadlineMS)
	}
	if c.FanOut.Quorum < 0 {
		return fmt.Errorf("fanout.quorum must not be negative, got %d", c.FanOut.Quorum)
	}
	switch c.Thread.Store {
	case "memory":
	case "sqlite":
		if c.Thread.SQLitePath == "" {
			return fmt.Errorf("thread.sqlite_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("thread.store must be memory or sqlite, got %q", c.Thread.Store)
	}
	return nil
}
