// Package resolver generates and ranks resolution strategies for detected
// conflicts.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/atcwatch/skyguard/internal/model"
)

// Config controls strategy generation and selection.
type Config struct {
	// MaxStrategies caps how many strategies are returned per conflict.
	MaxStrategies int
	// MinConfidence filters out strategies scored below this threshold.
	MinConfidence float64
	// ExpiryMinutes is how long returned strategies stay valid.
	ExpiryMinutes int
}

// Metrics is a snapshot of the resolver's counters.
type Metrics struct {
	StrategiesGenerated int     `json:"strategiesGenerated"`
	StrategiesAccepted  int     `json:"strategiesAccepted"`
	StrategiesRejected  int     `json:"strategiesRejected"`
	AcceptanceRate      float64 `json:"acceptanceRate"`
	OutcomeHistory      int     `json:"outcomeHistoryLength"`
}

// Resolver builds ranked resolution recommendations and records controller
// decisions about them.
type Resolver struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	generated int
	accepted  int
	rejected  int
	history   []model.StrategyOutcome

	generatedCounter metric.Int64Counter
}

func New(cfg Config, logger *slog.Logger) (*Resolver, error) {
	if cfg.MaxStrategies <= 0 {
		cfg.MaxStrategies = 5
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.5
	}
	if cfg.ExpiryMinutes <= 0 {
		cfg.ExpiryMinutes = 10
	}
	r := &Resolver{
		cfg:    cfg,
		logger: logger,
	}

	var err error
	r.generatedCounter, err = meter().Int64Counter("skyguard.resolver.strategies.generated",
		metric.WithDescription("Number of resolution strategies generated"))
	if err != nil {
		return nil, fmt.Errorf("failed to create generated counter: %w", err)
	}
	return r, nil
}

// Generate builds ranked resolution strategies for the conflict. Strategies
// below the confidence threshold are discarded; the survivors are sorted by
// priority, then confidence, then success probability, capped, and stamped
// with a shared expiry.
func (r *Resolver) Generate(conflict model.ConflictAlert, traffic []*model.AircraftState) []model.ResolutionStrategy {
	now := time.Now()
	an := analyze(conflict, traffic)

	var strategies []model.ResolutionStrategy
	for _, st := range model.StrategyTypes {
		strategy := r.runGenerator(st, conflict, an, now)
		if strategy == nil || strategy.Confidence < r.cfg.MinConfidence {
			continue
		}
		strategies = append(strategies, *strategy)
	}

	sort.SliceStable(strategies, func(i, j int) bool {
		a, b := strategies[i], strategies[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.SuccessProbability > b.SuccessProbability
	})

	if len(strategies) > r.cfg.MaxStrategies {
		strategies = strategies[:r.cfg.MaxStrategies]
	}

	expiry := now.Add(time.Duration(r.cfg.ExpiryMinutes) * time.Minute)
	for i := range strategies {
		strategies[i].ExpiresAt = &expiry
	}

	r.mu.Lock()
	r.generated += len(strategies)
	r.mu.Unlock()
	r.generatedCounter.Add(context.Background(), int64(len(strategies)))

	r.logger.Info("Generated resolution strategies",
		"conflict", conflict.ID,
		"strategies", len(strategies),
		"trafficDensity", an.TrafficDensity)
	return strategies
}

// runGenerator isolates a generator failure to its own strategy kind; a panic
// skips the kind instead of aborting the whole generation pass.
func (r *Resolver) runGenerator(st model.StrategyType, conflict model.ConflictAlert,
	an analysis, now time.Time) (strategy *model.ResolutionStrategy) {
	gen, ok := generators[st]
	if !ok {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Strategy generator failed",
				"strategyType", st, "conflict", conflict.ID, "panic", p)
			strategy = nil
		}
	}()
	return gen(conflict, an, now)
}

// RecordOutcome appends a controller decision about a strategy to the outcome
// history and updates the acceptance counters.
func (r *Resolver) RecordOutcome(strategyID string, accepted bool, resolutionSec float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, model.StrategyOutcome{
		StrategyID:    strategyID,
		Accepted:      accepted,
		ResolutionSec: resolutionSec,
		Timestamp:     time.Now(),
	})
	if accepted {
		r.accepted++
	} else {
		r.rejected++
	}
}

// Outcomes returns a copy of the recorded outcome history.
func (r *Resolver) Outcomes() []model.StrategyOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.StrategyOutcome, len(r.history))
	copy(out, r.history)
	return out
}

// Metrics returns a snapshot of the generation and acceptance counters.
func (r *Resolver) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := Metrics{
		StrategiesGenerated: r.generated,
		StrategiesAccepted:  r.accepted,
		StrategiesRejected:  r.rejected,
		OutcomeHistory:      len(r.history),
	}
	if r.generated > 0 {
		m.AcceptanceRate = float64(r.accepted) / float64(r.generated)
	}
	return m
}
