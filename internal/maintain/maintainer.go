// Package maintain keeps the entity graph healthy: it forgets stale
// nodes, asks a model to separate signal from noise, and links entities
// that share context in an external memory.
package maintain

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/constellation/internal/enrich"
	"github.com/lazypower/constellation/internal/graph"
	"github.com/lazypower/constellation/internal/metrics"
)

// Report collects the results of one maintenance run.
type Report struct {
	Decay    graph.DecayResult `json:"decay"`
	Cleanup  *CleanupResult    `json:"cleanup,omitempty"`
	CrossRef *CrossRefResult   `json:"crossRef,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// Maintainer runs decay, cleanup and cross-reference in that order. Each
// step stands alone: a failing model does not stop the search step.
type Maintainer struct {
	store    *graph.Store
	signals  *enrich.Signals
	policy   graph.DecayPolicy
	cleaner  *Cleaner
	crossref *CrossRef
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewMaintainer wires the steps together. cleaner and crossref may be nil
// to skip those steps.
func NewMaintainer(s *graph.Store, sig *enrich.Signals, cleaner *Cleaner, crossref *CrossRef, m *metrics.Metrics, log *zap.Logger) *Maintainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Maintainer{
		store:    s,
		signals:  sig,
		policy:   graph.DefaultDecayPolicy(),
		cleaner:  cleaner,
		crossref: crossref,
		metrics:  m,
		log:      log,
	}
}

// Run performs one maintenance pass.
func (m *Maintainer) Run(ctx context.Context) Report {
	start := time.Now()
	defer m.metrics.ObservePass("maintenance", start)

	var rep Report
	rep.Decay = Decay(m.store, m.signals, m.policy)
	m.metrics.MaintenanceRun("decay")
	if len(rep.Decay.Nodes) > 0 || rep.Decay.Edges > 0 {
		m.log.Info("decayed",
			zap.Int("nodes", len(rep.Decay.Nodes)),
			zap.Int("edges", rep.Decay.Edges),
			zap.Int("orphans", rep.Decay.OrphanEdges))
	}

	if m.cleaner != nil && ctx.Err() == nil {
		res, _ := m.cleaner.Run(ctx, m.store)
		rep.Cleanup = &res
		m.metrics.MaintenanceRun("cleanup")
		if res.Outcome != "idle" {
			m.metrics.LLMOutcome(res.Outcome)
		}
	}

	if m.crossref != nil && ctx.Err() == nil {
		res, _ := m.crossref.Run(ctx, m.store)
		rep.CrossRef = &res
		m.metrics.MaintenanceRun("crossref")
		for outcome, n := range res.Outcomes {
			for range n {
				m.metrics.SearchOutcome(outcome)
			}
		}
	}

	m.metrics.SetGraphSize(m.store.Len())
	rep.Duration = time.Since(start)
	return rep
}
