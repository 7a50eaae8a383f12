package fleet

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"sentinel/domain/core"
	"sentinel/internal/metrics"
	"sentinel/ports"
)

// severityWeight converts finding severity into risk proxy units.
var severityWeight = map[core.Severity]float64{
	core.SeverityLow:      0.25,
	core.SeverityMedium:   0.5,
	core.SeverityHigh:     1.0,
	core.SeverityCritical: 2.0,
}

// Governor is the fleet-wide circuit breaker. It accumulates a
// severity-weighted risk proxy from outcomes and findings; once the proxy
// crosses the configured limit the scheduler treats every detector outside
// the always-run set as ineligible. Reset is an explicit administrative
// action, never automatic, so the fleet cannot silently resume after a
// real risk event.
type Governor struct {
	mu            sync.Mutex
	st            core.GovernorState
	limit         float64
	failureWeight float64
	repo          ports.GovernorRepository
	log           *zap.SugaredLogger
	metrics       *metrics.Metrics
}

// NewGovernor creates a governor with a zeroed risk proxy.
func NewGovernor(limit, failureWeight float64, repo ports.GovernorRepository, log *zap.SugaredLogger, m *metrics.Metrics) *Governor {
	return &Governor{
		st: core.GovernorState{
			Regime:    core.RegimeCalm,
			LastReset: time.Now(),
		},
		limit:         limit,
		failureWeight: failureWeight,
		repo:          repo,
		log:           log,
		metrics:       m,
	}
}

// RecordOutcome accumulates risk from one supervised run: a fixed weight
// for a failed run plus a severity weight per finding.
func (g *Governor) RecordOutcome(ctx context.Context, outcome core.RunOutcome) {
	delta := 0.0
	if !outcome.Success {
		delta += g.failureWeight
	}
	for _, f := range outcome.Findings {
		delta += severityWeight[f.Severity]
	}
	if delta == 0 {
		return
	}
	g.add(ctx, delta)
}

// RecordFinding accumulates risk for a finding observed outside a run
// (e.g. one submitted directly for analysis).
func (g *Governor) RecordFinding(ctx context.Context, f core.Finding) {
	g.add(ctx, severityWeight[f.Severity])
}

func (g *Governor) add(ctx context.Context, delta float64) {
	g.mu.Lock()
	g.st.RiskScore += delta
	if !g.st.Paused && g.st.RiskScore >= g.limit {
		g.st.Paused = true
		g.log.Warnw("governor pausing fleet",
			"risk_score", g.st.RiskScore, "limit", g.limit)
	}
	g.relabel()
	st := g.st
	g.mu.Unlock()

	g.metrics.GovernorRisk.Set(st.RiskScore)
	g.persist(ctx, st)
}

// relabel derives the regime label from the current proxy. Caller holds mu.
func (g *Governor) relabel() {
	switch {
	case g.st.Paused:
		g.st.Regime = core.RegimePaused
	case g.st.RiskScore >= g.limit/2:
		g.st.Regime = core.RegimeElevated
	default:
		g.st.Regime = core.RegimeCalm
	}
}

// ShouldPause reports whether non-essential scheduling must stop.
func (g *Governor) ShouldPause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.Paused
}

// State returns a copy of the governor state.
func (g *Governor) State() core.GovernorState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st
}

// Reset zeroes the risk proxy and clears the pause flag.
func (g *Governor) Reset(ctx context.Context, now time.Time) {
	g.mu.Lock()
	g.st.RiskScore = 0
	g.st.Paused = false
	g.st.LastReset = now
	g.relabel()
	st := g.st
	g.mu.Unlock()

	g.metrics.GovernorRisk.Set(0)
	g.log.Infow("governor reset", "at", now)
	g.persist(ctx, st)
}

// Resume applies a persisted governor state at startup.
func (g *Governor) Resume(st core.GovernorState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.st = st
	g.relabel()
}

func (g *Governor) persist(ctx context.Context, st core.GovernorState) {
	if g.repo == nil {
		return
	}
	if err := g.repo.Save(ctx, st); err != nil {
		g.log.Warnw("governor persist failed", "error", err)
	}
}
