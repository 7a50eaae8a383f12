package consensus

import (
	"context"

	"go.uber.org/zap"

	"sentinel/domain/core"
	"sentinel/internal/metrics"
	"sentinel/ports"
)

// Gate applies the triple-confirmation rule: a finding auto-alerts only
// when its severity clears the escalation floor AND the council consensus
// is ACT AND the TA vote is ACT.
type Gate struct {
	notifier ports.Notifier
	floor    core.Severity
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics
}

// NewGate creates an escalation gate with the given severity floor.
func NewGate(notifier ports.Notifier, floor core.Severity, log *zap.SugaredLogger, m *metrics.Metrics) *Gate {
	return &Gate{
		notifier: notifier,
		floor:    floor,
		log:      log,
		metrics:  m,
	}
}

// Evaluate is the pure confirmation rule.
func (g *Gate) Evaluate(finding core.Finding, consensus core.ConsensusResult) bool {
	return finding.Severity.AtLeast(g.floor) &&
		consensus.Action == core.ActionAct &&
		consensus.TAVote == core.ActionAct
}

// Notify delivers the confirmed finding. The caller guarantees at most one
// call per finding via the finding's alert stamp; a delivery failure is
// reported so the stamp stays unset, but alerting is never retried
// automatically within an analysis.
func (g *Gate) Notify(ctx context.Context, finding core.Finding, consensus core.ConsensusResult) error {
	if err := g.notifier.Notify(ctx, finding, consensus); err != nil {
		g.log.Errorw("alert delivery failed", "finding", finding.ID, "error", err)
		return err
	}
	g.metrics.AlertsTotal.Inc()
	g.log.Infow("alert delivered",
		"finding", finding.ID,
		"title", finding.Title,
		"severity", finding.Severity)
	return nil
}
