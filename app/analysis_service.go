package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"sentinel/domain/core"
	"sentinel/internal/consensus"
	"sentinel/internal/fleet"
	"sentinel/ports"
)

// AnalysisService runs the consensus pipeline for findings: council vote
// aggregation, the escalation gate, and at-most-once alerting. It also
// receives every run outcome from the scheduler and routes findings above
// the severity floor into analysis.
type AnalysisService struct {
	findings   ports.FindingRepository
	aggregator *consensus.Aggregator
	gate       *consensus.Gate
	gov        *fleet.Governor
	routeFloor core.Severity
	boost      float64
	boostFloor float64
	log        *zap.SugaredLogger

	// Per-finding locks make analyze-finding idempotent under concurrent
	// requests: one consensus, one notification, ever.
	locks sync.Map
}

// NewAnalysisService creates the analysis pipeline.
func NewAnalysisService(findings ports.FindingRepository, aggregator *consensus.Aggregator, gate *consensus.Gate, gov *fleet.Governor, routeFloor core.Severity, boost, boostFloor float64, log *zap.SugaredLogger) *AnalysisService {
	return &AnalysisService{
		findings:   findings,
		aggregator: aggregator,
		gate:       gate,
		gov:        gov,
		routeFloor: routeFloor,
		boost:      boost,
		boostFloor: boostFloor,
		log:        log,
	}
}

func (s *AnalysisService) lockFor(id core.FindingID) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Analyze runs (or returns) the consensus for a finding. Re-requesting
// analysis on an already-analyzed finding returns the existing result;
// force recomputes the consensus but never re-alerts.
func (s *AnalysisService) Analyze(ctx context.Context, id core.FindingID, force bool) (core.Finding, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	finding, err := s.findings.Get(ctx, id)
	if err != nil {
		return core.Finding{}, err
	}
	if finding.Analyzed() && !force {
		return finding, nil
	}

	result := s.aggregator.Aggregate(ctx, finding)

	// Strong ACT consensus boosts the finding's own confidence.
	if result.Action == core.ActionAct && result.Confidence >= s.boostFloor {
		boosted := finding.Confidence + s.boost
		if boosted > 1.0 {
			boosted = 1.0
		}
		s.log.Infow("confidence boosted",
			"finding", finding.ID, "from", finding.Confidence, "to", boosted)
		finding.Confidence = boosted
	}

	// A consensus may claim the alert only while it is confirmed. The alert
	// stamp itself lives on the finding and is one-way: a forced re-analysis
	// that downgrades the verdict keeps the history without re-claiming it,
	// and one that confirms again never notifies twice.
	result.TripleConfirmed = s.gate.Evaluate(finding, result)
	if result.TripleConfirmed {
		if finding.Alerted() {
			result.Alerted = true
		} else if err := s.gate.Notify(ctx, finding, result); err == nil {
			result.Alerted = true
			finding.AlertedAt = time.Now()
		}
	}

	if err := s.findings.Save(ctx, finding); err != nil {
		s.log.Warnw("finding persist failed", "finding", finding.ID, "error", err)
	}
	if err := s.findings.SaveConsensus(ctx, finding.ID, result); err != nil {
		s.log.Warnw("consensus persist failed", "finding", finding.ID, "error", err)
	}
	finding.Consensus = &result
	return finding, nil
}

// RecordRun implements ports.RunRecorder: persist each finding, then push
// the ones above the route floor through the consensus pipeline.
func (s *AnalysisService) RecordRun(ctx context.Context, outcome core.RunOutcome, at time.Time) {
	for _, finding := range outcome.Findings {
		if err := s.findings.Save(ctx, finding); err != nil {
			s.log.Warnw("finding persist failed", "finding", finding.ID, "error", err)
			continue
		}
		if !finding.Severity.AtLeast(s.routeFloor) {
			continue
		}
		if _, err := s.Analyze(ctx, finding.ID, false); err != nil {
			s.log.Warnw("auto analysis failed", "finding", finding.ID, "error", err)
		}
	}
}

// Submit stores an externally produced finding, records its risk with the
// governor, and analyzes it when it clears the route floor.
func (s *AnalysisService) Submit(ctx context.Context, finding core.Finding) (core.Finding, error) {
	if finding.ID.IsEmpty() {
		finding.ID = core.NewFindingID()
	}
	if finding.Timestamp.IsZero() {
		finding.Timestamp = time.Now()
	}
	finding.Severity = core.ParseSeverity(string(finding.Severity))
	if err := s.findings.Save(ctx, finding); err != nil {
		return core.Finding{}, err
	}
	s.gov.RecordFinding(ctx, finding)
	if finding.Severity.AtLeast(s.routeFloor) {
		return s.Analyze(ctx, finding.ID, false)
	}
	return finding, nil
}

// Summary returns aggregate consensus counts over recent findings.
func (s *AnalysisService) Summary(ctx context.Context, limit int) (ports.TriageSummary, error) {
	return s.findings.Summary(ctx, limit)
}

// Finding returns one finding by id.
func (s *AnalysisService) Finding(ctx context.Context, id core.FindingID) (core.Finding, error) {
	return s.findings.Get(ctx, id)
}
