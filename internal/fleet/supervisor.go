package fleet

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sentinel/domain/core"
	"sentinel/internal/metrics"
	"sentinel/ports"
)

// RunSupervisor executes one detector invocation at a time per detector,
// with a timeout and exception containment. It is the only component that
// mutates lifecycle state from run outcomes.
type RunSupervisor struct {
	reg              *Registry
	repo             ports.DetectorRepository
	log              *zap.SugaredLogger
	metrics          *metrics.Metrics
	timeout          time.Duration
	failureThreshold int
}

// NewRunSupervisor creates a run supervisor.
func NewRunSupervisor(reg *Registry, repo ports.DetectorRepository, timeout time.Duration, failureThreshold int, log *zap.SugaredLogger, m *metrics.Metrics) *RunSupervisor {
	return &RunSupervisor{
		reg:              reg,
		repo:             repo,
		log:              log,
		metrics:          m,
		timeout:          timeout,
		failureThreshold: failureThreshold,
	}
}

type invokeResult struct {
	findings []core.Finding
	err      error
}

// Run executes the named detector once. A second request while one is in
// flight is rejected with ErrDetectorBusy, never queued. Any panic, error,
// timeout or malformed result becomes a failed RunOutcome; only scheduling
// rejections are returned as errors.
func (s *RunSupervisor) Run(ctx context.Context, name string) (core.RunOutcome, error) {
	e, ok := s.reg.get(name)
	if !ok {
		return core.RunOutcome{}, core.ErrDetectorNotFound
	}
	if !e.running.CompareAndSwap(false, true) {
		return core.RunOutcome{}, core.ErrDetectorBusy
	}
	defer e.running.Store(false)

	started := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ch := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- invokeResult{err: fmt.Errorf("detector panic: %v", r)}
			}
		}()
		findings, err := e.analyzer.Analyze(runCtx)
		ch <- invokeResult{findings: findings, err: err}
	}()

	var res invokeResult
	select {
	case res = <-ch:
	case <-runCtx.Done():
		// A blocked analyzer's eventual result is discarded; the buffered
		// channel lets the goroutine exit.
		res = invokeResult{err: fmt.Errorf("run timed out after %s", s.timeout)}
	}

	outcome := core.RunOutcome{
		Detector:  name,
		StartedAt: started,
		Duration:  time.Since(started),
		Success:   res.err == nil,
	}
	if res.err != nil {
		outcome.Err = res.err.Error()
	} else {
		outcome.Findings = s.stamp(name, res.findings)
	}

	s.applyOutcome(e, outcome)
	s.record(ctx, e, outcome)
	return outcome, nil
}

// stamp fills in identity fields the detector is allowed to omit.
func (s *RunSupervisor) stamp(name string, findings []core.Finding) []core.Finding {
	now := time.Now()
	for i := range findings {
		if findings[i].ID.IsEmpty() {
			findings[i].ID = core.NewFindingID()
		}
		findings[i].Detector = name
		if findings[i].Timestamp.IsZero() {
			findings[i].Timestamp = now
		}
		findings[i].Severity = core.ParseSeverity(string(findings[i].Severity))
		if findings[i].Confidence < 0 || findings[i].Confidence > 1 {
			findings[i].Confidence = 0.5
		}
	}
	return findings
}

// applyOutcome drives the lifecycle state machine from one outcome.
func (s *RunSupervisor) applyOutcome(e *entry, outcome core.RunOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.det.RunCount++
	e.det.LastRun = outcome.StartedAt

	if outcome.Success {
		e.det.Failures = 0
		e.det.LastError = ""
		e.det.State = core.StateActive
		e.det.QuarantinedAt = time.Time{}
		e.det.LastSuccess = outcome.StartedAt
		return
	}

	e.det.Failures++
	e.det.LastError = outcome.Err
	if e.det.Failures >= s.failureThreshold {
		if e.det.State != core.StateQuarantined {
			s.metrics.Quarantines.Inc()
			s.log.Warnw("detector quarantined",
				"detector", e.det.Name,
				"consecutive_failures", e.det.Failures,
				"last_error", outcome.Err)
		}
		e.det.State = core.StateQuarantined
		e.det.QuarantinedAt = time.Now()
	} else {
		e.det.State = core.StateError
	}
}

// record updates metrics and persists the snapshot. Persistence failures
// are logged, never propagated into the run path.
func (s *RunSupervisor) record(ctx context.Context, e *entry, outcome core.RunOutcome) {
	result := "success"
	if !outcome.Success {
		result = "failure"
	}
	s.metrics.RunsTotal.WithLabelValues(outcome.Detector, result).Inc()
	s.metrics.RunDuration.WithLabelValues(outcome.Detector).Observe(outcome.Duration.Seconds())
	for _, f := range outcome.Findings {
		s.metrics.FindingsTotal.WithLabelValues(string(f.Severity)).Inc()
	}

	if outcome.Success {
		s.log.Infow("detector run complete",
			"detector", outcome.Detector,
			"duration", outcome.Duration,
			"findings", len(outcome.Findings))
	} else {
		s.log.Warnw("detector run failed",
			"detector", outcome.Detector,
			"duration", outcome.Duration,
			"error", outcome.Err)
	}

	if s.repo != nil {
		if err := s.repo.SaveSnapshot(ctx, e.snapshot()); err != nil {
			s.log.Warnw("snapshot persist failed", "detector", outcome.Detector, "error", err)
		}
	}
}
