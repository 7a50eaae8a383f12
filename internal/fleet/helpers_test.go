package fleet

import (
	"context"
	"time"

	"sentinel/domain/core"
	"sentinel/internal/logging"
	"sentinel/internal/metrics"
)

// stubAnalyzer is a scriptable detector for fleet tests.
type stubAnalyzer struct {
	name string
	fn   func(ctx context.Context) ([]core.Finding, error)
}

func (s *stubAnalyzer) Name() string { return s.name }

func (s *stubAnalyzer) Analyze(ctx context.Context) ([]core.Finding, error) {
	if s.fn == nil {
		return nil, nil
	}
	return s.fn(ctx)
}

// harness bundles the fleet components most tests need. Persistence is
// nil: the supervisor and governor tolerate that.
type harness struct {
	reg     *Registry
	sup     *RunSupervisor
	tracker *Tracker
	gov     *Governor
	sched   *Scheduler
}

type harnessConfig struct {
	runTimeout       time.Duration
	failureThreshold int
	cooldown         time.Duration
	maxConcurrent    int
	riskLimit        float64
}

func newHarness(cfg harnessConfig) *harness {
	if cfg.runTimeout == 0 {
		cfg.runTimeout = time.Second
	}
	if cfg.failureThreshold == 0 {
		cfg.failureThreshold = 3
	}
	if cfg.maxConcurrent == 0 {
		cfg.maxConcurrent = 8
	}
	if cfg.riskLimit == 0 {
		cfg.riskLimit = 20
	}

	log := logging.NewNop()
	m := metrics.New()
	reg := NewRegistry(log)
	sup := NewRunSupervisor(reg, nil, cfg.runTimeout, cfg.failureThreshold, log, m)
	tracker := NewTracker(reg, 48*time.Hour, 0.05, 0.7, log)
	gov := NewGovernor(cfg.riskLimit, 0.5, nil, log, m)
	sched := NewScheduler(reg, sup, gov, tracker, time.Second, cfg.cooldown, cfg.maxConcurrent, log, m)
	return &harness{reg: reg, sup: sup, tracker: tracker, gov: gov, sched: sched}
}

// registerActive registers an analyzer and starts it.
func (h *harness) registerActive(a *stubAnalyzer, spec Spec) error {
	if spec.Interval == 0 {
		spec.Interval = time.Minute
	}
	if err := h.reg.Register(a, spec); err != nil {
		return err
	}
	return h.reg.Start(a.name)
}
