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

// Scheduler owns the fleet's fire-time table. A single cooperative tick
// loop finds due detectors and dispatches them into a bounded worker pool;
// the tick itself never executes detector logic.
//
// Intervals are fixed, not drift-compensating: the next fire is set to
// now+interval at dispatch time, so a slow run delays only that detector's
// subsequent fire and never causes catch-up bursts.
type Scheduler struct {
	reg      *Registry
	sup      *RunSupervisor
	gov      *Governor
	tracker  *Tracker
	recorder ports.RunRecorder
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics

	cadence  time.Duration
	cooldown time.Duration
	sem      chan struct{}

	mu       sync.Mutex
	nextFire map[string]time.Time

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler with a worker pool of maxConcurrent.
func NewScheduler(reg *Registry, sup *RunSupervisor, gov *Governor, tracker *Tracker, cadence, cooldown time.Duration, maxConcurrent int, log *zap.SugaredLogger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		reg:      reg,
		sup:      sup,
		gov:      gov,
		tracker:  tracker,
		log:      log,
		metrics:  m,
		cadence:  cadence,
		cooldown: cooldown,
		sem:      make(chan struct{}, maxConcurrent),
		nextFire: make(map[string]time.Time),
	}
}

// SetRecorder wires the sink that receives every run outcome (the analysis
// pipeline). Must be called before Run.
func (s *Scheduler) SetRecorder(rec ports.RunRecorder) {
	s.recorder = rec
}

// Run drives the tick loop until the context is cancelled, then waits for
// in-flight workers to drain.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cadence)
	defer ticker.Stop()

	s.log.Infow("scheduler started",
		"cadence", s.cadence, "max_concurrent", cap(s.sem))
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.log.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Wait blocks until all in-flight workers finish.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Tick dispatches every due, eligible detector and returns their names.
// Excess due detectors beyond the concurrency cap wait for the next tick.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) []string {
	paused := s.gov.ShouldPause()
	var dispatched []string

	for _, name := range s.reg.names() {
		e, ok := s.reg.get(name)
		if !ok {
			continue
		}

		det := e.snapshot()
		if det.State == core.StateQuarantined && s.cooldown > 0 &&
			!det.QuarantinedAt.IsZero() && now.Sub(det.QuarantinedAt) >= s.cooldown {
			_ = s.reg.ClearQuarantine(name)
			det = e.snapshot()
		}

		if !det.State.Schedulable() {
			continue
		}
		if paused && !det.AlwaysRun {
			continue
		}
		if e.running.Load() {
			continue
		}
		if s.due(name, now) {
			select {
			case s.sem <- struct{}{}:
			default:
				// Worker pool saturated; leave the rest for the next tick.
				return dispatched
			}
			s.schedule(name, now.Add(det.Interval))
			s.dispatch(ctx, name)
			dispatched = append(dispatched, name)
		}
	}
	return dispatched
}

// due reports whether a detector's fire time has arrived. A detector with
// no table entry (just started) is due immediately.
func (s *Scheduler) due(name string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	nf, ok := s.nextFire[name]
	return !ok || !nf.After(now)
}

func (s *Scheduler) schedule(name string, at time.Time) {
	s.mu.Lock()
	s.nextFire[name] = at
	s.mu.Unlock()
}

// dispatch hands one run to the worker pool. Caller has already reserved a
// semaphore slot.
func (s *Scheduler) dispatch(ctx context.Context, name string) {
	s.wg.Add(1)
	s.metrics.RunningWorkers.Inc()
	go func() {
		defer func() {
			<-s.sem
			s.metrics.RunningWorkers.Dec()
			s.wg.Done()
		}()
		outcome, err := s.sup.Run(ctx, name)
		if err != nil {
			// Busy and not-found are deliberate no-ops here; the atomic
			// in-flight check already filtered most duplicates.
			s.log.Debugw("dispatch rejected", "detector", name, "error", err)
			return
		}
		s.observe(ctx, outcome)
	}()
}

// observe fans one outcome out to the tracker, governor and analysis sink.
// Always-run detectors are liveness probes: their outcomes stay off the
// governor's books so a steady pulse of ops findings can never trip the
// breaker.
func (s *Scheduler) observe(ctx context.Context, outcome core.RunOutcome) {
	now := time.Now()
	s.tracker.Observe(outcome, now)
	if e, ok := s.reg.get(outcome.Detector); !ok || !e.snapshot().AlwaysRun {
		s.gov.RecordOutcome(ctx, outcome)
	}
	if s.recorder != nil {
		s.recorder.RecordRun(ctx, outcome, now)
	}
}

// Force runs a detector immediately and synchronously, ignoring quarantine,
// governor pause and the interval table. Only the per-detector in-flight
// guard still applies: a concurrent duplicate is rejected with
// ErrDetectorBusy.
func (s *Scheduler) Force(ctx context.Context, name string) (core.RunOutcome, error) {
	outcome, err := s.sup.Run(ctx, name)
	if err != nil {
		return core.RunOutcome{}, err
	}
	s.observe(ctx, outcome)
	return outcome, nil
}

// Start activates one detector and makes it due on the next tick.
func (s *Scheduler) Start(name string) error {
	if err := s.reg.Start(name); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.nextFire, name)
	s.mu.Unlock()
	return nil
}

// Stop deactivates one detector and drops its table entry.
func (s *Scheduler) Stop(name string) error {
	if err := s.reg.Stop(name); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.nextFire, name)
	s.mu.Unlock()
	return nil
}

// StartAll activates every detector that is not quarantined.
func (s *Scheduler) StartAll() {
	for _, name := range s.reg.names() {
		if err := s.Start(name); err != nil {
			s.log.Debugw("start skipped", "detector", name, "error", err)
		}
	}
}

// StopAll deactivates the whole fleet without touching quarantine state.
func (s *Scheduler) StopAll() {
	for _, name := range s.reg.names() {
		if err := s.Stop(name); err != nil {
			s.log.Debugw("stop skipped", "detector", name, "error", err)
		}
	}
}
