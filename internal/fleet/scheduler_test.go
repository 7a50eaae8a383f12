package fleet

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"sentinel/domain/core"
)

func TestTick_DispatchesDueDetectorsOnly(t *testing.T) {
	h := newHarness(harnessConfig{})
	var runs atomic.Int32
	a := &stubAnalyzer{name: "periodic", fn: func(ctx context.Context) ([]core.Finding, error) {
		runs.Add(1)
		return nil, nil
	}}
	if err := h.registerActive(a, Spec{Interval: time.Hour}); err != nil {
		t.Fatal(err)
	}

	now := time.Now()

	// Fresh detector has no fire-table entry: due immediately.
	dispatched := h.sched.Tick(context.Background(), now)
	h.sched.Wait()
	if len(dispatched) != 1 || dispatched[0] != "periodic" {
		t.Fatalf("expected one dispatch, got %v", dispatched)
	}
	if runs.Load() != 1 {
		t.Fatalf("expected one run, got %d", runs.Load())
	}

	// Before the interval elapses nothing fires again.
	dispatched = h.sched.Tick(context.Background(), now.Add(30*time.Minute))
	h.sched.Wait()
	if len(dispatched) != 0 {
		t.Errorf("detector fired before its interval: %v", dispatched)
	}

	// At the interval it fires again.
	dispatched = h.sched.Tick(context.Background(), now.Add(time.Hour))
	h.sched.Wait()
	if len(dispatched) != 1 {
		t.Errorf("detector did not fire at its interval: %v", dispatched)
	}
	if runs.Load() != 2 {
		t.Errorf("expected two runs, got %d", runs.Load())
	}
}

func TestTick_SkipsInactiveAndQuarantined(t *testing.T) {
	h := newHarness(harnessConfig{})
	if err := h.reg.Register(&stubAnalyzer{name: "idle"}, Spec{Interval: time.Minute}); err != nil {
		t.Fatal(err)
	}
	if err := h.registerActive(&stubAnalyzer{name: "jailed"}, Spec{Interval: time.Minute}); err != nil {
		t.Fatal(err)
	}
	e, _ := h.reg.get("jailed")
	e.mu.Lock()
	e.det.State = core.StateQuarantined
	e.det.QuarantinedAt = time.Now()
	e.mu.Unlock()

	dispatched := h.sched.Tick(context.Background(), time.Now())
	h.sched.Wait()
	if len(dispatched) != 0 {
		t.Errorf("inactive/quarantined detectors must not fire: %v", dispatched)
	}
}

func TestTick_GovernorPauseSparesAlwaysRun(t *testing.T) {
	h := newHarness(harnessConfig{riskLimit: 1})
	if err := h.registerActive(&stubAnalyzer{name: "risky"}, Spec{Interval: time.Minute}); err != nil {
		t.Fatal(err)
	}
	if err := h.registerActive(&stubAnalyzer{name: "pulse"}, Spec{Interval: time.Minute, AlwaysRun: true}); err != nil {
		t.Fatal(err)
	}

	h.gov.RecordFinding(context.Background(), core.Finding{Severity: core.SeverityCritical})
	if !h.gov.ShouldPause() {
		t.Fatal("governor should have paused")
	}

	dispatched := h.sched.Tick(context.Background(), time.Now())
	h.sched.Wait()
	if len(dispatched) != 1 || dispatched[0] != "pulse" {
		t.Errorf("only the always-run detector may fire under pause, got %v", dispatched)
	}
}

func TestTick_AlwaysRunFindingsStayOffGovernor(t *testing.T) {
	// Risk limit of 2 = eight low findings. The liveness pulse emits one low
	// finding per run; no amount of them may accumulate risk or pause the
	// fleet.
	h := newHarness(harnessConfig{riskLimit: 2})
	pulse := &stubAnalyzer{name: "pulse", fn: func(ctx context.Context) ([]core.Finding, error) {
		return []core.Finding{{Title: "pulse", Severity: core.SeverityLow, Confidence: 1.0}}, nil
	}}
	if err := h.registerActive(pulse, Spec{Interval: time.Minute, AlwaysRun: true}); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	for i := 0; i < 10; i++ {
		h.sched.Tick(context.Background(), now.Add(time.Duration(i)*time.Minute))
		h.sched.Wait()
	}
	if risk := h.gov.State().RiskScore; risk != 0 {
		t.Errorf("liveness findings accumulated risk %.2f, want 0", risk)
	}
	if h.gov.ShouldPause() {
		t.Error("fleet paused on pure liveness signals")
	}

	// A regular detector's low finding still counts.
	spike := &stubAnalyzer{name: "vol-spike", fn: func(ctx context.Context) ([]core.Finding, error) {
		return []core.Finding{{Title: "spike", Severity: core.SeverityLow, Confidence: 0.9}}, nil
	}}
	if err := h.registerActive(spike, Spec{Interval: time.Minute}); err != nil {
		t.Fatal(err)
	}
	h.sched.Tick(context.Background(), now.Add(time.Hour))
	h.sched.Wait()
	if risk := h.gov.State().RiskScore; risk != 0.25 {
		t.Errorf("regular low finding must add 0.25, got %.2f", risk)
	}
}

func TestTick_WorkerPoolSaturationDefersToNextTick(t *testing.T) {
	h := newHarness(harnessConfig{maxConcurrent: 1})
	release := make(chan struct{})
	blocker := func(ctx context.Context) ([]core.Finding, error) {
		<-release
		return nil, nil
	}
	if err := h.registerActive(&stubAnalyzer{name: "first", fn: blocker}, Spec{Interval: time.Minute}); err != nil {
		t.Fatal(err)
	}
	if err := h.registerActive(&stubAnalyzer{name: "second", fn: blocker}, Spec{Interval: time.Minute}); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	dispatched := h.sched.Tick(context.Background(), now)
	if len(dispatched) != 1 {
		t.Fatalf("pool of one must dispatch exactly one, got %v", dispatched)
	}
	close(release)
	h.sched.Wait()

	// The deferred detector is still due on the next tick.
	dispatched = h.sched.Tick(context.Background(), now.Add(time.Second))
	h.sched.Wait()
	if len(dispatched) != 1 || dispatched[0] != "second" {
		t.Errorf("deferred detector must fire on the next tick, got %v", dispatched)
	}
}

func TestTick_CooldownClearsQuarantine(t *testing.T) {
	h := newHarness(harnessConfig{cooldown: time.Hour})
	if err := h.registerActive(&stubAnalyzer{name: "jailed"}, Spec{Interval: time.Minute}); err != nil {
		t.Fatal(err)
	}
	e, _ := h.reg.get("jailed")
	e.mu.Lock()
	e.det.State = core.StateQuarantined
	e.det.QuarantinedAt = time.Now().Add(-2 * time.Hour)
	e.det.Failures = 3
	e.mu.Unlock()

	dispatched := h.sched.Tick(context.Background(), time.Now())
	h.sched.Wait()
	if len(dispatched) != 1 {
		t.Fatalf("cooled-down detector must be cleared and fired, got %v", dispatched)
	}
	snap, _ := h.reg.Snapshot("jailed")
	if snap.State == core.StateQuarantined {
		t.Error("cooldown must clear quarantine")
	}
}

func TestTick_ZeroCooldownMeansManualOnly(t *testing.T) {
	h := newHarness(harnessConfig{})
	if err := h.registerActive(&stubAnalyzer{name: "jailed"}, Spec{Interval: time.Minute}); err != nil {
		t.Fatal(err)
	}
	e, _ := h.reg.get("jailed")
	e.mu.Lock()
	e.det.State = core.StateQuarantined
	e.det.QuarantinedAt = time.Now().Add(-240 * time.Hour)
	e.mu.Unlock()

	dispatched := h.sched.Tick(context.Background(), time.Now())
	h.sched.Wait()
	if len(dispatched) != 0 {
		t.Errorf("without a cooldown quarantine never clears itself, got %v", dispatched)
	}
}

func TestForce_BypassesPauseAndQuarantine(t *testing.T) {
	h := newHarness(harnessConfig{riskLimit: 1})
	var runs atomic.Int32
	a := &stubAnalyzer{name: "jailed", fn: func(ctx context.Context) ([]core.Finding, error) {
		runs.Add(1)
		return nil, nil
	}}
	if err := h.reg.Register(a, Spec{Interval: time.Minute}); err != nil {
		t.Fatal(err)
	}
	e, _ := h.reg.get("jailed")
	e.mu.Lock()
	e.det.State = core.StateQuarantined
	e.mu.Unlock()
	h.gov.RecordFinding(context.Background(), core.Finding{Severity: core.SeverityCritical})

	outcome, err := h.sched.Force(context.Background(), "jailed")
	if err != nil {
		t.Fatalf("force must bypass pause and quarantine: %v", err)
	}
	if !outcome.Success || runs.Load() != 1 {
		t.Errorf("forced run did not execute: %+v", outcome)
	}
}

func TestRun_LoopStopsOnContextCancel(t *testing.T) {
	h := newHarness(harnessConfig{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.sched.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler loop did not stop on cancel")
	}
}
