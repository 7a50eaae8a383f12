package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"sentinel/domain/core"
)

func TestRun_SuccessResetsFailureState(t *testing.T) {
	h := newHarness(harnessConfig{})
	fail := true
	a := &stubAnalyzer{name: "flappy", fn: func(ctx context.Context) ([]core.Finding, error) {
		if fail {
			return nil, fmt.Errorf("upstream down")
		}
		return nil, nil
	}}
	if err := h.registerActive(a, Spec{}); err != nil {
		t.Fatal(err)
	}

	// Two failures, below the threshold of three.
	for i := 0; i < 2; i++ {
		outcome, err := h.sup.Run(context.Background(), "flappy")
		if err != nil {
			t.Fatal(err)
		}
		if outcome.Success {
			t.Fatal("expected failed outcome")
		}
	}
	snap, _ := h.reg.Snapshot("flappy")
	if snap.State != core.StateError || snap.Failures != 2 {
		t.Fatalf("expected error state with 2 failures, got %s/%d", snap.State, snap.Failures)
	}

	fail = false
	outcome, err := h.sup.Run(context.Background(), "flappy")
	if err != nil || !outcome.Success {
		t.Fatalf("expected success, got %v / %+v", err, outcome)
	}
	snap, _ = h.reg.Snapshot("flappy")
	if snap.State != core.StateActive {
		t.Errorf("success must restore active state, got %s", snap.State)
	}
	if snap.Failures != 0 {
		t.Errorf("success must zero the failure counter, got %d", snap.Failures)
	}
	if snap.LastError != "" {
		t.Errorf("success must clear last error, got %q", snap.LastError)
	}
	if snap.LastSuccess.IsZero() {
		t.Error("success must stamp LastSuccess")
	}
}

func TestRun_QuarantinesAtFailureThreshold(t *testing.T) {
	h := newHarness(harnessConfig{failureThreshold: 3})
	a := &stubAnalyzer{name: "broken", fn: func(ctx context.Context) ([]core.Finding, error) {
		return nil, fmt.Errorf("boom")
	}}
	if err := h.registerActive(a, Spec{}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := h.sup.Run(context.Background(), "broken"); err != nil {
			t.Fatal(err)
		}
	}

	snap, _ := h.reg.Snapshot("broken")
	if snap.State != core.StateQuarantined {
		t.Fatalf("expected quarantine after 3 consecutive failures, got %s", snap.State)
	}
	if snap.QuarantinedAt.IsZero() {
		t.Error("quarantine must stamp QuarantinedAt")
	}
}

func TestRun_PanicIsContainedAsFailure(t *testing.T) {
	h := newHarness(harnessConfig{})
	a := &stubAnalyzer{name: "panicky", fn: func(ctx context.Context) ([]core.Finding, error) {
		panic("nil map write")
	}}
	if err := h.registerActive(a, Spec{}); err != nil {
		t.Fatal(err)
	}

	outcome, err := h.sup.Run(context.Background(), "panicky")
	if err != nil {
		t.Fatalf("panic must become an outcome, not an error: %v", err)
	}
	if outcome.Success {
		t.Fatal("panicked run must count as failure")
	}
	if !strings.Contains(outcome.Err, "panic") {
		t.Errorf("outcome should carry the panic message, got %q", outcome.Err)
	}
	snap, _ := h.reg.Snapshot("panicky")
	if snap.Failures != 1 {
		t.Errorf("panic must increment failures, got %d", snap.Failures)
	}
}

func TestRun_TimeoutBecomesFailedOutcome(t *testing.T) {
	h := newHarness(harnessConfig{runTimeout: 30 * time.Millisecond})
	a := &stubAnalyzer{name: "slow", fn: func(ctx context.Context) ([]core.Finding, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	if err := h.registerActive(a, Spec{}); err != nil {
		t.Fatal(err)
	}

	outcome, err := h.sup.Run(context.Background(), "slow")
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Success {
		t.Fatal("timed-out run must fail")
	}
	if !strings.Contains(outcome.Err, "timed out") {
		t.Errorf("expected timeout marker in %q", outcome.Err)
	}
}

func TestRun_ConcurrentDuplicateIsRejected(t *testing.T) {
	h := newHarness(harnessConfig{})
	started := make(chan struct{})
	release := make(chan struct{})
	a := &stubAnalyzer{name: "busy", fn: func(ctx context.Context) ([]core.Finding, error) {
		close(started)
		<-release
		return nil, nil
	}}
	if err := h.registerActive(a, Spec{}); err != nil {
		t.Fatal(err)
	}

	done := make(chan core.RunOutcome, 1)
	go func() {
		outcome, _ := h.sup.Run(context.Background(), "busy")
		done <- outcome
	}()
	<-started

	if _, err := h.sup.Run(context.Background(), "busy"); !errors.Is(err, core.ErrDetectorBusy) {
		t.Errorf("expected ErrDetectorBusy while in flight, got %v", err)
	}
	close(release)

	outcome := <-done
	if !outcome.Success {
		t.Errorf("original run must complete normally, got %+v", outcome)
	}
	snap, _ := h.reg.Snapshot("busy")
	if snap.RunCount != 1 {
		t.Errorf("rejected duplicate must not count as a run, got %d", snap.RunCount)
	}
}

func TestRun_StampsFindingDefaults(t *testing.T) {
	h := newHarness(harnessConfig{})
	a := &stubAnalyzer{name: "raw", fn: func(ctx context.Context) ([]core.Finding, error) {
		return []core.Finding{
			{Title: "bare finding", Severity: "bogus", Confidence: 7.5},
			{Title: "typed finding", Severity: core.SeverityCritical, Confidence: 0.9},
		}, nil
	}}
	if err := h.registerActive(a, Spec{}); err != nil {
		t.Fatal(err)
	}

	outcome, err := h.sup.Run(context.Background(), "raw")
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Findings) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(outcome.Findings))
	}

	f := outcome.Findings[0]
	if f.ID.IsEmpty() {
		t.Error("missing ID must be filled")
	}
	if f.Detector != "raw" {
		t.Errorf("detector name must be stamped, got %q", f.Detector)
	}
	if f.Timestamp.IsZero() {
		t.Error("missing timestamp must be filled")
	}
	if f.Severity != core.SeverityMedium {
		t.Errorf("unknown severity must normalize to medium, got %s", f.Severity)
	}
	if f.Confidence != 0.5 {
		t.Errorf("out-of-range confidence must default to 0.5, got %f", f.Confidence)
	}
	if outcome.Findings[1].Severity != core.SeverityCritical {
		t.Errorf("valid severity must survive stamping, got %s", outcome.Findings[1].Severity)
	}
}

func TestRun_UnknownDetector(t *testing.T) {
	h := newHarness(harnessConfig{})
	if _, err := h.sup.Run(context.Background(), "nope"); !errors.Is(err, core.ErrDetectorNotFound) {
		t.Errorf("expected ErrDetectorNotFound, got %v", err)
	}
}
