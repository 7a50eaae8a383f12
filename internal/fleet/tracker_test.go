package fleet

import (
	"math"
	"testing"
	"time"

	"sentinel/domain/core"
	"sentinel/internal/logging"
)

func TestDecay_Curve(t *testing.T) {
	tr := NewTracker(NewRegistry(logging.NewNop()), 48*time.Hour, 0.05, 0.7, logging.NewNop())
	now := time.Now()

	// Never succeeded: benefit of the doubt at the baseline.
	if got := tr.Decay(time.Time{}, now); got != 0.05 {
		t.Errorf("no-success decay = %f, want baseline", got)
	}

	// Success just now: baseline.
	if got := tr.Decay(now, now); got != 0.05 {
		t.Errorf("fresh-success decay = %f, want baseline", got)
	}

	// Exactly one half-life: half the reliability is gone.
	if got := tr.Decay(now.Add(-48*time.Hour), now); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("one half-life decay = %f, want 0.5", got)
	}

	// Two half-lives: three quarters gone.
	if got := tr.Decay(now.Add(-96*time.Hour), now); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("two half-lives decay = %f, want 0.75", got)
	}

	// Very stale success approaches but never exceeds 1.
	if got := tr.Decay(now.Add(-100*24*time.Hour), now); got > 1.0 {
		t.Errorf("decay exceeded 1: %f", got)
	}
}

func TestDecay_MonotoneWithoutSuccess(t *testing.T) {
	tr := NewTracker(NewRegistry(logging.NewNop()), 48*time.Hour, 0.05, 0.7, logging.NewNop())
	lastSuccess := time.Now().Add(-time.Hour)

	prev := 0.0
	for h := 1; h <= 200; h += 7 {
		got := tr.Decay(lastSuccess, lastSuccess.Add(time.Duration(h)*time.Hour))
		if got < prev {
			t.Fatalf("decay decreased from %f to %f at %dh", prev, got, h)
		}
		prev = got
	}
}

func TestObserve_SuccessResetsAndUndemotes(t *testing.T) {
	h := newHarness(harnessConfig{})
	if err := h.registerActive(&stubAnalyzer{name: "d"}, Spec{}); err != nil {
		t.Fatal(err)
	}
	e, _ := h.reg.get("d")
	e.mu.Lock()
	e.det.Reliability = 0.9
	e.det.Demoted = true
	e.det.SubstitutedBy = "backup"
	e.mu.Unlock()

	h.tracker.Observe(core.RunOutcome{Detector: "d", Success: true}, time.Now())

	snap, _ := h.reg.Snapshot("d")
	if snap.Reliability != 0.05 {
		t.Errorf("success must reset decay to baseline, got %f", snap.Reliability)
	}
	if snap.Demoted || snap.SubstitutedBy != "" {
		t.Errorf("success must lift demotion, got %+v", snap)
	}
}

func TestObserve_FailurePastThresholdDemotesWithBackup(t *testing.T) {
	h := newHarness(harnessConfig{})
	now := time.Now()

	if err := h.registerActive(&stubAnalyzer{name: "primary"}, Spec{Backups: []string{"jailed-backup", "healthy-backup"}}); err != nil {
		t.Fatal(err)
	}
	if err := h.registerActive(&stubAnalyzer{name: "jailed-backup"}, Spec{}); err != nil {
		t.Fatal(err)
	}
	if err := h.registerActive(&stubAnalyzer{name: "healthy-backup"}, Spec{}); err != nil {
		t.Fatal(err)
	}

	// Primary last succeeded long ago; first backup is quarantined, second
	// succeeded recently.
	set := func(name string, lastSuccess time.Time, state core.DetectorState) {
		e, _ := h.reg.get(name)
		e.mu.Lock()
		e.det.LastSuccess = lastSuccess
		e.det.State = state
		e.mu.Unlock()
	}
	set("primary", now.Add(-200*time.Hour), core.StateActive)
	set("jailed-backup", now, core.StateQuarantined)
	set("healthy-backup", now.Add(-time.Hour), core.StateActive)

	h.tracker.Observe(core.RunOutcome{Detector: "primary", Success: false}, now)

	snap, _ := h.reg.Snapshot("primary")
	if !snap.Demoted {
		t.Fatalf("decay %f past threshold must demote", snap.Reliability)
	}
	if snap.SubstitutedBy != "healthy-backup" {
		t.Errorf("substitution must skip quarantined backups, got %q", snap.SubstitutedBy)
	}
	if snap.State != core.StateActive {
		t.Errorf("demotion must not stop the detector, state=%s", snap.State)
	}
}

func TestObserve_FailureBelowThresholdDoesNotDemote(t *testing.T) {
	h := newHarness(harnessConfig{})
	now := time.Now()
	if err := h.registerActive(&stubAnalyzer{name: "d"}, Spec{}); err != nil {
		t.Fatal(err)
	}
	e, _ := h.reg.get("d")
	e.mu.Lock()
	e.det.LastSuccess = now.Add(-time.Hour)
	e.mu.Unlock()

	h.tracker.Observe(core.RunOutcome{Detector: "d", Success: false}, now)

	snap, _ := h.reg.Snapshot("d")
	if snap.Demoted {
		t.Errorf("decay %f below threshold must not demote", snap.Reliability)
	}
}

func TestRefresh_UpdatesScoresBetweenOutcomes(t *testing.T) {
	h := newHarness(harnessConfig{})
	now := time.Now()
	if err := h.registerActive(&stubAnalyzer{name: "d"}, Spec{}); err != nil {
		t.Fatal(err)
	}
	e, _ := h.reg.get("d")
	e.mu.Lock()
	e.det.LastSuccess = now.Add(-48 * time.Hour)
	e.mu.Unlock()

	h.tracker.Refresh(now)

	snap, _ := h.reg.Snapshot("d")
	if math.Abs(snap.Reliability-0.5) > 1e-9 {
		t.Errorf("refresh score = %f, want 0.5", snap.Reliability)
	}
}
