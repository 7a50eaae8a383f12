package fleet

import (
	"errors"
	"testing"
	"time"

	"sentinel/domain/core"
	"sentinel/internal/logging"
)

func TestRegister_RejectsDuplicateName(t *testing.T) {
	reg := NewRegistry(logging.NewNop())

	if err := reg.Register(&stubAnalyzer{name: "vol-spike"}, Spec{Interval: time.Minute}); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	err := reg.Register(&stubAnalyzer{name: "vol-spike"}, Spec{Interval: time.Minute})
	if !errors.Is(err, core.ErrDuplicateDetector) {
		t.Errorf("expected ErrDuplicateDetector, got %v", err)
	}
	if reg.Size() != 1 {
		t.Errorf("rejected registration must not grow the fleet, size=%d", reg.Size())
	}
}

func TestRegister_RejectsInvalidInterval(t *testing.T) {
	reg := NewRegistry(logging.NewNop())

	err := reg.Register(&stubAnalyzer{name: "bad"}, Spec{Interval: 0})
	if !errors.Is(err, core.ErrInvalidInterval) {
		t.Errorf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestRegister_RejectsSelfBackup(t *testing.T) {
	reg := NewRegistry(logging.NewNop())

	err := reg.Register(&stubAnalyzer{name: "a"}, Spec{Interval: time.Minute, Backups: []string{"a"}})
	if !errors.Is(err, core.ErrSelfBackup) {
		t.Errorf("expected ErrSelfBackup, got %v", err)
	}
}

func TestRegister_RejectsBackupCycle(t *testing.T) {
	reg := NewRegistry(logging.NewNop())

	// a -> b is fine; b -> a would close the loop.
	if err := reg.Register(&stubAnalyzer{name: "a"}, Spec{Interval: time.Minute, Backups: []string{"b"}}); err != nil {
		t.Fatalf("register a: %v", err)
	}
	err := reg.Register(&stubAnalyzer{name: "b"}, Spec{Interval: time.Minute, Backups: []string{"a"}})
	if !errors.Is(err, core.ErrBackupCycle) {
		t.Errorf("expected ErrBackupCycle, got %v", err)
	}

	// A longer chain: c -> a -> b stays acyclic.
	if err := reg.Register(&stubAnalyzer{name: "c"}, Spec{Interval: time.Minute, Backups: []string{"a"}}); err != nil {
		t.Errorf("acyclic chain rejected: %v", err)
	}
}

func TestRegister_ForwardBackupReferenceIsAllowed(t *testing.T) {
	reg := NewRegistry(logging.NewNop())

	// Backups may name detectors that register later.
	if err := reg.Register(&stubAnalyzer{name: "primary"}, Spec{Interval: time.Minute, Backups: []string{"later"}}); err != nil {
		t.Fatalf("forward reference rejected: %v", err)
	}
}

func TestStartStop_Lifecycle(t *testing.T) {
	reg := NewRegistry(logging.NewNop())
	if err := reg.Register(&stubAnalyzer{name: "d"}, Spec{Interval: time.Minute}); err != nil {
		t.Fatal(err)
	}

	snap, _ := reg.Snapshot("d")
	if snap.State != core.StateInactive {
		t.Fatalf("fresh detector must be inactive, got %s", snap.State)
	}

	if err := reg.Start("d"); err != nil {
		t.Fatal(err)
	}
	snap, _ = reg.Snapshot("d")
	if snap.State != core.StateActive {
		t.Errorf("started detector must be active, got %s", snap.State)
	}

	if err := reg.Stop("d"); err != nil {
		t.Fatal(err)
	}
	snap, _ = reg.Snapshot("d")
	if snap.State != core.StateInactive {
		t.Errorf("stopped detector must be inactive, got %s", snap.State)
	}

	if err := reg.Start("missing"); !errors.Is(err, core.ErrDetectorNotFound) {
		t.Errorf("expected ErrDetectorNotFound, got %v", err)
	}
}

func TestStart_DoesNotBypassQuarantine(t *testing.T) {
	reg := NewRegistry(logging.NewNop())
	if err := reg.Register(&stubAnalyzer{name: "q"}, Spec{Interval: time.Minute}); err != nil {
		t.Fatal(err)
	}
	e, _ := reg.get("q")
	e.mu.Lock()
	e.det.State = core.StateQuarantined
	e.det.QuarantinedAt = time.Now()
	e.det.Failures = 3
	e.mu.Unlock()

	if err := reg.Start("q"); !errors.Is(err, core.ErrQuarantined) {
		t.Fatalf("expected ErrQuarantined, got %v", err)
	}

	// Stop on a quarantined detector keeps the quarantine.
	if err := reg.Stop("q"); err != nil {
		t.Fatal(err)
	}
	snap, _ := reg.Snapshot("q")
	if snap.State != core.StateQuarantined {
		t.Errorf("stop must not clear quarantine, got %s", snap.State)
	}
}

func TestClearQuarantine_ResetsFailureCounter(t *testing.T) {
	reg := NewRegistry(logging.NewNop())
	if err := reg.Register(&stubAnalyzer{name: "q"}, Spec{Interval: time.Minute}); err != nil {
		t.Fatal(err)
	}
	e, _ := reg.get("q")
	e.mu.Lock()
	e.det.State = core.StateQuarantined
	e.det.QuarantinedAt = time.Now()
	e.det.Failures = 5
	e.mu.Unlock()

	if err := reg.ClearQuarantine("q"); err != nil {
		t.Fatal(err)
	}
	snap, _ := reg.Snapshot("q")
	if snap.State != core.StateActive {
		t.Errorf("cleared detector must be active, got %s", snap.State)
	}
	if snap.Failures != 0 {
		t.Errorf("clear must reset failures, got %d", snap.Failures)
	}
	if !snap.QuarantinedAt.IsZero() {
		t.Error("clear must drop the quarantine timestamp")
	}
}

func TestResume_AppliesSnapshotsToKnownDetectors(t *testing.T) {
	reg := NewRegistry(logging.NewNop())
	if err := reg.Register(&stubAnalyzer{name: "d"}, Spec{Interval: time.Minute}); err != nil {
		t.Fatal(err)
	}

	lastRun := time.Now().Add(-time.Hour)
	reg.Resume([]core.Detector{
		{Name: "d", State: core.StateQuarantined, Failures: 4, RunCount: 12, LastRun: lastRun},
		{Name: "ghost", State: core.StateActive},
	})

	snap, _ := reg.Snapshot("d")
	if snap.State != core.StateQuarantined || snap.Failures != 4 || snap.RunCount != 12 {
		t.Errorf("snapshot not applied: %+v", snap)
	}
	if !snap.LastRun.Equal(lastRun) {
		t.Errorf("last run not restored: %v", snap.LastRun)
	}
	if reg.Size() != 1 {
		t.Errorf("resume must ignore unknown names, size=%d", reg.Size())
	}
}
