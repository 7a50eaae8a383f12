package fleet

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"sentinel/domain/core"
	"sentinel/ports"
)

// Spec describes a detector at registration time.
type Spec struct {
	Category string
	Interval time.Duration
	// Backups is the ordered substitution list consulted when this
	// detector's reliability decays past the demotion threshold. Entries
	// are weak references by name; a backup is a full detector in its own
	// right, not owned by the one it backs up.
	Backups []string
	// AlwaysRun keeps the detector schedulable while the governor has
	// paused the fleet (health/self-monitoring detectors).
	AlwaysRun bool
}

// entry pairs a detector's analyzer with its mutable lifecycle state.
// All field mutation goes through mu; the in-flight flag is checked and
// set atomically so duplicate dispatch is rejected without taking mu.
type entry struct {
	mu       sync.Mutex
	det      core.Detector
	analyzer ports.Analyzer
	running  atomic.Bool
}

// snapshot copies the detector state under the entry lock.
func (e *entry) snapshot() core.Detector {
	e.mu.Lock()
	defer e.mu.Unlock()
	det := e.det
	det.Backups = append([]string(nil), e.det.Backups...)
	return det
}

// Registry owns the fleet: every schedulable detector behind the Analyzer
// interface plus its lifecycle state. It is constructed once at startup and
// injected into the supervisor, scheduler and tracker.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	log     *zap.SugaredLogger
}

// NewRegistry creates an empty fleet registry.
func NewRegistry(log *zap.SugaredLogger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		log:     log,
	}
}

// Register adds a detector to the fleet. Invalid registrations (duplicate
// name, self-backup, backup cycle, bad interval) are rejected without
// affecting the rest of the fleet.
func (r *Registry) Register(analyzer ports.Analyzer, spec Spec) error {
	name := analyzer.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return core.NewRegistrationError(name, core.ErrDuplicateDetector)
	}
	if spec.Interval <= 0 {
		return core.NewRegistrationError(name, core.ErrInvalidInterval)
	}
	for _, b := range spec.Backups {
		if b == name {
			return core.NewRegistrationError(name, core.ErrSelfBackup)
		}
	}
	if r.hasBackupCycle(name, spec.Backups) {
		return core.NewRegistrationError(name, core.ErrBackupCycle)
	}

	r.entries[name] = &entry{
		det: core.Detector{
			Name:      name,
			Category:  spec.Category,
			Interval:  spec.Interval,
			State:     core.StateInactive,
			AlwaysRun: spec.AlwaysRun,
			Backups:   append([]string(nil), spec.Backups...),
		},
		analyzer: analyzer,
	}
	r.order = append(r.order, name)
	r.log.Infow("detector registered",
		"detector", name, "category", spec.Category, "interval", spec.Interval)
	return nil
}

// hasBackupCycle walks the declared backup graph, including the candidate's
// edges, looking for a path that leads back to the candidate. Edges to names
// that are not registered yet are leaves. Caller holds r.mu.
func (r *Registry) hasBackupCycle(name string, backups []string) bool {
	edges := make(map[string][]string, len(r.entries)+1)
	for n, e := range r.entries {
		edges[n] = e.det.Backups
	}
	edges[name] = backups

	visited := make(map[string]bool)
	var walk func(n string) bool
	walk = func(n string) bool {
		if n == name && len(visited) > 0 {
			return true
		}
		if visited[n] {
			return false
		}
		visited[n] = true
		for _, next := range edges[n] {
			if walk(next) {
				return true
			}
		}
		return false
	}
	for _, next := range backups {
		if walk(next) {
			return true
		}
	}
	return false
}

// get returns the live entry for supervisor/scheduler/tracker use.
func (r *Registry) get(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// names returns registration order.
func (r *Registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Size returns the number of registered detectors.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns a copy of one detector's state.
func (r *Registry) Snapshot(name string) (core.Detector, error) {
	e, ok := r.get(name)
	if !ok {
		return core.Detector{}, core.ErrDetectorNotFound
	}
	return e.snapshot(), nil
}

// Snapshots returns copies of every detector's state in registration order.
func (r *Registry) Snapshots() []core.Detector {
	names := r.names()
	out := make([]core.Detector, 0, len(names))
	for _, n := range names {
		if e, ok := r.get(n); ok {
			out = append(out, e.snapshot())
		}
	}
	return out
}

// Start makes an inactive detector schedulable. Starting does not bypass
// quarantine.
func (r *Registry) Start(name string) error {
	e, ok := r.get(name)
	if !ok {
		return core.ErrDetectorNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.det.State == core.StateQuarantined {
		return core.ErrQuarantined
	}
	if e.det.State == core.StateInactive {
		e.det.State = core.StateActive
	}
	return nil
}

// Stop removes a detector from scheduling without touching its counters.
func (r *Registry) Stop(name string) error {
	e, ok := r.get(name)
	if !ok {
		return core.ErrDetectorNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.det.State != core.StateQuarantined {
		e.det.State = core.StateInactive
	}
	return nil
}

// ClearQuarantine resets the quarantine flag and failure counter. This is
// the explicit administrative clear; cooldown-based clearing calls the same
// path from the scheduler.
func (r *Registry) ClearQuarantine(name string) error {
	e, ok := r.get(name)
	if !ok {
		return core.ErrDetectorNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.det.State == core.StateQuarantined {
		e.det.State = core.StateActive
		e.det.Failures = 0
		e.det.QuarantinedAt = time.Time{}
		r.log.Infow("quarantine cleared", "detector", name)
	}
	return nil
}

// Resume applies persisted snapshots to matching detectors at startup.
// Unknown names are ignored; the schedule table itself is rebuilt fresh.
func (r *Registry) Resume(snapshots []core.Detector) {
	for _, snap := range snapshots {
		e, ok := r.get(snap.Name)
		if !ok {
			continue
		}
		e.mu.Lock()
		e.det.State = snap.State
		e.det.Failures = snap.Failures
		e.det.RunCount = snap.RunCount
		e.det.LastRun = snap.LastRun
		e.det.LastSuccess = snap.LastSuccess
		e.det.LastError = snap.LastError
		e.det.QuarantinedAt = snap.QuarantinedAt
		e.det.Reliability = snap.Reliability
		e.det.Demoted = snap.Demoted
		e.det.SubstitutedBy = snap.SubstitutedBy
		e.mu.Unlock()
	}
}
