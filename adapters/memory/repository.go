package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"sentinel/domain/core"
	"sentinel/ports"
)

// In-memory snapshot stores for development mode (no DATABASE_URL) and
// tests. Semantics mirror the postgres adapters.

// DetectorRepository is a map-backed detector snapshot store.
type DetectorRepository struct {
	mu        sync.Mutex
	snapshots map[string]core.Detector
}

// NewDetectorRepository creates an empty in-memory detector store.
func NewDetectorRepository() *DetectorRepository {
	return &DetectorRepository{snapshots: make(map[string]core.Detector)}
}

// SaveSnapshot implements ports.DetectorRepository.
func (r *DetectorRepository) SaveSnapshot(_ context.Context, det core.Detector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[det.Name] = det
	return nil
}

// LoadAll implements ports.DetectorRepository.
func (r *DetectorRepository) LoadAll(_ context.Context) ([]core.Detector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Detector, 0, len(r.snapshots))
	for _, det := range r.snapshots {
		out = append(out, det)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FindingRepository is a map-backed finding store.
type FindingRepository struct {
	mu       sync.Mutex
	findings map[core.FindingID]core.Finding
	order    []core.FindingID
}

// NewFindingRepository creates an empty in-memory finding store.
func NewFindingRepository() *FindingRepository {
	return &FindingRepository{findings: make(map[core.FindingID]core.Finding)}
}

// Save implements ports.FindingRepository.
func (r *FindingRepository) Save(_ context.Context, f core.Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.findings[f.ID]; !exists {
		r.order = append(r.order, f.ID)
	}
	r.findings[f.ID] = f
	return nil
}

// Get implements ports.FindingRepository.
func (r *FindingRepository) Get(_ context.Context, id core.FindingID) (core.Finding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.findings[id]
	if !ok {
		return core.Finding{}, core.ErrFindingNotFound
	}
	return f, nil
}

// SaveConsensus implements ports.FindingRepository.
func (r *FindingRepository) SaveConsensus(_ context.Context, id core.FindingID, c core.ConsensusResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.findings[id]
	if !ok {
		return core.ErrFindingNotFound
	}
	f.Consensus = &c
	r.findings[id] = f
	return nil
}

// Summary implements ports.FindingRepository.
func (r *FindingRepository) Summary(_ context.Context, limit int) (ports.TriageSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}

	var summary ports.TriageSummary
	for i := len(r.order) - 1; i >= 0 && summary.TotalAnalyzed < limit; i-- {
		f := r.findings[r.order[i]]
		if f.Consensus == nil {
			continue
		}
		summary.TotalAnalyzed++
		switch f.Consensus.Action {
		case core.ActionAct:
			summary.Act++
		case core.ActionIgnore:
			summary.Ignore++
		default:
			summary.Watch++
		}
		if f.Alerted() {
			summary.Alerted++
		}
	}
	return summary, nil
}

// GovernorRepository holds the single governor state row in memory.
type GovernorRepository struct {
	mu sync.Mutex
	st core.GovernorState
	ok bool
}

// NewGovernorRepository creates an empty in-memory governor store.
func NewGovernorRepository() *GovernorRepository {
	return &GovernorRepository{}
}

// Save implements ports.GovernorRepository.
func (r *GovernorRepository) Save(_ context.Context, st core.GovernorState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st = st
	r.ok = true
	return nil
}

// Load implements ports.GovernorRepository.
func (r *GovernorRepository) Load(_ context.Context) (core.GovernorState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ok {
		return core.GovernorState{Regime: core.RegimeCalm, LastReset: time.Now()}, nil
	}
	return r.st, nil
}
