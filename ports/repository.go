package ports

import (
	"context"
	"time"

	"sentinel/domain/core"
)

// DetectorRepository persists detector snapshots. Snapshots are written
// after each state transition and read once at startup to resume state.
type DetectorRepository interface {
	SaveSnapshot(ctx context.Context, det core.Detector) error
	LoadAll(ctx context.Context) ([]core.Detector, error)
}

// TriageSummary aggregates recent consensus outcomes for the dashboard.
type TriageSummary struct {
	TotalAnalyzed int `json:"total_analyzed"`
	Act           int `json:"act"`
	Watch         int `json:"watch"`
	Ignore        int `json:"ignore"`
	Alerted       int `json:"alerted"`
}

// FindingRepository persists findings and their consensus results.
type FindingRepository interface {
	Save(ctx context.Context, f core.Finding) error
	Get(ctx context.Context, id core.FindingID) (core.Finding, error)
	SaveConsensus(ctx context.Context, id core.FindingID, c core.ConsensusResult) error
	Summary(ctx context.Context, limit int) (TriageSummary, error)
}

// GovernorRepository persists the single governor state row.
type GovernorRepository interface {
	Save(ctx context.Context, st core.GovernorState) error
	Load(ctx context.Context) (core.GovernorState, error)
}

// RunRecorder receives every supervised run outcome. Implementations must
// not block the scheduler; heavy work belongs behind the recorder.
type RunRecorder interface {
	RecordRun(ctx context.Context, outcome core.RunOutcome, at time.Time)
}
