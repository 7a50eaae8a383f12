package core

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the ordered severity scale for findings.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordinal position of the severity (low=0 .. critical=3).
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is at or above the given floor.
func (s Severity) AtLeast(floor Severity) bool {
	return s.Rank() >= floor.Rank()
}

// ParseSeverity normalizes a severity string, defaulting to medium.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow
	case SeverityHigh:
		return SeverityHigh
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// VoteAction is a council or TA verdict on a finding.
type VoteAction string

const (
	ActionAct    VoteAction = "ACT"
	ActionWatch  VoteAction = "WATCH"
	ActionIgnore VoteAction = "IGNORE"
)

// conservativeRank orders actions by caution: IGNORE beats WATCH beats ACT
// when votes tie, so ties never escalate.
var conservativeRank = map[VoteAction]int{
	ActionIgnore: 2,
	ActionWatch:  1,
	ActionAct:    0,
}

// MoreConservative reports whether a is the more cautious of the two actions.
func (a VoteAction) MoreConservative(b VoteAction) bool {
	return conservativeRank[a] > conservativeRank[b]
}

// ParseVoteAction normalizes a verdict string, defaulting to WATCH.
func ParseVoteAction(s string) VoteAction {
	switch VoteAction(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionAct:
		return ActionAct
	case ActionIgnore:
		return ActionIgnore
	default:
		return ActionWatch
	}
}

// DetectorState is the lifecycle state of a detector.
//
// inactive -> active <-> error -> quarantined -> active (after clear + success)
//
// active and error are both schedulable; they differ only in whether the
// most recent run failed. quarantined is terminal until cleared.
type DetectorState string

const (
	StateInactive    DetectorState = "inactive"
	StateActive      DetectorState = "active"
	StateError       DetectorState = "error"
	StateQuarantined DetectorState = "quarantined"
)

// Schedulable reports whether the state is eligible for scheduler fires.
func (s DetectorState) Schedulable() bool {
	return s == StateActive || s == StateError
}

// Detector is the observable state of one schedulable analysis unit.
// Mutation is owned by the fleet registry; everything else sees copies.
type Detector struct {
	Name          string        `json:"name"`
	Category      string        `json:"category"`
	Interval      time.Duration `json:"interval"`
	State         DetectorState `json:"state"`
	AlwaysRun     bool          `json:"always_run"`
	Failures      int           `json:"consecutive_failures"`
	RunCount      int           `json:"run_count"`
	LastRun       time.Time     `json:"last_run"`
	LastSuccess   time.Time     `json:"last_success"`
	LastError     string        `json:"last_error,omitempty"`
	QuarantinedAt time.Time     `json:"quarantined_at,omitempty"`

	// Reliability tracking. Reliability is the decay score in [0,1]; it
	// climbs while no success occurs and resets to a baseline on success.
	Reliability   float64  `json:"reliability"`
	Demoted       bool     `json:"demoted"`
	Backups       []string `json:"backups,omitempty"`
	SubstitutedBy string   `json:"substituted_by,omitempty"`
}

// RunOutcome is the result of a single supervised detector invocation.
type RunOutcome struct {
	Detector  string
	StartedAt time.Time
	Duration  time.Duration
	Success   bool
	Err       string
	Findings  []Finding
}

// Finding is one candidate anomaly awaiting consensus evaluation.
type Finding struct {
	ID          FindingID              `json:"id"`
	Detector    string                 `json:"detector"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Severity    Severity               `json:"severity"`
	Confidence  float64                `json:"confidence"`
	Symbol      string                 `json:"symbol,omitempty"`
	MarketType  string                 `json:"market_type,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Consensus   *ConsensusResult       `json:"consensus,omitempty"`

	// AlertedAt is the one-way alert stamp: set when the alert for this
	// finding was delivered, never cleared. It lives on the finding, not on
	// the consensus, so a forced re-analysis can replace the consensus
	// without losing (or falsely claiming) the alert history.
	AlertedAt time.Time `json:"alerted_at,omitempty"`
}

// Analyzed reports whether a consensus has already been recorded.
func (f Finding) Analyzed() bool {
	return f.Consensus != nil
}

// Alerted reports whether the alert for this finding has ever gone out.
func (f Finding) Alerted() bool {
	return !f.AlertedAt.IsZero()
}

// ModelVote is a single council member's verdict, or an error marker when
// the backend failed or timed out.
type ModelVote struct {
	Action     VoteAction `json:"action"`
	Confidence float64    `json:"confidence"`
	Err        string     `json:"error,omitempty"`
}

// Errored reports whether this vote is an error marker.
func (v ModelVote) Errored() bool {
	return v.Err != ""
}

// TAVote is the technical-analysis verdict with its numeric score in [0,1].
type TAVote struct {
	Action VoteAction `json:"action"`
	Score  float64    `json:"score"`
	Reason string     `json:"reason,omitempty"`
}

// ConsensusResult is owned by its Finding and created at most once.
type ConsensusResult struct {
	Votes           map[string]ModelVote `json:"votes"`
	TAVote          VoteAction           `json:"ta_vote"`
	TAScore         float64              `json:"ta_score"`
	Action          VoteAction           `json:"action"`
	Confidence      float64              `json:"confidence"`
	Disagreement    bool                 `json:"disagreement"`
	TripleConfirmed bool                 `json:"triple_confirmed"`
	Alerted         bool                 `json:"alerted"`
	ModelsUsed      int                  `json:"models_used"`
	ModelsErrored   int                  `json:"models_errored"`
	AnalyzedAt      time.Time            `json:"analyzed_at"`
}

// Availability renders the council availability metric, e.g. "2/3".
func (c ConsensusResult) Availability() string {
	return fmt.Sprintf("%d/%d", c.ModelsUsed, c.ModelsUsed+c.ModelsErrored)
}

// Regime labels for the fleet governor.
const (
	RegimeCalm     = "calm"
	RegimeElevated = "elevated"
	RegimePaused   = "paused"
)

// GovernorState is the process-wide circuit breaker state.
type GovernorState struct {
	RiskScore float64   `json:"risk_score"`
	Regime    string    `json:"regime"`
	Paused    bool      `json:"paused"`
	LastReset time.Time `json:"last_reset"`
}
