package fleet

import (
	"math"
	"time"

	"go.uber.org/zap"

	"sentinel/domain/core"
)

// Tracker maintains the per-detector reliability decay score and drives
// soft demotion with backup substitution.
//
// The score follows an exponential half-life curve over the time since the
// detector's last success: it is monotonically non-decreasing while no
// success occurs and snaps back to the baseline the moment one does. A
// score at or above the demotion threshold marks the detector demoted and
// substitutes the first healthy backup as the primary signal source. The
// demoted detector keeps running — demotion is additive coverage, not
// fail-over.
type Tracker struct {
	reg       *Registry
	halfLife  time.Duration
	baseline  float64
	threshold float64
	log       *zap.SugaredLogger
}

// NewTracker creates a reliability tracker.
func NewTracker(reg *Registry, halfLife time.Duration, baseline, threshold float64, log *zap.SugaredLogger) *Tracker {
	return &Tracker{
		reg:       reg,
		halfLife:  halfLife,
		baseline:  baseline,
		threshold: threshold,
		log:       log,
	}
}

// Decay is a pure function of elapsed time since the last success. A
// detector that has never succeeded sits at the baseline: a fresh detector
// gets the benefit of the doubt until it has a success to decay from.
func (t *Tracker) Decay(lastSuccess, now time.Time) float64 {
	if lastSuccess.IsZero() {
		return t.baseline
	}
	elapsed := now.Sub(lastSuccess)
	if elapsed <= 0 {
		return t.baseline
	}
	remaining := math.Pow(0.5, float64(elapsed)/float64(t.halfLife))
	score := 1.0 - remaining
	if score < t.baseline {
		return t.baseline
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}

// Observe updates the decay score for one run outcome.
func (t *Tracker) Observe(outcome core.RunOutcome, now time.Time) {
	e, ok := t.reg.get(outcome.Detector)
	if !ok {
		return
	}

	e.mu.Lock()
	if outcome.Success {
		e.det.Reliability = t.baseline
		wasDemoted := e.det.Demoted
		e.det.Demoted = false
		e.det.SubstitutedBy = ""
		e.mu.Unlock()
		if wasDemoted {
			t.log.Infow("detector recovered from demotion", "detector", outcome.Detector)
		}
		return
	}
	e.det.Reliability = t.Decay(e.det.LastSuccess, now)
	score := e.det.Reliability
	backups := append([]string(nil), e.det.Backups...)
	alreadyDemoted := e.det.Demoted
	e.mu.Unlock()

	if score < t.threshold {
		return
	}

	sub := t.pickBackup(backups, now)
	e.mu.Lock()
	e.det.Demoted = true
	e.det.SubstitutedBy = sub
	e.mu.Unlock()

	if !alreadyDemoted {
		t.log.Warnw("detector demoted",
			"detector", outcome.Detector,
			"reliability", score,
			"substituted_by", sub)
	}
}

// pickBackup returns the first backup whose own decay is still below the
// demotion threshold, or empty when none qualifies.
func (t *Tracker) pickBackup(backups []string, now time.Time) string {
	for _, name := range backups {
		b, ok := t.reg.get(name)
		if !ok {
			continue
		}
		b.mu.Lock()
		lastSuccess := b.det.LastSuccess
		state := b.det.State
		b.mu.Unlock()
		if state == core.StateQuarantined {
			continue
		}
		if t.Decay(lastSuccess, now) < t.threshold {
			return name
		}
	}
	return ""
}

// Refresh recomputes every detector's current decay score. Called before
// status queries so the dashboard sees scores that move between outcomes.
func (t *Tracker) Refresh(now time.Time) {
	for _, name := range t.reg.names() {
		e, ok := t.reg.get(name)
		if !ok {
			continue
		}
		e.mu.Lock()
		e.det.Reliability = t.Decay(e.det.LastSuccess, now)
		e.mu.Unlock()
	}
}
