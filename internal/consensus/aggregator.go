package consensus

import (
	"context"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sentinel/domain/core"
	"sentinel/internal/metrics"
	"sentinel/ports"
)

// Aggregator combines the council's independent model votes and the TA
// vote into one consensus verdict with a disagreement signal.
//
// All backends are consulted concurrently with a per-model timeout; the
// aggregation waits for every response or its timeout, whichever is first,
// and proceeds with whatever subset answered. A timed-out call is
// abandoned, never retried inline.
type Aggregator struct {
	backends []ports.VoteBackend
	ta       ports.TAVoter
	timeout  time.Duration
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics
}

// NewAggregator creates a vote aggregator over the given council backends.
func NewAggregator(backends []ports.VoteBackend, ta ports.TAVoter, timeout time.Duration, log *zap.SugaredLogger, m *metrics.Metrics) *Aggregator {
	return &Aggregator{
		backends: backends,
		ta:       ta,
		timeout:  timeout,
		log:      log,
		metrics:  m,
	}
}

// Aggregate collects all votes for a finding and resolves the consensus.
func (a *Aggregator) Aggregate(ctx context.Context, finding core.Finding) core.ConsensusResult {
	votes := make([]core.ModelVote, len(a.backends))

	g, gctx := errgroup.WithContext(ctx)
	for i, backend := range a.backends {
		g.Go(func() error {
			vctx, cancel := context.WithTimeout(gctx, a.timeout)
			defer cancel()
			v, err := backend.Vote(vctx, finding)
			if err != nil {
				votes[i] = core.ModelVote{Err: err.Error()}
				a.metrics.VotesTotal.WithLabelValues(backend.Name(), "error").Inc()
				a.log.Warnw("council vote failed",
					"backend", backend.Name(), "finding", finding.ID, "error", err)
				return nil
			}
			votes[i] = v
			a.metrics.VotesTotal.WithLabelValues(backend.Name(), string(v.Action)).Inc()
			return nil
		})
	}
	taVote := a.taVote(ctx, finding)
	_ = g.Wait()

	result := a.resolve(votes)
	result.TAVote = taVote.Action
	result.TAScore = taVote.Score
	result.AnalyzedAt = time.Now()
	result.Votes = make(map[string]core.ModelVote, len(a.backends))
	for i, backend := range a.backends {
		result.Votes[backend.Name()] = votes[i]
	}

	a.log.Infow("consensus resolved",
		"finding", finding.ID,
		"action", result.Action,
		"confidence", result.Confidence,
		"disagreement", result.Disagreement,
		"availability", result.Availability(),
		"ta_vote", result.TAVote)
	return result
}

// taVote runs the TA voter with the same bounded timeout. A failed TA vote
// degrades to a neutral WATCH rather than blocking the consensus.
func (a *Aggregator) taVote(ctx context.Context, finding core.Finding) core.TAVote {
	tctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	v, err := a.ta.Vote(tctx, finding)
	if err != nil {
		a.log.Warnw("ta vote failed", "finding", finding.ID, "error", err)
		return core.TAVote{Action: core.ActionWatch, Score: 0.5, Reason: "error: " + err.Error()}
	}
	return v
}

// resolve applies the majority rule over non-error votes. Ties break toward
// the more conservative action so a split council never escalates. With
// zero usable votes the aggregation fails closed to WATCH.
func (a *Aggregator) resolve(votes []core.ModelVote) core.ConsensusResult {
	counts := make(map[core.VoteAction]int)
	confidences := make(map[core.VoteAction][]float64)
	used, errored := 0, 0

	for _, v := range votes {
		if v.Errored() {
			errored++
			continue
		}
		used++
		counts[v.Action]++
		confidences[v.Action] = append(confidences[v.Action], v.Confidence)
	}

	if used == 0 {
		return core.ConsensusResult{
			Action:        core.ActionWatch,
			Confidence:    0,
			Disagreement:  true,
			ModelsUsed:    0,
			ModelsErrored: errored,
		}
	}

	winner := core.ActionAct
	best := -1
	for _, action := range []core.VoteAction{core.ActionAct, core.ActionWatch, core.ActionIgnore} {
		n := counts[action]
		if n > best || (n == best && action.MoreConservative(winner)) {
			winner = action
			best = n
		}
	}

	mean, err := stats.Mean(confidences[winner])
	if err != nil {
		mean = 0
	}

	return core.ConsensusResult{
		Action:        winner,
		Confidence:    mean,
		Disagreement:  len(counts) > 1,
		ModelsUsed:    used,
		ModelsErrored: errored,
	}
}
