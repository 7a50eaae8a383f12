package ta

import (
	"context"
	"fmt"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"sentinel/domain/core"
	"sentinel/ports"
)

// TrendVoter renders the technical-analysis vote from recent price history.
//
// It fits a linear trend over the window and compares the total relative
// move against the volatility of per-step returns. A move beyond two
// sigmas confirms the anomaly (ACT), beyond one sigma warrants WATCH, and
// anything flatter is IGNORE. Findings without a symbol cannot be checked
// and degrade to a neutral WATCH.
type TrendVoter struct {
	prices ports.PriceSource
	points int
}

const minPoints = 8

// NewTrendVoter creates a TA voter over the given price source.
func NewTrendVoter(prices ports.PriceSource, points int) *TrendVoter {
	if points < minPoints {
		points = minPoints
	}
	return &TrendVoter{prices: prices, points: points}
}

// Vote implements ports.TAVoter.
func (v *TrendVoter) Vote(ctx context.Context, finding core.Finding) (core.TAVote, error) {
	if finding.Symbol == "" {
		return core.TAVote{Action: core.ActionWatch, Score: 0.5, Reason: "no symbol to verify"}, nil
	}

	series, err := v.prices.Series(ctx, finding.Symbol, v.points)
	if err != nil {
		return core.TAVote{}, fmt.Errorf("load series for %s: %w", finding.Symbol, err)
	}
	if len(series) < minPoints {
		return core.TAVote{}, fmt.Errorf("series for %s too short: %d points", finding.Symbol, len(series))
	}

	sigmas, err := trendSigmas(series)
	if err != nil {
		return core.TAVote{}, err
	}

	score := sigmas / 4.0
	if score > 1.0 {
		score = 1.0
	}
	switch {
	case sigmas >= 2.0:
		return core.TAVote{
			Action: core.ActionAct,
			Score:  score,
			Reason: fmt.Sprintf("trend %.1f sigma over %d points", sigmas, len(series)),
		}, nil
	case sigmas >= 1.0:
		return core.TAVote{
			Action: core.ActionWatch,
			Score:  score,
			Reason: fmt.Sprintf("trend %.1f sigma, below confirmation", sigmas),
		}, nil
	default:
		return core.TAVote{
			Action: core.ActionIgnore,
			Score:  score,
			Reason: "no meaningful trend",
		}, nil
	}
}

// trendSigmas measures how many return-volatility units the fitted trend
// moved the series across the window.
func trendSigmas(series []float64) (float64, error) {
	xs := make([]float64, len(series))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, series, nil, false)

	mean, err := stats.Mean(series)
	if err != nil || mean == 0 {
		return 0, fmt.Errorf("degenerate series")
	}

	returns := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1] == 0 {
			continue
		}
		returns = append(returns, series[i]/series[i-1]-1)
	}
	vol, err := stats.StandardDeviation(returns)
	if err != nil {
		return 0, fmt.Errorf("volatility: %w", err)
	}

	totalMove := slope * float64(len(series)-1) / mean
	if vol == 0 {
		if totalMove == 0 {
			return 0, nil
		}
		// Perfectly smooth series with a trend: any move is decisive.
		return 4.0, nil
	}
	sigmas := totalMove / vol
	if sigmas < 0 {
		sigmas = -sigmas
	}
	return sigmas, nil
}
