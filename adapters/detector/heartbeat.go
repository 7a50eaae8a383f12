package detector

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"sentinel/domain/core"
)

// Heartbeat is a trivial always-on detector. It never raises findings
// above low severity; its job is to prove the scheduling pipeline is
// alive even when the governor has paused the risky fleet.
type Heartbeat struct {
	started time.Time
}

// NewHeartbeat creates the heartbeat detector.
func NewHeartbeat() *Heartbeat {
	return &Heartbeat{started: time.Now()}
}

// Name implements ports.Analyzer.
func (h *Heartbeat) Name() string { return "heartbeat" }

// Analyze implements ports.Analyzer.
func (h *Heartbeat) Analyze(ctx context.Context) ([]core.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []core.Finding{{
		Title:       "heartbeat",
		Description: fmt.Sprintf("uptime %s, goroutines %d", time.Since(h.started).Round(time.Second), runtime.NumGoroutine()),
		Severity:    core.SeverityLow,
		Confidence:  1.0,
		Metadata: map[string]any{
			"uptime_seconds": int64(time.Since(h.started).Seconds()),
			"goroutines":     runtime.NumGoroutine(),
		},
	}}, nil
}
