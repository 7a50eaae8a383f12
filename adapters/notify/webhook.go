package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gomarkdown/markdown"
	"go.uber.org/zap"

	"sentinel/domain/core"
	apperrors "sentinel/internal/errors"
)

// WebhookNotifier delivers confirmed findings as a JSON POST. The finding
// description is markdown; it is rendered to HTML so chat/email receivers
// can display it directly.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type alertPayload struct {
	Subject      string               `json:"subject"`
	Detector     string               `json:"detector"`
	Severity     core.Severity        `json:"severity"`
	Symbol       string               `json:"symbol,omitempty"`
	Confidence   float64              `json:"confidence"`
	Consensus    core.VoteAction      `json:"consensus"`
	TAVote       core.VoteAction      `json:"ta_vote"`
	Availability string               `json:"council_availability"`
	BodyHTML     string               `json:"body_html"`
	Finding      core.FindingID       `json:"finding_id"`
}

// Notify implements ports.Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, finding core.Finding, consensus core.ConsensusResult) error {
	symbol := finding.Symbol
	if symbol == "" {
		symbol = "N/A"
	}
	payload := alertPayload{
		Subject:      fmt.Sprintf("[ACT] %s (%s)", finding.Title, symbol),
		Detector:     finding.Detector,
		Severity:     finding.Severity,
		Symbol:       finding.Symbol,
		Confidence:   finding.Confidence,
		Consensus:    consensus.Action,
		TAVote:       consensus.TAVote,
		Availability: consensus.Availability(),
		BodyHTML:     string(markdown.ToHTML([]byte(finding.Description), nil, nil)),
		Finding:      finding.ID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return apperrors.ExternalServiceError("alert webhook", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apperrors.ExternalServiceError("alert webhook",
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

// LogNotifier is the fallback sink when no webhook is configured: alerts
// land in the log instead of being dropped silently.
type LogNotifier struct {
	log *zap.SugaredLogger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(log *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify implements ports.Notifier.
func (n *LogNotifier) Notify(_ context.Context, finding core.Finding, consensus core.ConsensusResult) error {
	n.log.Warnw("ALERT (no webhook configured)",
		"finding", finding.ID,
		"title", finding.Title,
		"detector", finding.Detector,
		"severity", finding.Severity,
		"consensus", consensus.Action,
		"ta_vote", consensus.TAVote)
	return nil
}
