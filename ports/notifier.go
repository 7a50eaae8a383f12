package ports

import (
	"context"

	"sentinel/domain/core"
)

// Notifier delivers a confirmed finding to humans. The escalation gate
// guarantees at most one Notify call per finding; delivery mechanics
// (email, chat, webhook) are an adapter concern.
type Notifier interface {
	Notify(ctx context.Context, finding core.Finding, consensus core.ConsensusResult) error
}
