package ports

import (
	"context"

	"sentinel/domain/core"
)

// VoteBackend is one council member: an independent model backend that
// renders an ACT/WATCH/IGNORE verdict on a finding. A returned error is
// recorded as an error marker and excluded from the majority.
type VoteBackend interface {
	Name() string
	Vote(ctx context.Context, finding core.Finding) (core.ModelVote, error)
}

// TAVoter produces the technical-analysis vote for a finding.
type TAVoter interface {
	Vote(ctx context.Context, finding core.Finding) (core.TAVote, error)
}
