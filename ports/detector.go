package ports

import (
	"context"

	"sentinel/domain/core"
)

// Analyzer is the one capability every detector implementation must provide.
// The registry stores detectors behind this interface, never concrete types.
//
// Analyze must honor context cancellation; the run supervisor enforces a
// timeout and converts any error or panic into a failed outcome.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context) ([]core.Finding, error)
}

// PriceSource supplies recent price history for a symbol. Concrete market
// data clients live outside this core; the TA voter consumes this contract.
type PriceSource interface {
	Series(ctx context.Context, symbol string, points int) ([]float64, error)
}
