package detector

import (
	"context"

	"sentinel/domain/core"
)

// Func adapts a plain function into an analyzer. Useful for wiring
// custom detectors without declaring a type.
type Func struct {
	DetectorName string
	Fn           func(ctx context.Context) ([]core.Finding, error)
}

// Name implements ports.Analyzer.
func (f Func) Name() string { return f.DetectorName }

// Analyze implements ports.Analyzer.
func (f Func) Analyze(ctx context.Context) ([]core.Finding, error) {
	return f.Fn(ctx)
}
