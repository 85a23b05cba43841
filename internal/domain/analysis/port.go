package analysis

import (
	"context"

	"github.com/bryanwahyu/vulnwatch/internal/domain/scans"
)

// Client is an external AI provider that turns scan findings into an
// assessment. Implementations must be safe for concurrent use.
type Client interface {
	Analyze(ctx context.Context, req Request) (*Analysis, error)
}

// Repository port for persisting and reading analyses.
type Repository interface {
	SaveAnalysis(ctx context.Context, a *Analysis) error
	GetAnalysis(ctx context.Context, id scans.ScanID) (*Analysis, error)
}
