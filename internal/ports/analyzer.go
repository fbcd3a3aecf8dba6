package ports

import (
	"context"

	"github.com/bnema/cloudwhisper/internal/domain"
)

type AnalysisRequest struct {
	Question string
	// Context is the bounded textual rendering of Snapshot.
	Context  string
	Snapshot domain.ResourceSnapshot
}

type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, req AnalysisRequest) (string, error)
}
