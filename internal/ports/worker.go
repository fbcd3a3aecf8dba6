package ports

import (
	"context"
	"encoding/json"

	"github.com/bnema/cloudwhisper/internal/domain"
)

// WorkerConn is one live broker process. Calls are strictly sequential.
type WorkerConn interface {
	// Call sends one request and waits for its response. Transport faults
	// wrap domain.ErrWorkerUnavailable; protocol faults are *protocol.Error.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Exited() <-chan struct{}
	Close(ctx context.Context) error
}

type WorkerLauncher interface {
	Launch(ctx context.Context, account domain.AccountID) (WorkerConn, error)
}
