package application

import (
	"time"

	"github.com/bnema/cloudwhisper/internal/domain"
)

// Status is the snapshot rendered by the status view.
type Status struct {
	Worker    domain.WorkerState
	Provider  domain.ProviderID
	Current   domain.AccountInfo
	Accounts  []domain.AccountEntry
	Backend   string
	CheckedAt time.Time
	// Error explains why the broker could not be queried.
	Error string
}

type ImportReport struct {
	Imported []domain.AccountID
	Skipped  []domain.AccountID
}

type FindingLevel string

const (
	FindingOK    FindingLevel = "ok"
	FindingWarn  FindingLevel = "warn"
	FindingError FindingLevel = "error"
)

type Finding struct {
	Level   FindingLevel
	Subject string
	Message string
}
