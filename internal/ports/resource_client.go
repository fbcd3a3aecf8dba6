package ports

import (
	"context"

	"github.com/bnema/cloudwhisper/internal/domain"
)

// ResourceClient is the capability set of one cloud provider bound to one
// active account. List calls never return Go errors: provider failures are
// carried in the result's Success and Error fields.
type ResourceClient interface {
	Provider() domain.ProviderID
	CurrentAccount() domain.AccountID
	AccountInfo(ctx context.Context) domain.AccountInfo
	ListAccounts(ctx context.Context) ([]domain.AccountEntry, error)
	// SwitchAccount rebinds the client to id. On error the previous binding
	// is left untouched.
	SwitchAccount(ctx context.Context, id domain.AccountID) error
	ListInstances(ctx context.Context) domain.InstancesResult
	ListStorageBuckets(ctx context.Context) domain.BucketsResult
	MonitoringAlerts(ctx context.Context) domain.AlertsResult
}

// ResourceClientFactory builds the initial client for the given account.
type ResourceClientFactory func(ctx context.Context, id domain.AccountID) (ResourceClient, error)
