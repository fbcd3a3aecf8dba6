package broker

import (
	"context"
	"fmt"

	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/bnema/cloudwhisper/internal/ports"
)

// DeferredClient binds its ResourceClient in the background. The broker can
// answer initialize right away while credential verification is still in
// flight; tool calls wait for the binding.
type DeferredClient struct {
	provider domain.ProviderID
	account  domain.AccountID
	ready    chan struct{}
	client   ports.ResourceClient
	err      error
}

var _ ports.ResourceClient = (*DeferredClient)(nil)

func NewDeferredClient(ctx context.Context, provider domain.ProviderID, account domain.AccountID, factory ports.ResourceClientFactory) *DeferredClient {
	d := &DeferredClient{
		provider: provider,
		account:  account,
		ready:    make(chan struct{}),
	}

	go func() {
		defer close(d.ready)
		client, err := factory(ctx, account)
		if err == nil && client == nil {
			err = fmt.Errorf("bind %s client: factory returned nil", provider)
		}
		d.client, d.err = client, err
	}()

	return d
}

func (d *DeferredClient) wait(ctx context.Context) (ports.ResourceClient, error) {
	select {
	case <-d.ready:
		if d.err != nil {
			return nil, d.err
		}
		return d.client, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *DeferredClient) Provider() domain.ProviderID {
	return d.provider
}

func (d *DeferredClient) CurrentAccount() domain.AccountID {
	<-d.ready
	if d.err != nil {
		return d.account
	}

	return d.client.CurrentAccount()
}

func (d *DeferredClient) AccountInfo(ctx context.Context) domain.AccountInfo {
	client, err := d.wait(ctx)
	if err != nil {
		return domain.AccountInfo{
			AccountID:   d.account,
			AccountName: string(d.account),
			Provider:    d.provider,
			Error:       err.Error(),
		}
	}

	return client.AccountInfo(ctx)
}

func (d *DeferredClient) ListAccounts(ctx context.Context) ([]domain.AccountEntry, error) {
	client, err := d.wait(ctx)
	if err != nil {
		return nil, err
	}

	return client.ListAccounts(ctx)
}

func (d *DeferredClient) SwitchAccount(ctx context.Context, id domain.AccountID) error {
	client, err := d.wait(ctx)
	if err != nil {
		return err
	}

	return client.SwitchAccount(ctx, id)
}

func (d *DeferredClient) ListInstances(ctx context.Context) domain.InstancesResult {
	client, err := d.wait(ctx)
	if err != nil {
		return domain.FailedInstances(err.Error())
	}

	return client.ListInstances(ctx)
}

func (d *DeferredClient) ListStorageBuckets(ctx context.Context) domain.BucketsResult {
	client, err := d.wait(ctx)
	if err != nil {
		return domain.FailedBuckets(err.Error())
	}

	return client.ListStorageBuckets(ctx)
}

func (d *DeferredClient) MonitoringAlerts(ctx context.Context) domain.AlertsResult {
	client, err := d.wait(ctx)
	if err != nil {
		return domain.FailedAlerts(err.Error())
	}

	return client.MonitoringAlerts(ctx)
}
