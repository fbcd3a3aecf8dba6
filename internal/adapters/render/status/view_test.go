package status

import (
	"testing"
	"time"

	"github.com/bnema/cloudwhisper/internal/application"
	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderReadyStatus(t *testing.T) {
	now := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

	output, err := Render(application.Status{
		Worker:   domain.WorkerReady,
		Provider: domain.ProviderAWS,
		Backend:  "openai",
		Current: domain.AccountInfo{
			AccountID:         "prod",
			AccountName:       "Production",
			Region:            "eu-west-1",
			ProviderAccountID: "123456789012",
			Verified:          true,
		},
		Accounts: []domain.AccountEntry{
			{ID: "default", Name: "Default Account", Region: "us-east-1"},
			{ID: "prod", Name: "Production", Region: "eu-west-1", Description: "live traffic"},
		},
		CheckedAt: now,
	}, RenderOptions{Now: now.Add(3 * time.Second)})

	require.NoError(t, err)
	assert.Contains(t, output, "accounts: 2")
	assert.Contains(t, output, "ready")
	assert.Contains(t, output, "openai")
	assert.Contains(t, output, "Production (prod)")
	assert.Contains(t, output, "provider account: 123456789012")
	assert.Contains(t, output, "credentials verified")
	assert.Contains(t, output, "* ")
	assert.Contains(t, output, "live traffic")
	assert.Contains(t, output, "checked 3s ago")
}

func TestRenderUnverifiedAccountShowsReason(t *testing.T) {
	output, err := Render(application.Status{
		Worker:   domain.WorkerReady,
		Provider: domain.ProviderAWS,
		Current: domain.AccountInfo{
			AccountID: "dev",
			Region:    "us-east-1",
			Error:     "no valid credential sources",
		},
		Accounts: []domain.AccountEntry{{ID: "dev", Name: "dev", Region: "us-east-1"}},
	}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "credentials not verified: no valid credential sources")
}

func TestRenderBrokerError(t *testing.T) {
	output, err := Render(application.Status{
		Worker: domain.WorkerFailed,
		Error:  "worker unavailable",
	}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "broker error: worker unavailable")
	assert.Contains(t, output, "No accounts configured.")
}

func TestRenderCheckedAtWithoutNow(t *testing.T) {
	output, err := Render(application.Status{
		CheckedAt: time.Date(2026, 2, 10, 11, 0, 0, 0, time.UTC),
	}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "checked at 11:00:00")
	assert.Contains(t, output, "No active account.")
	assert.Contains(t, output, "none")
}
