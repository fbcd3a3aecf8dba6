package broker

import (
	"context"

	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/bnema/cloudwhisper/internal/ports"
	"github.com/bnema/cloudwhisper/internal/protocol"
)

const (
	ToolListProviders       = "list_providers"
	ToolSwitchProvider      = "switch_provider"
	ToolListAccounts        = "list_accounts"
	ToolSwitchAccount       = "switch_account"
	ToolGetCurrentProvider  = "get_current_provider"
	ToolListInstances       = "list_instances"
	ToolListStorageBuckets  = "list_storage_buckets"
	ToolGetMonitoringAlerts = "get_monitoring_alerts"
)

type toolFunc func(ctx context.Context, client ports.ResourceClient, params protocol.CallParams) (any, error)

type tool struct {
	spec protocol.Tool
	run  toolFunc
}

// Failure is the payload of a tool call whose underlying operation failed.
type Failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func failure(err error) Failure {
	return Failure{Success: false, Error: err.Error()}
}

type ProvidersResult struct {
	Success   bool              `json:"success"`
	Providers []domain.Provider `json:"providers"`
	Current   domain.ProviderID `json:"current"`
}

type SwitchProviderResult struct {
	Success  bool              `json:"success"`
	Provider domain.ProviderID `json:"provider"`
}

type AccountsResult struct {
	Success        bool                  `json:"success"`
	Accounts       []domain.AccountEntry `json:"accounts"`
	CurrentAccount domain.AccountInfo    `json:"current_account"`
}

type SwitchAccountResult struct {
	Success bool             `json:"success"`
	Account domain.AccountID `json:"account"`
}

type CurrentProviderResult struct {
	Success     bool               `json:"success"`
	Provider    domain.ProviderID  `json:"provider"`
	Account     domain.AccountID   `json:"account"`
	AccountInfo domain.AccountInfo `json:"account_info"`
}

func noArgs() protocol.InputSchema {
	return protocol.InputSchema{Type: "object", Properties: map[string]protocol.Property{}}
}

func stringArg(name, description string) protocol.InputSchema {
	return protocol.InputSchema{
		Type:       "object",
		Properties: map[string]protocol.Property{name: {Type: "string", Description: description}},
		Required:   []string{name},
	}
}

func defaultTools() []tool {
	return []tool{
		{
			spec: protocol.Tool{Name: ToolSwitchProvider, Description: "Switch to a different cloud provider (aws only)", InputSchema: stringArg("provider", "Cloud provider to switch to (aws only)")},
			run:  switchProvider,
		},
		{
			spec: protocol.Tool{Name: ToolSwitchAccount, Description: "Switch to a different AWS account", InputSchema: stringArg("account_id", "Configured account id to switch to")},
			run:  switchAccount,
		},
		{
			spec: protocol.Tool{Name: ToolListProviders, Description: "List available cloud providers (AWS only)", InputSchema: noArgs()},
			run:  listProviders,
		},
		{
			spec: protocol.Tool{Name: ToolListAccounts, Description: "List all available AWS accounts", InputSchema: noArgs()},
			run:  listAccounts,
		},
		{
			spec: protocol.Tool{Name: ToolGetCurrentProvider, Description: "Get current AWS provider and account information", InputSchema: noArgs()},
			run:  currentProvider,
		},
		{
			spec: protocol.Tool{Name: ToolListInstances, Description: "List EC2 instances", InputSchema: noArgs()},
			run: func(ctx context.Context, client ports.ResourceClient, _ protocol.CallParams) (any, error) {
				return client.ListInstances(ctx), nil
			},
		},
		{
			spec: protocol.Tool{Name: ToolListStorageBuckets, Description: "List S3 buckets", InputSchema: noArgs()},
			run: func(ctx context.Context, client ports.ResourceClient, _ protocol.CallParams) (any, error) {
				return client.ListStorageBuckets(ctx), nil
			},
		},
		{
			spec: protocol.Tool{Name: ToolGetMonitoringAlerts, Description: "Get CloudWatch alarms", InputSchema: noArgs()},
			run: func(ctx context.Context, client ports.ResourceClient, _ protocol.CallParams) (any, error) {
				return client.MonitoringAlerts(ctx), nil
			},
		},
	}
}

func listProviders(_ context.Context, client ports.ResourceClient, _ protocol.CallParams) (any, error) {
	return ProvidersResult{Success: true, Providers: domain.SupportedProviders(), Current: client.Provider()}, nil
}

func switchProvider(_ context.Context, _ ports.ResourceClient, params protocol.CallParams) (any, error) {
	raw, ok := params.StringArg("provider")
	if !ok {
		return nil, protocol.Errorf(protocol.CodeInvalidParams, "Invalid params: provider is required")
	}

	provider, err := domain.ParseProvider(raw)
	if err != nil {
		return nil, err
	}

	return SwitchProviderResult{Success: true, Provider: provider}, nil
}

func listAccounts(ctx context.Context, client ports.ResourceClient, _ protocol.CallParams) (any, error) {
	accounts, err := client.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	return AccountsResult{Success: true, Accounts: accounts, CurrentAccount: client.AccountInfo(ctx)}, nil
}

func switchAccount(ctx context.Context, client ports.ResourceClient, params protocol.CallParams) (any, error) {
	id, ok := params.StringArg("account_id")
	if !ok {
		return nil, protocol.Errorf(protocol.CodeInvalidParams, "Invalid params: account_id is required")
	}

	if err := client.SwitchAccount(ctx, domain.AccountID(id)); err != nil {
		return nil, err
	}

	return SwitchAccountResult{Success: true, Account: client.CurrentAccount()}, nil
}

func currentProvider(ctx context.Context, client ports.ResourceClient, _ protocol.CallParams) (any, error) {
	return CurrentProviderResult{
		Success:     true,
		Provider:    client.Provider(),
		Account:     client.CurrentAccount(),
		AccountInfo: client.AccountInfo(ctx),
	}, nil
}
