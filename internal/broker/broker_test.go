package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/bnema/cloudwhisper/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	accounts  domain.AccountSet
	current   domain.AccountID
	switchErr error
	panicMsg  string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		accounts: domain.NewAccountSet([]domain.Account{
			{ID: "default", Name: "Default", Region: "us-east-1"},
			{ID: "prod", Name: "Production", Region: "eu-west-1"},
		}),
		current: "default",
	}
}

func (f *fakeClient) Provider() domain.ProviderID      { return domain.ProviderAWS }
func (f *fakeClient) CurrentAccount() domain.AccountID { return f.current }

func (f *fakeClient) AccountInfo(context.Context) domain.AccountInfo {
	account := f.accounts[f.current]
	return domain.AccountInfo{
		AccountID:   f.current,
		AccountName: account.DisplayName(),
		Region:      account.Region,
		Provider:    domain.ProviderAWS,
		Verified:    true,
	}
}

func (f *fakeClient) ListAccounts(context.Context) ([]domain.AccountEntry, error) {
	entries := make([]domain.AccountEntry, 0, len(f.accounts))
	for _, account := range f.accounts.Sorted() {
		entries = append(entries, account.Entry())
	}
	return entries, nil
}

func (f *fakeClient) SwitchAccount(_ context.Context, id domain.AccountID) error {
	if f.switchErr != nil {
		return f.switchErr
	}
	if _, ok := f.accounts[id]; !ok {
		return fmt.Errorf("switch to %q: %w", id, domain.ErrAccountNotFound)
	}
	f.current = id
	return nil
}

func (f *fakeClient) ListInstances(context.Context) domain.InstancesResult {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return domain.NewInstancesResult([]domain.Instance{{ID: "i-1", Status: domain.InstanceRunning}})
}

func (f *fakeClient) ListStorageBuckets(context.Context) domain.BucketsResult {
	return domain.NewBucketsResult(nil)
}

func (f *fakeClient) MonitoringAlerts(context.Context) domain.AlertsResult {
	return domain.FailedAlerts("AccessDenied")
}

func newTestBroker(client *fakeClient) *Broker {
	return New(client, "test", zerolog.Nop())
}

func callLine(t *testing.T, id int, tool string, args map[string]any) []byte {
	t.Helper()

	params, err := json.Marshal(protocol.CallParams{Name: tool, Arguments: args})
	require.NoError(t, err)
	line, err := json.Marshal(protocol.Request{JSONRPC: protocol.Version, ID: id, Method: protocol.MethodToolsCall, Params: params})
	require.NoError(t, err)

	return line
}

func decodePayload(t *testing.T, resp protocol.Response, into any) {
	t.Helper()

	result, err := protocol.DecodeResult(resp)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(result.Text()), into))
}

func TestHandleEchoesRequestIDForEveryTool(t *testing.T) {
	args := map[string]map[string]any{
		ToolSwitchProvider: {"provider": "aws"},
		ToolSwitchAccount:  {"account_id": "prod"},
	}

	b := newTestBroker(newFakeClient())
	for i, spec := range b.Catalog() {
		t.Run(spec.Name, func(t *testing.T) {
			id := 100 + i
			resp := b.Handle(context.Background(), callLine(t, id, spec.Name, args[spec.Name]))

			assert.Equal(t, id, resp.ID)
			assert.Nil(t, resp.Error)
		})
	}
}

func TestHandleUnknownToolIsProtocolNotFound(t *testing.T) {
	b := newTestBroker(newFakeClient())

	resp := b.Handle(context.Background(), callLine(t, 5, "does_not_exist", nil))

	require.NotNil(t, resp.Error)
	assert.Equal(t, 5, resp.ID)
	assert.Equal(t, protocol.CodeMethodNotFound, resp.Error.Code)
	assert.Empty(t, resp.Result)
}

func TestHandleUnknownMethodIsNotFound(t *testing.T) {
	b := newTestBroker(newFakeClient())

	resp := b.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":2,"method":"resources/list"}`))

	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeMethodNotFound, resp.Error.Code)
}

func TestHandleToolFailureIsStructuredPayload(t *testing.T) {
	b := newTestBroker(newFakeClient())

	resp := b.Handle(context.Background(), callLine(t, 3, ToolSwitchProvider, map[string]any{"provider": "gcp"}))
	require.Nil(t, resp.Error)

	var payload Failure
	decodePayload(t, resp, &payload)
	assert.False(t, payload.Success)
	assert.Contains(t, payload.Error, "unsupported provider")
}

func TestHandleSwitchProviderIsCaseInsensitive(t *testing.T) {
	b := newTestBroker(newFakeClient())

	resp := b.Handle(context.Background(), callLine(t, 3, ToolSwitchProvider, map[string]any{"provider": "AWS"}))

	var payload SwitchProviderResult
	decodePayload(t, resp, &payload)
	assert.True(t, payload.Success)
	assert.Equal(t, domain.ProviderAWS, payload.Provider)
}

func TestHandleMissingArgumentIsInvalidParams(t *testing.T) {
	b := newTestBroker(newFakeClient())

	resp := b.Handle(context.Background(), callLine(t, 8, ToolSwitchAccount, nil))

	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeInvalidParams, resp.Error.Code)
	assert.Equal(t, 8, resp.ID)
}

func TestSwitchAccountFailureLeavesCurrentAccountUnchanged(t *testing.T) {
	tests := []struct {
		name      string
		accountID string
		switchErr error
	}{
		{name: "unknown account", accountID: "nope"},
		{name: "credential initialization error", accountID: "prod", switchErr: errors.New("read secret: permission denied")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			client.switchErr = tt.switchErr
			b := newTestBroker(client)

			resp := b.Handle(context.Background(), callLine(t, 1, ToolSwitchAccount, map[string]any{"account_id": tt.accountID}))
			var failed Failure
			decodePayload(t, resp, &failed)
			assert.False(t, failed.Success)
			assert.NotEmpty(t, failed.Error)

			resp = b.Handle(context.Background(), callLine(t, 2, ToolListAccounts, nil))
			var accounts AccountsResult
			decodePayload(t, resp, &accounts)
			assert.True(t, accounts.Success)
			assert.Equal(t, domain.AccountID("default"), accounts.CurrentAccount.AccountID)
			assert.Len(t, accounts.Accounts, 2)
		})
	}
}

func TestSwitchAccountSuccessIsReportedByCurrentProvider(t *testing.T) {
	b := newTestBroker(newFakeClient())

	resp := b.Handle(context.Background(), callLine(t, 1, ToolSwitchAccount, map[string]any{"account_id": "prod"}))
	var switched SwitchAccountResult
	decodePayload(t, resp, &switched)
	require.True(t, switched.Success)
	assert.Equal(t, domain.AccountID("prod"), switched.Account)

	resp = b.Handle(context.Background(), callLine(t, 2, ToolGetCurrentProvider, nil))
	var current CurrentProviderResult
	decodePayload(t, resp, &current)
	assert.Equal(t, domain.AccountID("prod"), current.Account)
	assert.Equal(t, "Production", current.AccountInfo.AccountName)
}

func TestHandleRecoversFromPanic(t *testing.T) {
	client := newFakeClient()
	client.panicMsg = "boom"
	b := newTestBroker(client)

	resp := b.Handle(context.Background(), callLine(t, 4, ToolListInstances, nil))

	require.NotNil(t, resp.Error)
	assert.Equal(t, 4, resp.ID)
	assert.Equal(t, protocol.CodeInternalError, resp.Error.Code)

	client.panicMsg = ""
	resp = b.Handle(context.Background(), callLine(t, 5, ToolListInstances, nil))
	assert.Nil(t, resp.Error)
}

func TestInitializeAndToolsList(t *testing.T) {
	b := newTestBroker(newFakeClient())

	resp := b.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	require.Nil(t, resp.Error)
	var init protocol.InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &init))
	assert.Equal(t, ServerName, init.ServerInfo.Name)

	resp = b.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	require.Nil(t, resp.Error)
	var list protocol.ToolsListResult
	require.NoError(t, json.Unmarshal(resp.Result, &list))

	names := make([]string, 0, len(list.Tools))
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		ToolListProviders, ToolSwitchProvider, ToolListAccounts, ToolSwitchAccount,
		ToolGetCurrentProvider, ToolListInstances, ToolListStorageBuckets, ToolGetMonitoringAlerts,
	}, names)
}

func TestServeAnswersEveryLineAfterMalformedInput(t *testing.T) {
	b := newTestBroker(newFakeClient())
	input := strings.Join([]string{
		`{this is not json`,
		"",
		string(callLine(t, 7, ToolListInstances, nil)),
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, b.Serve(context.Background(), strings.NewReader(input), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	for _, line := range lines[:2] {
		var failed protocol.Response
		require.NoError(t, json.Unmarshal([]byte(line), &failed))
		require.NotNil(t, failed.Error)
		assert.Equal(t, protocol.DefaultID, failed.ID)
		assert.Equal(t, protocol.CodeInternalError, failed.Error.Code)
	}

	var answered protocol.Response
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &answered))
	assert.Equal(t, 7, answered.ID)

	var instances domain.InstancesResult
	decodePayload(t, answered, &instances)
	assert.True(t, instances.Success)
	assert.Equal(t, 1, instances.RunningCount)
}

func TestServeStopsWhenContextIsDone(t *testing.T) {
	b := newTestBroker(newFakeClient())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Serve(ctx, strings.NewReader(string(callLine(t, 1, ToolListProviders, nil))+"\n"), &bytes.Buffer{})
	require.ErrorIs(t, err, context.Canceled)
}
