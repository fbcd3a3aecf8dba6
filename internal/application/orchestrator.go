package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/cloudwhisper/internal/broker"
	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/bnema/cloudwhisper/internal/ports"
	"github.com/bnema/cloudwhisper/internal/protocol"
	"github.com/rs/zerolog"
)

const (
	fallbackNotice  = "_The %s backend failed (%v); showing the built-in summary instead._\n\n"
	teardownTimeout = 10 * time.Second
)

var ErrToolFailed = errors.New("tool call failed")

type OrchestratorConfig struct {
	Launcher ports.WorkerLauncher
	// Analyzer is the backend picked at startup; Fallback answers when it
	// errors. Both may be the same value.
	Analyzer ports.Analyzer
	Fallback ports.Analyzer
	Recorder ports.Recorder
	Clock    ports.Clock
	Logger   zerolog.Logger
	// Account is handed to the first worker; later launches use the account
	// the broker last confirmed.
	Account         domain.AccountID
	MaxContextItems int
}

// Orchestrator owns the broker worker and answers questions about the
// inventory it reports. Methods are safe to call from one goroutine at a
// time per turn; the mutex only protects the read-only accessors.
type Orchestrator struct {
	cfg OrchestratorConfig

	mu       sync.Mutex
	conn     ports.WorkerConn
	state    domain.WorkerState
	account  domain.AccountID
	current  broker.CurrentProviderResult
	history  []domain.ConversationTurn
	snapshot *domain.ResourceSnapshot
}

// turn carries the respawn budget of one user-level request.
type turn struct {
	respawned bool
}

type Answer struct {
	Text     string
	Backend  string
	Snapshot domain.ResourceSnapshot
	Turn     domain.ConversationTurn
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Recorder == nil {
		cfg.Recorder = ports.NopRecorder{}
	}
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}
	if cfg.Fallback == nil {
		cfg.Fallback = cfg.Analyzer
	}
	if cfg.MaxContextItems <= 0 {
		cfg.MaxContextItems = DefaultContextItems
	}

	return &Orchestrator{
		cfg:     cfg,
		state:   domain.WorkerNotStarted,
		account: cfg.Account,
	}
}

func (o *Orchestrator) State() domain.WorkerState {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state
}

// Current is the provider and account last confirmed by the broker.
func (o *Orchestrator) Current() broker.CurrentProviderResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.current
}

// CurrentLabel is the display label of the active account.
func (o *Orchestrator) CurrentLabel() string {
	current := o.Current()
	if current.AccountInfo.AccountName != "" {
		return fmt.Sprintf("%s (%s)", current.AccountInfo.AccountName, current.Account)
	}
	if current.Account != "" {
		return string(current.Account)
	}

	return string(o.launchAccount())
}

func (o *Orchestrator) BackendName() string {
	if o.cfg.Analyzer == nil {
		return ""
	}

	return o.cfg.Analyzer.Name()
}

func (o *Orchestrator) History() []domain.ConversationTurn {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]domain.ConversationTurn(nil), o.history...)
}

// LastSnapshot returns the snapshot of the latest answered turn.
func (o *Orchestrator) LastSnapshot() (domain.ResourceSnapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.snapshot == nil {
		return domain.ResourceSnapshot{}, false
	}

	return *o.snapshot, true
}

// Start brings the worker to Ready.
func (o *Orchestrator) Start(ctx context.Context) error {
	return o.ensureReady(ctx, &turn{})
}

// Ask runs one question through snapshot, context and analysis. A worker
// that stays unavailable after one respawn fails the turn; a failing
// individual tool only degrades its section.
func (o *Orchestrator) Ask(ctx context.Context, question string) (Answer, error) {
	snapshot, err := o.Snapshot(ctx)
	if err != nil {
		return Answer{}, err
	}

	req := ports.AnalysisRequest{
		Question: question,
		Context:  BuildContext(snapshot, o.cfg.MaxContextItems),
		Snapshot: snapshot,
	}
	text, backend, err := o.analyze(ctx, req)
	if err != nil {
		return Answer{}, err
	}

	entry := domain.NewConversationTurn(o.cfg.Clock.Now(), question, text, backend)
	o.mu.Lock()
	o.history = append(o.history, entry)
	o.snapshot = &snapshot
	o.mu.Unlock()
	o.cfg.Recorder.Turn(backend)

	o.cfg.Logger.Debug().
		Str("turn_id", entry.ID.String()).
		Str("backend", backend).
		Int("instances", snapshot.Instances.Count).
		Msg("turn answered")

	return Answer{Text: text, Backend: backend, Snapshot: snapshot, Turn: entry}, nil
}

// Snapshot issues the three inventory calls one after another.
func (o *Orchestrator) Snapshot(ctx context.Context) (domain.ResourceSnapshot, error) {
	t := &turn{}
	if err := o.ensureReady(ctx, t); err != nil {
		return domain.ResourceSnapshot{}, err
	}

	snapshot := domain.ResourceSnapshot{}

	var instances domain.InstancesResult
	if err := o.fetch(ctx, t, broker.ToolListInstances, &instances); err != nil {
		if isUnavailable(err) {
			return domain.ResourceSnapshot{}, err
		}
		instances = domain.FailedInstances(err.Error())
	}
	snapshot.Instances = instances

	var buckets domain.BucketsResult
	if err := o.fetch(ctx, t, broker.ToolListStorageBuckets, &buckets); err != nil {
		if isUnavailable(err) {
			return domain.ResourceSnapshot{}, err
		}
		buckets = domain.FailedBuckets(err.Error())
	}
	snapshot.Buckets = buckets

	var alerts domain.AlertsResult
	if err := o.fetch(ctx, t, broker.ToolGetMonitoringAlerts, &alerts); err != nil {
		if isUnavailable(err) {
			return domain.ResourceSnapshot{}, err
		}
		alerts = domain.FailedAlerts(err.Error())
	}
	snapshot.Alerts = alerts

	current := o.Current()
	snapshot.Provider = current.Provider
	snapshot.AccountID = current.Account
	if snapshot.AccountID == "" {
		snapshot.AccountID = o.launchAccount()
	}
	if snapshot.Provider == "" {
		snapshot.Provider = domain.ProviderAWS
	}
	snapshot.CapturedAt = o.cfg.Clock.Now()

	return snapshot, nil
}

// SwitchAccount asks the broker to rebind. The label and the account used
// for future launches change only once the broker reports success.
func (o *Orchestrator) SwitchAccount(ctx context.Context, id domain.AccountID) error {
	t := &turn{}
	var result broker.SwitchAccountResult
	err := o.callTool(ctx, t, broker.ToolSwitchAccount, map[string]any{"account_id": string(id)}, &result)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("switch to account %q: %w", id, ErrToolFailed)
	}

	o.mu.Lock()
	o.account = result.Account
	// Until the refresh lands the label shows the confirmed id alone.
	o.current = broker.CurrentProviderResult{Success: true, Provider: o.current.Provider, Account: result.Account}
	o.mu.Unlock()

	_ = o.refreshCurrent(ctx)
	return nil
}

func (o *Orchestrator) SwitchProvider(ctx context.Context, provider string) error {
	t := &turn{}
	var result broker.SwitchProviderResult
	err := o.callTool(ctx, t, broker.ToolSwitchProvider, map[string]any{"provider": provider}, &result)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("switch to provider %q: %w", provider, ErrToolFailed)
	}

	_ = o.refreshCurrent(ctx)
	return nil
}

func (o *Orchestrator) ListAccounts(ctx context.Context) (broker.AccountsResult, error) {
	var result broker.AccountsResult
	err := o.callTool(ctx, &turn{}, broker.ToolListAccounts, nil, &result)
	return result, err
}

func (o *Orchestrator) ListProviders(ctx context.Context) (broker.ProvidersResult, error) {
	var result broker.ProvidersResult
	err := o.callTool(ctx, &turn{}, broker.ToolListProviders, nil, &result)
	return result, err
}

// CurrentProvider re-reads the broker's view and refreshes the label.
func (o *Orchestrator) CurrentProvider(ctx context.Context) (broker.CurrentProviderResult, error) {
	var result broker.CurrentProviderResult
	if err := o.callTool(ctx, &turn{}, broker.ToolGetCurrentProvider, nil, &result); err != nil {
		return broker.CurrentProviderResult{}, err
	}
	if result.Success {
		o.mu.Lock()
		o.current = result
		o.mu.Unlock()
	}

	return result, nil
}

// Tools returns the broker's catalog.
func (o *Orchestrator) Tools(ctx context.Context) ([]protocol.Tool, error) {
	t := &turn{}
	if err := o.ensureReady(ctx, t); err != nil {
		return nil, err
	}

	raw, err := o.invokeWithRespawn(ctx, t, protocol.MethodToolsList, struct{}{})
	if err != nil {
		return nil, err
	}

	var list protocol.ToolsListResult
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode tool catalog: %w", err)
	}

	return list.Tools, nil
}

// Close tears the worker down. It is safe to call more than once.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	conn := o.conn
	o.conn = nil
	if conn != nil || o.state != domain.WorkerNotStarted {
		o.state = domain.WorkerStopped
	}
	o.mu.Unlock()

	if conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	return conn.Close(ctx)
}

func (o *Orchestrator) analyze(ctx context.Context, req ports.AnalysisRequest) (string, string, error) {
	primary := o.cfg.Analyzer
	if primary == nil {
		return "", "", domain.ErrNoBackend
	}

	text, err := primary.Analyze(ctx, req)
	if err == nil {
		return text, primary.Name(), nil
	}
	if ctx.Err() != nil || o.cfg.Fallback == nil || o.cfg.Fallback.Name() == primary.Name() {
		return "", "", fmt.Errorf("%s analysis: %w", primary.Name(), err)
	}

	o.cfg.Logger.Warn().Err(err).Str("backend", primary.Name()).Msg("analysis backend failed, using fallback")

	fallbackText, fallbackErr := o.cfg.Fallback.Analyze(ctx, req)
	if fallbackErr != nil {
		return "", "", fmt.Errorf("%s analysis: %w", primary.Name(), errors.Join(err, fallbackErr))
	}

	return fmt.Sprintf(fallbackNotice, primary.Name(), err) + fallbackText, o.cfg.Fallback.Name(), nil
}

// fetch runs a tool and decodes its payload into out. A payload reporting
// success=false comes back as an error carrying the tool's message.
func (o *Orchestrator) fetch(ctx context.Context, t *turn, tool string, out any) error {
	text, err := o.callText(ctx, t, tool, nil)
	if err != nil {
		return err
	}

	var failure broker.Failure
	if err := json.Unmarshal([]byte(text), &failure); err != nil {
		return fmt.Errorf("decode %s result: %w", tool, err)
	}
	if !failure.Success {
		if failure.Error == "" {
			failure.Error = "unknown error"
		}
		return errors.New(failure.Error)
	}

	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decode %s result: %w", tool, err)
	}

	return nil
}

// callTool decodes a pass-through tool payload. Failure payloads are still
// decoded into out so callers can read Success.
func (o *Orchestrator) callTool(ctx context.Context, t *turn, tool string, args map[string]any, out any) error {
	text, err := o.callText(ctx, t, tool, args)
	if err != nil {
		return err
	}

	var failure broker.Failure
	if err := json.Unmarshal([]byte(text), &failure); err == nil && !failure.Success && failure.Error != "" {
		return fmt.Errorf("%s: %s: %w", tool, failure.Error, ErrToolFailed)
	}

	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decode %s result: %w", tool, err)
	}

	return nil
}

func (o *Orchestrator) callText(ctx context.Context, t *turn, tool string, args map[string]any) (string, error) {
	if err := o.ensureReady(ctx, t); err != nil {
		return "", err
	}

	started := time.Now()
	raw, err := o.invokeWithRespawn(ctx, t, protocol.MethodToolsCall, protocol.CallParams{Name: tool, Arguments: args})
	o.cfg.Recorder.ToolCall(tool, outcomeOf(err), time.Since(started))
	if err != nil {
		return "", err
	}

	var result protocol.CallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode %s content: %w", tool, err)
	}

	return result.Text(), nil
}

// invokeWithRespawn sends one request. A transport fault marks the worker
// failed and, if this turn has not respawned yet, restarts it and retries
// the request once.
func (o *Orchestrator) invokeWithRespawn(ctx context.Context, t *turn, method string, params any) (json.RawMessage, error) {
	raw, err := o.invoke(ctx, method, params)
	if err == nil || !isUnavailable(err) || t.respawned || ctx.Err() != nil {
		return raw, err
	}

	o.cfg.Logger.Warn().Err(err).Str("method", method).Msg("worker unavailable, respawning")
	if err := o.ensureReady(ctx, t); err != nil {
		return nil, err
	}

	return o.invoke(ctx, method, params)
}

func (o *Orchestrator) invoke(ctx context.Context, method string, params any) (json.RawMessage, error) {
	o.mu.Lock()
	conn := o.conn
	o.mu.Unlock()

	if conn == nil {
		return nil, fmt.Errorf("%w: worker not running", domain.ErrWorkerUnavailable)
	}

	raw, err := conn.Call(ctx, method, params)
	if err != nil && isUnavailable(err) {
		o.markFailed(ctx, conn)
	}

	return raw, err
}

// ensureReady launches the worker when its state requires it. Leaving
// Failed costs the turn its single respawn.
func (o *Orchestrator) ensureReady(ctx context.Context, t *turn) error {
	o.mu.Lock()
	conn := o.conn
	state := o.state
	o.mu.Unlock()

	if state == domain.WorkerReady && conn != nil {
		select {
		case <-conn.Exited():
			o.cfg.Logger.Warn().Msg("worker exited unexpectedly")
			o.markFailed(ctx, conn)
			state = domain.WorkerFailed
		default:
			return nil
		}
	}

	if state == domain.WorkerFailed {
		if t.respawned {
			return fmt.Errorf("%w: respawn already attempted", domain.ErrWorkerUnavailable)
		}
		t.respawned = true
	}

	return o.launch(ctx, t)
}

func (o *Orchestrator) launch(ctx context.Context, t *turn) error {
	account := o.launchAccount()

	o.mu.Lock()
	o.state = domain.WorkerStarting
	o.mu.Unlock()

	conn, err := o.cfg.Launcher.Launch(ctx, account)
	o.cfg.Recorder.WorkerStart(err)
	if err != nil {
		o.mu.Lock()
		o.state = domain.WorkerFailed
		o.mu.Unlock()
		o.cfg.Logger.Error().Err(err).Str("account", string(account)).Msg("worker failed to start")

		if !errors.Is(err, domain.ErrWorkerUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrWorkerUnavailable, err)
		}
		return err
	}

	o.mu.Lock()
	o.conn = conn
	o.state = domain.WorkerReady
	o.mu.Unlock()
	o.cfg.Logger.Debug().Str("account", string(account)).Msg("worker ready")

	// A worker that dies on its first call is not ready.
	if err := o.refreshCurrent(ctx); err != nil && (isUnavailable(err) || o.State() != domain.WorkerReady) {
		o.cfg.Logger.Error().Err(err).Str("account", string(account)).Msg("worker failed after start")
		if !isUnavailable(err) {
			err = fmt.Errorf("%w: %v", domain.ErrWorkerUnavailable, err)
		}
		return err
	}

	return nil
}

// refreshCurrent re-derives the label from the broker. Failures keep the
// previous label and are returned.
func (o *Orchestrator) refreshCurrent(ctx context.Context) error {
	raw, err := o.invoke(ctx, protocol.MethodToolsCall, protocol.CallParams{Name: broker.ToolGetCurrentProvider})
	if err != nil {
		o.cfg.Logger.Warn().Err(err).Msg("refresh current provider")
		return err
	}

	var result protocol.CallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("decode %s content: %w", broker.ToolGetCurrentProvider, err)
	}

	var current broker.CurrentProviderResult
	if err := json.Unmarshal([]byte(result.Text()), &current); err != nil {
		return fmt.Errorf("decode %s result: %w", broker.ToolGetCurrentProvider, err)
	}
	if !current.Success {
		return fmt.Errorf("%s: %w", broker.ToolGetCurrentProvider, ErrToolFailed)
	}

	o.mu.Lock()
	o.current = current
	if current.Account != "" {
		o.account = current.Account
	}
	o.mu.Unlock()

	return nil
}

func (o *Orchestrator) markFailed(ctx context.Context, conn ports.WorkerConn) {
	o.mu.Lock()
	if o.conn == conn {
		o.conn = nil
		o.state = domain.WorkerFailed
	}
	o.mu.Unlock()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	if err := conn.Close(closeCtx); err != nil {
		o.cfg.Logger.Debug().Err(err).Msg("close failed worker")
	}
}

func (o *Orchestrator) launchAccount() domain.AccountID {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.account
}

func isUnavailable(err error) bool {
	return errors.Is(err, domain.ErrWorkerUnavailable)
}

func outcomeOf(err error) string {
	var protoErr *protocol.Error
	switch {
	case err == nil:
		return "ok"
	case isUnavailable(err):
		return "unavailable"
	case errors.As(err, &protoErr):
		return "protocol_error"
	default:
		return "tool_error"
	}
}
