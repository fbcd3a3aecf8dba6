package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/bnema/cloudwhisper/internal/adapters/analysis"
	"github.com/bnema/cloudwhisper/internal/adapters/analysis/anthropic"
	"github.com/bnema/cloudwhisper/internal/adapters/analysis/fallback"
	"github.com/bnema/cloudwhisper/internal/adapters/analysis/openai"
	awsclient "github.com/bnema/cloudwhisper/internal/adapters/cloud/aws"
	answeradapter "github.com/bnema/cloudwhisper/internal/adapters/render/answer"
	statusadapter "github.com/bnema/cloudwhisper/internal/adapters/render/status"
	tomlrepo "github.com/bnema/cloudwhisper/internal/adapters/repo/toml"
	yamlrepo "github.com/bnema/cloudwhisper/internal/adapters/repo/yaml"
	chainstore "github.com/bnema/cloudwhisper/internal/adapters/secrets/chain"
	"github.com/bnema/cloudwhisper/internal/adapters/worker"
	"github.com/bnema/cloudwhisper/internal/application"
	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/bnema/cloudwhisper/internal/ports"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const brokerCommand = "broker"

type app struct {
	cfg            *viper.Viper
	accounts       ports.AccountRepository
	secrets        ports.SecretStore
	service        *application.Service
	statusRenderer func(application.Status, statusadapter.RenderOptions) (string, error)
	httpClient     *http.Client
	now            func() time.Time
	// executable is the binary re-executed as the broker worker.
	executable func() (string, error)
	verbose    bool
}

func wireApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	accounts, secrets, err := openAccountStore(cfg)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:            cfg,
		accounts:       accounts,
		secrets:        secrets,
		service:        application.NewService(accounts, secrets, ports.SystemClock{}),
		statusRenderer: statusadapter.Render,
		now:            time.Now,
		executable:     os.Executable,
	}, nil
}

// openAccountStore picks the account store from the accounts.path extension.
// A YAML store keeps key pairs inline, so its secrets are consulted before
// the pass/file chain.
func openAccountStore(cfg *viper.Viper) (ports.AccountRepository, ports.SecretStore, error) {
	base, err := chainstore.NewPassFirstWithFileFallback(
		cfg.GetString(keyPassPrefix),
		expandHome(cfg.GetString(keySecretsDir)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("wire secret store chain: %w", err)
	}

	path := expandHome(cfg.GetString(tomlrepo.AccountsPathKey))
	if yamlrepo.IsYAMLPath(path) {
		repo, err := yamlrepo.NewRepository(path)
		if err != nil {
			return nil, nil, fmt.Errorf("wire yaml account repository: %w", err)
		}
		secrets, err := chainstore.NewStoreChecked(repo.Secrets(), base)
		if err != nil {
			return nil, nil, fmt.Errorf("wire secret store chain: %w", err)
		}
		return repo, secrets, nil
	}

	cfg.Set(tomlrepo.AccountsPathKey, path)
	repo, err := tomlrepo.NewRepository(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("wire account repository: %w", err)
	}

	return repo, base, nil
}

// newResourceClient is the broker's factory for the provider binding.
func (a *app) newResourceClient(logger zerolog.Logger) ports.ResourceClientFactory {
	return func(ctx context.Context, id domain.AccountID) (ports.ResourceClient, error) {
		return awsclient.NewClient(ctx, awsclient.Options{
			Accounts:      a.accounts,
			Secrets:       a.secrets,
			DefaultRegion: a.cfg.GetString(keyAWSDefaultRegion),
			ObjectSample:  a.cfg.GetInt(keyAWSObjectSample),
			BucketRPS:     a.cfg.GetFloat64(keyAWSBucketRPS),
			Logger:        logger,
		}, id)
	}
}

// analyzers returns the backend chosen at startup (OpenAI, then Anthropic,
// then the built-in summary) and the summary used when it fails.
func (a *app) analyzers() (ports.Analyzer, ports.Analyzer) {
	summary := fallback.New()

	if key := a.cfg.GetString(keyOpenAIKey); analysis.UsableKey(key) {
		return openai.New(openai.Config{
			APIKey:  key,
			Model:   a.cfg.GetString(keyOpenAIModel),
			BaseURL: a.cfg.GetString(keyOpenAIBaseURL),
		}, a.httpClient), summary
	}
	if key := a.cfg.GetString(keyAnthropicKey); analysis.UsableKey(key) {
		return anthropic.New(anthropic.Config{
			APIKey:  key,
			Model:   a.cfg.GetString(keyAnthropicModel),
			BaseURL: a.cfg.GetString(keyAnthropicBaseURL),
		}, a.httpClient), summary
	}

	return summary, summary
}

func (a *app) apiKeys() []application.NamedKey {
	return []application.NamedKey{
		{Name: openai.Name, Value: a.cfg.GetString(keyOpenAIKey)},
		{Name: anthropic.Name, Value: a.cfg.GetString(keyAnthropicKey)},
	}
}

type orchestratorOptions struct {
	Account  domain.AccountID
	Recorder ports.Recorder
	Sink     logSink
}

func (a *app) newOrchestrator(opts orchestratorOptions) (*application.Orchestrator, error) {
	path, err := a.executable()
	if err != nil {
		return nil, fmt.Errorf("resolve worker executable: %w", err)
	}

	args := []string{brokerCommand}
	if a.verbose {
		args = append(args, "--verbose")
	}

	account := opts.Account
	if account == "" {
		account = domain.AccountID(a.cfg.GetString(keyDefaultAccount))
	}

	launcher := worker.NewLauncher(worker.Config{
		Path:         path,
		Args:         args,
		StartTimeout: durationOr(a.cfg, keyWorkerStart, worker.DefaultStartTimeout),
		CallTimeout:  durationOr(a.cfg, keyWorkerCall, worker.DefaultCallTimeout),
		StopGrace:    durationOr(a.cfg, keyWorkerStopGrace, worker.DefaultStopGrace),
		Stderr:       opts.Sink.Raw,
		Logger:       opts.Sink.Logger,
	})

	primary, summary := a.analyzers()

	return application.NewOrchestrator(application.OrchestratorConfig{
		Launcher:        launcher,
		Analyzer:        primary,
		Fallback:        summary,
		Recorder:        opts.Recorder,
		Clock:           ports.SystemClock{},
		Logger:          opts.Sink.Logger.With().Str("component", "orchestrator").Logger(),
		Account:         account,
		MaxContextItems: a.cfg.GetInt(keyContextMaxItems),
	}), nil
}

func (a *app) newAnswerRenderer(plain bool) (*answeradapter.Renderer, error) {
	return answeradapter.NewRenderer(answeradapter.Options{Plain: plain})
}
