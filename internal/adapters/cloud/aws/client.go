// Package aws is the Amazon Web Services ResourceClient.
package aws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/bnema/cloudwhisper/internal/ports"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultRegion       = "us-east-1"
	DefaultObjectSample = 1000
	DefaultBucketRPS    = 10
	verifyTimeout       = 10 * time.Second
)

type Options struct {
	Accounts      ports.AccountRepository
	Secrets       ports.SecretStore
	Sessions      SessionBuilder
	DefaultRegion string
	// ObjectSample caps the objects listed per bucket for size estimates.
	ObjectSample int
	// BucketRPS throttles per-bucket metadata calls.
	BucketRPS float64
	Logger    zerolog.Logger
}

type binding struct {
	account  domain.Account
	session  *Session
	verified bool
}

type Client struct {
	accounts      ports.AccountRepository
	secrets       ports.SecretStore
	sessions      SessionBuilder
	defaultRegion string
	objectSample  int
	limiter       *rate.Limiter
	logger        zerolog.Logger

	mu      sync.RWMutex
	current binding
}

var _ ports.ResourceClient = (*Client)(nil)

// NewClient binds a client to the given account. It never fails on
// credential or verification problems: it degrades to the ambient session.
func NewClient(ctx context.Context, opts Options, id domain.AccountID) (*Client, error) {
	if opts.Accounts == nil {
		return nil, errors.New("aws client requires an account repository")
	}
	if opts.Sessions == nil {
		opts.Sessions = NewSDKSession
	}
	if opts.DefaultRegion == "" {
		opts.DefaultRegion = DefaultRegion
	}
	if opts.ObjectSample <= 0 {
		opts.ObjectSample = DefaultObjectSample
	}
	if opts.BucketRPS <= 0 {
		opts.BucketRPS = DefaultBucketRPS
	}

	c := &Client{
		accounts:      opts.Accounts,
		secrets:       opts.Secrets,
		sessions:      opts.Sessions,
		defaultRegion: opts.DefaultRegion,
		objectSample:  opts.ObjectSample,
		limiter:       rate.NewLimiter(rate.Limit(opts.BucketRPS), 1),
		logger:        opts.Logger.With().Str("component", "aws").Logger(),
	}

	account, err := c.resolveAccount(ctx, id)
	if err != nil {
		c.logger.Warn().Err(err).Str("account", string(id)).Msg("account not configured, using ambient credentials")
		account = domain.Account{ID: id, Provider: domain.ProviderAWS, Region: c.defaultRegion}
	}

	bound, err := c.bind(ctx, account, false)
	if err != nil {
		return nil, err
	}
	c.current = bound

	return c, nil
}

func (c *Client) Provider() domain.ProviderID {
	return domain.ProviderAWS
}

func (c *Client) CurrentAccount() domain.AccountID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.account.ID
}

func (c *Client) snapshot() binding {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// AccountInfo re-derives the caller identity on every call.
func (c *Client) AccountInfo(ctx context.Context) domain.AccountInfo {
	bound := c.snapshot()
	info := domain.AccountInfo{
		AccountID:   bound.account.ID,
		AccountName: bound.account.DisplayName(),
		Region:      bound.session.Region,
		Provider:    domain.ProviderAWS,
		Description: bound.account.Description,
	}

	who, err := callerIdentity(ctx, bound.session.STS)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.ProviderAccountID = who.Account
	info.UserARN = who.ARN
	info.Verified = true

	return info
}

func (c *Client) ListAccounts(ctx context.Context) ([]domain.AccountEntry, error) {
	accounts, err := c.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	entries := make([]domain.AccountEntry, 0, len(accounts))
	for _, account := range accounts {
		if account.Provider != "" && account.Provider != domain.ProviderAWS {
			continue
		}
		entries = append(entries, account.Entry())
	}

	return entries, nil
}

// SwitchAccount resolves and binds id before swapping it in, so any
// failure leaves the current binding in place.
func (c *Client) SwitchAccount(ctx context.Context, id domain.AccountID) error {
	account, err := c.resolveAccount(ctx, id)
	if err != nil {
		return err
	}

	bound, err := c.bind(ctx, account, true)
	if err != nil {
		return fmt.Errorf("switch to account %q: %w", id, err)
	}

	c.mu.Lock()
	c.current = bound
	c.mu.Unlock()

	c.logger.Info().Str("account", string(id)).Bool("verified", bound.verified).Msg("switched account")
	return nil
}

func (c *Client) resolveAccount(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	account, err := c.accounts.GetByID(ctx, id)
	if err == nil {
		if account.Provider != "" && account.Provider != domain.ProviderAWS {
			return domain.Account{}, fmt.Errorf("account %q: %w %q", id, domain.ErrUnsupportedProvider, account.Provider)
		}
		return account, nil
	}
	if errors.Is(err, domain.ErrAccountNotFound) && id == domain.DefaultAccountID {
		return domain.Account{ID: id, Provider: domain.ProviderAWS, Region: c.defaultRegion}, nil
	}
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.Account{}, fmt.Errorf("account %q: %w", id, err)
	}

	return domain.Account{}, fmt.Errorf("load account %q: %w", id, err)
}

// bind builds and verifies a session for account. In strict mode an
// unreadable credential reference is an error; otherwise it degrades to the
// ambient chain like every other failure.
func (c *Client) bind(ctx context.Context, account domain.Account, strict bool) (binding, error) {
	region := account.Region
	if region == "" {
		region = c.defaultRegion
	}
	logger := c.logger.With().Str("account", string(account.ID)).Str("region", region).Logger()

	spec := SessionSpec{Region: region, Profile: account.Profile}
	creds, err := c.loadCredentials(ctx, account)
	if err != nil {
		if strict {
			return binding{}, err
		}
		logger.Warn().Err(err).Msg("credentials unavailable, using ambient credentials")
		spec.Profile = ""
	}
	if creds != nil {
		spec.Credentials = creds
		spec.Profile = ""
	}

	session, err := c.sessions(ctx, spec)
	if err == nil {
		verifyCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
		who, verr := callerIdentity(verifyCtx, session.STS)
		cancel()
		if verr == nil {
			logger.Info().Str("provider_account", who.Account).Msg("connected")
			return binding{account: account, session: session, verified: true}, nil
		}
		err = verr
	}
	logger.Warn().Err(err).Msg("session verification failed, falling back to ambient session")

	if !spec.Ambient() || session == nil {
		session, err = c.sessions(ctx, SessionSpec{Region: region})
		if err != nil {
			logger.Warn().Err(err).Msg("ambient session unavailable")
			session = bareSession(region)
		}
	}

	return binding{account: account, session: session, verified: false}, nil
}

func (c *Client) loadCredentials(ctx context.Context, account domain.Account) (*domain.Credentials, error) {
	if account.CredentialRef == "" {
		return nil, nil
	}
	if c.secrets == nil {
		return nil, fmt.Errorf("read credentials %q: no secret store configured", account.CredentialRef)
	}

	raw, err := c.secrets.Get(ctx, account.CredentialRef)
	if err != nil {
		return nil, fmt.Errorf("read credentials %q: %w", account.CredentialRef, err)
	}

	creds, err := domain.ParseCredentials(raw)
	if err != nil {
		return nil, fmt.Errorf("parse credentials %q: %w", account.CredentialRef, err)
	}

	return &creds, nil
}
