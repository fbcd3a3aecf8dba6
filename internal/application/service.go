package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/cloudwhisper/internal/broker"
	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/bnema/cloudwhisper/internal/ports"
)

// Service manages the account store and the key pairs it references.
type Service struct {
	repo  ports.AccountRepository
	store ports.SecretStore
	clock ports.Clock
}

func NewService(repo ports.AccountRepository, store ports.SecretStore, clock ports.Clock) *Service {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Service{
		repo:  repo,
		store: store,
		clock: clock,
	}
}

func (s *Service) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	return domain.NewAccountSet(accounts).Sorted(), nil
}

// AddAccount creates or updates an account. New credentials are written
// before the account is saved and rolled back if the save fails; a
// credential reference it replaces is deleted afterwards.
func (s *Service) AddAccount(ctx context.Context, cmd AddAccountCommand) (domain.Account, error) {
	account := domain.Account{
		ID:          domain.AccountID(strings.TrimSpace(string(cmd.ID))),
		Name:        strings.TrimSpace(cmd.Name),
		Provider:    domain.ProviderAWS,
		Region:      strings.TrimSpace(cmd.Region),
		Profile:     strings.TrimSpace(cmd.Profile),
		Description: strings.TrimSpace(cmd.Description),
	}
	if err := account.Validate(); err != nil {
		return domain.Account{}, fmt.Errorf("validate account: %w", err)
	}

	existing, err := s.repo.GetByID(ctx, account.ID)
	exists := err == nil
	if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		return domain.Account{}, fmt.Errorf("get account by id: %w", err)
	}
	if exists {
		account.CredentialRef = existing.CredentialRef
		if account.Name == "" {
			account.Name = existing.Name
		}
	}

	if cmd.Credentials == nil {
		if err := s.repo.Save(ctx, account); err != nil {
			return domain.Account{}, fmt.Errorf("save account: %w", err)
		}
		return account, nil
	}

	if err := cmd.Credentials.Validate(); err != nil {
		return domain.Account{}, err
	}
	encoded, err := cmd.Credentials.Encode()
	if err != nil {
		return domain.Account{}, err
	}

	ref := domain.CredentialRefFor(account.Provider, account.ID)
	restore, err := s.snapshotSecret(ctx, ref)
	if err != nil {
		return domain.Account{}, err
	}

	if err := s.store.Put(ctx, ref, encoded); err != nil {
		return domain.Account{}, fmt.Errorf("store account credentials: %w", err)
	}

	previousRef := account.CredentialRef
	account.CredentialRef = ref

	if err := s.repo.Save(ctx, account); err != nil {
		if rollbackErr := restore(ctx); rollbackErr != nil {
			return domain.Account{}, fmt.Errorf("save account and rollback stored credentials: %w", errors.Join(err, rollbackErr))
		}
		return domain.Account{}, fmt.Errorf("save account: %w", err)
	}

	if previousRef != "" && previousRef != ref {
		if err := s.store.Delete(ctx, previousRef); err != nil {
			var rollbackErr error
			if restoreErr := s.repo.Save(ctx, existing); restoreErr != nil {
				rollbackErr = errors.Join(rollbackErr, restoreErr)
			}
			if secretErr := restore(ctx); secretErr != nil {
				rollbackErr = errors.Join(rollbackErr, secretErr)
			}
			if rollbackErr != nil {
				return domain.Account{}, fmt.Errorf("delete previous credentials and rollback account update: %w", errors.Join(err, rollbackErr))
			}
			return domain.Account{}, fmt.Errorf("delete previous credentials: %w", err)
		}
	}

	return account, nil
}

// RemoveAccount deletes the account, then its credentials. If the secret
// cannot be deleted the account is saved back.
func (s *Service) RemoveAccount(ctx context.Context, cmd RemoveAccountCommand) error {
	account, err := s.repo.GetByID(ctx, cmd.ID)
	if err != nil {
		return fmt.Errorf("get account by id: %w", err)
	}

	if err := s.repo.Delete(ctx, account.ID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	if account.CredentialRef == "" {
		return nil
	}

	if err := s.store.Delete(ctx, account.CredentialRef); err != nil {
		if restoreErr := s.repo.Save(ctx, account); restoreErr != nil {
			return fmt.Errorf("delete account credentials and restore account: %w", errors.Join(err, restoreErr))
		}
		return fmt.Errorf("delete account credentials: %w", err)
	}

	return nil
}

// ImportAccounts copies every account of cmd.Source, moving inline or
// referenced key pairs into this service's secret store.
func (s *Service) ImportAccounts(ctx context.Context, cmd ImportAccountsCommand) (ImportReport, error) {
	var report ImportReport

	accounts, err := cmd.Source.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list source accounts: %w", err)
	}

	for _, account := range domain.NewAccountSet(accounts).Sorted() {
		if !cmd.Overwrite {
			_, err := s.repo.GetByID(ctx, account.ID)
			if err == nil {
				report.Skipped = append(report.Skipped, account.ID)
				continue
			}
			if !errors.Is(err, domain.ErrAccountNotFound) {
				return report, fmt.Errorf("get account by id: %w", err)
			}
		}

		creds, err := s.sourceCredentials(ctx, cmd.Secrets, account)
		if err != nil {
			return report, fmt.Errorf("import %q: %w", account.ID, err)
		}

		if _, err := s.AddAccount(ctx, AddAccountCommand{
			ID:          account.ID,
			Name:        account.Name,
			Region:      account.Region,
			Profile:     account.Profile,
			Description: account.Description,
			Credentials: creds,
		}); err != nil {
			return report, fmt.Errorf("import %q: %w", account.ID, err)
		}
		report.Imported = append(report.Imported, account.ID)
	}

	return report, nil
}

// statusSource is the part of the orchestrator the status view reads.
type statusSource interface {
	State() domain.WorkerState
	BackendName() string
	CurrentProvider(ctx context.Context) (broker.CurrentProviderResult, error)
}

// GetStatus combines the broker's live view with the configured accounts.
// A broker failure is reported in Status.Error, not returned.
func (s *Service) GetStatus(ctx context.Context, source statusSource) (Status, error) {
	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		return Status{}, err
	}

	status := Status{
		Backend:   source.BackendName(),
		CheckedAt: s.clock.Now(),
		Accounts:  make([]domain.AccountEntry, 0, len(accounts)),
	}
	for _, account := range accounts {
		status.Accounts = append(status.Accounts, account.Entry())
	}

	current, err := source.CurrentProvider(ctx)
	if err != nil {
		status.Error = err.Error()
	} else {
		status.Provider = current.Provider
		status.Current = current.AccountInfo
	}
	status.Worker = source.State()

	return status, nil
}

// ValidateSetup reports problems that make the tool fall back to degraded
// behavior: unusable backend keys and accounts without usable credentials.
func (s *Service) ValidateSetup(ctx context.Context, keys []NamedKey, usable func(string) bool) ([]Finding, error) {
	var findings []Finding

	usableKeys := 0
	for _, key := range keys {
		switch {
		case strings.TrimSpace(key.Value) == "":
			findings = append(findings, Finding{Level: FindingWarn, Subject: key.Name, Message: "not set"})
		case !usable(key.Value):
			findings = append(findings, Finding{Level: FindingWarn, Subject: key.Name, Message: "looks like a placeholder"})
		default:
			usableKeys++
			findings = append(findings, Finding{Level: FindingOK, Subject: key.Name, Message: "configured"})
		}
	}
	if usableKeys == 0 {
		findings = append(findings, Finding{Level: FindingWarn, Subject: "analysis", Message: "no AI backend configured, answers use the built-in summary"})
	}

	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		return findings, err
	}
	if len(accounts) == 0 {
		findings = append(findings, Finding{Level: FindingWarn, Subject: "accounts", Message: "no accounts configured, ambient AWS credentials will be used"})
	}

	for _, account := range accounts {
		subject := "account " + string(account.ID)
		if account.CredentialRef == "" {
			message := "no stored key pair, ambient AWS credentials will be used"
			if account.Profile != "" {
				message = fmt.Sprintf("uses shared profile %q", account.Profile)
			}
			findings = append(findings, Finding{Level: FindingWarn, Subject: subject, Message: message})
			continue
		}

		raw, err := s.store.Get(ctx, account.CredentialRef)
		if err != nil {
			if ctx.Err() != nil {
				return findings, ctx.Err()
			}
			findings = append(findings, Finding{Level: FindingError, Subject: subject, Message: fmt.Sprintf("credentials unreadable: %v", err)})
			continue
		}
		if _, err := domain.ParseCredentials(raw); err != nil {
			findings = append(findings, Finding{Level: FindingError, Subject: subject, Message: err.Error()})
			continue
		}
		findings = append(findings, Finding{Level: FindingOK, Subject: subject, Message: "credentials present"})
	}

	return findings, nil
}

// snapshotSecret captures the value under ref so it can be put back.
func (s *Service) snapshotSecret(ctx context.Context, ref string) (func(context.Context) error, error) {
	previous, err := s.store.Get(ctx, ref)
	switch {
	case err == nil:
		return func(ctx context.Context) error { return s.store.Put(ctx, ref, previous) }, nil
	case errors.Is(err, domain.ErrSecretNotFound):
		return func(ctx context.Context) error { return s.store.Delete(ctx, ref) }, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		// Unreadable previous values are not restorable; rollback deletes.
		return func(ctx context.Context) error { return s.store.Delete(ctx, ref) }, nil
	}
}

func (s *Service) sourceCredentials(ctx context.Context, secrets ports.SecretStore, account domain.Account) (*domain.Credentials, error) {
	if account.CredentialRef == "" || secrets == nil {
		return nil, nil
	}

	raw, err := secrets.Get(ctx, account.CredentialRef)
	if err != nil {
		if errors.Is(err, domain.ErrSecretNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read source credentials: %w", err)
	}

	creds, err := domain.ParseCredentials(raw)
	if err != nil {
		return nil, err
	}

	return &creds, nil
}
