package yaml

import (
	"context"
	"fmt"

	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/bnema/cloudwhisper/internal/ports"
)

// InlineSecrets serves key pairs written inline in an accounts file. Keys
// outside the "yaml://" scheme are reported missing on Get and refused on
// Put and Delete, so a chain falls through to the next store.
type InlineSecrets struct {
	repo *Repository
}

var _ ports.SecretStore = (*InlineSecrets)(nil)

func (r *Repository) Secrets() *InlineSecrets {
	return &InlineSecrets{repo: r}
}

func (s *InlineSecrets) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, ok := parseInlineRef(key)
	if !ok {
		return "", fmt.Errorf("yaml secret %q: %w", key, domain.ErrSecretNotFound)
	}

	s.repo.mu.RLock()
	defer s.repo.mu.RUnlock()

	file, err := s.repo.read()
	if err != nil {
		return "", err
	}

	entry, found := file.Accounts[string(id)]
	if !found || !entry.hasInlineKeys() {
		return "", fmt.Errorf("yaml secret %q: %w", key, domain.ErrSecretNotFound)
	}

	return domain.Credentials{
		AccessKeyID:     entry.AccessKey,
		SecretAccessKey: entry.SecretKey,
		SessionToken:    entry.SessionToken,
	}.Encode()
}

func (s *InlineSecrets) Put(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id, ok := parseInlineRef(key)
	if !ok {
		return fmt.Errorf("put %q: %w", key, errForeignKey)
	}

	creds, err := domain.ParseCredentials(value)
	if err != nil {
		return err
	}

	return s.update(id, false, func(entry *accountSchema) {
		entry.AccessKey = creds.AccessKeyID
		entry.SecretKey = creds.SecretAccessKey
		entry.SessionToken = creds.SessionToken
	})
}

func (s *InlineSecrets) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id, ok := parseInlineRef(key)
	if !ok {
		return fmt.Errorf("delete %q: %w", key, errForeignKey)
	}

	return s.update(id, true, func(entry *accountSchema) {
		entry.AccessKey = ""
		entry.SecretKey = ""
		entry.SessionToken = ""
	})
}

func (s *InlineSecrets) update(id domain.AccountID, missingOK bool, mutate func(entry *accountSchema)) error {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()

	file, err := s.repo.read()
	if err != nil {
		return err
	}

	entry, found := file.Accounts[string(id)]
	if !found {
		if missingOK {
			return nil
		}
		return fmt.Errorf("inline secret for %q: %w", id, domain.ErrAccountNotFound)
	}
	mutate(&entry)
	file.Accounts[string(id)] = entry

	return s.repo.write(file)
}
