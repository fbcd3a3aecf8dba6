package application

import (
	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/bnema/cloudwhisper/internal/ports"
)

type AddAccountCommand struct {
	ID          domain.AccountID
	Name        string
	Region      string
	Profile     string
	Description string
	// Credentials, when set, are stored under the account's credential
	// reference, replacing any previous key pair.
	Credentials *domain.Credentials
}

type RemoveAccountCommand struct {
	ID domain.AccountID
}

type ImportAccountsCommand struct {
	Source ports.AccountRepository
	// Secrets resolves the credential references found in Source.
	Secrets   ports.SecretStore
	Overwrite bool
}

// NamedKey is one analysis backend credential to validate.
type NamedKey struct {
	Name  string
	Value string
}
