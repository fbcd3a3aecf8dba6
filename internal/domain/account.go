package domain

import (
	"fmt"
	"sort"
	"strings"
)

type AccountID string

// DefaultAccountID names the account used when nothing else is selected.
const DefaultAccountID AccountID = "default"

type Account struct {
	ID       AccountID
	Name     string
	Provider ProviderID
	Region   string
	// CredentialRef points to a secret-store entry holding the key pair,
	// typically in "aws://<account>/credentials" form.
	CredentialRef string
	// Profile names a shared-config profile used when no key pair is stored.
	Profile     string
	Description string
}

func (a Account) DisplayName() string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}

	return string(a.ID)
}

func (a Account) Validate() error {
	if strings.TrimSpace(string(a.ID)) == "" {
		return fmt.Errorf("id is required")
	}
	if a.Provider != "" && a.Provider != ProviderAWS {
		return fmt.Errorf("%w %q", ErrUnsupportedProvider, a.Provider)
	}

	return nil
}

// AccountSet is the keyed mapping persisted by an account store.
type AccountSet map[AccountID]Account

func NewAccountSet(accounts []Account) AccountSet {
	set := make(AccountSet, len(accounts))
	for _, account := range accounts {
		set[account.ID] = account
	}

	return set
}

// Sorted returns the accounts ordered by id.
func (s AccountSet) Sorted() []Account {
	accounts := make([]Account, 0, len(s))
	for _, account := range s {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].ID < accounts[j].ID
	})

	return accounts
}

// AccountInfo is the live view of the active account, re-derived from the
// provider on every request.
type AccountInfo struct {
	AccountID         AccountID  `json:"account_id"`
	AccountName       string     `json:"account_name"`
	Region            string     `json:"region"`
	ProviderAccountID string     `json:"provider_account_id,omitempty"`
	UserARN           string     `json:"user_arn,omitempty"`
	Provider          ProviderID `json:"provider"`
	Description       string     `json:"description"`
	Verified          bool       `json:"verified"`
	Error             string     `json:"error,omitempty"`
}

// AccountEntry is the catalog form of a configured account.
type AccountEntry struct {
	ID          AccountID `json:"id"`
	Name        string    `json:"name"`
	Region      string    `json:"region"`
	Description string    `json:"description"`
}

func (a Account) Entry() AccountEntry {
	region := a.Region
	if region == "" {
		region = "Unknown"
	}

	return AccountEntry{
		ID:          a.ID,
		Name:        a.DisplayName(),
		Region:      region,
		Description: a.Description,
	}
}
