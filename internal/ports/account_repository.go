package ports

import (
	"context"

	"github.com/bnema/cloudwhisper/internal/domain"
)

type AccountRepository interface {
	GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
	Save(ctx context.Context, account domain.Account) error
	Delete(ctx context.Context, id domain.AccountID) error
}

// AccountStore is the whole-mapping view of the account store used by
// import and by the broker when it reloads the configured accounts.
type AccountStore interface {
	AccountRepository
	Load(ctx context.Context) (domain.AccountSet, error)
	Replace(ctx context.Context, accounts domain.AccountSet) error
}
