package services

import (
	"context"
	"errors"
	"strings"

	"points/internal/ledger"
	"points/internal/store"
	"points/internal/validator"
)

type AccountLookup interface {
	GetByID(ctx context.Context, accountID string) (store.Account, error)
	GetByEmail(ctx context.Context, email string) (store.Account, error)
	GetByCPF(ctx context.Context, cpf string) (store.Account, error)
}

// Directory exposes the account store to the ledger engine.
type Directory struct {
	accounts AccountLookup
}

func NewDirectory(accounts AccountLookup) *Directory {
	return &Directory{accounts: accounts}
}

// ResolveAccount finds an account by e-mail when key contains "@" and by CPF
// otherwise.
func (d *Directory) ResolveAccount(ctx context.Context, key string) (ledger.Account, error) {
	var (
		account store.Account
		err     error
	)
	if strings.Contains(key, "@") {
		account, err = d.accounts.GetByEmail(ctx, validator.NormalizeEmail(key))
	} else {
		if validator.ValidateCPF(key) != nil {
			return ledger.Account{}, ledger.ErrAccountNotFound
		}
		account, err = d.accounts.GetByCPF(ctx, key)
	}
	return toLedgerAccount(account, err)
}

func (d *Directory) AccountByID(ctx context.Context, accountID string) (ledger.Account, error) {
	return toLedgerAccount(d.accounts.GetByID(ctx, accountID))
}

func toLedgerAccount(account store.Account, err error) (ledger.Account, error) {
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ledger.Account{}, ledger.ErrAccountNotFound
		}
		return ledger.Account{}, err
	}
	return account.LedgerAccount(), nil
}
