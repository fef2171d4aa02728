package services

import (
	"context"
	"sync"
	"time"

	"points/internal/ledger"
	"points/internal/store"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

// fakeAccountStore keeps accounts in memory and enforces the same uniqueness
// rules as the accounts table.
type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[string]store.Account
	createFn func(account store.Account) error
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: make(map[string]store.Account)}
}

func (s *fakeAccountStore) Create(_ context.Context, _ store.Execer, account store.Account) error {
	if s.createFn != nil {
		if err := s.createFn(account); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.CPF == account.CPF {
			return store.ErrDuplicateCPF
		}
		if existing.Email == account.Email {
			return store.ErrDuplicateEmail
		}
	}
	account.Status = ledger.StatusUnconfirmed
	account.CreatedAt = time.Now()
	s.accounts[account.ID] = account
	return nil
}

func (s *fakeAccountStore) find(match func(store.Account) bool) (store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if match(account) {
			return account, nil
		}
	}
	return store.Account{}, store.ErrNotFound
}

func (s *fakeAccountStore) GetByID(_ context.Context, accountID string) (store.Account, error) {
	return s.find(func(a store.Account) bool { return a.ID == accountID })
}

func (s *fakeAccountStore) GetByEmail(_ context.Context, email string) (store.Account, error) {
	return s.find(func(a store.Account) bool { return a.Email == email })
}

func (s *fakeAccountStore) GetByCPF(_ context.Context, cpf string) (store.Account, error) {
	return s.find(func(a store.Account) bool { return a.CPF == cpf })
}

func (s *fakeAccountStore) setStatus(accountID string, from, to ledger.AccountStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok || account.Status != from {
		return false
	}
	account.Status = to
	s.accounts[accountID] = account
	return true
}

func (s *fakeAccountStore) Activate(_ context.Context, _ store.Execer, accountID string) (bool, error) {
	return s.setStatus(accountID, ledger.StatusUnconfirmed, ledger.StatusActive), nil
}

func (s *fakeAccountStore) MarkDeleted(_ context.Context, _ store.Execer, accountID string) (bool, error) {
	if s.setStatus(accountID, ledger.StatusActive, ledger.StatusDeleted) {
		return true, nil
	}
	return s.setStatus(accountID, ledger.StatusUnconfirmed, ledger.StatusDeleted), nil
}

func (s *fakeAccountStore) Counterparties(_ context.Context, accountIDs []string) (map[string]store.Counterparty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[string]store.Counterparty)
	for _, id := range accountIDs {
		if account, ok := s.accounts[id]; ok {
			result[id] = store.Counterparty{ID: id, CPF: account.CPF, FullName: account.FullName}
		}
	}
	return result, nil
}

type fakeConfirmationStore struct {
	mu     sync.Mutex
	tokens map[string]store.ConfirmationToken
}

func newFakeConfirmationStore() *fakeConfirmationStore {
	return &fakeConfirmationStore{tokens: make(map[string]store.ConfirmationToken)}
}

func (s *fakeConfirmationStore) Create(_ context.Context, _ store.Execer, token, accountID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = store.ConfirmationToken{Token: token, AccountID: accountID, ExpiresAt: expiresAt}
	return nil
}

func (s *fakeConfirmationStore) Get(_ context.Context, token string) (store.ConfirmationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tokens[token]
	if !ok {
		return store.ConfirmationToken{}, store.ErrNotFound
	}
	return row, nil
}

func (s *fakeConfirmationStore) Consume(_ context.Context, _ store.Execer, token string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tokens[token]
	if !ok || !row.Usable(now) {
		return false, nil
	}
	row.ConsumedAt = &now
	s.tokens[token] = row
	return true, nil
}

type stubAdminStore struct {
	granted []string
}

func (s *stubAdminStore) Grant(_ context.Context, _ store.Execer, accountID string) error {
	s.granted = append(s.granted, accountID)
	return nil
}

type stubAuditStore struct {
	mu      sync.Mutex
	actions []string
}

func (s *stubAuditStore) Log(_ context.Context, _ store.Execer, _, action, _, _ string, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, action)
	return nil
}

type stubBalanceCreator struct {
	createFn func(ctx context.Context, accountID string) error
}

func (s stubBalanceCreator) CreateBalance(ctx context.Context, accountID string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, accountID)
}
