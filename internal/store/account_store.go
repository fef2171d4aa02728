package store

import (
	"context"
	"errors"
	"time"

	"points/internal/db"
	"points/internal/ledger"

	"github.com/lib/pq"
)

var (
	ErrDuplicateCPF   = errors.New("cpf already registered")
	ErrDuplicateEmail = errors.New("email already registered")
)

type AccountStore struct {
	db DB
}

type Account struct {
	ID           string               `db:"id"`
	CPF          string               `db:"cpf"`
	FullName     string               `db:"full_name"`
	Email        string               `db:"email"`
	PasswordHash string               `db:"password_hash"`
	Status       ledger.AccountStatus `db:"status"`
	CreatedAt    time.Time            `db:"created_at"`
	ConfirmedAt  *time.Time           `db:"confirmed_at"`
	DeletedAt    *time.Time           `db:"deleted_at"`
}

func (a Account) LedgerAccount() ledger.Account {
	return ledger.Account{ID: a.ID, CPF: a.CPF, Status: a.Status}
}

const accountColumns = `id, cpf, full_name, email, password_hash, status, created_at, confirmed_at, deleted_at`

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

// Create inserts an unconfirmed account. Unique violations on cpf or email
// come back as ErrDuplicateCPF or ErrDuplicateEmail.
func (s *AccountStore) Create(ctx context.Context, tx Execer, account Account) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (id, cpf, full_name, email, password_hash, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, account.ID, account.CPF, account.FullName, account.Email, account.PasswordHash, ledger.StatusUnconfirmed)
	if constraint, ok := db.UniqueViolation(err); ok {
		switch constraint {
		case "accounts_cpf_key":
			return ErrDuplicateCPF
		case "accounts_email_key":
			return ErrDuplicateEmail
		}
	}
	return err
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (Account, error) {
	return s.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	return s.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

func (s *AccountStore) GetByCPF(ctx context.Context, cpf string) (Account, error) {
	return s.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE cpf = $1`, cpf)
}

func (s *AccountStore) getOne(ctx context.Context, query string, args ...any) (Account, error) {
	var row Account
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		return Account{}, notFound(err)
	}
	return row, nil
}

// Activate moves an unconfirmed account to active. It reports false when the
// account was not unconfirmed.
func (s *AccountStore) Activate(ctx context.Context, tx Execer, accountID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET status = $1, confirmed_at = NOW()
		WHERE id = $2 AND status = $3
	`, ledger.StatusActive, accountID, ledger.StatusUnconfirmed)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// MarkDeleted soft-deletes an account. Rows are never removed so statements
// keep resolving their counterparties.
func (s *AccountStore) MarkDeleted(ctx context.Context, tx Execer, accountID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET status = $1, deleted_at = NOW()
		WHERE id = $2 AND status <> $1
	`, ledger.StatusDeleted, accountID)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

type Counterparty struct {
	ID       string `db:"id"`
	CPF      string `db:"cpf"`
	FullName string `db:"full_name"`
}

// Counterparties loads the public identity of the given accounts, deleted ones
// included.
func (s *AccountStore) Counterparties(ctx context.Context, accountIDs []string) (map[string]Counterparty, error) {
	result := make(map[string]Counterparty, len(accountIDs))
	if len(accountIDs) == 0 {
		return result, nil
	}
	var rows []Counterparty
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, cpf, full_name
		FROM accounts
		WHERE id = ANY($1::uuid[])
	`, pq.Array(accountIDs))
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.ID] = row
	}
	return result, nil
}
