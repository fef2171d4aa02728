package store

import (
	"context"
	"time"
)

type ConfirmationStore struct {
	db DB
}

type ConfirmationToken struct {
	Token      string     `db:"token"`
	AccountID  string     `db:"account_id"`
	ExpiresAt  time.Time  `db:"expires_at"`
	ConsumedAt *time.Time `db:"consumed_at"`
}

// Usable reports whether the token can still confirm its account at now.
func (t ConfirmationToken) Usable(now time.Time) bool {
	return t.ConsumedAt == nil && now.Before(t.ExpiresAt)
}

func NewConfirmationStore(db DB) *ConfirmationStore {
	return &ConfirmationStore{db: db}
}

func (s *ConfirmationStore) Create(ctx context.Context, tx Execer, token, accountID string, expiresAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO confirmation_tokens (token, account_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, accountID, expiresAt)
	return err
}

func (s *ConfirmationStore) Get(ctx context.Context, token string) (ConfirmationToken, error) {
	var row ConfirmationToken
	err := s.db.GetContext(ctx, &row, `
		SELECT token, account_id, expires_at, consumed_at
		FROM confirmation_tokens
		WHERE token = $1
	`, token)
	if err != nil {
		return ConfirmationToken{}, notFound(err)
	}
	return row, nil
}

// Consume marks the token used. Only one caller can win; the others get false.
func (s *ConfirmationStore) Consume(ctx context.Context, tx Execer, token string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE confirmation_tokens
		SET consumed_at = $2
		WHERE token = $1 AND consumed_at IS NULL AND expires_at > $2
	`, token, now)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}
