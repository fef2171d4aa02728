package store

import (
	"context"
	"database/sql"
	"errors"
)

type AdminStore struct {
	db DB
}

func NewAdminStore(db DB) *AdminStore {
	return &AdminStore{db: db}
}

func (s *AdminStore) IsAdmin(ctx context.Context, accountID string) (bool, error) {
	var id string
	err := s.db.GetContext(ctx, &id, `
		SELECT account_id
		FROM admins
		WHERE account_id = $1
	`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *AdminStore) Grant(ctx context.Context, tx Execer, accountID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admins (account_id)
		VALUES ($1)
		ON CONFLICT DO NOTHING
	`, accountID)
	return err
}
