package store

import (
	"context"
	"encoding/json"
	"time"

	"points/internal/ids"
)

type AuditStore struct {
	db DB
}

type auditRow struct {
	ID             string    `db:"id"`
	ActorAccountID *string   `db:"actor_account_id"`
	Action         string    `db:"action"`
	EntityType     string    `db:"entity_type"`
	EntityID       string    `db:"entity_id"`
	Data           string    `db:"data"`
	CreatedAt      time.Time `db:"created_at"`
}

type AuditEntry struct {
	ID             string          `json:"id"`
	ActorAccountID string          `json:"actor_account_id,omitempty"`
	Action         string          `json:"action"`
	EntityType     string          `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	Data           json.RawMessage `json:"data"`
	CreatedAt      time.Time       `json:"created_at"`
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

// Log records an action. An empty actorID is stored as NULL and data is any
// JSON-encodable value.
func (s *AuditStore) Log(ctx context.Context, tx Execer, actorID, action, entityType, entityID string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_account_id, action, entity_type, entity_id, data)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ids.NewULID(), nullableString(actorID), action, entityType, entityID, string(payload))
	return err
}

func (s *AuditStore) List(ctx context.Context, limit, offset int) ([]AuditEntry, error) {
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_account_id, action, entity_type, entity_id, data::text AS data, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	logs := make([]AuditEntry, 0, len(rows))
	for _, row := range rows {
		if row.Data == "" {
			row.Data = "{}"
		}
		logs = append(logs, AuditEntry{
			ID:             row.ID,
			ActorAccountID: derefStringPtr(row.ActorAccountID),
			Action:         row.Action,
			EntityType:     row.EntityType,
			EntityID:       row.EntityID,
			Data:           json.RawMessage(row.Data),
			CreatedAt:      row.CreatedAt,
		})
	}
	return logs, nil
}
