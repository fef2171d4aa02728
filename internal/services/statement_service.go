package services

import (
	"context"
	"iter"
	"time"

	"points/internal/ledger"
	"points/internal/store"
)

type StatementReader interface {
	Statement(ctx context.Context, accountID string, pool ledger.Pool) iter.Seq2[ledger.Transaction, error]
}

type CounterpartyStore interface {
	Counterparties(ctx context.Context, accountIDs []string) (map[string]store.Counterparty, error)
}

type StatementRecord struct {
	ID               string        `json:"id"`
	OperationID      string        `json:"operation_id"`
	Type             ledger.TxType `json:"type"`
	Pool             ledger.Pool   `json:"pool"`
	Amount           int64         `json:"amount"`
	CounterpartyCPF  string        `json:"counterparty_cpf,omitempty"`
	CounterpartyName string        `json:"counterparty_name,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

type StatementService struct {
	reader         StatementReader
	counterparties CounterpartyStore
}

func NewStatementService(reader StatementReader, counterparties CounterpartyStore) *StatementService {
	return &StatementService{reader: reader, counterparties: counterparties}
}

// Records reads one pool of an account's statement and attaches the public
// identity of each counterparty.
func (s *StatementService) Records(ctx context.Context, accountID string, pool ledger.Pool) ([]StatementRecord, error) {
	records := make([]StatementRecord, 0)
	var counterpartyOf []string
	var lookup []string
	seen := make(map[string]struct{})
	for entry, err := range s.reader.Statement(ctx, accountID, pool) {
		if err != nil {
			return nil, err
		}
		records = append(records, StatementRecord{
			ID:          entry.ID,
			OperationID: entry.OperationID,
			Type:        entry.Type,
			Pool:        entry.Pool,
			Amount:      entry.Amount,
			CreatedAt:   entry.CreatedAt,
		})
		counterpartyID := ""
		if entry.CounterpartyID != nil {
			counterpartyID = *entry.CounterpartyID
			if _, ok := seen[counterpartyID]; !ok {
				seen[counterpartyID] = struct{}{}
				lookup = append(lookup, counterpartyID)
			}
		}
		counterpartyOf = append(counterpartyOf, counterpartyID)
	}
	if len(lookup) == 0 {
		return records, nil
	}
	parties, err := s.counterparties.Counterparties(ctx, lookup)
	if err != nil {
		return nil, err
	}
	for i, counterpartyID := range counterpartyOf {
		if party, ok := parties[counterpartyID]; ok {
			records[i].CounterpartyCPF = party.CPF
			records[i].CounterpartyName = party.FullName
		}
	}
	return records, nil
}
