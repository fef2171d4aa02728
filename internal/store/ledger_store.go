package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"points/internal/db"
	"points/internal/ledger"

	"github.com/jmoiron/sqlx"
)

// LedgerStore is the Postgres ledger.Book. Every Update runs in one
// serializable transaction that row-locks the touched balances in ascending
// account id order. Within one process the same accounts are also held in
// AccountLocks until the commit hooks have run, so notifications for an
// account leave in commit order.
type LedgerStore struct {
	db       DB
	txRunner db.TxRunner
	lockWait time.Duration
	locks    *ledger.AccountLocks
}

func NewLedgerStore(database DB, txRunner db.TxRunner, lockWait time.Duration) *LedgerStore {
	if lockWait <= 0 {
		lockWait = ledger.DefaultLockWait
	}
	return &LedgerStore{
		db:       database,
		txRunner: txRunner,
		lockWait: lockWait,
		locks:    ledger.NewAccountLocks(lockWait),
	}
}

type balanceRow struct {
	Normal    int64 `db:"normal"`
	PiggyBank int64 `db:"piggy_bank"`
}

type transactionRow struct {
	Seq            int64     `db:"seq"`
	ID             string    `db:"id"`
	OperationID    string    `db:"operation_id"`
	AccountID      string    `db:"account_id"`
	CounterpartyID *string   `db:"counterparty_id"`
	Pool           string    `db:"pool"`
	Type           string    `db:"type"`
	Amount         int64     `db:"amount"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r transactionRow) transaction() ledger.Transaction {
	return ledger.Transaction{
		ID:             r.ID,
		Seq:            r.Seq,
		OperationID:    r.OperationID,
		AccountID:      r.AccountID,
		CounterpartyID: r.CounterpartyID,
		Pool:           ledger.Pool(r.Pool),
		Type:           ledger.TxType(r.Type),
		Amount:         r.Amount,
		CreatedAt:      r.CreatedAt,
	}
}

func (s *LedgerStore) Update(ctx context.Context, accountIDs []string, fn func(ledger.Batch) error) error {
	ordered := ledger.OrderedIDs(accountIDs)
	release, err := s.locks.Acquire(ctx, ordered)
	if err != nil {
		return err
	}
	defer release()

	var committed *sqlBatch
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		batch, err := s.apply(ctx, tx, ordered, fn)
		committed = batch
		return err
	})
	if err != nil {
		return contendedErr(err)
	}
	if committed != nil {
		committed.runCommitHooks()
	}
	return nil
}

// contendedErr turns lock timeouts and serialization failures that outlived
// the transaction retries into ledger.ErrContended.
func contendedErr(err error) error {
	if db.IsLockTimeout(err) || errors.Is(err, db.ErrRetryLimit) || db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %w", ledger.ErrContended, err)
	}
	return err
}

func (s *LedgerStore) apply(ctx context.Context, tx Tx, ordered []string, fn func(ledger.Batch) error) (*sqlBatch, error) {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`SET LOCAL lock_timeout = %d`, s.lockWait.Milliseconds())); err != nil {
		return nil, err
	}
	batch := newSQLBatch(ordered)
	for _, id := range ordered {
		var row balanceRow
		err := tx.GetContext(ctx, &row, `
			SELECT normal, piggy_bank
			FROM balances
			WHERE account_id = $1
			FOR UPDATE
		`, id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		batch.balances[id] = ledger.Balance{Normal: row.Normal, PiggyBank: row.PiggyBank}
	}
	if err := fn(batch); err != nil {
		return nil, err
	}
	if err := batch.flush(ctx, tx, ordered); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *LedgerStore) Balance(ctx context.Context, accountID string) (ledger.Balance, error) {
	var row balanceRow
	err := s.db.GetContext(ctx, &row, `
		SELECT normal, piggy_bank
		FROM balances
		WHERE account_id = $1
	`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Balance{}, ledger.ErrBalanceNotFound
		}
		return ledger.Balance{}, err
	}
	return ledger.Balance{Normal: row.Normal, PiggyBank: row.PiggyBank}, nil
}

func (s *LedgerStore) Entries(ctx context.Context, accountID string, pool ledger.Pool, afterSeq int64, limit int) ([]ledger.Transaction, error) {
	var rows []transactionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT seq, id, operation_id, account_id, counterparty_id, pool, type, amount, created_at
		FROM ledger_transactions
		WHERE account_id = $1 AND pool = $2 AND seq > $3
		ORDER BY seq
		LIMIT $4
	`, accountID, string(pool), afterSeq, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]ledger.Transaction, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.transaction())
	}
	return entries, nil
}

type sqlBatch struct {
	allowed  map[string]struct{}
	balances map[string]ledger.Balance
	created  map[string]bool
	dirty    map[string]bool
	appended []ledger.Transaction
	hooks    []func()
}

func newSQLBatch(ordered []string) *sqlBatch {
	batch := &sqlBatch{
		allowed:  make(map[string]struct{}, len(ordered)),
		balances: make(map[string]ledger.Balance, len(ordered)),
		created:  make(map[string]bool),
		dirty:    make(map[string]bool),
	}
	for _, id := range ordered {
		batch.allowed[id] = struct{}{}
	}
	return batch
}

func (b *sqlBatch) check(accountID string) error {
	if _, ok := b.allowed[accountID]; !ok {
		return fmt.Errorf("account %s is not locked by this batch", accountID)
	}
	return nil
}

func (b *sqlBatch) Balance(accountID string) (ledger.Balance, error) {
	if err := b.check(accountID); err != nil {
		return ledger.Balance{}, err
	}
	balance, ok := b.balances[accountID]
	if !ok {
		return ledger.Balance{}, ledger.ErrBalanceNotFound
	}
	return balance, nil
}

func (b *sqlBatch) Create(accountID string, balance ledger.Balance) error {
	if err := b.check(accountID); err != nil {
		return err
	}
	if _, ok := b.balances[accountID]; ok {
		return ledger.ErrAlreadyExists
	}
	b.balances[accountID] = balance
	b.created[accountID] = true
	return nil
}

func (b *sqlBatch) Put(accountID string, balance ledger.Balance) error {
	if err := b.check(accountID); err != nil {
		return err
	}
	if _, ok := b.balances[accountID]; !ok {
		return ledger.ErrBalanceNotFound
	}
	b.balances[accountID] = balance
	b.dirty[accountID] = true
	return nil
}

func (b *sqlBatch) Append(tx ledger.Transaction) error {
	if err := b.check(tx.AccountID); err != nil {
		return err
	}
	b.appended = append(b.appended, tx)
	return nil
}

func (b *sqlBatch) OnCommit(fn func()) {
	b.hooks = append(b.hooks, fn)
}

func (b *sqlBatch) runCommitHooks() {
	for _, fn := range b.hooks {
		fn()
	}
}

func (b *sqlBatch) flush(ctx context.Context, tx Execer, ordered []string) error {
	for _, id := range ordered {
		balance := b.balances[id]
		switch {
		case b.created[id]:
			res, err := tx.ExecContext(ctx, `
				INSERT INTO balances (account_id, normal, piggy_bank)
				VALUES ($1, $2, $3)
				ON CONFLICT (account_id) DO NOTHING
			`, id, balance.Normal, balance.PiggyBank)
			if err != nil {
				return err
			}
			rows, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if rows == 0 {
				return ledger.ErrAlreadyExists
			}
		case b.dirty[id]:
			if _, err := tx.ExecContext(ctx, `
				UPDATE balances
				SET normal = $1, piggy_bank = $2, updated_at = NOW()
				WHERE account_id = $3
			`, balance.Normal, balance.PiggyBank, id); err != nil {
				return err
			}
		}
	}
	for _, entry := range b.appended {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_transactions (id, operation_id, account_id, counterparty_id, pool, type, amount, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, entry.ID, entry.OperationID, entry.AccountID, entry.CounterpartyID, string(entry.Pool), string(entry.Type), entry.Amount, entry.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

type ReconcileRow struct {
	AccountID   string               `db:"account_id" json:"account_id"`
	CPF         string               `db:"cpf" json:"cpf"`
	Status      ledger.AccountStatus `db:"status" json:"status"`
	Normal      int64                `db:"normal" json:"normal_balance"`
	PiggyBank   int64                `db:"piggy_bank" json:"piggy_bank_balance"`
	TransferIn  int64                `db:"transfer_in" json:"transfer_in"`
	TransferOut int64                `db:"transfer_out" json:"transfer_out"`
	Deposits    int64                `db:"deposits" json:"deposits"`
	Expected    ledger.Balance       `db:"-" json:"expected"`
	Consistent  bool                 `db:"-" json:"consistent"`
}

// Reconcile recomputes every balance from the signup bonus and the
// transaction log and compares it with the stored balance.
func (s *LedgerStore) Reconcile(ctx context.Context) ([]ReconcileRow, error) {
	var rows []ReconcileRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id AS account_id,
		       a.cpf,
		       a.status,
		       b.normal,
		       b.piggy_bank,
		       COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'transfer_in'), 0) AS transfer_in,
		       COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'transfer_out'), 0) AS transfer_out,
		       COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'deposit'), 0) AS deposits
		FROM accounts a
		JOIN balances b ON b.account_id = a.id
		LEFT JOIN ledger_transactions t ON t.account_id = a.id
		GROUP BY a.id, a.cpf, a.status, b.normal, b.piggy_bank, a.created_at
		ORDER BY a.created_at
	`)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		row := &rows[i]
		row.Expected = ledger.Replay(row.TransferIn, row.TransferOut, row.Deposits)
		row.Consistent = row.Expected == ledger.Balance{Normal: row.Normal, PiggyBank: row.PiggyBank}
	}
	return rows, nil
}
