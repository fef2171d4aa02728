package ledger

import (
	"context"
	"iter"
)

const statementPageSize = 100

// Statement returns the transactions of one pool of an account in commit
// order. Pages are fetched lazily while the sequence is ranged over, and every
// new range starts again from the first entry, so a second pass sees the same
// prefix followed by anything committed in between. Statements stay readable
// after the account is deleted.
func (e *Engine) Statement(ctx context.Context, accountID string, pool Pool) iter.Seq2[Transaction, error] {
	return func(yield func(Transaction, error) bool) {
		if !pool.Valid() {
			yield(Transaction{}, ErrInvalidOperation)
			return
		}
		var after int64
		for {
			page, err := e.book.Entries(ctx, accountID, pool, after, statementPageSize)
			if err != nil {
				yield(Transaction{}, err)
				return
			}
			for _, entry := range page {
				if !yield(entry, nil) {
					return
				}
				after = entry.Seq
			}
			if len(page) < statementPageSize {
				return
			}
		}
	}
}

// CollectStatement reads a whole statement into memory.
func (e *Engine) CollectStatement(ctx context.Context, accountID string, pool Pool) ([]Transaction, error) {
	entries := make([]Transaction, 0)
	for entry, err := range e.Statement(ctx, accountID, pool) {
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
