package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

type entryKey struct {
	accountID string
	pool      Pool
}

// MemoryBook keeps balances and transactions in process memory. Each account
// has a single-slot lock; committed state sits behind one RWMutex that is
// held only while a finished batch is applied or while a read copies data out.
type MemoryBook struct {
	locks *AccountLocks

	mu       sync.RWMutex
	seq      int64
	balances map[string]Balance
	entries  map[entryKey][]Transaction
}

func NewMemoryBook(lockWait time.Duration) *MemoryBook {
	return &MemoryBook{
		locks:    NewAccountLocks(lockWait),
		balances: make(map[string]Balance),
		entries:  make(map[entryKey][]Transaction),
	}
}

func (b *MemoryBook) Update(ctx context.Context, accountIDs []string, fn func(Batch) error) error {
	ordered := OrderedIDs(accountIDs)
	release, err := b.locks.Acquire(ctx, ordered)
	if err != nil {
		return err
	}
	defer release()

	batch := &memoryBatch{
		allowed:  make(map[string]struct{}, len(ordered)),
		balances: make(map[string]Balance, len(ordered)),
	}
	b.mu.RLock()
	for _, id := range ordered {
		batch.allowed[id] = struct{}{}
		if balance, ok := b.balances[id]; ok {
			batch.balances[id] = balance
		}
	}
	b.mu.RUnlock()

	if err := fn(batch); err != nil {
		return err
	}

	b.mu.Lock()
	for id, balance := range batch.balances {
		b.balances[id] = balance
	}
	for _, tx := range batch.appended {
		b.seq++
		tx.Seq = b.seq
		key := entryKey{accountID: tx.AccountID, pool: tx.Pool}
		b.entries[key] = append(b.entries[key], tx)
	}
	b.mu.Unlock()

	// Account locks are still held here.
	batch.runCommitHooks()
	return nil
}

func (b *MemoryBook) Balance(_ context.Context, accountID string) (Balance, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	balance, ok := b.balances[accountID]
	if !ok {
		return Balance{}, ErrBalanceNotFound
	}
	return balance, nil
}

func (b *MemoryBook) Entries(_ context.Context, accountID string, pool Pool, afterSeq int64, limit int) ([]Transaction, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	all := b.entries[entryKey{accountID: accountID, pool: pool}]
	start, _ := slices.BinarySearchFunc(all, afterSeq+1, func(tx Transaction, seq int64) int {
		switch {
		case tx.Seq < seq:
			return -1
		case tx.Seq > seq:
			return 1
		default:
			return 0
		}
	})
	end := len(all)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	page := make([]Transaction, end-start)
	copy(page, all[start:end])
	return page, nil
}

type memoryBatch struct {
	allowed  map[string]struct{}
	balances map[string]Balance
	appended []Transaction
	commitHooks
}

func (m *memoryBatch) check(accountID string) error {
	if _, ok := m.allowed[accountID]; !ok {
		return fmt.Errorf("account %s is not locked by this batch", accountID)
	}
	return nil
}

func (m *memoryBatch) Balance(accountID string) (Balance, error) {
	if err := m.check(accountID); err != nil {
		return Balance{}, err
	}
	balance, ok := m.balances[accountID]
	if !ok {
		return Balance{}, ErrBalanceNotFound
	}
	return balance, nil
}

func (m *memoryBatch) Create(accountID string, balance Balance) error {
	if err := m.check(accountID); err != nil {
		return err
	}
	if _, ok := m.balances[accountID]; ok {
		return ErrAlreadyExists
	}
	m.balances[accountID] = balance
	return nil
}

func (m *memoryBatch) Put(accountID string, balance Balance) error {
	if err := m.check(accountID); err != nil {
		return err
	}
	if _, ok := m.balances[accountID]; !ok {
		return ErrBalanceNotFound
	}
	m.balances[accountID] = balance
	return nil
}

func (m *memoryBatch) Append(tx Transaction) error {
	if err := m.check(tx.AccountID); err != nil {
		return err
	}
	m.appended = append(m.appended, tx)
	return nil
}

// commitHooks collects the OnCommit callbacks of a batch.
type commitHooks struct {
	hooks []func()
}

func (c *commitHooks) OnCommit(fn func()) {
	c.hooks = append(c.hooks, fn)
}

func (c *commitHooks) runCommitHooks() {
	for _, fn := range c.hooks {
		fn()
	}
}

// OrderedIDs returns the distinct ids in ascending order. Every book acquires
// account locks in this order.
func OrderedIDs(accountIDs []string) []string {
	ordered := slices.Clone(accountIDs)
	slices.Sort(ordered)
	return slices.Compact(ordered)
}
