package ledger

import (
	"context"
	"sync"
	"time"
)

const DefaultLockWait = 2 * time.Second

// AccountLocks hands out one single-slot lock per account id. Callers pass ids
// already sorted with OrderedIDs.
type AccountLocks struct {
	wait  time.Duration
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewAccountLocks(wait time.Duration) *AccountLocks {
	if wait <= 0 {
		wait = DefaultLockWait
	}
	return &AccountLocks{
		wait:  wait,
		slots: make(map[string]chan struct{}),
	}
}

// Acquire takes the locks in the given order, giving up with ErrContended once
// the wait has elapsed. The returned func releases them in reverse order.
func (l *AccountLocks) Acquire(ctx context.Context, ordered []string) (func(), error) {
	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	held := make([]chan struct{}, 0, len(ordered))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}
	for _, id := range ordered {
		slot := l.slotFor(id)
		select {
		case slot <- struct{}{}:
			held = append(held, slot)
		case <-timer.C:
			release()
			return nil, ErrContended
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}

func (l *AccountLocks) slotFor(accountID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[accountID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[accountID] = slot
	}
	return slot
}
