package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"points/internal/ids"

	"go.uber.org/zap"
)

const maxContendedAttempts = 3

type Engine struct {
	book      Book
	directory Directory
	notifier  Notifier
	log       *zap.Logger
	now       func() time.Time
	backoff   func(attempt int)
}

func NewEngine(book Book, directory Directory, notifier Notifier, logger *zap.Logger) *Engine {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		book:      book,
		directory: directory,
		notifier:  notifier,
		log:       logger,
		now:       func() time.Time { return time.Now().UTC() },
		backoff:   sleepWithBackoff,
	}
}

// CreateBalance initializes the account's balance with the signup bonus. It is
// called once, when the account becomes confirmed and active.
func (e *Engine) CreateBalance(ctx context.Context, accountID string) error {
	initial := Balance{Normal: SignupBonus}
	err := e.update(ctx, []string{accountID}, func(batch Batch) error {
		if err := batch.Create(accountID, initial); err != nil {
			return err
		}
		batch.OnCommit(func() { e.notifier.BalanceChanged(accountID, initial) })
		return nil
	})
	if err != nil {
		return err
	}
	e.log.Info("balance created", zap.String("account_id", accountID), zap.Int64("normal", initial.Normal))
	return nil
}

// Deposit moves amount from the normal pool to the piggy bank of one account.
func (e *Engine) Deposit(ctx context.Context, accountID string, amount int64) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	if _, err := e.activeAccount(ctx, accountID); err != nil {
		return Transaction{}, err
	}
	var entry Transaction
	var after Balance
	err := e.update(ctx, []string{accountID}, func(batch Batch) error {
		before, err := batch.Balance(accountID)
		if err != nil {
			return balanceErr(err)
		}
		if before.Normal < amount {
			return ErrInsufficientFunds
		}
		after = Balance{Normal: before.Normal - amount, PiggyBank: before.PiggyBank + amount}
		if err := ensureConserved([]Balance{before}, []Balance{after}); err != nil {
			return err
		}
		if err := batch.Put(accountID, after); err != nil {
			return err
		}
		entry = Transaction{
			ID:          ids.NewULID(),
			OperationID: ids.NewULID(),
			AccountID:   accountID,
			Pool:        PoolPiggyBank,
			Type:        TypeDeposit,
			Amount:      amount,
			CreatedAt:   e.now(),
		}
		if err := batch.Append(entry); err != nil {
			return err
		}
		balance := after
		batch.OnCommit(func() { e.notifier.BalanceChanged(accountID, balance) })
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	e.log.Info("deposit committed",
		zap.String("account_id", accountID),
		zap.Int64("amount", amount),
		zap.Int64("normal", after.Normal),
		zap.Int64("piggy_bank", after.PiggyBank),
	)
	return entry, nil
}

// TransferReceipt holds both statement entries written by a transfer.
type TransferReceipt struct {
	OperationID string
	Debit       Transaction
	Credit      Transaction
}

// Transfer moves amount from the sender's normal pool to the normal pool of
// the account registered under recipientCPF.
func (e *Engine) Transfer(ctx context.Context, senderID, recipientCPF string, amount int64) (TransferReceipt, error) {
	if amount <= 0 {
		return TransferReceipt{}, ErrInvalidAmount
	}
	sender, err := e.activeAccount(ctx, senderID)
	if err != nil {
		return TransferReceipt{}, err
	}
	if sender.CPF == recipientCPF {
		return TransferReceipt{}, ErrInvalidOperation
	}
	// Funds are checked before the recipient is resolved so an over-limit
	// request never reveals whether a CPF is registered.
	current, err := e.book.Balance(ctx, senderID)
	if err != nil {
		return TransferReceipt{}, balanceErr(err)
	}
	if current.Normal < amount {
		return TransferReceipt{}, ErrInsufficientFunds
	}
	recipient, err := e.directory.ResolveAccount(ctx, recipientCPF)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return TransferReceipt{}, ErrRecipientNotFound
		}
		return TransferReceipt{}, err
	}
	if !recipient.Active() {
		return TransferReceipt{}, ErrRecipientNotFound
	}
	if recipient.ID == sender.ID {
		return TransferReceipt{}, ErrInvalidOperation
	}

	var receipt TransferReceipt
	var senderAfter, recipientAfter Balance
	err = e.update(ctx, []string{senderID, recipient.ID}, func(batch Batch) error {
		senderBefore, err := batch.Balance(senderID)
		if err != nil {
			return balanceErr(err)
		}
		recipientBefore, err := batch.Balance(recipient.ID)
		if err != nil {
			if errors.Is(err, ErrBalanceNotFound) {
				return ErrRecipientNotFound
			}
			return err
		}
		if senderBefore.Normal < amount {
			return ErrInsufficientFunds
		}
		senderAfter = Balance{Normal: senderBefore.Normal - amount, PiggyBank: senderBefore.PiggyBank}
		recipientAfter = Balance{Normal: recipientBefore.Normal + amount, PiggyBank: recipientBefore.PiggyBank}
		if err := ensureConserved([]Balance{senderBefore, recipientBefore}, []Balance{senderAfter, recipientAfter}); err != nil {
			return err
		}
		if err := batch.Put(senderID, senderAfter); err != nil {
			return err
		}
		if err := batch.Put(recipient.ID, recipientAfter); err != nil {
			return err
		}
		operationID := ids.NewULID()
		createdAt := e.now()
		recipientID := recipient.ID
		receipt = TransferReceipt{
			OperationID: operationID,
			Debit: Transaction{
				ID:             ids.NewULID(),
				OperationID:    operationID,
				AccountID:      senderID,
				CounterpartyID: &recipientID,
				Pool:           PoolNormal,
				Type:           TypeTransferOut,
				Amount:         amount,
				CreatedAt:      createdAt,
			},
			Credit: Transaction{
				ID:             ids.NewULID(),
				OperationID:    operationID,
				AccountID:      recipientID,
				CounterpartyID: &senderID,
				Pool:           PoolNormal,
				Type:           TypeTransferIn,
				Amount:         amount,
				CreatedAt:      createdAt,
			},
		}
		if err := batch.Append(receipt.Debit); err != nil {
			return err
		}
		if err := batch.Append(receipt.Credit); err != nil {
			return err
		}
		senderBalance, recipientBalance := senderAfter, recipientAfter
		batch.OnCommit(func() {
			e.notifier.BalanceChanged(senderID, senderBalance)
			e.notifier.BalanceChanged(recipientID, recipientBalance)
		})
		return nil
	})
	if err != nil {
		return TransferReceipt{}, err
	}
	e.log.Info("transfer committed",
		zap.String("operation_id", receipt.OperationID),
		zap.String("sender_id", senderID),
		zap.String("recipient_id", recipient.ID),
		zap.Int64("amount", amount),
	)
	return receipt, nil
}

// GetBalance returns the committed balance of an active account.
func (e *Engine) GetBalance(ctx context.Context, accountID string) (Balance, error) {
	if _, err := e.activeAccount(ctx, accountID); err != nil {
		return Balance{}, err
	}
	balance, err := e.book.Balance(ctx, accountID)
	if err != nil {
		return Balance{}, balanceErr(err)
	}
	return balance, nil
}

func (e *Engine) activeAccount(ctx context.Context, accountID string) (Account, error) {
	account, err := e.directory.AccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, ErrAccountNotActive
		}
		return Account{}, err
	}
	if !account.Active() {
		return Account{}, ErrAccountNotActive
	}
	return account, nil
}

// update runs one book update, retrying lock contention a bounded number of
// times before giving up with ErrContended.
func (e *Engine) update(ctx context.Context, accountIDs []string, fn func(Batch) error) error {
	for attempt := 1; ; attempt++ {
		err := e.book.Update(ctx, accountIDs, fn)
		if !errors.Is(err, ErrContended) {
			return err
		}
		if attempt >= maxContendedAttempts {
			e.log.Warn("ledger update contended", zap.Strings("account_ids", accountIDs), zap.Int("attempts", attempt))
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		e.backoff(attempt)
	}
}

// balanceErr treats a missing balance as an account that never became active.
func balanceErr(err error) error {
	if errors.Is(err, ErrBalanceNotFound) {
		return ErrAccountNotActive
	}
	return err
}

func ensureConserved(before, after []Balance) error {
	var sumBefore, sumAfter int64
	for _, b := range before {
		sumBefore += b.Total()
	}
	for _, b := range after {
		if !b.valid() {
			return fmt.Errorf("%w: negative pool %+v", ErrUnbalanced, b)
		}
		sumAfter += b.Total()
	}
	if sumBefore != sumAfter {
		return fmt.Errorf("%w: %d != %d", ErrUnbalanced, sumBefore, sumAfter)
	}
	return nil
}

func sleepWithBackoff(attempt int) {
	base := 20 * time.Millisecond
	backoff := time.Duration(attempt*attempt) * base
	jitter := time.Duration(rand.Int63n(int64(10 * time.Millisecond)))
	time.Sleep(backoff + jitter)
}
