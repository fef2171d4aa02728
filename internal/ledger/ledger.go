// Package ledger owns point balances and the append-only transaction history.
//
// Every account holds two pools: the normal pool, which is spendable through
// transfers, and the piggy bank, which is funded only by deposits from the same
// account's normal pool. Mutations run through a Book, which serializes access
// per account and commits all writes of an operation or none of them.
package ledger

import (
	"context"
	"errors"
	"time"
)

// SignupBonus is credited to the normal pool when a balance is created.
const SignupBonus int64 = 100

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrAccountNotActive  = errors.New("account not active")
	ErrInvalidOperation  = errors.New("invalid operation")
	ErrAlreadyExists     = errors.New("balance already exists")
	ErrBalanceNotFound   = errors.New("balance not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrContended         = errors.New("account is busy, try again")
	ErrUnbalanced        = errors.New("ledger operation does not conserve points")
)

type Pool string

const (
	PoolNormal    Pool = "normal"
	PoolPiggyBank Pool = "piggy_bank"
)

func (p Pool) Valid() bool {
	return p == PoolNormal || p == PoolPiggyBank
}

type TxType string

const (
	TypeTransferIn  TxType = "transfer_in"
	TypeTransferOut TxType = "transfer_out"
	TypeDeposit     TxType = "deposit"
)

type Balance struct {
	Normal    int64 `json:"normal_balance"`
	PiggyBank int64 `json:"piggy_bank_balance"`
}

func (b Balance) Total() int64 {
	return b.Normal + b.PiggyBank
}

func (b Balance) valid() bool {
	return b.Normal >= 0 && b.PiggyBank >= 0
}

// Replay derives the balance an account must hold given the totals of its
// statement entries.
func Replay(transferIn, transferOut, deposits int64) Balance {
	return Balance{
		Normal:    SignupBonus + transferIn - transferOut - deposits,
		PiggyBank: deposits,
	}
}

// Transaction is one immutable statement entry. Seq is assigned by the book at
// commit time and increases with commit order for any single account.
type Transaction struct {
	ID             string
	Seq            int64
	OperationID    string
	AccountID      string
	CounterpartyID *string
	Pool           Pool
	Type           TxType
	Amount         int64
	CreatedAt      time.Time
}

type AccountStatus string

const (
	StatusUnconfirmed AccountStatus = "unconfirmed"
	StatusActive      AccountStatus = "active"
	StatusDeleted     AccountStatus = "deleted"
)

// Account is the ledger's view of an identity record.
type Account struct {
	ID     string
	CPF    string
	Status AccountStatus
}

func (a Account) Active() bool {
	return a.Status == StatusActive
}

// Directory resolves identities owned by the account store.
type Directory interface {
	// ResolveAccount looks an account up by CPF or e-mail. It returns
	// ErrAccountNotFound when nothing matches.
	ResolveAccount(ctx context.Context, key string) (Account, error)
	AccountByID(ctx context.Context, accountID string) (Account, error)
}

// Book is the storage behind the engine.
type Book interface {
	// Update locks the given accounts in ascending id order, runs fn and
	// commits the batch atomically when fn returns nil. A lock that cannot be
	// acquired within the book's bounded wait yields ErrContended.
	Update(ctx context.Context, accountIDs []string, fn func(Batch) error) error
	// Balance returns the last committed balance of the account.
	Balance(ctx context.Context, accountID string) (Balance, error)
	// Entries returns up to limit transactions of one pool with Seq > afterSeq,
	// in ascending Seq order.
	Entries(ctx context.Context, accountID string, pool Pool, afterSeq int64, limit int) ([]Transaction, error)
}

// Batch is the write set of one Update call. Only accounts passed to Update
// may be read or written.
type Batch interface {
	Balance(accountID string) (Balance, error)
	Create(accountID string, balance Balance) error
	Put(accountID string, balance Balance) error
	Append(tx Transaction) error
	// OnCommit registers fn to run after the batch is committed and before
	// the account locks are released. It is not run when the update fails.
	OnCommit(fn func())
}

// Notifier is told about balances after they are committed. Calls for one
// account arrive in commit order and must not block.
type Notifier interface {
	BalanceChanged(accountID string, balance Balance)
}

type nopNotifier struct{}

func (nopNotifier) BalanceChanged(string, Balance) {}
