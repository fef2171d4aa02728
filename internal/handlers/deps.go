package handlers

import (
	"context"

	"points/internal/ledger"
	"points/internal/services"
	"points/internal/store"
)

type AccountService interface {
	Register(ctx context.Context, req services.RegisterRequest) (services.Registration, error)
	Confirm(ctx context.Context, token string) error
	Login(ctx context.Context, email, password string) (string, error)
	Authenticate(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, accountID, password string) error
}

type Ledger interface {
	GetBalance(ctx context.Context, accountID string) (ledger.Balance, error)
	Deposit(ctx context.Context, accountID string, amount int64) (ledger.Transaction, error)
	Transfer(ctx context.Context, senderID, recipientCPF string, amount int64) (ledger.TransferReceipt, error)
}

type StatementService interface {
	Records(ctx context.Context, accountID string, pool ledger.Pool) ([]services.StatementRecord, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, accountID string) (bool, error)
}

type AuditStore interface {
	List(ctx context.Context, limit, offset int) ([]store.AuditEntry, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context) ([]store.ReconcileRow, error)
}
