package services

import (
	"context"
	"errors"
	"slices"
	"time"

	"points/internal/auth"
	"points/internal/db"
	"points/internal/ids"
	"points/internal/ledger"
	"points/internal/store"
	"points/internal/validator"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var (
	ErrCPFTaken           = errors.New("cpf already registered")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrInvalidToken       = errors.New("invalid or expired confirmation token")
	ErrInvalidSession     = errors.New("invalid session")
)

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, account store.Account) error
	GetByID(ctx context.Context, accountID string) (store.Account, error)
	GetByEmail(ctx context.Context, email string) (store.Account, error)
	GetByCPF(ctx context.Context, cpf string) (store.Account, error)
	Activate(ctx context.Context, tx store.Execer, accountID string) (bool, error)
	MarkDeleted(ctx context.Context, tx store.Execer, accountID string) (bool, error)
}

type ConfirmationStore interface {
	Create(ctx context.Context, tx store.Execer, token, accountID string, expiresAt time.Time) error
	Get(ctx context.Context, token string) (store.ConfirmationToken, error)
	Consume(ctx context.Context, tx store.Execer, token string, now time.Time) (bool, error)
}

type AdminStore interface {
	Grant(ctx context.Context, tx store.Execer, accountID string) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data any) error
}

type BalanceCreator interface {
	CreateBalance(ctx context.Context, accountID string) error
}

type AccountConfig struct {
	JWTSecret       string
	TokenTTL        time.Duration
	ConfirmTokenTTL time.Duration
	AdminEmails     []string
}

type AccountService struct {
	txRunner      db.TxRunner
	accounts      AccountStore
	confirmations ConfirmationStore
	admins        AdminStore
	audit         AuditStore
	balances      BalanceCreator
	sessions      auth.SessionRegistry
	cfg           AccountConfig
	log           *zap.Logger
	now           func() time.Time
}

func NewAccountService(txRunner db.TxRunner, accounts AccountStore, confirmations ConfirmationStore, admins AdminStore, audit AuditStore, balances BalanceCreator, sessions auth.SessionRegistry, cfg AccountConfig, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		txRunner:      txRunner,
		accounts:      accounts,
		confirmations: confirmations,
		admins:        admins,
		audit:         audit,
		balances:      balances,
		sessions:      sessions,
		cfg:           cfg,
		log:           logger,
		now:           time.Now,
	}
}

type RegisterRequest struct {
	CPF             string
	FullName        string
	Email           string
	Password        string
	ConfirmPassword string
}

type Registration struct {
	AccountID    string
	ConfirmToken string
}

func (r RegisterRequest) validate() error {
	if err := validator.ValidateCPF(r.CPF); err != nil {
		return err
	}
	if err := validator.ValidateFullName(r.FullName); err != nil {
		return err
	}
	if err := validator.ValidateEmail(r.Email); err != nil {
		return err
	}
	if err := validator.ValidatePassword(r.Password); err != nil {
		return err
	}
	return validator.ValidatePasswordConfirmation(r.Password, r.ConfirmPassword)
}

// Register stores an unconfirmed account and issues its confirmation token.
// No balance exists until the token is redeemed.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (Registration, error) {
	req.Email = validator.NormalizeEmail(req.Email)
	if err := req.validate(); err != nil {
		return Registration{}, err
	}
	if err := s.ensureUnique(ctx, req.CPF, req.Email); err != nil {
		return Registration{}, err
	}
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return Registration{}, err
	}
	registration := Registration{AccountID: ids.NewUUID(), ConfirmToken: ids.NewUUID()}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		err := s.accounts.Create(ctx, tx, store.Account{
			ID:           registration.AccountID,
			CPF:          req.CPF,
			FullName:     req.FullName,
			Email:        req.Email,
			PasswordHash: passwordHash,
		})
		switch {
		case errors.Is(err, store.ErrDuplicateCPF):
			return ErrCPFTaken
		case errors.Is(err, store.ErrDuplicateEmail):
			return ErrEmailTaken
		case err != nil:
			return err
		}
		expiresAt := s.now().Add(s.cfg.ConfirmTokenTTL)
		if err := s.confirmations.Create(ctx, tx, registration.ConfirmToken, registration.AccountID, expiresAt); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, registration.AccountID, "account.register", "account", registration.AccountID, map[string]string{
			"cpf":   req.CPF,
			"email": req.Email,
		})
	})
	if err != nil {
		return Registration{}, err
	}
	s.log.Info("account registered", zap.String("account_id", registration.AccountID))
	return registration, nil
}

func (s *AccountService) ensureUnique(ctx context.Context, cpf, email string) error {
	if _, err := s.accounts.GetByCPF(ctx, cpf); err == nil {
		return ErrCPFTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// Confirm redeems a confirmation token. The balance is created before the
// token is consumed; a retry after a partial failure finds the balance
// already present and carries on without crediting the bonus twice.
func (s *AccountService) Confirm(ctx context.Context, token string) error {
	if !ids.ValidUUID(token) {
		return ErrInvalidToken
	}
	row, err := s.confirmations.Get(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	now := s.now()
	if !row.Usable(now) {
		return ErrInvalidToken
	}
	account, err := s.accounts.GetByID(ctx, row.AccountID)
	if err != nil {
		return err
	}
	if account.Status != ledger.StatusUnconfirmed {
		return ErrInvalidToken
	}
	if err := s.balances.CreateBalance(ctx, account.ID); err != nil && !errors.Is(err, ledger.ErrAlreadyExists) {
		return err
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		consumed, err := s.confirmations.Consume(ctx, tx, token, now)
		if err != nil {
			return err
		}
		if !consumed {
			return ErrInvalidToken
		}
		activated, err := s.accounts.Activate(ctx, tx, account.ID)
		if err != nil {
			return err
		}
		if !activated {
			return ErrInvalidToken
		}
		if slices.Contains(s.cfg.AdminEmails, account.Email) {
			if err := s.admins.Grant(ctx, tx, account.ID); err != nil {
				return err
			}
		}
		return s.audit.Log(ctx, tx, account.ID, "account.confirm", "account", account.ID, nil)
	})
	if err != nil {
		return err
	}
	s.log.Info("account confirmed", zap.String("account_id", account.ID))
	return nil
}

// Login checks the credentials and returns a signed session token.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, error) {
	account, err := s.accounts.GetByEmail(ctx, validator.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if account.Status == ledger.StatusDeleted || !auth.CheckPassword(account.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}
	if account.Status != ledger.StatusActive {
		return "", ErrEmailNotConfirmed
	}
	sessionID := ids.NewULID()
	if err := s.sessions.Register(ctx, account.ID, sessionID, s.cfg.TokenTTL); err != nil {
		return "", err
	}
	token, err := auth.GenerateToken(s.cfg.JWTSecret, account.ID, sessionID, s.cfg.TokenTTL)
	if err != nil {
		return "", err
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.audit.Log(ctx, tx, account.ID, "account.login", "session", sessionID, nil)
	})
	if err != nil {
		s.log.Warn("login audit failed", zap.String("account_id", account.ID), zap.Error(err))
	}
	return token, nil
}

// Authenticate resolves a bearer token to the account that owns it.
func (s *AccountService) Authenticate(ctx context.Context, token string) (string, error) {
	claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
	if err != nil {
		return "", ErrInvalidSession
	}
	active, err := s.sessions.Active(ctx, claims.AccountID, claims.SessionID)
	if err != nil {
		return "", err
	}
	if !active {
		return "", ErrInvalidSession
	}
	return claims.AccountID, nil
}

// Delete soft-deletes the account after checking its password again and
// revokes every session it holds. Balances and statements are kept.
func (s *AccountService) Delete(ctx context.Context, accountID, password string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if account.Status == ledger.StatusDeleted || !auth.CheckPassword(account.PasswordHash, password) {
		return ErrInvalidCredentials
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		deleted, err := s.accounts.MarkDeleted(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrInvalidCredentials
		}
		return s.audit.Log(ctx, tx, accountID, "account.delete", "account", accountID, nil)
	})
	if err != nil {
		return err
	}
	// The account is already deleted. Sessions left behind cannot move points
	// because the ledger rejects inactive accounts, and they expire with their TTL.
	if err := s.sessions.RevokeAll(ctx, accountID); err != nil {
		s.log.Error("revoke sessions of deleted account", zap.String("account_id", accountID), zap.Error(err))
	}
	s.log.Info("account deleted", zap.String("account_id", accountID))
	return nil
}
