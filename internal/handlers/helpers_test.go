package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"points/internal/config"
	"points/internal/ledger"
	"points/internal/services"
	"points/internal/store"
	"points/internal/websocket"
)

const (
	aliceID    = "00000000-0000-0000-0000-00000000000a"
	bobID      = "00000000-0000-0000-0000-00000000000b"
	aliceCPF   = "11111111111"
	bobCPF     = "22222222222"
	aliceToken = "alice-token"
	bobToken   = "bob-token"
)

type stubAccountService struct {
	registerFn func(ctx context.Context, req services.RegisterRequest) (services.Registration, error)
	confirmFn  func(ctx context.Context, token string) error
	loginFn    func(ctx context.Context, email, password string) (string, error)
	deleteFn   func(ctx context.Context, accountID, password string) error
	tokens     map[string]string
}

func (s stubAccountService) Register(ctx context.Context, req services.RegisterRequest) (services.Registration, error) {
	if s.registerFn == nil {
		return services.Registration{}, errors.New("unexpected register")
	}
	return s.registerFn(ctx, req)
}

func (s stubAccountService) Confirm(ctx context.Context, token string) error {
	if s.confirmFn == nil {
		return errors.New("unexpected confirm")
	}
	return s.confirmFn(ctx, token)
}

func (s stubAccountService) Login(ctx context.Context, email, password string) (string, error) {
	if s.loginFn == nil {
		return "", errors.New("unexpected login")
	}
	return s.loginFn(ctx, email, password)
}

func (s stubAccountService) Authenticate(_ context.Context, token string) (string, error) {
	accountID, ok := s.tokens[token]
	if !ok {
		return "", services.ErrInvalidSession
	}
	return accountID, nil
}

func (s stubAccountService) Delete(ctx context.Context, accountID, password string) error {
	if s.deleteFn == nil {
		return errors.New("unexpected delete")
	}
	return s.deleteFn(ctx, accountID, password)
}

type stubDirectory struct {
	accounts map[string]ledger.Account
}

func (d stubDirectory) ResolveAccount(_ context.Context, key string) (ledger.Account, error) {
	for _, account := range d.accounts {
		if account.CPF == key {
			return account, nil
		}
	}
	return ledger.Account{}, ledger.ErrAccountNotFound
}

func (d stubDirectory) AccountByID(_ context.Context, accountID string) (ledger.Account, error) {
	account, ok := d.accounts[accountID]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return account, nil
}

type stubCounterparties struct{}

func (stubCounterparties) Counterparties(_ context.Context, accountIDs []string) (map[string]store.Counterparty, error) {
	names := map[string]store.Counterparty{
		aliceID: {ID: aliceID, CPF: aliceCPF, FullName: "Alice Souza"},
		bobID:   {ID: bobID, CPF: bobCPF, FullName: "Bob Lima"},
	}
	found := make(map[string]store.Counterparty, len(accountIDs))
	for _, id := range accountIDs {
		if counterparty, ok := names[id]; ok {
			found[id] = counterparty
		}
	}
	return found, nil
}

type stubAdminStore struct {
	isAdminFn func(ctx context.Context, accountID string) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, accountID string) (bool, error) {
	if s.isAdminFn == nil {
		return false, nil
	}
	return s.isAdminFn(ctx, accountID)
}

type stubAuditStore struct {
	listFn func(ctx context.Context, limit, offset int) ([]store.AuditEntry, error)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]store.AuditEntry, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubReconciler struct {
	reconcileFn func(ctx context.Context) ([]store.ReconcileRow, error)
}

func (s stubReconciler) Reconcile(ctx context.Context) ([]store.ReconcileRow, error) {
	if s.reconcileFn == nil {
		return nil, nil
	}
	return s.reconcileFn(ctx)
}

type testEnv struct {
	handler  *Handler
	router   http.Handler
	engine   *ledger.Engine
	hub      *websocket.Hub
	accounts *stubAccountService
	admin    *stubAdminStore
	audit    *stubAuditStore
	recon    *stubReconciler
}

// newTestEnv wires a handler around a real in-memory ledger holding two
// active accounts with their signup bonus.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithBook(t, ledger.NewMemoryBook(time.Second))
}

func newTestEnvWithBook(t *testing.T, book ledger.Book) *testEnv {
	t.Helper()
	directory := stubDirectory{accounts: map[string]ledger.Account{
		aliceID: {ID: aliceID, CPF: aliceCPF, Status: ledger.StatusActive},
		bobID:   {ID: bobID, CPF: bobCPF, Status: ledger.StatusActive},
	}}
	hub := websocket.NewHub()
	engine := ledger.NewEngine(book, directory, hub, nil)
	for _, id := range []string{aliceID, bobID} {
		if err := engine.CreateBalance(context.Background(), id); err != nil {
			t.Fatalf("create balance: %v", err)
		}
	}
	env := &testEnv{
		engine: engine,
		hub:    hub,
		accounts: &stubAccountService{tokens: map[string]string{
			aliceToken: aliceID,
			bobToken:   bobID,
		}},
		admin: &stubAdminStore{},
		audit: &stubAuditStore{},
		recon: &stubReconciler{},
	}
	env.handler = New(
		config.Config{AllowedOrigins: "*"},
		env.accounts,
		engine,
		services.NewStatementService(engine, stubCounterparties{}),
		env.admin,
		env.audit,
		env.recon,
		hub,
		nil,
	)
	env.router = env.handler.Routes()
	return env
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		payload, _ := json.Marshal(b)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(rr.Body.Bytes(), &value); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return value
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rr)["error"]
}
