package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"points/internal/ledger"
	"points/internal/store"

	gorillaws "github.com/gorilla/websocket"
)

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodGet, "/admin/reconcile", bobToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	env.admin.isAdminFn = func(context.Context, string) (bool, error) {
		return false, errors.New("db down")
	}
	rr = env.do(http.MethodGet, "/admin/audit", bobToken, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestReconcileCountsMismatches(t *testing.T) {
	env := newTestEnv(t)
	env.admin.isAdminFn = func(_ context.Context, accountID string) (bool, error) {
		return accountID == aliceID, nil
	}
	env.recon.reconcileFn = func(context.Context) ([]store.ReconcileRow, error) {
		return []store.ReconcileRow{
			{AccountID: aliceID, Normal: 100, Expected: ledger.Balance{Normal: 100}, Consistent: true},
			{AccountID: bobID, Normal: 90, Expected: ledger.Balance{Normal: 100}, Consistent: false},
		}, nil
	}
	rr := env.do(http.MethodGet, "/admin/reconcile", aliceToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Checked    int                  `json:"checked"`
		Mismatches int                  `json:"mismatches"`
		Accounts   []store.ReconcileRow `json:"accounts"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Checked != 2 || body.Mismatches != 1 || body.Accounts[1].AccountID != bobID {
		t.Fatalf("unexpected report %+v", body)
	}
}

func TestListAuditLogsPaging(t *testing.T) {
	env := newTestEnv(t)
	env.admin.isAdminFn = func(context.Context, string) (bool, error) { return true, nil }
	var gotLimit, gotOffset int
	env.audit.listFn = func(_ context.Context, limit, offset int) ([]store.AuditEntry, error) {
		gotLimit, gotOffset = limit, offset
		return []store.AuditEntry{{ID: "01J", Action: "account.login", Data: json.RawMessage(`{}`)}}, nil
	}
	rr := env.do(http.MethodGet, "/admin/audit?limit=10&page=3", aliceToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotLimit != 10 || gotOffset != 20 {
		t.Fatalf("unexpected paging limit=%d offset=%d", gotLimit, gotOffset)
	}
	env.do(http.MethodGet, "/admin/audit?limit=100000", aliceToken, nil)
	if gotLimit != 500 || gotOffset != 0 {
		t.Fatalf("limit should be capped, got limit=%d offset=%d", gotLimit, gotOffset)
	}
}

func TestWSBalanceStreamsUpdates(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/saldo?token=" + aliceToken
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readBalance := func() map[string]any {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg
	}
	initial := readBalance()
	if initial["type"] != "balance" || initial["normal_balance"] != float64(100) {
		t.Fatalf("unexpected initial message %v", initial)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Connected(aliceID) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := env.engine.Deposit(context.Background(), aliceID, 40); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	update := readBalance()
	if update["normal_balance"] != float64(60) || update["piggy_bank_balance"] != float64(40) {
		t.Fatalf("unexpected update %v", update)
	}
}

func TestWSBalanceRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodGet, "/ws/saldo?token=forged", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
