package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"points/internal/ledger"

	"github.com/gorilla/websocket"
)

func readUpdate(t *testing.T, conn *websocket.Conn) BalanceUpdate {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var update BalanceUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return update
}

func TestServeWSStreamsBalanceChanges(t *testing.T) {
	hub := NewHub()
	upgrader := NewUpgrader([]string{"*"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = ServeWS(w, r, upgrader, hub, "acc-1", ledger.Balance{Normal: 100})
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if update := readUpdate(t, conn); update.Type != "balance" || update.Normal != 100 {
		t.Fatalf("unexpected initial update: %+v", update)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.Connected("acc-1") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	hub.BalanceChanged("acc-2", ledger.Balance{Normal: 1})
	hub.BalanceChanged("acc-1", ledger.Balance{Normal: 70, PiggyBank: 30})
	if update := readUpdate(t, conn); update.Normal != 70 || update.PiggyBank != 30 {
		t.Fatalf("unexpected update: %+v", update)
	}
}

func TestHubUnregister(t *testing.T) {
	hub := NewHub()
	client := &Client{send: make(chan []byte, 1)}
	hub.Register("acc-1", client)
	hub.BalanceChanged("acc-1", ledger.Balance{Normal: 5})
	if len(client.send) != 1 {
		t.Fatalf("expected queued update")
	}
	hub.BalanceChanged("acc-1", ledger.Balance{Normal: 6})
	if len(client.send) != 1 {
		t.Fatalf("full client buffer must drop updates")
	}
	hub.Unregister("acc-1", client)
	if hub.Connected("acc-1") != 0 {
		t.Fatalf("expected no clients")
	}
}

func TestUpgraderOrigins(t *testing.T) {
	upgrader := NewUpgrader([]string{"https://app.example.com"})
	req := httptest.NewRequest(http.MethodGet, "/ws/saldo", nil)
	if !upgrader.CheckOrigin(req) {
		t.Fatalf("requests without origin must pass")
	}
	req.Header.Set("Origin", "https://evil.example.com")
	if upgrader.CheckOrigin(req) {
		t.Fatalf("unlisted origin must be refused")
	}
	req.Header.Set("Origin", "https://app.example.com")
	if !upgrader.CheckOrigin(req) {
		t.Fatalf("listed origin must pass")
	}
}
