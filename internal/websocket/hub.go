package websocket

import (
	"encoding/json"
	"sync"

	"points/internal/ledger"
)

type BalanceUpdate struct {
	Type string `json:"type"`
	ledger.Balance
}

func newBalanceUpdate(balance ledger.Balance) BalanceUpdate {
	return BalanceUpdate{Type: "balance", Balance: balance}
}

// Hub fans balance changes out to the sockets of the owning account. Slow
// clients drop updates instead of blocking the ledger.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(accountID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[accountID] == nil {
		h.clients[accountID] = make(map[*Client]struct{})
	}
	h.clients[accountID][client] = struct{}{}
}

func (h *Hub) Unregister(accountID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[accountID] == nil {
		return
	}
	delete(h.clients[accountID], client)
	if len(h.clients[accountID]) == 0 {
		delete(h.clients, accountID)
	}
}

func (h *Hub) Connected(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[accountID])
}

// BalanceChanged implements ledger.Notifier.
func (h *Hub) BalanceChanged(accountID string, balance ledger.Balance) {
	payload, _ := json.Marshal(newBalanceUpdate(balance))
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[accountID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
