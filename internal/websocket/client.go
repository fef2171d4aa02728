package websocket

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"points/internal/ledger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	sendBuffer = 10
)

type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewUpgrader accepts any origin when allowedOrigins contains "*", and only
// the listed ones otherwise. Requests without an Origin header are allowed.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, origin)
		},
	}
}

// ServeWS upgrades the request, sends the current balance and then streams
// every later change until the peer goes away.
func ServeWS(w http.ResponseWriter, r *http.Request, upgrader websocket.Upgrader, hub *Hub, accountID string, current ledger.Balance) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	client := &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	initial, _ := json.Marshal(newBalanceUpdate(current))
	client.send <- initial
	hub.Register(accountID, client)
	go client.writePump(hub, accountID)
	client.readPump(hub, accountID)
	return nil
}

func (c *Client) readPump(hub *Hub, accountID string) {
	defer func() {
		hub.Unregister(accountID, c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) writePump(hub *Hub, accountID string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		hub.Unregister(accountID, c)
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
