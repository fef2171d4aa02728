package handlers

import (
	"net/http"

	"points/internal/middleware"
	"points/internal/websocket"

	"go.uber.org/zap"
)

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	if limit > 500 {
		limit = 500
	}
	page := parseInt(r.URL.Query().Get("page"), 1)
	entries, err := h.audit.List(r.Context(), limit, (page-1)*limit)
	if err != nil {
		h.respondFailure(w, r, "list audit logs", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"page":    page,
		"limit":   limit,
	})
}

// Reconcile replays every account's statement and reports balances that do
// not match it.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reconciler.Reconcile(r.Context())
	if err != nil {
		h.respondFailure(w, r, "reconcile", err)
		return
	}
	mismatches := 0
	for _, row := range rows {
		if !row.Consistent {
			mismatches++
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"accounts":   rows,
		"checked":    len(rows),
		"mismatches": mismatches,
	})
}

// WSBalance streams the caller's balance. Browsers cannot set headers on a
// websocket handshake, so the token may also travel in the query string.
func (h *Handler) WSBalance(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r)
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "Token não fornecido.")
		return
	}
	accountID, err := h.accounts.Authenticate(r.Context(), token)
	if err != nil {
		h.respondFailure(w, r, "websocket auth", err)
		return
	}
	ctx := middleware.WithAccountID(r.Context(), accountID)
	balance, err := h.ledger.GetBalance(ctx, accountID)
	if err != nil {
		h.respondFailure(w, r.WithContext(ctx), "websocket balance", err)
		return
	}
	if err := websocket.ServeWS(w, r, h.upgrader, h.hub, accountID, balance); err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("account_id", accountID), zap.Error(err))
	}
}
