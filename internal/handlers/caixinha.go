package handlers

import (
	"net/http"

	"points/internal/amount"
	"points/internal/ledger"
	"points/internal/middleware"
	"points/internal/models"
)

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Não autenticado.")
		return
	}
	var req models.DepositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	points, err := amount.Parse(req.Amount)
	if err != nil {
		h.respondFailure(w, r, "deposit", err)
		return
	}
	entry, err := h.ledger.Deposit(r.Context(), accountID, points)
	if err != nil {
		h.respondFailure(w, r, "deposit", err)
		return
	}
	respondJSON(w, http.StatusOK, models.DepositResponse{
		Message:       "Depósito na caixinha realizado com sucesso.",
		TransactionID: entry.ID,
	})
}

func (h *Handler) PiggyBankStatement(w http.ResponseWriter, r *http.Request) {
	h.statement(w, r, ledger.PoolPiggyBank)
}
