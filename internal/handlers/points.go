package handlers

import (
	"net/http"
	"strings"

	"points/internal/amount"
	"points/internal/ledger"
	"points/internal/middleware"
	"points/internal/models"
)

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Não autenticado.")
		return
	}
	balance, err := h.ledger.GetBalance(r.Context(), accountID)
	if err != nil {
		h.respondFailure(w, r, "get balance", err)
		return
	}
	respondJSON(w, http.StatusOK, balance)
}

func (h *Handler) SendPoints(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Não autenticado.")
		return
	}
	var req models.TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	recipient := strings.TrimSpace(req.RecipientCPF)
	if recipient == "" {
		respondError(w, http.StatusBadRequest, "CPF do destinatário é obrigatório.")
		return
	}
	points, err := amount.Parse(req.Amount)
	if err != nil {
		h.respondFailure(w, r, "send points", err)
		return
	}
	receipt, err := h.ledger.Transfer(r.Context(), accountID, recipient, points)
	if err != nil {
		h.respondFailure(w, r, "send points", err)
		return
	}
	respondJSON(w, http.StatusOK, models.TransferResponse{
		Message:     "Pontos enviados com sucesso.",
		OperationID: receipt.OperationID,
	})
}

func (h *Handler) PointsStatement(w http.ResponseWriter, r *http.Request) {
	h.statement(w, r, ledger.PoolNormal)
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request, pool ledger.Pool) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Não autenticado.")
		return
	}
	records, err := h.statements.Records(r.Context(), accountID, pool)
	if err != nil {
		h.respondFailure(w, r, "read statement", err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}
