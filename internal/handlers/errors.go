package handlers

import (
	"errors"
	"net/http"

	"points/internal/amount"
	"points/internal/ledger"
	"points/internal/middleware"
	"points/internal/services"
	"points/internal/validator"

	"go.uber.org/zap"
)

type apiError struct {
	err     error
	status  int
	message string
}

var apiErrors = []apiError{
	{validator.ErrInvalidCPF, http.StatusBadRequest, "CPF inválido. Deve conter 11 dígitos numéricos."},
	{validator.ErrInvalidEmail, http.StatusBadRequest, "E-mail inválido."},
	{validator.ErrInvalidPassword, http.StatusBadRequest, "A senha deve ter pelo menos 8 caracteres."},
	{validator.ErrPasswordMismatch, http.StatusBadRequest, "As senhas não coincidem."},
	{validator.ErrInvalidName, http.StatusBadRequest, "Nome completo inválido."},
	{amount.ErrInvalid, http.StatusBadRequest, "Valor inválido."},
	{ledger.ErrInvalidAmount, http.StatusBadRequest, "Valor inválido."},
	{ledger.ErrInvalidOperation, http.StatusBadRequest, "Operação inválida."},
	{services.ErrCPFTaken, http.StatusBadRequest, "CPF já cadastrado."},
	{services.ErrEmailTaken, http.StatusBadRequest, "E-mail já cadastrado."},
	{services.ErrInvalidToken, http.StatusBadRequest, "Token de confirmação inválido ou expirado."},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, "Credenciais inválidas."},
	{services.ErrEmailNotConfirmed, http.StatusUnauthorized, "E-mail ainda não confirmado."},
	{services.ErrInvalidSession, http.StatusUnauthorized, "Token inválido ou expirado."},
	{ledger.ErrInsufficientFunds, http.StatusBadRequest, "Saldo insuficiente."},
	{ledger.ErrRecipientNotFound, http.StatusBadRequest, "Destinatário não encontrado."},
	{ledger.ErrAccountNotActive, http.StatusForbidden, "Conta inativa."},
	{ledger.ErrContended, http.StatusServiceUnavailable, "Conta ocupada. Tente novamente."},
}

func errorResponse(err error) (int, string) {
	for _, known := range apiErrors {
		if errors.Is(err, known.err) {
			return known.status, known.message
		}
	}
	return http.StatusInternalServerError, "Erro interno do servidor."
}

// respondFailure maps a service error to its HTTP form. Only unexpected
// errors are logged; the rest are ordinary client outcomes.
func (h *Handler) respondFailure(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, message := errorResponse(err)
	if status == http.StatusInternalServerError {
		accountID, _ := middleware.AccountIDFromContext(r.Context())
		h.log.Error(operation+" failed", zap.String("account_id", accountID), zap.Error(err))
	}
	respondError(w, status, message)
}
