package handlers

import (
	"net/http"
	"strings"

	"points/internal/middleware"
	"points/internal/models"
	"points/internal/services"
)

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	registration, err := h.accounts.Register(r.Context(), services.RegisterRequest{
		CPF:             strings.TrimSpace(req.CPF),
		FullName:        strings.TrimSpace(req.FullName),
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.respondFailure(w, r, "register", err)
		return
	}
	respondJSON(w, http.StatusCreated, models.RegisterResponse{
		Message:      "Cadastro realizado com sucesso.",
		ConfirmToken: registration.ConfirmToken,
	})
}

func (h *Handler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		respondError(w, http.StatusBadRequest, "Token de confirmação não fornecido.")
		return
	}
	if err := h.accounts.Confirm(r.Context(), token); err != nil {
		h.respondFailure(w, r, "confirm email", err)
		return
	}
	respondText(w, http.StatusOK, "E-mail confirmado com sucesso!")
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "E-mail e senha são obrigatórios.")
		return
	}
	token, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondFailure(w, r, "login", err)
		return
	}
	respondJSON(w, http.StatusOK, models.LoginResponse{Token: token})
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Não autenticado.")
		return
	}
	var req models.DeleteAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Password == "" {
		respondError(w, http.StatusBadRequest, "Senha é obrigatória.")
		return
	}
	if err := h.accounts.Delete(r.Context(), accountID, req.Password); err != nil {
		h.respondFailure(w, r, "delete account", err)
		return
	}
	respondJSON(w, http.StatusOK, models.MessageResponse{Message: "Conta marcada como deletada."})
}
