// Package models holds the JSON bodies exchanged over the HTTP API.
package models

import "encoding/json"

type RegisterRequest struct {
	CPF             string `json:"cpf"`
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type RegisterResponse struct {
	Message      string `json:"message"`
	ConfirmToken string `json:"confirmToken"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// TransferRequest keeps the amount raw so that both JSON numbers and numeric
// strings can be validated the same way.
type TransferRequest struct {
	RecipientCPF string          `json:"recipientCpf"`
	Amount       json.RawMessage `json:"amount"`
}

type DepositRequest struct {
	Amount json.RawMessage `json:"amount"`
}

type DeleteAccountRequest struct {
	Password string `json:"password"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type TransferResponse struct {
	Message     string `json:"message"`
	OperationID string `json:"operation_id"`
}

type DepositResponse struct {
	Message       string `json:"message"`
	TransactionID string `json:"transaction_id"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
