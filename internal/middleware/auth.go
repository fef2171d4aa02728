package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const accountIDKey contextKey = "account_id"

// Authenticator turns a bearer token into the id of the account it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

func AccountIDFromContext(ctx context.Context) (string, bool) {
	accountID, ok := ctx.Value(accountIDKey).(string)
	return accountID, ok && accountID != ""
}

func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDKey, accountID)
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func Auth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				writeError(w, http.StatusUnauthorized, "Token não fornecido.")
				return
			}
			token, ok := BearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Cabeçalho de autorização inválido.")
				return
			}
			accountID, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Token inválido ou expirado.")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), accountID)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
