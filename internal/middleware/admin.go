package middleware

import (
	"context"
	"net/http"
)

type AdminStore interface {
	IsAdmin(ctx context.Context, accountID string) (bool, error)
}

func RequireAdmin(adminStore AdminStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, ok := AccountIDFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Não autenticado.")
				return
			}
			isAdmin, err := adminStore.IsAdmin(r.Context(), accountID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "Não foi possível verificar permissões.")
				return
			}
			if !isAdmin {
				writeError(w, http.StatusForbidden, "Acesso restrito a administradores.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
