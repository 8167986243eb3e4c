package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mind-engage/coursetrack/internal/apperr"
	"github.com/mind-engage/coursetrack/internal/rbac"
)

// UserLookup resolves the token subject to its current account.
type UserLookup interface {
	Get(ctx context.Context, id string) (User, error)
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}

// JWTMiddleware requires a valid bearer token for an active account. The
// role stored on the account wins over the role claim.
func JWTMiddleware(a *Service, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				unauthorized(w, "not authorized to access this route")
				return
			}
			claims, err := a.Parse(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				unauthorized(w, "not authorized to access this route")
				return
			}
			u, err := users.Get(r.Context(), claims.Sub)
			switch {
			case errors.Is(err, apperr.ErrNotFound):
				unauthorized(w, "user not found")
				return
			case err != nil:
				http.Error(w, "user lookup failed", http.StatusInternalServerError)
				return
			case !u.IsActive:
				unauthorized(w, "account has been deactivated")
				return
			}
			ctx := WithSubject(r.Context(), u.ID)
			ctx = rbac.WithRole(ctx, u.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
