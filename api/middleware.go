package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/warp/chore-engine/auth"
)

type ctxKey int

const claimsKey ctxKey = iota

// claimsFrom returns the session claims put in place by requireSession.
// Only call it from handlers mounted behind that middleware.
func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	if claims == nil {
		return &auth.Claims{}
	}
	return claims
}

// requireSession rejects requests without a valid bearer token.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required", nil)
			return
		}

		claims, err := h.Sessions.Parse(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired session", nil)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin rejects non-admin sessions early. The service checks again
// against the stored principal.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !claimsFrom(r.Context()).IsAdmin() {
			writeError(w, http.StatusForbidden, "Admin access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
