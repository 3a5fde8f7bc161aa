package middleware

import (
	"net/http"

	"relove-be/internal/auth"
	"relove-be/internal/utils"
)

// OptionalAuth attaches the user identity to the request context when a
// valid session token is present. Checkout is open to guests, so an
// absent or invalid token is not an error here.
func OptionalAuth(verifier *auth.SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ExtractAccessToken(r)
			if token != "" {
				if claims, err := verifier.Verify(token); err == nil {
					ctx := utils.SetUserContext(r.Context(), claims.UserID(), claims.Email)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin guards the refund surface.
func RequireAdmin(verifier *auth.SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ExtractAccessToken(r)
			if token == "" {
				utils.WriteJSONError(w, "authentication required", http.StatusUnauthorized)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				utils.WriteJSONError(w, "authentication required", http.StatusUnauthorized)
				return
			}
			if claims.Role != auth.RoleAdmin {
				utils.WriteJSONError(w, "admin access required", http.StatusForbidden)
				return
			}

			ctx := utils.SetUserContext(r.Context(), claims.UserID(), claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
