package auth

import (
	"context"
	"net/http"
)

type contextKey string

const userIDContextKey contextKey = "auth.userID"

// Middleware gates protected routes on the access carrier. A missing cookie
// is 401; a token that fails verification (expired, malformed, or a refresh
// token presented as access) is 403.
func Middleware(tokens *TokenIssuer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken, _ := ExtractSession(r)
		if accessToken == "" {
			writeError(w, http.StatusUnauthorized, "no authentication token provided")
			return
		}

		userID, err := tokens.Verify(accessToken, TokenTypeAccess)
		if err != nil {
			writeError(w, http.StatusForbidden, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// WithUserID stamps a resolved identity onto a context. Exposed for
// handlers under test that are normally mounted behind Middleware.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserID returns the identity the middleware resolved for this request.
func UserID(r *http.Request) string {
	userID, _ := r.Context().Value(userIDContextKey).(string)
	return userID
}
