package auth

import (
	"context"
	"net/http"
)

type userKey struct{}

// Username returns the authenticated username stored by Middleware, or ""
// when the request did not pass through it.
func Username(ctx context.Context) string {
	if u, ok := ctx.Value(userKey{}).(string); ok {
		return u
	}
	return ""
}

// Middleware rejects requests that do not carry a valid session cookie.
// The authenticated username is placed on the request context for handlers
// and request logging.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, err := svc.FromRequest(r)
			if err != nil {
				http.Error(w, "Invalid or missing token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userKey{}, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
