package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"shahin/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator.
type JWTClaims struct {
	UserID     string
	TenantCode string
	Roles      []string
}

// RequireAuth validates the bearer token and seeds the request context with
// the acting user. Requests without a valid token get 401.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				unauthorized(w, "Missing or invalid Authorization header")
				if logger != nil {
					logger.WarnContext(r.Context(), "unauthorized access - missing token",
						"request_id", GetRequestID(r.Context()))
				}
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				unauthorized(w, "Invalid or expired token")
				if logger != nil {
					logger.WarnContext(r.Context(), "unauthorized access - invalid token",
						"error", err,
						"request_id", GetRequestID(r.Context()))
				}
				return
			}

			ctx := requestcontext.WithActor(r.Context(), claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
