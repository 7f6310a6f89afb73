package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"callfence/internal/auth/jwttoken"
	"callfence/pkg/requestcontext"
)

// TokenValidator defines the interface for validating session tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwttoken.Claims, error)
}

// RequireAuth validates the bearer session token and stores the platform
// user id on the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := validate(w, r, validator, logger)
			if !ok {
				return
			}
			ctx := requestcontext.WithUserID(r.Context(), claims.UserID)
			ctx = requestcontext.WithAdmin(ctx, claims.Admin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin validates the bearer session token and additionally requires
// the admin claim and, when configured, the expected admin user id.
func RequireAdmin(validator TokenValidator, adminUserID string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := validate(w, r, validator, logger)
			if !ok {
				return
			}
			if !claims.Admin || (adminUserID != "" && claims.UserID != adminUserID) {
				logger.WarnContext(r.Context(), "admin access denied",
					"request_id", requestcontext.RequestID(r.Context()),
					"user_id", claims.UserID,
				)
				writeUnauthorized(w, "admin identity required")
				return
			}
			ctx := requestcontext.WithUserID(r.Context(), claims.UserID)
			ctx = requestcontext.WithAdmin(ctx, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validate(w http.ResponseWriter, r *http.Request, validator TokenValidator, logger *slog.Logger) (*jwttoken.Claims, bool) {
	const bearerPrefix = "Bearer "
	authHeader := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(authHeader, bearerPrefix)
	if !ok {
		logger.WarnContext(r.Context(), "unauthorized access - missing token",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		writeUnauthorized(w, "missing or invalid Authorization header")
		return nil, false
	}

	claims, err := validator.ValidateToken(token)
	if err != nil {
		logger.WarnContext(r.Context(), "unauthorized access - invalid token",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
		writeUnauthorized(w, "invalid or expired token")
		return nil, false
	}
	return claims, true
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
