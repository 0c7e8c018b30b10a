package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"mediaDownloader/api/auth"
	"mediaDownloader/api/dto"
	"mediaDownloader/api/models"
)

type TokenParser interface {
	Parse(token string) (*auth.Principal, error)
}

// UserLookup re-reads the caller on admin routes so revoked rights take effect
// before the token expires.
type UserLookup interface {
	Get(ctx context.Context, id int64) (*models.User, error)
}

func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func GetPrincipal(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*auth.Principal)
	return p, ok && p != nil
}

// Authenticate requires a valid bearer token and attaches its principal to the request.
func Authenticate(parser TokenParser, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, r, http.StatusUnauthorized, "Token is missing")
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

			p, err := parser.Parse(token)
			if err != nil {
				logger.Debug("Rejected token",
					zap.String("trace_id", GetTraceID(r.Context())),
					zap.Error(err),
				)
				writeError(w, r, http.StatusUnauthorized, "Token is invalid")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAdmin must run after Authenticate.
func RequireAdmin(users UserLookup, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "Token is missing")
				return
			}

			user, err := users.Get(r.Context(), p.UserID)
			if err != nil || !user.IsAdmin {
				if err != nil {
					logger.Debug("Admin lookup failed",
						zap.String("trace_id", GetTraceID(r.Context())),
						zap.Int64("user_id", p.UserID),
						zap.Error(err),
					)
				}
				writeError(w, r, http.StatusForbidden, "Admin privileges required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		TraceID: GetTraceID(r.Context()),
	})
}
