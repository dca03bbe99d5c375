package auth

import (
	"log/slog"
	"net/http"

	"github.com/fanmate/platform/internal"
	"github.com/fanmate/platform/internal/transport"
	"github.com/fanmate/platform/pkg/logger"
)

// Middleware authenticates requests and injects the caller's user id into
// the request context.
type Middleware struct {
	transport.BaseHandler
	validator *TokenValidator
	logger    *slog.Logger
}

func NewMiddleware(validator *TokenValidator, lg *slog.Logger) *Middleware {
	return &Middleware{
		validator: validator,
		logger:    lg,
	}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.ExtractTokenFromHeader(r)
		if token == "" {
			m.logger.Warn("auth middleware: missing authorization token", "path", r.URL.Path)
			m.WriteError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			m.logger.Warn("auth middleware: token validation failed", "error", err, "path", r.URL.Path)
			m.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		userID, err := claims.UserIDOf()
		if err != nil {
			m.logger.Warn("auth middleware: token has no usable user id", "path", r.URL.Path)
			m.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := internal.ContextWithUserID(r.Context(), userID)
		ctx = logger.With(ctx, "user_id", userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
