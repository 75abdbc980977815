package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/radiusdt/adpulse/internal/config"
	"github.com/radiusdt/adpulse/internal/models"
	"go.uber.org/zap"
)

type contextKey string

const (
	requesterContextKey contextKey = "requester"

	AuthHeaderName = "X-API-Key"
)

// WithRequester returns a context carrying req.
func WithRequester(ctx context.Context, req models.Requester) context.Context {
	return context.WithValue(ctx, requesterContextKey, req)
}

// RequesterFromContext returns the requester attached by AuthMiddleware.
func RequesterFromContext(ctx context.Context) (models.Requester, bool) {
	req, ok := ctx.Value(requesterContextKey).(models.Requester)
	return req, ok
}

// AuthMiddleware admits calls from the trusted gateway and attaches the
// identity it forwards. The gateway proves itself with the master API key;
// the requester id and role come from the configured headers.
type AuthMiddleware struct {
	cfg    config.AuthConfig
	logger *zap.Logger
}

func NewAuthMiddleware(cfg config.AuthConfig, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg, logger: logger}
}

func (a *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.shouldSkip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Enabled {
			apiKey := r.Header.Get(AuthHeaderName)
			if apiKey == "" {
				a.unauthorized(w, "Missing API key")
				return
			}
			if !a.validateKey(apiKey) {
				a.logger.Warn("invalid API key attempt",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				a.unauthorized(w, "Invalid API key")
				return
			}
		}

		id := strings.TrimSpace(r.Header.Get(a.cfg.RequesterHeader))
		if id == "" {
			a.unauthorized(w, "Not authorized, no requester identity")
			return
		}
		req := models.Requester{
			ID:   id,
			Role: models.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(a.cfg.RoleHeader)))),
		}

		next.ServeHTTP(w, r.WithContext(WithRequester(r.Context(), req)))
	})
}

func (a *AuthMiddleware) shouldSkip(path string) bool {
	for _, skip := range a.cfg.SkipPaths {
		if strings.HasPrefix(path, skip) {
			return true
		}
	}
	return false
}

func (a *AuthMiddleware) validateKey(key string) bool {
	return subtle.ConstantTimeCompare([]byte(key), []byte(a.cfg.MasterKey)) == 1
}

func (a *AuthMiddleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "ApiKey")
	writeFailure(w, http.StatusUnauthorized, message)
}
