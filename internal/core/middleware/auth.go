package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Nzyazin/walletd/internal/core/logger"
	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/Nzyazin/walletd/internal/core/response"
)

type TokenVerifier interface {
	Verify(token string) (models.Session, error)
}

type sessionKey struct{}

func WithSession(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func SessionFrom(ctx context.Context) (models.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(models.Session)
	return s, ok && s.Valid()
}

// Authenticate rejects requests without a valid bearer token and stores the
// session in the request context. Websocket upgrades may pass the token in
// the access_token query parameter instead.
func Authenticate(v TokenVerifier, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				response.Error(w, http.StatusUnauthorized, response.CodeUnauthorized, "Authorization header required")
				return
			}

			s, err := v.Verify(token)
			if err != nil {
				log.Warn("Rejected bearer token",
					logger.StringField("path", r.URL.Path),
					logger.ErrorField("error", err))
				response.Error(w, http.StatusUnauthorized, response.CodeUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if r.Method == http.MethodGet && strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
