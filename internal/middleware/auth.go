package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"fulfillment-be/internal/logger"

	"go.uber.org/zap"
)

// RequireOpsToken rejects requests whose bearer token does not match token.
// An empty token disables the wrapped handler entirely.
func RequireOpsToken(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token == "" {
			http.NotFound(w, r)
			return
		}

		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			logger.FromCtx(r.Context()).Warn("rejected ops request",
				zap.String("path", r.URL.Path),
				zap.String("ip", r.RemoteAddr),
			)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
