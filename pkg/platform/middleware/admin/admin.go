package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"shikkha/pkg/requestcontext"
)

// RequireOperatorToken guards operational endpoints (reconciliation, token revocation)
// with a shared secret in X-Operator-Token. An empty expected token disables the routes.
func RequireOperatorToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Operator-Token")
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "operator token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthenticated","error_description":"operator token required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
