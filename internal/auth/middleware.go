package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type contextKey string

const principalKey contextKey = "principal"

// PrincipalFromContext returns the principal set by Middleware.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

// Middleware rejects requests without a valid bearer key with 401 and a
// JSON {"detail": ...} body.
func Middleware(a Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := ExtractBearerToken(r)
			if err == nil {
				var p *Principal
				if p, err = a.Authenticate(r.Context(), token); err == nil {
					next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
					return
				}
			}
			logger.Info("rejected unauthenticated request",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="record-gateway"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "missing or invalid API key"})
		})
	}
}
