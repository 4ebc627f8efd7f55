package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/boutique-pos/internal/domain/auth"
	"github.com/xenking/boutique-pos/pkg/httpmiddleware"
)

// APIKeyHeader carries the client's API key.
const APIKeyHeader = "X-API-Key"

// Authenticate resolves the X-API-Key header and stores the key in the
// request context. Unknown keys get 401.
func Authenticate(a *auth.Authenticator) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := a.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ctx := auth.WithInfo(r.Context(), info)
			ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.String("api_key_id", info.ID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects keys lacking scope with 403.
func RequireScope(scope string) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := auth.InfoFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !info.HasScope(scope) {
				writeError(w, http.StatusForbidden, "missing scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitKey keys rate limiting by API key, falling back to client IP.
func RateLimitKey(r *http.Request) string {
	if info, ok := auth.InfoFromContext(r.Context()); ok {
		return "key:" + info.ID
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}
