package httpmw

import (
	"context"
	"net/http"
	"strings"
)

// UnknownClient is the key shared by every request that carries neither
// X-Forwarded-For nor X-Real-IP. All such clients draw from one rate limit
// budget, so one noisy unidentified client can exhaust it for the others.
const UnknownClient = "unknown"

type clientKeyCtx struct{}

// ClientKey identifies the caller for rate limiting: the first entry of
// X-Forwarded-For, else X-Real-IP, else UnknownClient. Values are trimmed
// and otherwise used verbatim. This trusts whatever proxy sits in front of
// the server to set those headers; it is a bucketing key, not an identity.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return rip
	}
	return UnknownClient
}

// ClientKeys resolves the client key once and stores it in the request
// context so the limiter, logs and metrics all see the same value.
func ClientKeys(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithClientKey(r.Context(), ClientKey(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientKeyFromContext returns the stored key or "" when ClientKeys did not run.
func ClientKeyFromContext(ctx context.Context) string {
	k, _ := ctx.Value(clientKeyCtx{}).(string)
	return k
}

func WithClientKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, clientKeyCtx{}, key)
}

// ResolveClientKey prefers the context value and derives it from headers otherwise
func ResolveClientKey(r *http.Request) string {
	if k := ClientKeyFromContext(r.Context()); k != "" {
		return k
	}
	return ClientKey(r)
}
