package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/keithlinneman/tripdesk/internal/httpmw"
	"github.com/keithlinneman/tripdesk/internal/respond"
)

// LimitedMessage is the body text of every 429.
const LimitedMessage = "Too many requests. Please try again later."

// Middleware limits requests to the wrapped handler under category c. The
// client key comes from the request context when httpmw.ClientKeys ran.
func (l *Limiter) Middleware(c Category) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Check(httpmw.ResolveClientKey(r), c)
			if !d.Allowed {
				WriteLimited(w, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteLimited writes the 429 response for a limited decision.
func WriteLimited(w http.ResponseWriter, d Decision) {
	h := w.Header()
	h.Set("Retry-After", strconv.Itoa(d.RetryAfter))
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", "0")
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset, 10))
	respond.Error(w, http.StatusTooManyRequests, LimitedMessage)
}
