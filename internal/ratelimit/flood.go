package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/tripdesk/internal/httpmw"
	"github.com/keithlinneman/tripdesk/internal/respond"
)

// visitor tracks a single client's token bucket and last activity
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	logged   bool
}

// FloodGuard is a per-client token bucket applied before routing. It sheds
// request bursts from one client regardless of which endpoints they hit.
type FloodGuard struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	// requests per second and burst ceiling
	perSecond rate.Limit
	burst     int

	// how long an idle client stays in the map before cleanup evicts it
	ttl time.Duration
	now func() time.Time

	OnFirstDenied func(key string)
	OnDenied      func(key string)
}

type FloodOption func(*FloodGuard)

// minFloodTTL bounds the idle TTL from below; cleanup ticks every TTL/2.
const minFloodTTL = time.Second

// WithFloodRate sets the bucket size and refill rate.
// WithFloodRate(10, 50) allows 50 requests at once, then refills at 10 per second.
func WithFloodRate(perSecond float64, burst int) FloodOption {
	return func(g *FloodGuard) {
		g.perSecond = rate.Limit(perSecond)
		g.burst = burst
	}
}

func WithFloodTTL(d time.Duration) FloodOption {
	return func(g *FloodGuard) {
		g.ttl = d
	}
}

func WithFloodClock(now func() time.Time) FloodOption {
	return func(g *FloodGuard) {
		if now != nil {
			g.now = now
		}
	}
}

func WithFloodOnFirstDenied(fn func(key string)) FloodOption {
	return func(g *FloodGuard) {
		g.OnFirstDenied = fn
	}
}

func WithFloodOnDenied(fn func(key string)) FloodOption {
	return func(g *FloodGuard) {
		g.OnDenied = fn
	}
}

// NewFloodGuard creates a FloodGuard and starts its eviction goroutine, which
// exits when ctx is cancelled.
func NewFloodGuard(ctx context.Context, opts ...FloodOption) *FloodGuard {
	g := &FloodGuard{
		visitors:  make(map[string]*visitor),
		perSecond: 20,
		burst:     40,
		ttl:       5 * time.Minute,
		now:       time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	g.ttl = max(g.ttl, minFloodTTL)
	go g.cleanup(ctx)
	return g
}

// Allow takes one token for key. When denied it also returns how long until
// a token is available.
func (g *FloodGuard) Allow(key string) (bool, time.Duration) {
	now := g.now()

	g.mu.Lock()
	v, exists := g.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(g.perSecond, g.burst)}
		g.visitors[key] = v
	}
	v.lastSeen = now
	if v.limiter.AllowN(now, 1) {
		g.mu.Unlock()
		return true, 0
	}
	wait := g.waitLocked(v, now)
	first := !v.logged
	v.logged = true
	g.mu.Unlock()

	if first && g.OnFirstDenied != nil {
		g.OnFirstDenied(key)
	}
	if g.OnDenied != nil {
		g.OnDenied(key)
	}
	return false, wait
}

func (g *FloodGuard) waitLocked(v *visitor, now time.Time) time.Duration {
	if g.perSecond <= 0 {
		return time.Minute
	}
	missing := 1 - v.limiter.TokensAt(now)
	return time.Duration(missing / float64(g.perSecond) * float64(time.Second))
}

// Len reports the number of tracked clients.
func (g *FloodGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.visitors)
}

// cleanup evicts clients idle for longer than the TTL, every TTL/2.
func (g *FloodGuard) cleanup(ctx context.Context) {
	ticker := time.NewTicker(g.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.evictIdle(g.now())
		}
	}
}

func (g *FloodGuard) evictIdle(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for key, v := range g.visitors {
		if now.Sub(v.lastSeen) > g.ttl {
			delete(g.visitors, key)
			n++
		}
	}
	return n
}

// Middleware rejects clients over their flood budget with 429.
func (g *FloodGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := g.Allow(httpmw.ResolveClientKey(r))
		if !ok {
			secs := max(int(math.Ceil(wait.Seconds())), 1)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			respond.Error(w, http.StatusTooManyRequests, LimitedMessage)
			return
		}
		next.ServeHTTP(w, r)
	})
}
