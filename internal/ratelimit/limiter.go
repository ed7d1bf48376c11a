package ratelimit

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// Decision is the outcome of one Check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is whole seconds until the oldest counted request ages out,
	// at least 1. Zero when allowed.
	RetryAfter int
	// Reset is the epoch second at which the oldest counted request ages out.
	Reset int64
}

type bucketKey struct {
	client   string
	category Category
}

// bucket holds accepted-request timestamps in unix milliseconds
type bucket struct {
	stamps []int64
	// logged tracks whether the first-denial hook has fired for this key.
	// Resets when the key is swept and re-created.
	logged bool
}

// Limiter is the process-wide sliding-window table.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[bucketKey]*bucket
	lastSweep int64

	policies      map[Category]Policy
	now           func() time.Time
	sweepInterval time.Duration

	// OnDenied is called on every limited request, after the lock is released
	OnDenied func(key string, c Category)

	// OnFirstDenied is called once per key until that key is swept
	OnFirstDenied func(key string, c Category)

	// OnSweep reports how many keys a sweep evicted and how many remain
	OnSweep func(evicted, remaining int)
}

type Option func(*Limiter)

// WithPolicies replaces the policy table. Entries with a non-positive limit
// or a window under a millisecond are ignored. A table without Sensitive
// keeps the built-in sensitive policy since unknown categories resolve to it.
func WithPolicies(p map[Category]Policy) Option {
	return func(l *Limiter) {
		table := make(map[Category]Policy, len(p)+1)
		for c, pol := range p {
			if pol.valid() {
				table[c] = pol
			}
		}
		if _, ok := table[Sensitive]; !ok {
			table[Sensitive] = defaultPolicies[Sensitive]
		}
		l.policies = table
	}
}

// WithClock overrides time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithSweepInterval sets how often Check prunes the whole table. Values
// below the longest policy window are raised to it.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		l.sweepInterval = d
	}
}

// WithOnDenied sets a callback for every denied request. used for incrementing prometheus counters
func WithOnDenied(fn func(key string, c Category)) Option {
	return func(l *Limiter) {
		l.OnDenied = fn
	}
}

// WithOnFirstDenied sets a callback for the first denial per key, used for logging.
// Separate from OnDenied so a persistent offender logs once but is still counted on every denial.
func WithOnFirstDenied(fn func(key string, c Category)) Option {
	return func(l *Limiter) {
		l.OnFirstDenied = fn
	}
}

func WithOnSweep(fn func(evicted, remaining int)) Option {
	return func(l *Limiter) {
		l.OnSweep = fn
	}
}

// New builds a Limiter with the default policies unless overridden.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		buckets:  make(map[bucketKey]*bucket),
		policies: DefaultPolicies(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	if longest := l.longestWindow(); l.sweepInterval < longest {
		l.sweepInterval = longest
	}
	l.lastSweep = l.now().UnixMilli()
	return l
}

func (l *Limiter) longestWindow() time.Duration {
	var longest time.Duration
	for _, p := range l.policies {
		longest = max(longest, p.Window)
	}
	return longest
}

// resolve maps unknown categories onto Sensitive so a typo in a route table
// fails closed.
func (l *Limiter) resolve(c Category) (Category, Policy) {
	if p, ok := l.policies[c]; ok {
		return c, p
	}
	return Sensitive, l.policies[Sensitive]
}

// Policies returns a copy of the effective policy table.
func (l *Limiter) Policies() map[Category]Policy {
	return maps.Clone(l.policies)
}

// Check records an attempt by key against category c and reports whether it
// is allowed. The prune, count and append happen under one lock so
// concurrent requests from the same client can not overshoot the limit.
func (l *Limiter) Check(key string, c Category) Decision {
	c, p := l.resolve(c)
	now := l.now().UnixMilli()
	window := p.Window.Milliseconds()

	l.mu.Lock()
	evicted, remaining, swept := l.maybeSweepLocked(now)

	bk := bucketKey{client: key, category: c}
	b := l.buckets[bk]
	if b == nil {
		b = &bucket{}
		l.buckets[bk] = b
	}
	b.stamps = prune(b.stamps, now-window)

	if len(b.stamps) >= p.Limit {
		earliest := slices.Min(b.stamps)
		first := !b.logged
		b.logged = true
		l.mu.Unlock()

		l.afterSweep(swept, evicted, remaining)
		if first && l.OnFirstDenied != nil {
			l.OnFirstDenied(key, c)
		}
		if l.OnDenied != nil {
			l.OnDenied(key, c)
		}
		return Decision{
			Allowed:    false,
			Limit:      p.Limit,
			Remaining:  0,
			RetryAfter: retryAfter(now, earliest, window),
			Reset:      ceilDiv(earliest+window, 1000),
		}
	}

	b.stamps = append(b.stamps, now)
	left := p.Limit - len(b.stamps)
	earliest := slices.Min(b.stamps)
	l.mu.Unlock()

	l.afterSweep(swept, evicted, remaining)
	return Decision{
		Allowed:   true,
		Limit:     p.Limit,
		Remaining: left,
		Reset:     ceilDiv(earliest+window, 1000),
	}
}

// Len reports the number of tracked (client, category) keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stats is a point-in-time view of the table for the admin endpoint.
type Stats struct {
	Keys       int              `json:"keys"`
	ByCategory map[Category]int `json:"by_category"`
	LastSweep  time.Time        `json:"last_sweep"`
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	by := make(map[Category]int, len(l.policies))
	for k := range l.buckets {
		by[k.category]++
	}
	return Stats{
		Keys:       len(l.buckets),
		ByCategory: by,
		LastSweep:  time.UnixMilli(l.lastSweep).UTC(),
	}
}

// maybeSweepLocked prunes every key and drops the empty ones once per sweep
// interval. Caller holds l.mu.
func (l *Limiter) maybeSweepLocked(now int64) (evicted, remaining int, swept bool) {
	if now-l.lastSweep < l.sweepInterval.Milliseconds() {
		return 0, 0, false
	}
	l.lastSweep = now
	for k, b := range l.buckets {
		_, p := l.resolve(k.category)
		b.stamps = prune(b.stamps, now-p.Window.Milliseconds())
		if len(b.stamps) == 0 {
			delete(l.buckets, k)
			evicted++
		}
	}
	return evicted, len(l.buckets), true
}

func (l *Limiter) afterSweep(swept bool, evicted, remaining int) {
	if swept && l.OnSweep != nil {
		l.OnSweep(evicted, remaining)
	}
}

// prune drops timestamps at or before cutoff. A request exactly one window
// old no longer counts.
func prune(stamps []int64, cutoff int64) []int64 {
	return slices.DeleteFunc(stamps, func(ts int64) bool { return ts <= cutoff })
}

func retryAfter(now, earliest, window int64) int {
	return int(max(ceilDiv(window-(now-earliest), 1000), 1))
}

// ceilDiv rounds a/b up for non-negative b.
func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b > 0 {
		q++
	}
	return q
}
