package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock shared by limiter tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(clk *fakeClock, opts ...Option) *Limiter {
	return New(append([]Option{WithClock(clk.Now)}, opts...)...)
}

func TestCheck_AllowsUpToLimit(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(clk)

	for i := 0; i < 10; i++ {
		d := l.Check("203.0.113.1", Auth)
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if d.Limit != 10 {
			t.Fatalf("Limit = %d, want 10", d.Limit)
		}
		if want := 10 - (i + 1); d.Remaining != want {
			t.Fatalf("request %d: Remaining = %d, want %d", i+1, d.Remaining, want)
		}
	}

	d := l.Check("203.0.113.1", Auth)
	if d.Allowed {
		t.Fatal("11th request should be limited")
	}
	if d.Remaining != 0 {
		t.Fatalf("Remaining = %d, want 0", d.Remaining)
	}
}

func TestCheck_SlidingWindow(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(clk)

	for i := 0; i < 10; i++ {
		l.Check("203.0.113.1", Auth)
	}

	clk.Advance(59 * time.Second)
	if l.Check("203.0.113.1", Auth).Allowed {
		t.Fatal("at t=59s the window still holds 10 requests")
	}

	clk.Advance(2 * time.Second)
	if !l.Check("203.0.113.1", Auth).Allowed {
		t.Fatal("at t=61s the first requests have aged out")
	}
}

func TestCheck_TimestampExactlyOneWindowOldAgesOut(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(clk)

	for i := 0; i < 5; i++ {
		l.Check("k", Sensitive)
	}
	clk.Advance(time.Minute)

	d := l.Check("k", Sensitive)
	if !d.Allowed {
		t.Fatal("requests exactly one window old should no longer count")
	}
	if d.Remaining != 4 {
		t.Fatalf("Remaining = %d, want 4", d.Remaining)
	}
}

func TestCheck_RetryAfterAndReset(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(clk)
	start := clk.Now().Unix()

	for i := 0; i < 5; i++ {
		l.Check("k", Sensitive)
	}
	clk.Advance(20*time.Second + 500*time.Millisecond)

	d := l.Check("k", Sensitive)
	if d.Allowed {
		t.Fatal("should be limited")
	}
	if d.RetryAfter != 40 {
		t.Fatalf("RetryAfter = %d, want 40 (ceil of 39.5s)", d.RetryAfter)
	}
	if d.Reset != start+60 {
		t.Fatalf("Reset = %d, want %d", d.Reset, start+60)
	}
}

func TestCheck_RetryAfterAtLeastOne(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(clk)

	for i := 0; i < 5; i++ {
		l.Check("k", Sensitive)
	}
	clk.Advance(time.Minute - time.Millisecond)

	d := l.Check("k", Sensitive)
	if d.Allowed {
		t.Fatal("should be limited one millisecond before expiry")
	}
	if d.RetryAfter != 1 {
		t.Fatalf("RetryAfter = %d, want 1", d.RetryAfter)
	}
}

func TestCheck_RejectedAttemptsNotRecorded(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(clk)

	for i := 0; i < 5; i++ {
		l.Check("k", Sensitive)
	}

	clk.Advance(30 * time.Second)
	for i := 0; i < 5; i++ {
		if l.Check("k", Sensitive).Allowed {
			t.Fatal("should be limited mid-window")
		}
	}

	clk.Advance(31 * time.Second)
	d := l.Check("k", Sensitive)
	if !d.Allowed {
		t.Fatal("rejected attempts must not extend the window")
	}
	if d.Remaining != 4 {
		t.Fatalf("Remaining = %d, want 4", d.Remaining)
	}
}

func TestCheck_CategoriesIndependent(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(clk)

	for i := 0; i < 5; i++ {
		l.Check("k", Sensitive)
	}
	if l.Check("k", Sensitive).Allowed {
		t.Fatal("sensitive should be exhausted")
	}
	if !l.Check("k", Read).Allowed {
		t.Fatal("read budget is separate from sensitive")
	}
	if !l.Check("k", Write).Allowed {
		t.Fatal("write budget is separate from sensitive")
	}
}

func TestCheck_ClientsIndependent(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(clk)

	for i := 0; i < 10; i++ {
		l.Check("203.0.113.1", Auth)
	}
	if l.Check("203.0.113.1", Auth).Allowed {
		t.Fatal("client 1 should be limited")
	}
	if !l.Check("203.0.113.2", Auth).Allowed {
		t.Fatal("client 2 has its own budget")
	}
}

func TestCheck_UnknownCategoryUsesSensitive(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(clk)

	d := l.Check("k", Category("bogus"))
	if d.Limit != 5 {
		t.Fatalf("Limit = %d, want the sensitive limit 5", d.Limit)
	}
	for i := 0; i < 4; i++ {
		l.Check("k", Sensitive)
	}
	if l.Check("k", Category("other")).Allowed {
		t.Fatal("unknown categories draw from the sensitive budget")
	}
}

func TestCheck_Concurrent(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(clk)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("203.0.113.1", Write).Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 30 {
		t.Fatalf("allowed = %d, want exactly 30", got)
	}
}

func TestHooks_FirstDeniedOncePerKey(t *testing.T) {
	clk := newFakeClock()
	var first, every atomic.Int32
	var gotKey string
	var gotCat Category
	l := newTestLimiter(clk,
		WithOnFirstDenied(func(key string, c Category) {
			first.Add(1)
			gotKey, gotCat = key, c
		}),
		WithOnDenied(func(key string, c Category) { every.Add(1) }),
	)

	for i := 0; i < 5; i++ {
		l.Check("k", Sensitive)
	}
	for i := 0; i < 3; i++ {
		l.Check("k", Sensitive)
	}

	if got := first.Load(); got != 1 {
		t.Fatalf("OnFirstDenied = %d, want 1", got)
	}
	if got := every.Load(); got != 3 {
		t.Fatalf("OnDenied = %d, want 3", got)
	}
	if gotKey != "k" || gotCat != Sensitive {
		t.Fatalf("hook args = %q %q", gotKey, gotCat)
	}
}

func TestHooks_FirstDeniedResetsAfterSweep(t *testing.T) {
	clk := newFakeClock()
	var first atomic.Int32
	l := newTestLimiter(clk, WithOnFirstDenied(func(string, Category) { first.Add(1) }))

	for i := 0; i < 6; i++ {
		l.Check("k", Sensitive)
	}
	clk.Advance(2 * time.Minute)
	for i := 0; i < 6; i++ {
		l.Check("k", Sensitive)
	}

	if got := first.Load(); got != 2 {
		t.Fatalf("OnFirstDenied = %d, want 2", got)
	}
}

func TestNilHooks_NoPanic(t *testing.T) {
	l := newTestLimiter(newFakeClock())
	for i := 0; i < 7; i++ {
		l.Check("k", Sensitive)
	}
}

func TestSweep_EvictsEmptyKeys(t *testing.T) {
	clk := newFakeClock()
	var evicted, remaining int
	var sweeps int
	l := newTestLimiter(clk, WithOnSweep(func(e, r int) {
		sweeps++
		evicted, remaining = e, r
	}))

	l.Check("a", Read)
	l.Check("b", Read)
	l.Check("b", Write)
	if got := l.Len(); got != 3 {
		t.Fatalf("Len = %d, want 3", got)
	}

	clk.Advance(61 * time.Second)
	l.Check("c", Read)

	if sweeps != 1 {
		t.Fatalf("sweeps = %d, want 1", sweeps)
	}
	if evicted != 3 || remaining != 0 {
		t.Fatalf("evicted=%d remaining=%d, want 3 and 0", evicted, remaining)
	}
	if got := l.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
}

func TestSweep_KeepsActiveKeys(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(clk)

	l.Check("old", Read)
	clk.Advance(30 * time.Second)
	l.Check("active", Read)
	clk.Advance(31 * time.Second)
	l.Check("active", Read)

	st := l.Stats()
	if st.Keys != 1 || st.ByCategory[Read] != 1 {
		t.Fatalf("stats = %+v, want only the active key", st)
	}
}

func TestSweep_IntervalNotBelowLongestWindow(t *testing.T) {
	clk := newFakeClock()
	var sweeps int
	l := newTestLimiter(clk,
		WithSweepInterval(time.Second),
		WithOnSweep(func(int, int) { sweeps++ }),
	)

	l.Check("a", Read)
	clk.Advance(5 * time.Second)
	l.Check("a", Read)

	if sweeps != 0 {
		t.Fatalf("sweeps = %d, interval should be raised to the longest window", sweeps)
	}
	if l.sweepInterval != time.Minute {
		t.Fatalf("sweepInterval = %v, want 1m", l.sweepInterval)
	}
}

func TestSweep_LongerIntervalHonoured(t *testing.T) {
	clk := newFakeClock()
	var sweeps int
	l := newTestLimiter(clk,
		WithSweepInterval(5*time.Minute),
		WithOnSweep(func(int, int) { sweeps++ }),
	)

	clk.Advance(2 * time.Minute)
	l.Check("a", Read)
	if sweeps != 0 {
		t.Fatal("no sweep before the configured interval")
	}
	clk.Advance(3 * time.Minute)
	l.Check("a", Read)
	if sweeps != 1 {
		t.Fatalf("sweeps = %d, want 1", sweeps)
	}
}

func TestWithPolicies(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(clk, WithPolicies(map[Category]Policy{
		Read:  {Limit: 2, Window: 10 * time.Second},
		Write: {Limit: 0, Window: time.Minute},
	}))

	p := l.Policies()
	if p[Read] != (Policy{Limit: 2, Window: 10 * time.Second}) {
		t.Fatalf("read policy = %+v", p[Read])
	}
	if _, ok := p[Write]; ok {
		t.Fatal("invalid policy should be dropped")
	}
	if p[Sensitive] != defaultPolicies[Sensitive] {
		t.Fatal("sensitive policy must always be present")
	}

	l.Check("k", Read)
	l.Check("k", Read)
	if l.Check("k", Read).Allowed {
		t.Fatal("custom read limit of 2 should apply")
	}
	if d := l.Check("k", Write); d.Limit != 5 {
		t.Fatalf("dropped write policy should fall back to sensitive, got limit %d", d.Limit)
	}
}

func TestDefaultPolicies(t *testing.T) {
	want := map[Category]int{Auth: 10, Read: 60, Write: 30, Sensitive: 5}
	for c, limit := range want {
		p, ok := PolicyFor(c)
		if !ok {
			t.Fatalf("PolicyFor(%q) missing", c)
		}
		if p.Limit != limit || p.Window != time.Minute {
			t.Errorf("%s = %+v, want %d/1m", c, p, limit)
		}
	}
	if _, ok := PolicyFor("bogus"); ok {
		t.Fatal("unknown category should not resolve")
	}
}

func TestDefaultPolicies_IsCopy(t *testing.T) {
	p := DefaultPolicies()
	p[Read] = Policy{Limit: 1, Window: time.Second}
	delete(p, Auth)

	if got, _ := PolicyFor(Read); got.Limit != 60 {
		t.Fatal("mutating the returned map changed the built-in table")
	}
	if _, ok := PolicyFor(Auth); !ok {
		t.Fatal("deleting from the returned map changed the built-in table")
	}
}
