// Package ratelimit enforces per-client, per-category request budgets with a
// sliding-window log.
//
// Every accepted request for a (client, category) pair records its timestamp.
// A request is limited when the pair already holds Limit timestamps younger
// than Window. Rejected attempts are not recorded, so a client hammering a
// limited endpoint does not push its own reset further out.
//
// # Single instance, in memory
//
// State lives in one process-wide table behind one mutex. Nothing is shared
// between replicas, so N replicas allow up to N times the budget. Empty keys
// are removed lazily by Check itself once per sweep interval; there is no
// background goroutine.
//
// What this does NOT protect against:
//   - distributed attacks across many client keys
//   - spoofed X-Forwarded-For when nothing upstream overwrites it
//   - bandwidth-bill attacks, the body is already accepted when this runs
//
// FloodGuard is a separate, coarser token bucket per client that can sit in
// front of the category limits to shed bursts before routing.
package ratelimit
