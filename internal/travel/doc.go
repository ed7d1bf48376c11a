// Package travel holds trips and the records hanging off them in memory.
//
// Trips belong to an account and are invisible to every other account: a
// lookup across accounts reports ErrNotFound exactly like a missing id.
// Trip ids are UUIDs; expense, attachment and feedback ids are CUID-style
// ("c" followed by 24 lowercase base32 characters).
package travel
