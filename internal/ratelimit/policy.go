package ratelimit

import (
	"maps"
	"time"
)

// Category groups endpoints that share a budget.
type Category string

const (
	Auth      Category = "auth"
	Read      Category = "read"
	Write     Category = "write"
	Sensitive Category = "sensitive"
)

// Policy allows Limit accepted requests in any Window.
type Policy struct {
	Limit  int           `json:"limit"`
	Window time.Duration `json:"window"`
}

func (p Policy) valid() bool {
	return p.Limit > 0 && p.Window >= time.Millisecond
}

var defaultPolicies = map[Category]Policy{
	Auth:      {Limit: 10, Window: time.Minute},
	Read:      {Limit: 60, Window: time.Minute},
	Write:     {Limit: 30, Window: time.Minute},
	Sensitive: {Limit: 5, Window: time.Minute},
}

// DefaultPolicies returns a copy of the built-in table.
func DefaultPolicies() map[Category]Policy {
	return maps.Clone(defaultPolicies)
}

// PolicyFor looks up the built-in policy for c.
func PolicyFor(c Category) (Policy, bool) {
	p, ok := defaultPolicies[c]
	return p, ok
}

// Categories lists the built-in categories from most to least permissive.
func Categories() []Category {
	return []Category{Read, Write, Auth, Sensitive}
}
