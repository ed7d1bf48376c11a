package opshttp

import (
	"net/http"
	"time"

	"github.com/keithlinneman/tripdesk/internal/health"
	"github.com/keithlinneman/tripdesk/internal/version"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// Build is served on /version. Zero means version.Get().
	Build     version.Info
	StartedAt time.Time
	// AllowPublic skips the private-network check. Only for local development.
	AllowPublic  bool
	UseRecoverMW bool
	OnPanic      func()
}
