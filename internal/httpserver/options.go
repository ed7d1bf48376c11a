package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/tripdesk/internal/health"
	"github.com/keithlinneman/tripdesk/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()

	MetricsMW func(http.Handler) http.Handler
	// FloodMW runs before routing, after the client key is resolved.
	FloodMW func(http.Handler) http.Handler

	Health    health.Probe
	Readiness health.Probe

	// APIRoutes registers the application routes on the router.
	APIRoutes func(chi.Router)

	// MaxBodyBytes is the hard cap for any request body; 0 uses DefaultMaxBodyBytes.
	MaxBodyBytes int64
}
