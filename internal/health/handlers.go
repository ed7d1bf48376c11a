package health

import (
	"net/http"

	"github.com/keithlinneman/tripdesk/internal/respond"
)

type status struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// HealthzHandler answers liveness: 200 {"status":"ok"} or 503 with the reason.
// A nil probe is always healthy.
func HealthzHandler(p Probe) http.HandlerFunc {
	return handler(p, "ok", "unhealthy")
}

// ReadyzHandler answers readiness: 200 {"status":"ready"} or 503 with the reason.
func ReadyzHandler(p Probe) http.HandlerFunc {
	return handler(p, "ready", "not ready")
}

func handler(p Probe, ok, fail string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				respond.JSON(w, http.StatusServiceUnavailable, status{Status: fail, Reason: err.Error()})
				return
			}
		}
		respond.JSON(w, http.StatusOK, status{Status: ok})
	}
}
