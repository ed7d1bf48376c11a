package opshttp

import (
	"net/http"
	"time"

	"github.com/keithlinneman/tripdesk/internal/respond"
	"github.com/keithlinneman/tripdesk/internal/version"
)

type versionResponse struct {
	version.Info
	StartedAt     time.Time `json:"started_at"`
	ServerTime    time.Time `json:"server_time"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}

// versionHandler reports build metadata and process uptime.
func versionHandler(info version.Info, started time.Time, now func() time.Time) http.Handler {
	if now == nil {
		now = time.Now
	}
	if started.IsZero() {
		started = now()
	}
	started = started.UTC().Truncate(time.Second)
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t := now().UTC().Truncate(time.Second)
		w.Header().Set("Cache-Control", "no-cache")
		respond.JSON(w, http.StatusOK, versionResponse{
			Info:          info,
			StartedAt:     started,
			ServerTime:    t,
			UptimeSeconds: int64(t.Sub(started) / time.Second),
		})
	})
}
