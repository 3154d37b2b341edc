package httpapi

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Records   int    `json:"records,omitempty"`
}

// handleHealth reports the Durable Store's own write-then-delete probe
// result; a store that can't write to its backing directory is a 503, not a
// 200 with a status field buried in the body.
func (d *Deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy, count, err := d.Store.HealthCheck()
	if !healthy {
		if d.Logger != nil {
			d.Logger.WithError(err).Warn("store health check failed")
		}
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:    "unhealthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
			Records:   count,
		})
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
		Records:   count,
	})
}
