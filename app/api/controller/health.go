package controller

import (
	"net/http"
)

// HandleHealth reports liveness plus the health of the optional backends.
func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{"engine": "ok"}
	healthy := true

	if c.App.HistoryDB != nil {
		if err := c.App.HistoryDB.Ping(r.Context()); err != nil {
			components["clickhouse"] = "unreachable"
			healthy = false
		} else {
			components["clickhouse"] = "ok"
		}
	}
	if c.App.RedisClient != nil {
		if err := c.App.RedisClient.Health(r.Context()); err != nil {
			components["redis"] = "unreachable"
			healthy = false
		} else {
			components["redis"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"healthy": healthy, "components": components})
}

// HandleReady reports readiness to take traffic.
func (c *Controller) HandleReady(w http.ResponseWriter, _ *http.Request) {
	if c.App.Vault == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not initialized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
