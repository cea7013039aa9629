package http

import (
	"context"
	"net/http"
	"time"
)

// readyTimeout bounds all readiness checks of one probe.
const readyTimeout = 5 * time.Second

// Check is one dependency probed by the readiness endpoint.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Health returns a liveness handler reporting a fixed identity.
func Health(agent string) http.HandlerFunc {
	body := map[string]string{"status": "healthy", "agent": agent}
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, body)
	}
}

type readyResponse struct {
	Status string            `json:"status"`
	Agent  string            `json:"agent"`
	Checks map[string]string `json:"checks"`
}

// Ready returns a readiness handler that runs every check and answers 503
// if any of them fails.
func Ready(agent string, checks []Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		resp := readyResponse{Status: "ready", Agent: agent, Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for _, c := range checks {
			if err := c.Fn(ctx); err != nil {
				resp.Checks[c.Name] = err.Error()
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name] = "ok"
		}
		writeJSON(w, status, resp)
	}
}
