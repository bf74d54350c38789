package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"procsim/internal/service"
)

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Active    int    `json:"active,omitempty"`
	Total     int    `json:"total,omitempty"`
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// ReadyCheck reports ready once the poller has completed a tick.
func ReadyCheck(pm *service.ProcessManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active, total := pm.GetStats()
		resp := HealthResponse{Status: "ready", Active: active, Total: total}
		if !pm.Polled() {
			resp.Status = "starting"
			writeHealth(w, http.StatusServiceUnavailable, resp)
			return
		}
		writeHealth(w, http.StatusOK, resp)
	}
}

func writeHealth(w http.ResponseWriter, status int, resp HealthResponse) {
	resp.Timestamp = time.Now().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
