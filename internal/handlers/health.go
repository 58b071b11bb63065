package handlers

import (
	"net/http"
	"time"

	applog "makecoffee/internal/log"
)

type healthResponse struct {
	Status   string    `json:"status"`
	Services bool      `json:"services"`
	Time     time.Time `json:"time"`
}

// Health is a liveness probe. It always answers 200; Status is "degraded"
// when the domain services are not wired.
func Health(w http.ResponseWriter, r *http.Request) {
	ready := catalogService != nil && recipeService != nil && accountService != nil
	resp := healthResponse{
		Status:   "ok",
		Services: ready,
		Time:     time.Now().UTC(),
	}
	if !ready {
		resp.Status = "degraded"
	}
	applog.Debug(r.Context(), "health check requested", "method", r.Method, "services", ready)
	writeJSON(w, http.StatusOK, resp)
}
