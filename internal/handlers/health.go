package handlers

import "net/http"

// HealthHandler responds with service health information.
type HealthHandler struct {
	// DatabaseReady reports whether the database handle has been dialed.
	DatabaseReady func() bool
}

// Handle implements GET /healthz. The database is dialed lazily, so an idle
// handle is still healthy.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	database := "idle"
	if h.DatabaseReady != nil && h.DatabaseReady() {
		database = "connected"
	}

	respondJSON(r.Context(), w, http.StatusOK, map[string]string{
		"status":   "ok",
		"database": database,
	})
}
