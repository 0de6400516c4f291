package handlers

import (
	"net/http"

	"parkgate/internal/service"
)

// NewActiveSessionsHandler returns GET /sessions/active handler.
func NewActiveSessionsHandler(svc *service.ParkingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := svc.ActiveSessions(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to fetch active sessions")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"sessions": sessions,
		})
	}
}

// NewOccupancyHandler returns GET /occupancy handler.
func NewOccupancyHandler(svc *service.ParkingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"zones": svc.Occupancy(),
		})
	}
}
