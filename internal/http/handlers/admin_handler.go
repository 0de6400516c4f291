package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"parkgate/internal/service"
)

// AdminHandler holds operator-only override endpoints.
type AdminHandler struct {
	svc    *service.ParkingService
	logger *zap.Logger
}

// NewAdminHandler builds handler set.
func NewAdminHandler(svc *service.ParkingService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		svc:    svc,
		logger: logger,
	}
}

type forceExitRequest struct {
	Plate string `json:"plate"`
}

type manualOpenRequest struct {
	Zone string `json:"zone"`
}

// HandleForceExit handles POST /admin/force-exit.
func (h *AdminHandler) HandleForceExit(w http.ResponseWriter, r *http.Request) {
	var req forceExitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := h.svc.ForceExit(r.Context(), req.Plate)
	if err != nil {
		if errors.Is(err, service.ErrEmptyPlate) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("force exit failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to force exit")
		return
	}
	if !result.OK {
		writeJSON(w, http.StatusNotFound, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleManualOpen handles POST /admin/gate/open.
func (h *AdminHandler) HandleManualOpen(w http.ResponseWriter, r *http.Request) {
	var req manualOpenRequest
	// Body is optional, an empty request opens the default zone's gate.
	_ = json.NewDecoder(r.Body).Decode(&req)

	writeJSON(w, http.StatusOK, h.svc.ManualOpen(req.Zone))
}

// HandleEvacuate handles POST /admin/evacuate.
func (h *AdminHandler) HandleEvacuate(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.EmergencyEvacuation(r.Context())
	if err != nil {
		h.logger.Error("evacuation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to evacuate")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
