package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"parkgate/internal/service"
)

// GateHandler holds the endpoints fed by the recognition pipeline.
type GateHandler struct {
	svc    *service.ParkingService
	logger *zap.Logger
}

// NewGateHandler builds handler set.
func NewGateHandler(svc *service.ParkingService, logger *zap.Logger) *GateHandler {
	return &GateHandler{
		svc:    svc,
		logger: logger,
	}
}

type entryRequest struct {
	Plate     string `json:"plate"`
	Zone      string `json:"zone"`
	ImagePath string `json:"image_path"`
}

type exitRequest struct {
	Plate string `json:"plate"`
}

// HandleEntry handles POST /gate/entry.
func (h *GateHandler) HandleEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := h.svc.ProcessEntry(r.Context(), req.Plate, req.Zone, req.ImagePath)
	if err != nil {
		if errors.Is(err, service.ErrEmptyPlate) || errors.Is(err, service.ErrUnknownZone) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("entry processing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process entry")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleExit handles POST /gate/exit.
func (h *GateHandler) HandleExit(w http.ResponseWriter, r *http.Request) {
	var req exitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := h.svc.ProcessExit(r.Context(), req.Plate)
	if err != nil {
		if errors.Is(err, service.ErrEmptyPlate) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("exit processing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process exit")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
