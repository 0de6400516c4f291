package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"parkgate/internal/service"
)

// NewPaymentsHandler returns POST /payments handler.
func NewPaymentsHandler(svc *service.ParkingService, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		Plate string `json:"plate"`
	}
	type response struct {
		Plate  string  `json:"plate"`
		Amount float64 `json:"amount"`
		Paid   bool    `json:"paid"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}

		amount, err := svc.Pay(r.Context(), req.Plate)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrEmptyPlate):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, service.ErrSessionNotFound):
				writeError(w, http.StatusNotFound, "no active session for plate")
			default:
				logger.Error("payment failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to record payment")
			}
			return
		}
		writeJSON(w, http.StatusOK, response{Plate: req.Plate, Amount: amount, Paid: true})
	}
}

// NewFeePreviewHandler returns GET /payments/preview handler. Read-only, lets
// the operator quote the current fee without settling it.
func NewFeePreviewHandler(svc *service.ParkingService, logger *zap.Logger) http.HandlerFunc {
	type response struct {
		Plate  string  `json:"plate"`
		Amount float64 `json:"amount"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		plate := r.URL.Query().Get("plate")

		amount, err := svc.PreviewFee(r.Context(), plate)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrEmptyPlate):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, service.ErrSessionNotFound):
				writeError(w, http.StatusNotFound, "no active session for plate")
			default:
				logger.Error("fee preview failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to compute fee")
			}
			return
		}
		writeJSON(w, http.StatusOK, response{Plate: plate, Amount: amount})
	}
}
