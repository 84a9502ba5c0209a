package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/easytips/easytips/internal/domain"
	"github.com/easytips/easytips/internal/gateway"
	"github.com/easytips/easytips/internal/service"
	"github.com/easytips/easytips/pkg/config"
	"github.com/easytips/easytips/pkg/logger"
)

type Handlers struct {
	auth     service.AuthService
	payments service.PaymentService
	gateway  gateway.PaymentGateway
	config   *config.Config
}

func NewHandlers(auth service.AuthService, payments service.PaymentService, gw gateway.PaymentGateway, cfg *config.Config) *Handlers {
	return &Handlers{
		auth:     auth,
		payments: payments,
		gateway:  gw,
		config:   cfg,
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			logger.Error("Failed to encode response", "error", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeServiceError maps domain sentinels to HTTP statuses. Anything
// unrecognized is a 500 with a generic body; the detail stays in the logs.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error(), "validation_failed")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found", "not_found")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, domain.ErrInvalidCredential):
		writeError(w, http.StatusUnauthorized, "invalid credentials", "invalid_credentials")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error(), "conflict")
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, "insufficient funds", "insufficient_funds")
	case errors.Is(err, domain.ErrGateway):
		logger.ErrorContext(r.Context(), "Payment gateway error", "error", err)
		writeError(w, http.StatusBadGateway, "payment provider unavailable", "gateway_error")
	default:
		logger.ErrorContext(r.Context(), "Request failed", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal server error", "internal")
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
