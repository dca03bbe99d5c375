package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/fanmate/platform/internal"
	"github.com/fanmate/platform/internal/transport"
)

type Handler struct {
	transport.BaseHandler
	Service *Service
	Logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		Service: service,
		Logger:  logger,
	}
}

// PreparePayment handles POST /api/v1/payments/prepare
func (h *Handler) PreparePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken))
		return
	}

	var req PrepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("PreparePayment: failed to parse request body", "error", err)
		h.HandleError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	result, err := h.Service.Prepare(r.Context(), req, userID)
	if err != nil {
		h.Logger.Error("PreparePayment: service error", "error", err, "party_id", req.PartyID, "user_id", userID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, result)
}

// ConfirmPayment handles POST /api/v1/payments/confirm
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken))
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("ConfirmPayment: failed to parse request body", "error", err)
		h.HandleError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	result, err := h.Service.Confirm(r.Context(), req, userID)
	if err != nil {
		h.Logger.Error("ConfirmPayment: service error",
			"error", err,
			"order_id", req.OrderID,
			"user_id", userID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

// CancelPayment handles POST /api/v1/payments/{intentID}/cancel
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken))
		return
	}

	intentID, err := strconv.ParseInt(chi.URLParam(r, "intentID"), 10, 64)
	if err != nil {
		h.HandleError(w, internal.NewValidationError("invalid intent ID", internal.ErrCodeValidationFailed))
		return
	}

	var req CancelRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.Logger.Error("CancelPayment: failed to parse request body", "error", err)
			h.HandleError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
			return
		}
	}

	if err := h.Service.Cancel(r.Context(), intentID, userID, req); err != nil {
		h.Logger.Error("CancelPayment: service error", "error", err, "intent_id", intentID, "user_id", userID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "canceled",
		"intentId": intentID,
	})
}
