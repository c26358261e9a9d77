package pricing

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/haulpoint/backend-haul/internal/common"
	"github.com/haulpoint/backend-haul/internal/obs"
)

// Handler exposes the public estimate endpoint.
type Handler struct {
	Svc *Service
}

type estimateRequest struct {
	Items []CartLine `json:"items"`
}

// Estimate prices a cart without persisting anything.
func (h Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing service not configured", nil)
		return
	}
	var payload estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if len(payload.Items) == 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "at least one item is required", nil)
		return
	}
	est, err := h.Svc.EstimateCart(r.Context(), payload.Items)
	if err != nil {
		writeEstimateError(w, err)
		return
	}
	if obs.QuoteEstimatesTotal != nil {
		obs.QuoteEstimatesTotal.WithLabelValues(string(est.Breakdown.LoadSize)).Inc()
	}
	common.Data(w, http.StatusOK, est)
}

func writeEstimateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownItem):
		common.JSONError(w, http.StatusBadRequest, "UNKNOWN_ITEM", "cart references an unknown item", nil)
	case errors.Is(err, ErrInactiveItem):
		common.JSONError(w, http.StatusBadRequest, "INACTIVE_ITEM", "cart references an inactive item", nil)
	case errors.Is(err, ErrInvalidQuantity):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "quantities must be positive", nil)
	default:
		common.JSONError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "pricing temporarily unavailable", nil)
	}
}
