package quote

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/haulpoint/backend-haul/internal/common"
	"github.com/haulpoint/backend-haul/internal/obs"
	"github.com/haulpoint/backend-haul/internal/pricing"
)

// Handler exposes quote submission and admin endpoints.
type Handler struct {
	Svc *Service
}

// Submit prices the cart, persists the quote request and returns the
// estimate.
func (h Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	var payload SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	submitted, err := h.Svc.Submit(r.Context(), payload)
	if err != nil {
		writeSubmitError(w, err)
		return
	}
	if obs.QuoteRequestsTotal != nil {
		obs.QuoteRequestsTotal.WithLabelValues("accepted").Inc()
	}
	common.Data(w, http.StatusCreated, submitted)
}

// AdminList returns quote requests filtered by status, newest first.
func (h Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	quotes, err := h.Svc.List(r.Context(), status, limit, offset)
	if err != nil {
		var invalid *ValidationError
		if errors.As(err, &invalid) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown status filter", invalid.Fields)
			return
		}
		common.JSONError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "quote store temporarily unavailable", nil)
		return
	}
	if quotes == nil {
		quotes = []Request{}
	}
	common.Data(w, http.StatusOK, quotes)
}

type statusRequest struct {
	Status string `json:"status"`
}

// AdminUpdateStatus moves a quote request through its lifecycle.
func (h Handler) AdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid quote id", nil)
		return
	}
	var payload statusRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Svc.UpdateStatus(r.Context(), id, payload.Status); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "quote request not found", nil)
		default:
			var invalid *ValidationError
			if errors.As(err, &invalid) {
				common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown status", invalid.Fields)
				return
			}
			common.JSONError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "quote store temporarily unavailable", nil)
		}
		return
	}
	common.Data(w, http.StatusOK, map[string]string{"id": id.String(), "status": strings.ToLower(strings.TrimSpace(payload.Status))})
}

func writeSubmitError(w http.ResponseWriter, err error) {
	var invalid *ValidationError
	switch {
	case errors.As(err, &invalid):
		if obs.QuoteRequestsTotal != nil {
			obs.QuoteRequestsTotal.WithLabelValues("invalid").Inc()
		}
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "submission failed validation", invalid.Fields)
	case errors.Is(err, pricing.ErrUnknownItem):
		common.JSONError(w, http.StatusBadRequest, "UNKNOWN_ITEM", "cart references an unknown item", nil)
	case errors.Is(err, pricing.ErrInactiveItem):
		common.JSONError(w, http.StatusBadRequest, "INACTIVE_ITEM", "cart references an inactive item", nil)
	case errors.Is(err, pricing.ErrInvalidQuantity):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "quantities must be positive", nil)
	default:
		if obs.QuoteRequestsTotal != nil {
			obs.QuoteRequestsTotal.WithLabelValues("store_error").Inc()
		}
		common.JSONError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "quote store temporarily unavailable", nil)
	}
}
