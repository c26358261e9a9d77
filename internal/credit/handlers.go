package credit

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/haulpoint/backend-haul/internal/common"
	"github.com/haulpoint/backend-haul/internal/obs"
)

// Handler exposes credit ledger endpoints.
type Handler struct {
	Svc *Service
}

// Available returns a customer's eligible ledger entries and total.
func (h Handler) Available(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "credit service not configured", nil)
		return
	}
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "email query parameter is required", nil)
		return
	}
	summary, err := h.Svc.AvailableCredit(r.Context(), email)
	if err != nil {
		common.JSONError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "credit store temporarily unavailable", nil)
		return
	}
	common.Data(w, http.StatusOK, summary)
}

type applyRequest struct {
	CustomerEmail   string `json:"customerEmail"`
	InvoiceID       string `json:"invoiceId"`
	RequestedAmount int64  `json:"requestedAmount"`
}

type applyResponse struct {
	AppliedAmount   int64 `json:"appliedAmount"`
	RequestedAmount int64 `json:"requestedAmount"`
	Shortfall       int64 `json:"shortfall"`
}

// Apply offsets an invoice with stored credit. A partial application returns
// 200 with the shortfall; insufficient credit is not an error.
func (h Handler) Apply(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "credit service not configured", nil)
		return
	}
	var payload applyRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	applied, err := h.Svc.ApplyToInvoice(r.Context(), payload.CustomerEmail, payload.InvoiceID, payload.RequestedAmount)
	if err != nil {
		if errors.Is(err, ErrMissingInput) || errors.Is(err, ErrNegativeAmount) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		common.JSONError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "credit store temporarily unavailable", nil)
		return
	}
	if obs.CreditAppliedTotal != nil {
		obs.CreditAppliedTotal.Add(float64(applied))
	}
	common.Data(w, http.StatusOK, applyResponse{
		AppliedAmount:   applied,
		RequestedAmount: payload.RequestedAmount,
		Shortfall:       payload.RequestedAmount - applied,
	})
}
