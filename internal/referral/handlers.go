package referral

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/haulpoint/backend-haul/internal/common"
	"github.com/haulpoint/backend-haul/internal/obs"
)

// Handler exposes referral code endpoints.
type Handler struct {
	Svc *Service
}

type issueRequest struct {
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`
}

type redeemRequest struct {
	Code          string `json:"code"`
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`
}

// Issue creates a referral code for an existing customer.
func (h Handler) Issue(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "referral service not configured", nil)
		return
	}
	var payload issueRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	code, err := h.Svc.Issue(r.Context(), payload.CustomerName, payload.CustomerEmail)
	if err != nil {
		if errors.Is(err, ErrMissingInput) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		common.JSONError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "referral store temporarily unavailable", nil)
		return
	}
	if obs.ReferralCodesIssuedTotal != nil {
		obs.ReferralCodesIssuedTotal.Inc()
	}
	common.Data(w, http.StatusCreated, code)
}

// Redeem applies a referral code on behalf of a new customer.
func (h Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "referral service not configured", nil)
		return
	}
	var payload redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	code, err := h.Svc.Redeem(r.Context(), payload.Code, payload.CustomerEmail, payload.CustomerName)
	if err != nil {
		writeRedeemError(w, err)
		return
	}
	if obs.ReferralRedemptionsTotal != nil {
		obs.ReferralRedemptionsTotal.WithLabelValues("success").Inc()
	}
	common.Data(w, http.StatusOK, map[string]any{
		"code":         code.Code,
		"creditAmount": code.CreditAmount,
	})
}

// Codes lists a customer's referral codes.
func (h Handler) Codes(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "referral service not configured", nil)
		return
	}
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "email query parameter is required", nil)
		return
	}
	codes, err := h.Svc.ListCodes(r.Context(), email)
	if err != nil {
		common.JSONError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "referral store temporarily unavailable", nil)
		return
	}
	if codes == nil {
		codes = []Code{}
	}
	common.Data(w, http.StatusOK, codes)
}

// Deactivate is the admin endpoint turning a code off.
func (h Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "referral service not configured", nil)
		return
	}
	code := chi.URLParam(r, "code")
	if err := h.Svc.Deactivate(r.Context(), code); err != nil {
		if errors.Is(err, ErrInvalidCode) {
			common.JSONError(w, http.StatusNotFound, "INVALID_CODE", "referral code not found", nil)
			return
		}
		common.JSONError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "referral store temporarily unavailable", nil)
		return
	}
	common.Data(w, http.StatusOK, map[string]string{"code": strings.ToUpper(strings.TrimSpace(code)), "status": "deactivated"})
}

func writeRedeemError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCode):
		if obs.ReferralRedemptionsTotal != nil {
			obs.ReferralRedemptionsTotal.WithLabelValues("invalid_code").Inc()
		}
		common.JSONError(w, http.StatusNotFound, "INVALID_CODE", "invalid or inactive referral code", nil)
	case errors.Is(err, ErrExhausted):
		if obs.ReferralRedemptionsTotal != nil {
			obs.ReferralRedemptionsTotal.WithLabelValues("exhausted").Inc()
		}
		common.JSONError(w, http.StatusConflict, "EXHAUSTED", "referral code has reached maximum uses", nil)
	case errors.Is(err, ErrExpired):
		if obs.ReferralRedemptionsTotal != nil {
			obs.ReferralRedemptionsTotal.WithLabelValues("expired").Inc()
		}
		common.JSONError(w, http.StatusConflict, "EXPIRED", "referral code has expired", nil)
	case errors.Is(err, ErrMissingInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		if obs.ReferralRedemptionsTotal != nil {
			obs.ReferralRedemptionsTotal.WithLabelValues("store_error").Inc()
		}
		common.JSONError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "referral store temporarily unavailable", nil)
	}
}
