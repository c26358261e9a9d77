package catalog

import (
	"net/http"
	"strings"

	"github.com/haulpoint/backend-haul/internal/common"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	Svc *Service
}

// Items lists active catalog items, optionally filtered by category.
func (h Handler) Items(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	items, err := h.Svc.ListActiveItems(r.Context(), category)
	if err != nil {
		common.JSONError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "catalog temporarily unavailable", nil)
		return
	}
	if items == nil {
		items = []Item{}
	}
	common.Data(w, http.StatusOK, items)
}
