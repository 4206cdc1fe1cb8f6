package ledger

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-agency/internal/common"
	"github.com/noah-isme/backend-agency/internal/tenant"
)

// Handler exposes the tenant's payment history.
type Handler struct {
	Store  Reader
	Logger zerolog.Logger
}

// List handles GET /payment-logs.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	query := r.URL.Query()
	status := Status(strings.ToLower(strings.TrimSpace(query.Get("status"))))
	if status != "" && !status.Valid() {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "status is invalid", map[string]string{"status": "must be one of pending, completed, failed"})
		return
	}
	page := common.ParsePage(query, DefaultListLimit, MaxListLimit)

	entries, total, err := h.Store.List(r.Context(), tenantID, ListFilter{
		Status: status,
		Search: query.Get("search"),
		Page:   page.Page,
		Limit:  page.Limit,
	})
	if err != nil {
		h.Logger.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("list_payment_logs_failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list payment logs", nil)
		return
	}
	common.Paginated(w, entries, page, total)
}

// Get handles GET /payment-logs/{transactionId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	transactionID := strings.TrimSpace(chi.URLParam(r, "transactionId"))
	if transactionID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "transaction id is required", nil)
		return
	}
	entry, err := h.Store.GetByTransaction(r.Context(), tenantID, transactionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "payment log not found", nil)
			return
		}
		h.Logger.Error().Err(err).Str("transaction_id", transactionID).Msg("get_payment_log_failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load payment log", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entry})
}
