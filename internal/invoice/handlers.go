package invoice

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-agency/internal/common"
	"github.com/noah-isme/backend-agency/internal/tenant"
)

// Handler exposes invoice endpoints.
type Handler struct {
	Svc *Service
}

type createRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Title       string          `json:"title" validate:"omitempty,max=200"`
	Description string          `json:"description" validate:"omitempty,max=2000"`
	DueDate     string          `json:"dueDate" validate:"required"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// Create handles POST /invoices/project/{projectId}.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	projectID, err := uuid.Parse(chi.URLParam(r, "projectId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid project id", nil)
		return
	}
	var req createRequest
	if err := common.DecodeAndValidate(r, &req); err != nil {
		common.WriteError(w, err, "BAD_REQUEST", "invalid body")
		return
	}
	dueDate, err := parseDueDate(req.DueDate)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "dueDate is invalid", map[string]string{"dueDate": "date"})
		return
	}

	inv, err := h.Svc.Create(r.Context(), tenantID, projectID, CreateInput{
		Amount:      req.Amount,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     dueDate,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"message": "invoice created", "data": inv})
}

// List handles GET /invoices.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	page := common.ParsePage(r.URL.Query(), 20, 100)
	invoices, total, err := h.Svc.List(r.Context(), tenantID, page.Page, page.Limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Paginated(w, invoices, page, total)
}

// Get handles GET /invoices/{invoiceId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.Svc.Get(r.Context(), tenantID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": inv})
}

// UpdateStatus handles PUT /invoices/{invoiceId}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := common.DecodeAndValidate(r, &req); err != nil {
		common.WriteError(w, err, "BAD_REQUEST", "invalid body")
		return
	}
	inv, err := h.Svc.UpdateStatus(r.Context(), tenantID, id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"message": "invoice status updated", "data": inv})
}

// PublicGet handles GET /public/invoices/{invoiceId}. No authentication.
func (h *Handler) PublicGet(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.Svc.PublicGet(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": publicView(inv)})
}

func publicView(inv Invoice) map[string]any {
	return map[string]any{
		"id":            inv.ID,
		"invoiceNumber": inv.Number,
		"title":         inv.Title,
		"description":   inv.Description,
		"projectTitle":  inv.ProjectTitle,
		"amount":        inv.Amount,
		"status":        inv.Status,
		"dueDate":       inv.DueDate,
		"paidAt":        inv.PaidAt,
		"createdAt":     inv.CreatedAt,
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "invoice not found", nil)
	case errors.Is(err, ErrProjectNotFound):
		common.JSONError(w, http.StatusNotFound, "PROJECT_NOT_FOUND", "project not found", nil)
	case errors.Is(err, ErrProjectHasNoClient):
		common.JSONError(w, http.StatusBadRequest, "PROJECT_HAS_NO_CLIENT", "assign a client to this project before invoicing", nil)
	case errors.Is(err, ErrOpenInvoiceExists):
		common.JSONError(w, http.StatusBadRequest, "OPEN_INVOICE_EXISTS", "an unpaid invoice already exists for this project", nil)
	case errors.Is(err, ErrInvalidAmount):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "amount must be greater than 0", map[string]string{"amount": "gt"})
	case errors.Is(err, ErrInvalidStatus):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid status value", map[string]string{"status": "oneof unpaid paid partial"})
	case errors.Is(err, ErrNumberConflict):
		common.JSONError(w, http.StatusConflict, "INVOICE_NUMBER_CONFLICT", "invoice number already taken, retry", nil)
	default:
		h.Svc.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("invoice_request_failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice request failed", nil)
	}
}

func requireTenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
	}
	return tenantID, ok
}

func invoiceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "invoiceId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid invoice id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func parseDueDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
