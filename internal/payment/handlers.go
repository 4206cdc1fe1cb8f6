package payment

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-agency/internal/common"
	"github.com/noah-isme/backend-agency/internal/tenant"
)

// DefaultWebhookMaxBody caps webhook payloads.
const DefaultWebhookMaxBody = 1 << 20

// SignatureHeader carries the provider's webhook signature.
const SignatureHeader = "Stripe-Signature"

// Handler exposes checkout and webhook endpoints.
type Handler struct {
	Checkout     *Checkout
	Processor    *Processor
	Provider     Provider
	MaxBodyBytes int64
	Logger       zerolog.Logger
}

type checkoutRequest struct {
	InvoiceID string `json:"invoiceId" validate:"required"`
}

// CreateCheckoutSession handles POST /payments/create-checkout-session.
func (h *Handler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var req checkoutRequest
	if err := common.DecodeAndValidate(r, &req); err != nil {
		common.WriteError(w, err, "BAD_REQUEST", "invalid body")
		return
	}
	invoiceID, err := uuid.Parse(req.InvoiceID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid invoice id", nil)
		return
	}

	url, err := h.Checkout.Create(r.Context(), tenantID, invoiceID)
	switch {
	case err == nil:
		common.JSON(w, http.StatusOK, map[string]string{"url": url})
	case errors.Is(err, ErrInvoiceNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "invoice not found", nil)
	case errors.Is(err, ErrInvoiceAlreadyPaid):
		common.JSONError(w, http.StatusBadRequest, "INVOICE_ALREADY_PAID", "invoice is already paid", nil)
	case IsProviderError(err):
		common.JSONError(w, http.StatusBadGateway, "PAYMENT_PROVIDER_ERROR", "payment provider unavailable", nil)
	default:
		h.Logger.Error().Err(err).Str("invoice_id", invoiceID.String()).Msg("create_checkout_session_failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create checkout session", nil)
	}
}

// Webhook handles POST /payments/webhook. The body is verified unparsed.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultWebhookMaxBody
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "webhook payload too large", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unable to read body", nil)
		return
	}

	evt, err := h.Provider.ConstructEvent(payload, r.Header.Get(SignatureHeader))
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			h.Logger.Warn().Err(err).Msg("webhook_signature_rejected")
			common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "webhook signature verification failed", nil)
			return
		}
		h.Logger.Warn().Err(err).Msg("webhook_event_rejected")
		common.JSONError(w, http.StatusBadRequest, "INVALID_EVENT", "webhook event could not be decoded", nil)
		return
	}

	if _, err := h.Processor.Process(r.Context(), evt); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "WEBHOOK_PROCESSING_FAILED", "webhook processing failed", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]bool{"received": true})
}
