package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-agency/internal/invoice"
	"github.com/noah-isme/backend-agency/internal/ledger"
	"github.com/noah-isme/backend-agency/internal/lock"
	"github.com/noah-isme/backend-agency/internal/obs"
)

const receiptBaseURL = "https://dashboard.stripe.com/payments/"

// Outcome classifies how an acknowledged event was handled.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeError     Outcome = "error"
)

// Locker serialises work on a key across replicas.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// EventHandler reconciles one event type.
type EventHandler func(ctx context.Context, evt Event) (Outcome, error)

// Processor dispatches verified webhook events to per-type handlers.
type Processor struct {
	provider Provider
	store    Store
	locker   Locker
	lockTTL  time.Duration
	logger   zerolog.Logger
	now      func() time.Time
	handlers map[EventType]EventHandler
}

// ProcessorConfig configures a Processor. Locker is optional.
type ProcessorConfig struct {
	Provider Provider
	Store    Store
	Locker   Locker
	LockTTL  time.Duration
	Logger   zerolog.Logger
	Now      func() time.Time
}

// NewProcessor builds a Processor with the default handler map.
func NewProcessor(cfg ProcessorConfig) *Processor {
	p := &Processor{
		provider: cfg.Provider,
		store:    cfg.Store,
		locker:   cfg.Locker,
		lockTTL:  cfg.LockTTL,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.lockTTL <= 0 {
		p.lockTTL = 30 * time.Second
	}
	p.handlers = map[EventType]EventHandler{
		EventPaymentSucceeded:        p.handlePaymentSucceeded,
		EventPaymentFailed:           p.handlePaymentFailed,
		EventCheckoutSessionComplete: p.handleCheckoutCompleted,
	}
	return p
}

// Process runs the handler registered for evt.Type. Unknown types are ignored.
// A non-nil error means the provider should redeliver.
func (p *Processor) Process(ctx context.Context, evt Event) (Outcome, error) {
	ctx, span := otel.Tracer("payment.Processor").Start(ctx, "Processor.Process")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", evt.ID), attribute.String("event.type", string(evt.Type)))

	handler, ok := p.handlers[evt.Type]
	if !ok {
		p.logger.Info().Str("event_id", evt.ID).Str("event_type", string(evt.Type)).Msg("webhook_event_ignored")
		obs.IncCounter(obs.PaymentWebhookTotal, string(evt.Type), string(OutcomeIgnored))
		return OutcomeIgnored, nil
	}
	outcome, err := handler(ctx, evt)
	if err != nil {
		span.RecordError(err)
		outcome = OutcomeError
	}
	span.SetAttributes(attribute.String("event.outcome", string(outcome)))
	obs.IncCounter(obs.PaymentWebhookTotal, string(evt.Type), string(outcome))
	return outcome, err
}

func (p *Processor) handlePaymentSucceeded(ctx context.Context, evt Event) (Outcome, error) {
	if evt.Intent == nil {
		return p.skip(evt, "", "", "missing_payment_intent"), nil
	}
	return p.settle(ctx, evt, *evt.Intent, "Payment for invoice %s")
}

func (p *Processor) handleCheckoutCompleted(ctx context.Context, evt Event) (Outcome, error) {
	if evt.Session == nil || evt.Session.PaymentIntentID == "" {
		return p.skip(evt, "", "", "missing_payment_intent"), nil
	}
	intent, err := p.provider.RetrievePaymentIntent(ctx, evt.Session.PaymentIntentID)
	if err != nil {
		p.logger.Error().Err(err).
			Str("event_id", evt.ID).
			Str("event_type", string(evt.Type)).
			Str("transaction_id", evt.Session.PaymentIntentID).
			Msg("webhook_retrieve_payment_intent_failed")
		return OutcomeError, err
	}
	return p.settle(ctx, evt, intent, "Payment for invoice %s via checkout")
}

func (p *Processor) handlePaymentFailed(ctx context.Context, evt Event) (Outcome, error) {
	if evt.Intent == nil {
		return p.skip(evt, "", "", "missing_payment_intent"), nil
	}
	intent := *evt.Intent
	invoiceID, ok := invoiceIDFrom(intent)
	if !ok {
		return p.skip(evt, intent.ID, "", "missing_invoice_metadata"), nil
	}
	transactionID := failedTransactionID(intent)

	var outcome Outcome
	err := p.withLock(ctx, intent.ID, func(ctx context.Context) error {
		return p.store.InTx(ctx, func(r Repos) error {
			inv, err := r.Invoices.FindByID(ctx, invoiceID)
			if err != nil {
				if errors.Is(err, invoice.ErrNotFound) {
					outcome = p.skip(evt, transactionID, invoiceID.String(), "invoice_not_found")
					return nil
				}
				return err
			}
			entry := p.entryFor(inv, intent, ledger.StatusFailed, transactionID, fmt.Sprintf("Failed payment for invoice %s", inv.ID))
			if reason := strings.TrimSpace(intent.FailureMessage); reason != "" {
				entry.FailureReason = &reason
			}
			created, err := r.Ledger.InsertIfAbsent(ctx, entry)
			if err != nil {
				return err
			}
			if !created {
				outcome = OutcomeDuplicate
				return nil
			}
			changed, err := r.Invoices.MarkFailed(ctx, inv.ID, p.now().UTC())
			if err != nil {
				return err
			}
			recordTransition(invoice.StatusFailed, changed)
			outcome = OutcomeProcessed
			p.logger.Info().
				Str("event_id", evt.ID).
				Str("event_type", string(evt.Type)).
				Str("transaction_id", transactionID).
				Str("invoice_id", inv.ID.String()).
				Str("previous_status", string(inv.Status)).
				Bool("status_changed", changed).
				Msg("payment_failed_recorded")
			return nil
		})
	})
	if err != nil {
		return p.fail(evt, transactionID, invoiceID.String(), err)
	}
	if outcome == OutcomeDuplicate {
		p.logDuplicate(evt, transactionID, invoiceID.String())
	}
	return outcome, nil
}

// settle marks the invoice paid and writes one completed ledger row per intent.
// The ledger insert runs first in the transaction so a concurrent duplicate
// blocks on the unique index and then observes the conflict.
func (p *Processor) settle(ctx context.Context, evt Event, intent Intent, descriptionFormat string) (Outcome, error) {
	invoiceID, ok := invoiceIDFrom(intent)
	if !ok {
		return p.skip(evt, intent.ID, "", "missing_invoice_metadata"), nil
	}

	var outcome Outcome
	err := p.withLock(ctx, intent.ID, func(ctx context.Context) error {
		return p.store.InTx(ctx, func(r Repos) error {
			inv, err := r.Invoices.FindByID(ctx, invoiceID)
			if err != nil {
				if errors.Is(err, invoice.ErrNotFound) {
					outcome = p.skip(evt, intent.ID, invoiceID.String(), "invoice_not_found")
					return nil
				}
				return err
			}
			entry := p.entryFor(inv, intent, ledger.StatusCompleted, intent.ID, fmt.Sprintf(descriptionFormat, inv.ID))
			if intent.LatestChargeID != "" {
				receipt := receiptBaseURL + intent.LatestChargeID
				entry.ReceiptURL = &receipt
			}
			created, err := r.Ledger.InsertIfAbsent(ctx, entry)
			if err != nil {
				return err
			}
			if !created {
				outcome = OutcomeDuplicate
				return nil
			}
			changed := false
			if invoice.CanMarkPaid(inv.Status) {
				changed, err = r.Invoices.MarkPaid(ctx, inv.ID, intent.ID, p.now().UTC())
				if err != nil {
					return err
				}
			}
			recordTransition(invoice.StatusPaid, changed)
			outcome = OutcomeProcessed
			p.logger.Info().
				Str("event_id", evt.ID).
				Str("event_type", string(evt.Type)).
				Str("transaction_id", intent.ID).
				Str("invoice_id", inv.ID.String()).
				Str("amount", entry.Amount.StringFixed(2)).
				Bool("status_changed", changed).
				Msg("payment_settled")
			return nil
		})
	})
	if err != nil {
		return p.fail(evt, intent.ID, invoiceID.String(), err)
	}
	if outcome == OutcomeDuplicate {
		p.logDuplicate(evt, intent.ID, invoiceID.String())
	}
	return outcome, nil
}

func (p *Processor) entryFor(inv invoice.Invoice, intent Intent, status ledger.Status, transactionID, description string) ledger.Entry {
	tenantID := inv.TenantID
	invoiceID := inv.ID
	currency := strings.ToUpper(strings.TrimSpace(intent.Currency))
	if currency == "" {
		currency = ledger.DefaultCurrency
	}
	return ledger.Entry{
		ID:              uuid.New(),
		TenantID:        &tenantID,
		ClientID:        inv.ClientID,
		InvoiceID:       &invoiceID,
		Amount:          ledger.FromMinorUnits(intent.AmountMinor),
		Currency:        currency,
		PaymentMethod:   ledger.DefaultMethod,
		PaymentProvider: ledger.ProviderStripe,
		Status:          status,
		TransactionID:   transactionID,
		PaymentIntentID: intent.ID,
		Description:     description,
		Metadata:        intent.Metadata,
		CreatedAt:       p.now().UTC(),
	}
}

func (p *Processor) withLock(ctx context.Context, intentID string, fn func(context.Context) error) error {
	if p.locker == nil {
		return fn(ctx)
	}
	return p.locker.WithLock(ctx, lock.PaymentKey(intentID), p.lockTTL, fn)
}

func (p *Processor) skip(evt Event, transactionID, invoiceID, reason string) Outcome {
	p.logger.Warn().
		Str("event_id", evt.ID).
		Str("event_type", string(evt.Type)).
		Str("transaction_id", transactionID).
		Str("invoice_id", invoiceID).
		Str("reason", reason).
		Msg("webhook_event_skipped")
	return OutcomeSkipped
}

func (p *Processor) logDuplicate(evt Event, transactionID, invoiceID string) {
	p.logger.Info().
		Str("event_id", evt.ID).
		Str("event_type", string(evt.Type)).
		Str("transaction_id", transactionID).
		Str("invoice_id", invoiceID).
		Msg("webhook_event_duplicate")
}

func (p *Processor) fail(evt Event, transactionID, invoiceID string, err error) (Outcome, error) {
	p.logger.Error().Err(err).
		Str("event_id", evt.ID).
		Str("event_type", string(evt.Type)).
		Str("transaction_id", transactionID).
		Str("invoice_id", invoiceID).
		Msg("webhook_event_failed")
	return OutcomeError, err
}

func invoiceIDFrom(intent Intent) (uuid.UUID, bool) {
	raw := strings.TrimSpace(intent.Metadata[MetadataInvoiceID])
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// failedTransactionID keys a failure by the declined charge so a later success
// on the same intent, keyed by the intent id, is still recorded.
func failedTransactionID(intent Intent) string {
	if intent.LatestChargeID != "" {
		return intent.LatestChargeID
	}
	return intent.ID + ":failed"
}

func recordTransition(to invoice.Status, changed bool) {
	result := "unchanged"
	if changed {
		result = "applied"
	}
	obs.IncCounter(obs.InvoiceTransitionTotal, string(to), result)
}
