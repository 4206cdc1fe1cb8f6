package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-agency/internal/invoice"
	"github.com/noah-isme/backend-agency/internal/ledger"
)

// memStore serialises units of work and rolls back on error, mirroring a
// transaction blocked on the ledger's unique index.
type memStore struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]invoice.Invoice
	entries  map[string]ledger.Entry
	failTx   error
}

func newMemStore(invoices ...invoice.Invoice) *memStore {
	s := &memStore{invoices: map[uuid.UUID]invoice.Invoice{}, entries: map[string]ledger.Entry{}}
	for _, inv := range invoices {
		s.invoices[inv.ID] = inv
	}
	return s
}

func (s *memStore) InTx(_ context.Context, fn func(Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTx != nil {
		return s.failTx
	}
	tx := &memTx{invoices: cloneMap(s.invoices), entries: cloneMap(s.entries)}
	if err := fn(Repos{Invoices: tx, Ledger: tx}); err != nil {
		return err
	}
	s.invoices = tx.invoices
	s.entries = tx.entries
	return nil
}

func (s *memStore) invoice(id uuid.UUID) invoice.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invoices[id]
}

func (s *memStore) ledgerEntries() []ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

func (s *memStore) entry(transactionID string) (ledger.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[transactionID]
	return e, ok
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type memTx struct {
	invoices map[uuid.UUID]invoice.Invoice
	entries  map[string]ledger.Entry
}

func (t *memTx) FindByID(_ context.Context, id uuid.UUID) (invoice.Invoice, error) {
	inv, ok := t.invoices[id]
	if !ok {
		return invoice.Invoice{}, invoice.ErrNotFound
	}
	return inv, nil
}

func (t *memTx) FindForTenant(ctx context.Context, tenantID, id uuid.UUID) (invoice.Invoice, error) {
	inv, err := t.FindByID(ctx, id)
	if err != nil || inv.TenantID != tenantID {
		return invoice.Invoice{}, invoice.ErrNotFound
	}
	return inv, nil
}

func (t *memTx) SetCheckoutSession(_ context.Context, id uuid.UUID, sessionID string) error {
	inv, ok := t.invoices[id]
	if !ok {
		return invoice.ErrNotFound
	}
	inv.StripeSessionID = &sessionID
	t.invoices[id] = inv
	return nil
}

func (t *memTx) MarkPaid(_ context.Context, id uuid.UUID, intentID string, at time.Time) (bool, error) {
	inv, ok := t.invoices[id]
	if !ok || !invoice.CanMarkPaid(inv.Status) {
		return false, nil
	}
	inv.Status = invoice.StatusPaid
	inv.PaidAt = &at
	inv.PaymentIntentID = &intentID
	t.invoices[id] = inv
	return true, nil
}

func (t *memTx) MarkFailed(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	inv, ok := t.invoices[id]
	if !ok || !invoice.CanMarkFailed(inv.Status) {
		return false, nil
	}
	inv.Status = invoice.StatusFailed
	inv.FailedAt = &at
	t.invoices[id] = inv
	return true, nil
}

func (t *memTx) InsertIfAbsent(_ context.Context, entry ledger.Entry) (bool, error) {
	if _, ok := t.entries[entry.TransactionID]; ok {
		return false, nil
	}
	t.entries[entry.TransactionID] = entry
	return true, nil
}

// memInvoices adapts memStore for Checkout, which runs outside a transaction.
type memInvoices struct{ s *memStore }

func (m memInvoices) run(fn func(*memTx) error) error {
	return m.s.InTx(context.Background(), func(r Repos) error { return fn(r.Invoices.(*memTx)) })
}

func (m memInvoices) FindByID(ctx context.Context, id uuid.UUID) (inv invoice.Invoice, err error) {
	err = m.run(func(tx *memTx) error { inv, err = tx.FindByID(ctx, id); return err })
	return inv, err
}

func (m memInvoices) FindForTenant(ctx context.Context, tenantID, id uuid.UUID) (inv invoice.Invoice, err error) {
	err = m.run(func(tx *memTx) error { inv, err = tx.FindForTenant(ctx, tenantID, id); return err })
	return inv, err
}

func (m memInvoices) SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	return m.run(func(tx *memTx) error { return tx.SetCheckoutSession(ctx, id, sessionID) })
}

func (m memInvoices) MarkPaid(ctx context.Context, id uuid.UUID, intentID string, at time.Time) (changed bool, err error) {
	err = m.run(func(tx *memTx) error { changed, err = tx.MarkPaid(ctx, id, intentID, at); return err })
	return changed, err
}

func (m memInvoices) MarkFailed(ctx context.Context, id uuid.UUID, at time.Time) (changed bool, err error) {
	err = m.run(func(tx *memTx) error { changed, err = tx.MarkFailed(ctx, id, at); return err })
	return changed, err
}

var errInvalidTestSignature = fmt.Errorf("%w: unknown test signature", ErrInvalidSignature)

type fakeProvider struct {
	mu          sync.Mutex
	session     Session
	sessionErr  error
	requests    []SessionRequest
	intents     map[string]Intent
	retrieveErr error
	retrieves   int
	events      map[string]Event
	eventErrs   map[string]error
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, req SessionRequest) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.sessionErr != nil {
		return Session{}, p.sessionErr
	}
	return p.session, nil
}

func (p *fakeProvider) RetrievePaymentIntent(_ context.Context, id string) (Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retrieves++
	if p.retrieveErr != nil {
		return Intent{}, p.retrieveErr
	}
	intent, ok := p.intents[id]
	if !ok {
		return Intent{}, &ProviderError{Op: "retrieve_payment_intent", Err: errors.New("no such payment_intent")}
	}
	return intent, nil
}

// ConstructEvent accepts signature values naming a registered event.
func (p *fakeProvider) ConstructEvent(_ []byte, signature string) (Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.eventErrs[signature]; ok {
		return Event{}, err
	}
	evt, ok := p.events[signature]
	if !ok {
		return Event{}, errInvalidTestSignature
	}
	return evt, nil
}
