package invoice

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memRepo struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]Invoice
	failNext error
}

func newMemRepo(invoices ...Invoice) *memRepo {
	m := &memRepo{invoices: map[uuid.UUID]Invoice{}}
	for _, inv := range invoices {
		m.invoices[inv.ID] = inv
	}
	return m
}

func (m *memRepo) FindByID(_ context.Context, id uuid.UUID) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (m *memRepo) FindForTenant(ctx context.Context, tenantID, id uuid.UUID) (Invoice, error) {
	inv, err := m.FindByID(ctx, id)
	if err != nil || inv.TenantID != tenantID {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (m *memRepo) SetCheckoutSession(_ context.Context, id uuid.UUID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return ErrNotFound
	}
	inv.StripeSessionID = &sessionID
	m.invoices[id] = inv
	return nil
}

func (m *memRepo) MarkPaid(_ context.Context, id uuid.UUID, intentID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || !CanMarkPaid(inv.Status) {
		return false, nil
	}
	inv.Status = StatusPaid
	inv.PaidAt = &at
	inv.PaymentIntentID = &intentID
	m.invoices[id] = inv
	return true, nil
}

func (m *memRepo) MarkFailed(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || !CanMarkFailed(inv.Status) {
		return false, nil
	}
	inv.Status = StatusFailed
	inv.FailedAt = &at
	m.invoices[id] = inv
	return true, nil
}

func (m *memRepo) Create(_ context.Context, inv Invoice) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return Invoice{}, err
	}
	for _, existing := range m.invoices {
		if existing.TenantID == inv.TenantID && existing.Number == inv.Number {
			return Invoice{}, ErrNumberConflict
		}
	}
	m.invoices[inv.ID] = inv
	return inv, nil
}

func (m *memRepo) CountForTenant(_ context.Context, tenantID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, inv := range m.invoices {
		if inv.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) ListForTenant(_ context.Context, tenantID uuid.UUID, page, limit int) ([]Invoice, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.TenantID == tenantID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (m *memRepo) UpdateStatus(_ context.Context, tenantID, id uuid.UUID, status Status, at time.Time) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return Invoice{}, ErrNotFound
	}
	inv.Status = status
	if status == StatusPaid && inv.PaidAt == nil {
		inv.PaidAt = &at
	}
	m.invoices[id] = inv
	return inv, nil
}

func (m *memRepo) HasOpenInvoiceForProject(_ context.Context, tenantID, projectID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invoices {
		if inv.TenantID == tenantID && inv.ProjectID == projectID && IsOpen(inv.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) MarkOverdue(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, inv := range m.invoices {
		if CanMarkOverdue(inv.Status) && inv.DueDate.Before(now) {
			inv.Status = StatusOverdue
			m.invoices[id] = inv
			n++
		}
	}
	return n, nil
}

type memProjects map[uuid.UUID]Project

func (m memProjects) FindProject(_ context.Context, tenantID, projectID uuid.UUID) (Project, error) {
	p, ok := m[projectID]
	if !ok || p.TenantID != tenantID {
		return Project{}, ErrProjectNotFound
	}
	return p, nil
}
