package invoice

import (
	"slices"
	"strings"
)

// Status is the payment state of an invoice.
type Status string

const (
	StatusUnpaid  Status = "unpaid"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
	StatusFailed  Status = "failed"
)

// ParseStatus normalises raw into a known status.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusUnpaid, StatusPartial, StatusPaid, StatusOverdue, StatusFailed:
		return s, true
	}
	return "", false
}

// CanMarkPaid is false once paid; a repeated success is a no-op.
func CanMarkPaid(s Status) bool {
	return s != StatusPaid
}

// CanMarkFailed only allows failure from a state that has received no money.
// Paid and partial invoices are never downgraded by a late failure event.
func CanMarkFailed(s Status) bool {
	return s == StatusUnpaid || s == StatusOverdue
}

// CanCheckout reports whether a payment session may be opened.
func CanCheckout(s Status) bool {
	return s != StatusPaid
}

// CanMarkOverdue reports whether the sweep may flag the invoice.
func CanMarkOverdue(s Status) bool {
	return s == StatusUnpaid
}

// ValidManualStatus lists the statuses an owner may set by hand.
func ValidManualStatus(s Status) bool {
	return s == StatusUnpaid || s == StatusPaid || s == StatusPartial
}

// OpenStatuses still expect money; a project holds at most one invoice in
// any of them.
var OpenStatuses = []Status{StatusUnpaid, StatusPartial, StatusOverdue}

// IsOpen reports whether the invoice still expects money.
func IsOpen(s Status) bool {
	return slices.Contains(OpenStatuses, s)
}

func openStatusValues() []string {
	out := make([]string, len(OpenStatuses))
	for i, s := range OpenStatuses {
		out[i] = string(s)
	}
	return out
}
