package invoice

import (
	"slices"
	"time"
)

// Status enumerates invoice statuses.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPartial   Status = "partial"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{StatusDraft, StatusSent, StatusPartial, StatusPaid, StatusOverdue, StatusCancelled}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// ParseStatus converts raw input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", newValidationError("status", "unknown invoice status %q", raw)
	}
	return s, nil
}

// PaymentMethod is the closed set of ways a payment can be settled.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCheck        PaymentMethod = "check"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCreditCard   PaymentMethod = "credit_card"
	MethodPayPal       PaymentMethod = "paypal"
	MethodStripe       PaymentMethod = "stripe"
	MethodOther        PaymentMethod = "other"
)

// PaymentMethods lists every supported payment method.
var PaymentMethods = []PaymentMethod{
	MethodCash, MethodCheck, MethodBankTransfer, MethodCreditCard, MethodPayPal, MethodStripe, MethodOther,
}

// Valid reports whether m is a supported method.
func (m PaymentMethod) Valid() bool {
	return slices.Contains(PaymentMethods, m)
}

// IsCard reports whether the method settles through the card network.
func (m PaymentMethod) IsCard() bool {
	return m == MethodCreditCard || m == MethodStripe
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	m := PaymentMethod(raw)
	if !m.Valid() {
		return "", newValidationError("payment_method", "unsupported payment method %q", raw)
	}
	return m, nil
}

// LineItem is a single billable row. Its total is always derived.
type LineItem struct {
	Description string
	Quantity    float64
	UnitPrice   float64
}

// Total returns quantity times unit price.
func (l LineItem) Total() float64 {
	return nonNegative(l.Quantity) * nonNegative(l.UnitPrice)
}

// Payment is an immutable ledger entry.
type Payment struct {
	ID               int64
	Amount           float64
	Method           PaymentMethod
	ReferenceNumber  *string
	Notes            *string
	PaymentDate      time.Time
	GatewayReference *string
	RecordedAt       time.Time
}

// Advisory holds balances reported by persistence. They are never trusted
// for decisions; the ledger is re-derived locally.
type Advisory struct {
	AmountPaid float64
	BalanceDue float64
}

// Invoice is an in-memory snapshot. Operations on it return new snapshots.
type Invoice struct {
	ID        int64
	Number    string
	ClientID  int64
	LineItems []LineItem
	TaxRate   float64
	Status    Status
	DueDate   time.Time
	Advisory  *Advisory
	CreatedAt time.Time
	UpdatedAt time.Time

	payments []Payment
}

// Restore rebuilds an invoice snapshot from stored state, ledger included.
func Restore(inv Invoice, payments []Payment) Invoice {
	inv = inv.clone()
	inv.payments = append([]Payment(nil), payments...)
	return inv
}

// Payments returns a copy of the ledger in recording order.
func (inv Invoice) Payments() []Payment {
	return append([]Payment(nil), inv.payments...)
}

// Totals computes subtotal, tax and total from the line items.
func (inv Invoice) Totals() Totals {
	return ComputeTotals(inv.LineItems, inv.TaxRate)
}

// Total is shorthand for Totals().Total.
func (inv Invoice) Total() float64 {
	return inv.Totals().Total
}

// AmountPaid sums the ledger.
func (inv Invoice) AmountPaid() float64 {
	return sumPayments(inv.payments)
}

// BalanceDue is the outstanding obligation, floored at zero and voided when
// the invoice is cancelled.
func (inv Invoice) BalanceDue() float64 {
	if inv.Status == StatusCancelled {
		return 0
	}
	return grossBalance(inv.Total(), inv.AmountPaid())
}

// Settled reports whether the ledger covers the total.
func (inv Invoice) Settled() bool {
	return grossBalance(inv.Total(), inv.AmountPaid()) == 0
}

// IsOverdueAt reports whether an open invoice is past due at the given time.
// Due dates are calendar days in UTC: an invoice due today is not overdue
// until the day has ended.
func (inv Invoice) IsOverdueAt(now time.Time) bool {
	if inv.DueDate.IsZero() || inv.BalanceDue() <= 0 {
		return false
	}
	switch inv.Status {
	case StatusSent, StatusPartial:
		return StartOfDay(now).After(StartOfDay(inv.DueDate))
	default:
		return false
	}
}

// StartOfDay truncates t to midnight UTC, the instant a due date denotes.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (inv Invoice) clone() Invoice {
	out := inv
	out.LineItems = append([]LineItem(nil), inv.LineItems...)
	out.payments = append([]Payment(nil), inv.payments...)
	if inv.Advisory != nil {
		adv := *inv.Advisory
		out.Advisory = &adv
	}
	return out
}

func sumPayments(payments []Payment) float64 {
	var paid float64
	for _, p := range payments {
		paid += p.Amount
	}
	return paid
}
