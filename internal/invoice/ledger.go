package invoice

import (
	"time"
)

// Policy tunes ledger checks.
type Policy struct {
	// OverpaymentTolerance is how far the ledger may exceed the total.
	OverpaymentTolerance float64
}

// Engine applies ledger and status rules to invoice snapshots. It holds no
// invoice state and is safe for concurrent use.
type Engine struct {
	policy Policy
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithOverpaymentTolerance sets the allowed overpayment. Negative values are
// treated as zero.
func WithOverpaymentTolerance(v float64) Option {
	return func(e *Engine) {
		e.policy.OverpaymentTolerance = nonNegative(v)
	}
}

// WithClock overrides the time source used to stamp payments.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// NewEngine builds an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the active policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// RecordPayment appends a payment and derives the status from the ledger:
// paid once settled, partial otherwise. On error the original snapshot is
// returned unchanged.
func (e *Engine) RecordPayment(inv Invoice, p Payment) (Invoice, error) {
	next, err := e.appendPayment(inv, p)
	if err != nil {
		return inv, err
	}
	if next.Settled() {
		next.Status = StatusPaid
	} else {
		next.Status = StatusPartial
	}
	return next, nil
}

func (e *Engine) appendPayment(inv Invoice, p Payment) (Invoice, error) {
	if !finitePositive(p.Amount) {
		return inv, newValidationError("amount", "payment amount must be greater than zero")
	}
	// The ledger holds whole cents, matching what is stored and charged.
	p.Amount = Round2(p.Amount)
	if p.Amount <= 0 {
		return inv, newValidationError("amount", "payment amount must be at least 0.01")
	}
	if !p.Method.Valid() {
		return inv, newValidationError("payment_method", "unsupported payment method %q", p.Method)
	}
	total := inv.Total()
	paid := inv.AmountPaid()
	if inv.Status == StatusCancelled {
		target := StatusPartial
		if grossBalance(total, paid+p.Amount) == 0 {
			target = StatusPaid
		}
		return inv, &InvalidTransitionError{
			From:   StatusCancelled,
			To:     target,
			Reason: "a cancelled invoice cannot take payments; its balance has been voided",
		}
	}
	if excess := paid + p.Amount - Round2(total) - e.policy.OverpaymentTolerance; excess >= halfCent {
		return inv, &OverpaymentError{Amount: p.Amount, BalanceDue: grossBalance(total, paid)}
	}

	now := e.now()
	if p.PaymentDate.IsZero() {
		p.PaymentDate = now
	}
	if p.RecordedAt.IsZero() {
		p.RecordedAt = now
	}
	next := inv.clone()
	next.payments = append(next.payments, p)
	next.UpdatedAt = now
	return next, nil
}
