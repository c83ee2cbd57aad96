package invoice

import (
	"fmt"
)

// StatusChange is the compound command behind every status change. Payment
// is required when moving to partial, and to paid unless the ledger already
// covers the total.
type StatusChange struct {
	Target  Status
	Payment *Payment
}

// RequiresPayment reports whether moving inv to target needs a payment in
// the same request. Callers use it to prompt for payment before committing.
func RequiresPayment(inv Invoice, target Status) bool {
	switch target {
	case StatusPartial:
		return true
	case StatusPaid:
		return !inv.Settled()
	default:
		return false
	}
}

// Transition validates and applies a status change. The payment, when
// present, is appended before the status is set; if the ledger is settled
// afterwards the status becomes paid whatever the requested target. On
// error the original snapshot is returned unchanged.
func (e *Engine) Transition(inv Invoice, cmd StatusChange) (Invoice, error) {
	if !cmd.Target.Valid() {
		return inv, newValidationError("status", "unknown invoice status %q", cmd.Target)
	}
	switch cmd.Target {
	case StatusPartial, StatusPaid:
		return e.settle(inv, cmd)
	default:
		return e.relabel(inv, cmd)
	}
}

// Plan runs Transition without keeping the result. It is used to reject a
// request before any payment is captured.
func (e *Engine) Plan(inv Invoice, cmd StatusChange) error {
	_, err := e.Transition(inv, cmd)
	return err
}

func (e *Engine) relabel(inv Invoice, cmd StatusChange) (Invoice, error) {
	if cmd.Payment != nil {
		return inv, &InvalidTransitionError{
			From:   inv.Status,
			To:     cmd.Target,
			Reason: "a payment can only accompany a change to partial or paid",
		}
	}
	if inv.Status == StatusDraft && cmd.Target == StatusSent {
		if len(inv.LineItems) == 0 {
			return inv, &InvalidTransitionError{From: inv.Status, To: cmd.Target, Reason: "add at least one line item before sending"}
		}
		if inv.ClientID <= 0 {
			return inv, &InvalidTransitionError{From: inv.Status, To: cmd.Target, Reason: "assign a client before sending"}
		}
		if err := validateLineItems(inv.LineItems); err != nil {
			return inv, err
		}
	}
	next := inv.clone()
	next.Status = cmd.Target
	next.UpdatedAt = e.now()
	return next, nil
}

// EditLineItems replaces the line items and tax rate of a draft. Totals are
// re-derived from the new items; the payment ledger is untouched.
func (e *Engine) EditLineItems(inv Invoice, items []LineItem, taxRate float64) (Invoice, error) {
	if err := validateLineItems(items); err != nil {
		return inv, err
	}
	if inv.Status != StatusDraft {
		return inv, newValidationError("items", "line items can only be edited while the invoice is a draft")
	}
	next := inv.clone()
	next.LineItems = append([]LineItem(nil), items...)
	next.TaxRate = nonNegative(taxRate)
	next.UpdatedAt = e.now()
	return next, nil
}

func (e *Engine) settle(inv Invoice, cmd StatusChange) (Invoice, error) {
	if cmd.Payment == nil {
		if cmd.Target == StatusPartial {
			return inv, &InvalidTransitionError{From: inv.Status, To: cmd.Target, Reason: "a payment is required to mark an invoice partially paid"}
		}
		if !inv.Settled() {
			return inv, &InvalidTransitionError{
				From: inv.Status,
				To:   cmd.Target,
				Reason: fmt.Sprintf("payments of %s do not cover the total of %s; record a payment first",
					formatPlain(inv.AmountPaid()), formatPlain(inv.Total())),
			}
		}
		next := inv.clone()
		next.Status = StatusPaid
		next.UpdatedAt = e.now()
		return next, nil
	}

	next, err := e.appendPayment(inv, *cmd.Payment)
	if err != nil {
		return inv, err
	}
	switch {
	case next.Settled():
		next.Status = StatusPaid
	case cmd.Target == StatusPaid:
		return inv, &InvalidTransitionError{
			From: inv.Status,
			To:   cmd.Target,
			Reason: fmt.Sprintf("payment of %s leaves %s outstanding",
				formatPlain(cmd.Payment.Amount), formatPlain(next.BalanceDue())),
		}
	default:
		next.Status = StatusPartial
	}
	return next, nil
}
