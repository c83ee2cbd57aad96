package invoice

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the invoice does not exist.
	ErrNotFound = errors.New("invoice: not found")
	// ErrValidation is the sentinel behind every ValidationError.
	ErrValidation = errors.New("invalid input")
	// ErrInvalidTransition is the sentinel behind every InvalidTransitionError.
	ErrInvalidTransition = errors.New("status change not allowed")
	// ErrOverpayment is the sentinel behind every OverpaymentError.
	ErrOverpayment = errors.New("payment exceeds balance due")
	// ErrGateway is the sentinel behind every GatewayError.
	ErrGateway = errors.New("payment processor error")
	// ErrPaymentAbandoned indicates the caller cancelled payment entry.
	ErrPaymentAbandoned = errors.New("payment abandoned before completion")
)

// ValidationError reports malformed input. The caller should fix the field
// and resubmit.
type ValidationError struct {
	Field  string
	Reason string
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InvalidTransitionError reports a status change the state machine refuses.
type InvalidTransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change invoice status from %s to %s: %s", e.From, e.To, e.Reason)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// OverpaymentError reports a payment larger than the outstanding balance.
type OverpaymentError struct {
	Amount     float64
	BalanceDue float64
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s exceeds the balance due of %s", formatPlain(e.Amount), formatPlain(e.BalanceDue))
}

func (e *OverpaymentError) Unwrap() error {
	return ErrOverpayment
}

// GatewayError carries the payment processor's failure. Message is the
// processor's text, surfaced unmodified.
type GatewayError struct {
	Code    string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return ErrGateway.Error()
}

func (e *GatewayError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrGateway}
	}
	return []error{ErrGateway, e.Err}
}

// UserMessage returns a message suitable for display. Each error kind gets a
// distinct wording because each calls for a different action.
func UserMessage(err error) string {
	var (
		validation *ValidationError
		transition *InvalidTransitionError
		overpay    *OverpaymentError
		gateway    *GatewayError
	)
	switch {
	case errors.As(err, &validation):
		return "Please correct the input: " + validation.Error()
	case errors.As(err, &overpay):
		return "Payment is larger than the balance due: " + overpay.Error()
	case errors.As(err, &transition):
		return "Choose a different status: " + transition.Reason
	case errors.As(err, &gateway):
		return "Payment was not completed, try another payment method: " + gateway.Error()
	case errors.Is(err, ErrPaymentAbandoned):
		return "Payment entry was cancelled; the invoice status was left unchanged."
	case errors.Is(err, ErrNotFound):
		return "Invoice not found."
	default:
		return "The request could not be processed."
	}
}
