// Package gateway turns a payment request into a captured payment. Manual
// methods are acknowledged synchronously; card methods go through a card
// processor.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/invoicely/invoicely/internal/invoice"
)

// CardProcessor charges a card and returns the processor's reference.
type CardProcessor interface {
	Charge(ctx context.Context, req invoice.CaptureRequest) (string, error)
}

// Adapter implements invoice.Gateway.
type Adapter struct {
	cards   CardProcessor
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

var _ invoice.Gateway = (*Adapter)(nil)

// NewAdapter builds an adapter. cards may be nil, in which case card methods
// fail with a GatewayError.
func NewAdapter(cards CardProcessor, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cards:  cards,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetTimeout bounds each card charge. Zero leaves only the caller's deadline.
func (a *Adapter) SetTimeout(d time.Duration) {
	a.timeout = d
}

// Capture collects the payment. It makes a single attempt; a failure leaves
// the invoice untouched and the caller decides whether to retry.
func (a *Adapter) Capture(ctx context.Context, req invoice.CaptureRequest) (invoice.PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return invoice.PaymentResult{}, abandoned(err)
		}
		return invoice.PaymentResult{}, &invoice.GatewayError{Code: "timeout", Message: "Payment request timed out.", Err: err}
	}
	switch req.Method {
	case invoice.MethodCash, invoice.MethodCheck, invoice.MethodBankTransfer, invoice.MethodPayPal, invoice.MethodOther:
		return invoice.PaymentResult{
			Amount:     req.Amount,
			Method:     req.Method,
			CapturedAt: a.now(),
		}, nil
	case invoice.MethodCreditCard, invoice.MethodStripe:
		return a.captureCard(ctx, req)
	default:
		_, err := invoice.ParsePaymentMethod(string(req.Method))
		return invoice.PaymentResult{}, err
	}
}

func (a *Adapter) captureCard(ctx context.Context, req invoice.CaptureRequest) (invoice.PaymentResult, error) {
	if a.cards == nil {
		return invoice.PaymentResult{}, &invoice.GatewayError{
			Code:    "card_processing_disabled",
			Message: "Card payments are not enabled for this account.",
		}
	}
	if invoice.MinorUnits(req.Amount) <= 0 {
		return invoice.PaymentResult{}, &invoice.GatewayError{
			Code:    "amount_too_small",
			Message: "Amount must be at least one minor currency unit.",
		}
	}
	chargeCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		chargeCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	ref, err := a.cards.Charge(chargeCtx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return invoice.PaymentResult{}, abandoned(err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = &invoice.GatewayError{Code: "timeout", Message: "Payment request timed out.", Err: err}
		}
		var gwErr *invoice.GatewayError
		if !errors.As(err, &gwErr) {
			err = &invoice.GatewayError{Code: "processor_error", Message: err.Error(), Err: err}
		}
		a.logger.Warn("card capture declined",
			slog.Int64("invoice_id", req.InvoiceID),
			slog.String("method", string(req.Method)),
			slog.Any("error", err))
		return invoice.PaymentResult{}, err
	}
	a.logger.Info("card captured",
		slog.Int64("invoice_id", req.InvoiceID),
		slog.String("reference", ref))
	return invoice.PaymentResult{
		Amount:           req.Amount,
		Method:           req.Method,
		GatewayReference: &ref,
		CapturedAt:       a.now(),
	}, nil
}

func abandoned(cause error) error {
	return errors.Join(invoice.ErrPaymentAbandoned, cause)
}
