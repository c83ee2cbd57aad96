package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/invoicely/invoicely/internal/invoice"
)

// IntentAPI is the slice of the Stripe PaymentIntent client the processor
// uses. *paymentintent.Client satisfies it.
type IntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
}

var _ IntentAPI = (*paymentintent.Client)(nil)

// StripeProcessor charges cards through Stripe PaymentIntents.
type StripeProcessor struct {
	intents  IntentAPI
	currency string
	logger   *slog.Logger
}

var _ CardProcessor = (*StripeProcessor)(nil)

// NewStripeClient returns a PaymentIntent client bound to the secret key.
func NewStripeClient(secretKey string) *paymentintent.Client {
	return &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey}
}

// NewStripeProcessor builds the processor. Currency is an ISO 4217 code.
func NewStripeProcessor(intents IntentAPI, currency string, logger *slog.Logger) *StripeProcessor {
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeProcessor{intents: intents, currency: strings.ToLower(currency), logger: logger}
}

// Charge creates a PaymentIntent for the amount and confirms it. Only a
// succeeded intent counts as captured.
func (p *StripeProcessor) Charge(ctx context.Context, req invoice.CaptureRequest) (string, error) {
	attemptID := uuid.NewString()
	logger := p.logger.With(slog.Int64("invoice_id", req.InvoiceID), slog.String("attempt_id", attemptID))

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(invoice.MinorUnits(req.Amount)),
		Currency:    stripe.String(p.currency),
		Description: stripe.String(fmt.Sprintf("Invoice %d", req.InvoiceID)),
	}
	params.Context = ctx
	if req.Billing.CustomerRef != "" {
		params.Customer = stripe.String(req.Billing.CustomerRef)
	}
	if req.Billing.PaymentMethodRef != "" {
		params.PaymentMethod = stripe.String(req.Billing.PaymentMethodRef)
	}
	if req.Billing.Email != "" {
		params.ReceiptEmail = stripe.String(req.Billing.Email)
	}
	params.AddMetadata("invoice_id", strconv.FormatInt(req.InvoiceID, 10))
	params.AddMetadata("client_id", strconv.FormatInt(req.Billing.ClientID, 10))
	params.AddMetadata("attempt_id", attemptID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey + ":create")
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return "", p.translate(err)
	}
	logger.Debug("payment intent created", slog.String("intent_id", intent.ID))

	confirm := &stripe.PaymentIntentConfirmParams{}
	confirm.Context = ctx
	if req.Billing.ReturnURL != "" {
		confirm.ReturnURL = stripe.String(req.Billing.ReturnURL)
	}
	if req.IdempotencyKey != "" {
		confirm.SetIdempotencyKey(req.IdempotencyKey + ":confirm")
	}
	intent, err = p.intents.Confirm(intent.ID, confirm)
	if err != nil {
		return "", p.translate(err)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		logger.Warn("payment intent not succeeded", slog.String("intent_id", intent.ID), slog.String("status", string(intent.Status)))
		return "", intentFailure(intent)
	}
	return intent.ID, nil
}

func (p *StripeProcessor) translate(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		code := string(stripeErr.Code)
		if stripeErr.Code == stripe.ErrorCodeCardDeclined && stripeErr.DeclineCode != "" {
			code = code + ":" + string(stripeErr.DeclineCode)
		}
		msg := stripeErr.Msg
		if msg == "" {
			msg = "The payment processor rejected the request."
		}
		p.logger.Error("stripe api error",
			slog.String("code", string(stripeErr.Code)),
			slog.String("type", string(stripeErr.Type)),
			slog.String("message", stripeErr.Msg))
		return &invoice.GatewayError{Code: code, Message: msg, Err: err}
	}
	return &invoice.GatewayError{Code: "processor_error", Message: err.Error(), Err: err}
}

func intentFailure(intent *stripe.PaymentIntent) error {
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		return &invoice.GatewayError{
			Code:    string(intent.LastPaymentError.Code),
			Message: intent.LastPaymentError.Msg,
		}
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusRequiresAction:
		return &invoice.GatewayError{Code: string(intent.Status), Message: "The card requires additional authentication."}
	case stripe.PaymentIntentStatusProcessing:
		return &invoice.GatewayError{Code: string(intent.Status), Message: "The payment is still processing."}
	default:
		return &invoice.GatewayError{Code: string(intent.Status), Message: "The payment was not completed."}
	}
}
