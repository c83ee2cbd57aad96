package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"

	"github.com/invoicely/invoicely/internal/invoice"
)

type fakeIntents struct {
	created   []*stripe.PaymentIntentParams
	confirmed []*stripe.PaymentIntentConfirmParams
	newErr    error
	confirmFn func(id string) (*stripe.PaymentIntent, error)
}

func (f *fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.created = append(f.created, params)
	if f.newErr != nil {
		return nil, f.newErr
	}
	return &stripe.PaymentIntent{ID: "pi_123", Status: stripe.PaymentIntentStatusRequiresConfirmation}, nil
}

func (f *fakeIntents) Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	f.confirmed = append(f.confirmed, params)
	if f.confirmFn != nil {
		return f.confirmFn(id)
	}
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusSucceeded}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAdapter(intents IntentAPI) *Adapter {
	return NewAdapter(NewStripeProcessor(intents, "USD", quietLogger()), quietLogger())
}

func TestCaptureManualMethodsHaveNoReference(t *testing.T) {
	intents := &fakeIntents{}
	adapter := newTestAdapter(intents)

	for _, method := range []invoice.PaymentMethod{
		invoice.MethodCash, invoice.MethodCheck, invoice.MethodBankTransfer, invoice.MethodPayPal, invoice.MethodOther,
	} {
		res, err := adapter.Capture(context.Background(), invoice.CaptureRequest{InvoiceID: 1, Amount: 25, Method: method})
		require.NoError(t, err, method)
		assert.Nil(t, res.GatewayReference, method)
		assert.Equal(t, 25.0, res.Amount)
		assert.Equal(t, method, res.Method)
	}
	assert.Empty(t, intents.created, "manual methods must not reach the processor")
}

func TestCaptureCardSucceeds(t *testing.T) {
	intents := &fakeIntents{}
	adapter := newTestAdapter(intents)

	res, err := adapter.Capture(context.Background(), invoice.CaptureRequest{
		InvoiceID:      42,
		Amount:         1200.5,
		Method:         invoice.MethodStripe,
		Billing:        invoice.BillingContext{ClientID: 7, CustomerRef: "cus_1", PaymentMethodRef: "pm_card"},
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	require.NotNil(t, res.GatewayReference)
	assert.Equal(t, "pi_123", *res.GatewayReference)

	require.Len(t, intents.created, 1)
	params := intents.created[0]
	assert.Equal(t, int64(120050), *params.Amount)
	assert.Equal(t, "usd", *params.Currency)
	assert.Equal(t, "cus_1", *params.Customer)
	assert.Equal(t, "pm_card", *params.PaymentMethod)
	assert.Equal(t, "42", params.Metadata["invoice_id"])
	assert.NotEmpty(t, params.Metadata["attempt_id"])
	assert.Equal(t, "key-1:create", *params.IdempotencyKey)
	require.Len(t, intents.confirmed, 1)
	assert.Equal(t, "key-1:confirm", *intents.confirmed[0].IdempotencyKey)
}

func TestCaptureCardDeclinedSurfacesProcessorMessage(t *testing.T) {
	intents := &fakeIntents{
		confirmFn: func(string) (*stripe.PaymentIntent, error) {
			return nil, &stripe.Error{Code: stripe.ErrorCodeCardDeclined, Msg: "Your card was declined."}
		},
	}
	adapter := newTestAdapter(intents)

	_, err := adapter.Capture(context.Background(), invoice.CaptureRequest{InvoiceID: 1, Amount: 10, Method: invoice.MethodCreditCard})
	require.Error(t, err)
	assert.ErrorIs(t, err, invoice.ErrGateway)

	var gwErr *invoice.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "Your card was declined.", gwErr.Message)
	assert.Equal(t, string(stripe.ErrorCodeCardDeclined), gwErr.Code)
}

func TestCaptureCardNotSucceeded(t *testing.T) {
	intents := &fakeIntents{
		confirmFn: func(id string) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{
				ID:     id,
				Status: stripe.PaymentIntentStatusRequiresPaymentMethod,
				LastPaymentError: &stripe.Error{
					Code: stripe.ErrorCodeExpiredCard,
					Msg:  "Your card has expired.",
				},
			}, nil
		},
	}
	adapter := newTestAdapter(intents)

	_, err := adapter.Capture(context.Background(), invoice.CaptureRequest{InvoiceID: 1, Amount: 10, Method: invoice.MethodCreditCard})
	var gwErr *invoice.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "Your card has expired.", gwErr.Message)
}

func TestCaptureCardRequiresAction(t *testing.T) {
	intents := &fakeIntents{
		confirmFn: func(id string) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusRequiresAction}, nil
		},
	}
	adapter := newTestAdapter(intents)

	_, err := adapter.Capture(context.Background(), invoice.CaptureRequest{InvoiceID: 1, Amount: 10, Method: invoice.MethodStripe})
	assert.ErrorIs(t, err, invoice.ErrGateway)
}

func TestCaptureCancelledContextIsAbandoned(t *testing.T) {
	intents := &fakeIntents{}
	adapter := newTestAdapter(intents)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := adapter.Capture(ctx, invoice.CaptureRequest{InvoiceID: 1, Amount: 10, Method: invoice.MethodStripe})
	assert.ErrorIs(t, err, invoice.ErrPaymentAbandoned)
	assert.False(t, errors.Is(err, invoice.ErrGateway))
	assert.Empty(t, intents.created)
}

func TestCaptureCardWithoutProcessor(t *testing.T) {
	adapter := NewAdapter(nil, quietLogger())

	_, err := adapter.Capture(context.Background(), invoice.CaptureRequest{InvoiceID: 1, Amount: 10, Method: invoice.MethodCreditCard})
	assert.ErrorIs(t, err, invoice.ErrGateway)
}

func TestCaptureUnknownMethod(t *testing.T) {
	adapter := newTestAdapter(&fakeIntents{})

	_, err := adapter.Capture(context.Background(), invoice.CaptureRequest{InvoiceID: 1, Amount: 10, Method: "barter"})
	assert.ErrorIs(t, err, invoice.ErrValidation)
}

func TestCaptureCreateErrorIsGatewayError(t *testing.T) {
	intents := &fakeIntents{newErr: errors.New("connection reset")}
	adapter := newTestAdapter(intents)

	_, err := adapter.Capture(context.Background(), invoice.CaptureRequest{InvoiceID: 1, Amount: 10, Method: invoice.MethodCreditCard})
	var gwErr *invoice.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "connection reset", gwErr.Message)
	assert.Empty(t, intents.confirmed)
}

type stalledProcessor struct{}

func (stalledProcessor) Charge(ctx context.Context, req invoice.CaptureRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestCaptureCardTimeout(t *testing.T) {
	adapter := NewAdapter(stalledProcessor{}, quietLogger())
	adapter.SetTimeout(10 * time.Millisecond)

	_, err := adapter.Capture(context.Background(), invoice.CaptureRequest{InvoiceID: 1, Amount: 10, Method: invoice.MethodStripe})
	require.ErrorIs(t, err, invoice.ErrGateway)
	assert.NotErrorIs(t, err, invoice.ErrPaymentAbandoned)
	var gwErr *invoice.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "timeout", gwErr.Code)
}
