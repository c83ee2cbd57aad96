package invoice

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func testEngine(opts ...Option) *Engine {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewEngine(opts...)
}

// sentInvoice returns a sent invoice with a total of 1200.
func sentInvoice() Invoice {
	return Invoice{
		ID:        1,
		Number:    "INV-000001",
		ClientID:  7,
		LineItems: []LineItem{{Description: "Design", Quantity: 12, UnitPrice: 100}},
		Status:    StatusSent,
	}
}

func cash(amount float64) Payment {
	return Payment{Amount: amount, Method: MethodCash}
}

func TestRecordPaymentPartialThenPaid(t *testing.T) {
	e := testEngine()

	inv, err := e.RecordPayment(sentInvoice(), cash(500))
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, inv.Status)
	assert.InDelta(t, 700, inv.BalanceDue(), 1e-9)

	inv, err = e.RecordPayment(inv, cash(700))
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, inv.Status)
	assert.Zero(t, inv.BalanceDue())
	require.Len(t, inv.Payments(), 2)
	assert.Equal(t, fixedNow, inv.Payments()[1].RecordedAt)
	assert.Equal(t, fixedNow, inv.Payments()[1].PaymentDate)
}

func TestRecordPaymentKeepsExplicitPaymentDate(t *testing.T) {
	date := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)
	p := cash(100)
	p.PaymentDate = date

	inv, err := testEngine().RecordPayment(sentInvoice(), p)
	require.NoError(t, err)
	assert.Equal(t, date, inv.Payments()[0].PaymentDate)
}

func TestRecordPaymentRejectsBadAmounts(t *testing.T) {
	e := testEngine()
	for _, amount := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		inv := sentInvoice()
		next, err := e.RecordPayment(inv, cash(amount))
		assert.ErrorIs(t, err, ErrValidation, "amount %v", amount)
		assert.Empty(t, next.Payments())
		assert.Equal(t, StatusSent, next.Status)
	}
}

func TestRecordPaymentRejectsUnknownMethod(t *testing.T) {
	_, err := testEngine().RecordPayment(sentInvoice(), Payment{Amount: 10, Method: "barter"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "payment_method", vErr.Field)
}

func TestRecordPaymentRejectsOverpayment(t *testing.T) {
	e := testEngine()
	inv, err := e.RecordPayment(sentInvoice(), cash(1000))
	require.NoError(t, err)

	next, err := e.RecordPayment(inv, cash(300))
	var over *OverpaymentError
	require.ErrorAs(t, err, &over)
	assert.InDelta(t, 200, over.BalanceDue, 1e-9)
	assert.Len(t, next.Payments(), 1, "ledger unchanged on failure")
	assert.Equal(t, StatusPartial, next.Status)
}

func TestRecordPaymentToleratesFloatNoise(t *testing.T) {
	inv := sentInvoice()
	inv.LineItems = []LineItem{{Description: "x", Quantity: 3, UnitPrice: 0.1}}

	next, err := testEngine().RecordPayment(inv, cash(0.3))
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, next.Status)
}

func TestRecordPaymentRoundsToWholeCents(t *testing.T) {
	e := testEngine()

	next, err := e.RecordPayment(sentInvoice(), cash(0.001))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "amount", vErr.Field)
	assert.Empty(t, next.Payments())
	assert.Equal(t, StatusSent, next.Status)

	next, err = e.RecordPayment(sentInvoice(), cash(100.006))
	require.NoError(t, err)
	require.Len(t, next.Payments(), 1)
	assert.Equal(t, 100.01, next.Payments()[0].Amount, "stored amount matches the ledger")
	assert.Equal(t, 100.01, next.AmountPaid())
}

func TestRecordPaymentSettlesHalfCentTotal(t *testing.T) {
	inv := sentInvoice()
	inv.LineItems = []LineItem{{Description: "x", Quantity: 1, UnitPrice: 100.005}}

	next, err := testEngine().RecordPayment(inv, cash(100.01))
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, next.Status)
}

func TestRecordPaymentOverpaymentTolerance(t *testing.T) {
	next, err := testEngine(WithOverpaymentTolerance(5)).RecordPayment(sentInvoice(), cash(1204))
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, next.Status)
	assert.Zero(t, next.BalanceDue())

	_, err = testEngine(WithOverpaymentTolerance(5)).RecordPayment(sentInvoice(), cash(1206))
	assert.ErrorIs(t, err, ErrOverpayment)
}

func TestRecordPaymentOnCancelledInvoice(t *testing.T) {
	inv := sentInvoice()
	inv.Status = StatusCancelled

	_, err := testEngine().RecordPayment(inv, cash(100))
	var tErr *InvalidTransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, StatusCancelled, tErr.From)
	assert.Equal(t, StatusPartial, tErr.To)
}

func TestRecordPaymentDoesNotAliasInput(t *testing.T) {
	inv := sentInvoice()
	next, err := testEngine().RecordPayment(inv, cash(100))
	require.NoError(t, err)

	assert.Empty(t, inv.Payments())
	assert.Equal(t, StatusSent, inv.Status)
	assert.Len(t, next.Payments(), 1)
}

func TestPaymentsReturnsCopy(t *testing.T) {
	inv, err := testEngine().RecordPayment(sentInvoice(), cash(100))
	require.NoError(t, err)

	ps := inv.Payments()
	ps[0].Amount = 9999
	assert.InDelta(t, 100, inv.AmountPaid(), 1e-9)
}
