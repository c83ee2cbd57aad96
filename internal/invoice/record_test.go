package invoice

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRecordDerivesAmounts(t *testing.T) {
	inv := sentInvoice()
	inv.TaxRate = 8.25
	ref := "CHK-1001"
	p := cash(500)
	p.Method = MethodCheck
	p.ReferenceNumber = &ref
	inv, err := testEngine().RecordPayment(inv, p)
	require.NoError(t, err)

	rec := ToRecord(inv)

	assert.Equal(t, 1200.0, rec.Subtotal)
	assert.Equal(t, 99.0, rec.TaxAmount)
	assert.Equal(t, 1299.0, rec.Total)
	assert.Equal(t, 500.0, rec.AmountPaid)
	assert.Equal(t, 799.0, rec.BalanceDue)
	assert.Nil(t, rec.DueDate)
	require.Len(t, rec.Items, 1)
	assert.Equal(t, 1200.0, rec.Items[0].LineTotal)
	require.Len(t, rec.Payments, 1)
	assert.Equal(t, "CHK-1001", *rec.Payments[0].ReferenceNumber)
}

func TestFromRecordIgnoresStoredBalances(t *testing.T) {
	raw := `{
		"id": 5, "number": "INV-000005", "client_id": 2, "status": "partial", "tax_rate": 0,
		"amount_paid": 999, "balance_due": 1,
		"items": [{"description": "Retainer", "quantity": 2, "unit_price": 250, "line_total": 12345}],
		"payments": [{"id": 1, "amount": 100, "payment_method": "cash", "payment_date": "2026-05-01T00:00:00Z"}]
	}`
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))

	inv := FromRecord(rec)

	assert.InDelta(t, 500, inv.Total(), 1e-9, "line total is re-derived")
	assert.InDelta(t, 100, inv.AmountPaid(), 1e-9)
	assert.InDelta(t, 400, inv.BalanceDue(), 1e-9)
	assert.True(t, AdvisoryDrift(inv))
}

func TestAdvisoryDrift(t *testing.T) {
	inv := sentInvoice()
	assert.False(t, AdvisoryDrift(inv))

	inv.Advisory = &Advisory{AmountPaid: 0, BalanceDue: 1200.001}
	assert.False(t, AdvisoryDrift(inv))

	inv.Advisory = &Advisory{AmountPaid: 0, BalanceDue: 1100}
	assert.True(t, AdvisoryDrift(inv))
}

func TestUserMessageIsDistinctPerKind(t *testing.T) {
	errs := []error{
		newValidationError("amount", "must be positive"),
		&InvalidTransitionError{From: StatusSent, To: StatusPaid, Reason: "no"},
		&OverpaymentError{Amount: 10, BalanceDue: 5},
		&GatewayError{Code: "card_declined", Message: "Your card was declined."},
		ErrPaymentAbandoned,
	}
	seen := map[string]bool{}
	for _, err := range errs {
		msg := UserMessage(err)
		assert.NotEmpty(t, msg)
		assert.False(t, seen[msg], msg)
		seen[msg] = true
	}
	assert.Contains(t, UserMessage(errs[3]), "Your card was declined.")
}
