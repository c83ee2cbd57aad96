package invoice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invoiceWith(t *testing.T, id, clientID int64, status Status, price float64, paid ...float64) Invoice {
	t.Helper()
	inv := Invoice{
		ID:        id,
		ClientID:  clientID,
		LineItems: []LineItem{{Description: "Service", Quantity: 1, UnitPrice: price}},
		Status:    StatusSent,
	}
	e := testEngine()
	for _, amount := range paid {
		var err error
		inv, err = e.RecordPayment(inv, cash(amount))
		require.NoError(t, err)
	}
	inv.Status = status
	return inv
}

func TestSummarize(t *testing.T) {
	invoices := []Invoice{
		invoiceWith(t, 1, 1, StatusPaid, 1000, 1000),
		invoiceWith(t, 2, 1, StatusPartial, 500, 200),
		invoiceWith(t, 3, 2, StatusOverdue, 300),
		invoiceWith(t, 4, 2, StatusCancelled, 800, 100),
		invoiceWith(t, 5, 3, StatusDraft, 50),
	}

	s := Summarize(invoices)

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 1, s.PaidCount)
	assert.Equal(t, 1, s.OverdueCount)
	assert.InDelta(t, 1850, s.TotalAmount, 1e-9, "cancelled excluded")
	assert.InDelta(t, 1300, s.PaidAmount, 1e-9, "cancelled payments stay received")
	assert.InDelta(t, 650, s.OutstandingAmount, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestSummarizeOverdueCountsExplicitLabelOnly(t *testing.T) {
	pastDue := invoiceWith(t, 1, 1, StatusSent, 100)
	pastDue.DueDate = fixedNow.AddDate(0, 0, -30)

	s := Summarize([]Invoice{pastDue})

	assert.True(t, pastDue.IsOverdueAt(fixedNow))
	assert.Zero(t, s.OverdueCount)
}

func TestSummarizeForClient(t *testing.T) {
	invoices := []Invoice{
		invoiceWith(t, 1, 1, StatusPaid, 1000, 1000),
		invoiceWith(t, 2, 1, StatusPartial, 500, 200),
		invoiceWith(t, 3, 2, StatusOverdue, 300),
	}

	s := SummarizeForClient(invoices, 1)
	assert.Equal(t, 2, s.Total)
	assert.InDelta(t, 1500, s.TotalAmount, 1e-9)
	assert.InDelta(t, 300, s.OutstandingAmount, 1e-9)

	assert.Equal(t, Summary{}, SummarizeForClient(invoices, 99))
}

func TestIsOverdueAt(t *testing.T) {
	inv := invoiceWith(t, 1, 1, StatusPartial, 100, 40)
	inv.DueDate = fixedNow.AddDate(0, 0, -1)
	assert.True(t, inv.IsOverdueAt(fixedNow))
	assert.False(t, inv.IsOverdueAt(inv.DueDate))

	settled := invoiceWith(t, 2, 1, StatusPaid, 100, 100)
	settled.DueDate = inv.DueDate
	assert.False(t, settled.IsOverdueAt(fixedNow))

	noDue := invoiceWith(t, 3, 1, StatusSent, 100)
	assert.False(t, noDue.IsOverdueAt(fixedNow))
}

func TestIsOverdueAtComparesCalendarDays(t *testing.T) {
	inv := invoiceWith(t, 1, 1, StatusSent, 100)
	inv.DueDate = time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

	assert.False(t, inv.IsOverdueAt(time.Date(2026, 10, 17, 0, 5, 0, 0, time.UTC)), "due today")
	assert.False(t, inv.IsOverdueAt(time.Date(2026, 10, 17, 23, 59, 59, 0, time.UTC)), "due today")
	assert.True(t, inv.IsOverdueAt(time.Date(2026, 10, 18, 0, 0, 1, 0, time.UTC)))

	// A due date carrying a time of day still means the whole day.
	inv.DueDate = time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC)
	assert.False(t, inv.IsOverdueAt(time.Date(2026, 10, 17, 20, 0, 0, 0, time.UTC)))
}
