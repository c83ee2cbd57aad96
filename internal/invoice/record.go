package invoice

import (
	"time"
)

// Record is the wire shape exchanged with the persistence and transport
// layers. Derived amounts are rounded for presentation.
type Record struct {
	ID         int64           `json:"id"`
	Number     string          `json:"number"`
	ClientID   int64           `json:"client_id"`
	Status     Status          `json:"status"`
	TaxRate    float64         `json:"tax_rate"`
	Subtotal   float64         `json:"subtotal"`
	TaxAmount  float64         `json:"tax_amount"`
	Total      float64         `json:"total"`
	AmountPaid float64         `json:"amount_paid"`
	BalanceDue float64         `json:"balance_due"`
	DueDate    *time.Time      `json:"due_date,omitempty"`
	Items      []ItemRecord    `json:"items"`
	Payments   []PaymentRecord `json:"payments"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ItemRecord is the wire shape of a line item.
type ItemRecord struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
}

// PaymentRecord is the wire shape of a ledger entry.
type PaymentRecord struct {
	ID               int64         `json:"id"`
	Amount           float64       `json:"amount"`
	Method           PaymentMethod `json:"payment_method"`
	ReferenceNumber  *string       `json:"reference_number"`
	Notes            *string       `json:"notes"`
	PaymentDate      time.Time     `json:"payment_date"`
	GatewayReference *string       `json:"gateway_reference"`
}

// ToRecord projects an invoice into its wire shape.
func ToRecord(inv Invoice) Record {
	totals := inv.Totals().Rounded()
	rec := Record{
		ID:         inv.ID,
		Number:     inv.Number,
		ClientID:   inv.ClientID,
		Status:     inv.Status,
		TaxRate:    inv.TaxRate,
		Subtotal:   totals.Subtotal,
		TaxAmount:  totals.TaxAmount,
		Total:      totals.Total,
		AmountPaid: Round2(inv.AmountPaid()),
		BalanceDue: Round2(inv.BalanceDue()),
		Items:      make([]ItemRecord, 0, len(inv.LineItems)),
		Payments:   make([]PaymentRecord, 0, len(inv.payments)),
		CreatedAt:  inv.CreatedAt,
		UpdatedAt:  inv.UpdatedAt,
	}
	if !inv.DueDate.IsZero() {
		due := inv.DueDate
		rec.DueDate = &due
	}
	for _, item := range inv.LineItems {
		rec.Items = append(rec.Items, ItemRecord{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   Round2(item.Total()),
		})
	}
	for _, p := range inv.payments {
		rec.Payments = append(rec.Payments, PaymentRecord{
			ID:               p.ID,
			Amount:           p.Amount,
			Method:           p.Method,
			ReferenceNumber:  p.ReferenceNumber,
			Notes:            p.Notes,
			PaymentDate:      p.PaymentDate,
			GatewayReference: p.GatewayReference,
		})
	}
	return rec
}

// FromRecord rebuilds a snapshot from a wire record. The record's
// amount_paid and balance_due are kept only as advisory values; line totals
// and the ledger are re-derived.
func FromRecord(rec Record) Invoice {
	inv := Invoice{
		ID:        rec.ID,
		Number:    rec.Number,
		ClientID:  rec.ClientID,
		Status:    rec.Status,
		TaxRate:   rec.TaxRate,
		Advisory:  &Advisory{AmountPaid: rec.AmountPaid, BalanceDue: rec.BalanceDue},
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.DueDate != nil {
		inv.DueDate = *rec.DueDate
	}
	for _, item := range rec.Items {
		inv.LineItems = append(inv.LineItems, LineItem{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	payments := make([]Payment, 0, len(rec.Payments))
	for _, p := range rec.Payments {
		payments = append(payments, Payment{
			ID:               p.ID,
			Amount:           p.Amount,
			Method:           p.Method,
			ReferenceNumber:  p.ReferenceNumber,
			Notes:            p.Notes,
			PaymentDate:      p.PaymentDate,
			GatewayReference: p.GatewayReference,
		})
	}
	return Restore(inv, payments)
}

// AdvisoryDrift reports whether persisted balances disagree with the ledger
// by at least half a minor unit.
func AdvisoryDrift(inv Invoice) bool {
	if inv.Advisory == nil {
		return false
	}
	return abs(inv.Advisory.AmountPaid-inv.AmountPaid()) >= halfCent ||
		abs(inv.Advisory.BalanceDue-inv.BalanceDue()) >= halfCent
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
