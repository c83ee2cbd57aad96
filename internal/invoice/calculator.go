package invoice

// Totals are derived amounts. They are never stored as authoritative.
type Totals struct {
	Subtotal       float64 `json:"subtotal"`
	TaxAmount      float64 `json:"tax_amount"`
	DiscountAmount float64 `json:"discount_amount"`
	Total          float64 `json:"total"`
}

// ComputeTotals derives invoice totals from line items and a tax rate given
// in percent. Invoices carry no discount.
func ComputeTotals(items []LineItem, taxRate float64) Totals {
	return ComputeEstimateTotals(items, taxRate, 0)
}

// ComputeEstimateTotals derives totals for estimates, which also carry a
// discount rate. Both rates apply to the subtotal.
func ComputeEstimateTotals(items []LineItem, taxRate, discountRate float64) Totals {
	var subtotal float64
	for _, item := range items {
		subtotal += item.Total()
	}
	tax := subtotal * nonNegative(taxRate) / 100
	discount := subtotal * nonNegative(discountRate) / 100
	return Totals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		DiscountAmount: discount,
		Total:          subtotal + tax - discount,
	}
}

// Rounded returns a copy rounded for presentation.
func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal:       Round2(t.Subtotal),
		TaxAmount:      Round2(t.TaxAmount),
		DiscountAmount: Round2(t.DiscountAmount),
		Total:          Round2(t.Total),
	}
}
