package invoice

// Summary is the read model behind dashboards and per-client statistics.
type Summary struct {
	Total             int     `json:"total"`
	PaidCount         int     `json:"paid_count"`
	OverdueCount      int     `json:"overdue_count"`
	TotalAmount       float64 `json:"total_amount"`
	PaidAmount        float64 `json:"paid_amount"`
	OutstandingAmount float64 `json:"outstanding_amount"`
}

// Summarize rolls up a set of invoices. Cancelled invoices count towards
// Total and PaidAmount (payments received stay received) but not towards
// TotalAmount or OutstandingAmount. Overdue is counted from the explicit
// label only.
func Summarize(invoices []Invoice) Summary {
	var s Summary
	for _, inv := range invoices {
		s.Total++
		switch inv.Status {
		case StatusPaid:
			s.PaidCount++
		case StatusOverdue:
			s.OverdueCount++
		}
		if inv.Status != StatusCancelled {
			s.TotalAmount += inv.Total()
		}
		s.PaidAmount += inv.AmountPaid()
		s.OutstandingAmount += inv.BalanceDue()
	}
	return s
}

// SummarizeForClient is Summarize restricted to one client.
func SummarizeForClient(invoices []Invoice, clientID int64) Summary {
	filtered := make([]Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.ClientID == clientID {
			filtered = append(filtered, inv)
		}
	}
	return Summarize(filtered)
}

// Rounded returns a copy rounded for presentation.
func (s Summary) Rounded() Summary {
	s.TotalAmount = Round2(s.TotalAmount)
	s.PaidAmount = Round2(s.PaidAmount)
	s.OutstandingAmount = Round2(s.OutstandingAmount)
	return s
}
