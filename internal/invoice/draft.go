package invoice

import (
	"strings"
	"time"
)

// InvoiceDraft is the editable state behind an invoice form. Totals are a
// projection of it, never a field.
type InvoiceDraft struct {
	ClientID int64
	TaxRate  float64
	DueDate  time.Time
	Items    []LineItem
}

// Action is an edit applied to a draft.
type Action interface {
	apply(d InvoiceDraft) InvoiceDraft
}

// AddItem appends an empty line.
type AddItem struct{}

// RemoveItem drops the line at Index.
type RemoveItem struct{ Index int }

// SetDescription changes a line description.
type SetDescription struct {
	Index int
	Value string
}

// SetQuantity changes a line quantity from raw form input.
type SetQuantity struct {
	Index int
	Raw   string
}

// SetUnitPrice changes a line unit price from raw form input.
type SetUnitPrice struct {
	Index int
	Raw   string
}

// SetTaxRate changes the tax rate from raw form input.
type SetTaxRate struct{ Raw string }

// SetClient assigns the client reference.
type SetClient struct{ ClientID int64 }

// SetDueDate assigns the due date.
type SetDueDate struct{ Date time.Time }

// Reduce applies an action and returns the next draft. The input draft is
// left untouched.
func Reduce(d InvoiceDraft, a Action) InvoiceDraft {
	next := d
	next.Items = append([]LineItem(nil), d.Items...)
	if a == nil {
		return next
	}
	return a.apply(next)
}

func (AddItem) apply(d InvoiceDraft) InvoiceDraft {
	d.Items = append(d.Items, LineItem{})
	return d
}

func (a RemoveItem) apply(d InvoiceDraft) InvoiceDraft {
	if !d.inRange(a.Index) {
		return d
	}
	d.Items = append(d.Items[:a.Index], d.Items[a.Index+1:]...)
	return d
}

func (a SetDescription) apply(d InvoiceDraft) InvoiceDraft {
	if d.inRange(a.Index) {
		d.Items[a.Index].Description = a.Value
	}
	return d
}

func (a SetQuantity) apply(d InvoiceDraft) InvoiceDraft {
	if d.inRange(a.Index) {
		d.Items[a.Index].Quantity = ParseAmount(a.Raw)
	}
	return d
}

func (a SetUnitPrice) apply(d InvoiceDraft) InvoiceDraft {
	if d.inRange(a.Index) {
		d.Items[a.Index].UnitPrice = ParseAmount(a.Raw)
	}
	return d
}

func (a SetTaxRate) apply(d InvoiceDraft) InvoiceDraft {
	d.TaxRate = ParseAmount(a.Raw)
	return d
}

func (a SetClient) apply(d InvoiceDraft) InvoiceDraft {
	d.ClientID = a.ClientID
	return d
}

func (a SetDueDate) apply(d InvoiceDraft) InvoiceDraft {
	d.DueDate = a.Date
	return d
}

func (d InvoiceDraft) inRange(i int) bool {
	return i >= 0 && i < len(d.Items)
}

// Totals projects the current totals.
func (d InvoiceDraft) Totals() Totals {
	return ComputeTotals(d.Items, d.TaxRate)
}

// Validate checks the draft is complete enough to be saved.
func (d InvoiceDraft) Validate() error {
	if d.ClientID <= 0 {
		return newValidationError("client_id", "a client must be assigned")
	}
	if len(d.Items) == 0 {
		return newValidationError("items", "at least one line item is required")
	}
	return validateLineItems(d.Items)
}

// Invoice converts the draft into a new draft-status invoice snapshot.
func (d InvoiceDraft) Invoice() Invoice {
	return Invoice{
		ClientID:  d.ClientID,
		LineItems: append([]LineItem(nil), d.Items...),
		TaxRate:   nonNegative(d.TaxRate),
		Status:    StatusDraft,
		DueDate:   d.DueDate,
	}
}

func validateLineItems(items []LineItem) error {
	for i, item := range items {
		if strings.TrimSpace(item.Description) == "" {
			return newValidationError("items", "line %d needs a description", i+1)
		}
		if item.Quantity < 0 || item.UnitPrice < 0 {
			return newValidationError("items", "line %d has a negative amount", i+1)
		}
	}
	return nil
}
