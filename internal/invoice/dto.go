package invoice

import (
	"time"
)

const dateLayout = "2006-01-02"

type itemPayload struct {
	Description string  `json:"description" validate:"required,max=500"`
	Quantity    float64 `json:"quantity" validate:"gte=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

type createInvoicePayload struct {
	ClientID int64         `json:"client_id" validate:"required,gt=0"`
	TaxRate  float64       `json:"tax_rate" validate:"gte=0"`
	DueDate  string        `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Items    []itemPayload `json:"items" validate:"required,min=1,dive"`
}

type updateItemsPayload struct {
	TaxRate float64       `json:"tax_rate" validate:"gte=0"`
	Items   []itemPayload `json:"items" validate:"required,min=1,dive"`
}

type previewPayload struct {
	TaxRate      float64       `json:"tax_rate" validate:"gte=0"`
	DiscountRate float64       `json:"discount_rate" validate:"gte=0,lte=100"`
	Items        []itemPayload `json:"items" validate:"dive"`
}

type billingPayload struct {
	CustomerRef      string `json:"customer_ref" validate:"max=255"`
	PaymentMethodRef string `json:"payment_method_ref" validate:"max=255"`
	Email            string `json:"email" validate:"omitempty,email"`
	ReturnURL        string `json:"return_url" validate:"omitempty,url"`
}

type paymentPayload struct {
	Amount          float64         `json:"amount" validate:"gt=0"`
	Method          string          `json:"payment_method" validate:"required"`
	ReferenceNumber *string         `json:"reference_number" validate:"omitempty,max=100"`
	Notes           *string         `json:"notes" validate:"omitempty,max=1000"`
	PaymentDate     string          `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	Billing         *billingPayload `json:"billing"`
}

type statusPayload struct {
	Status  string          `json:"status" validate:"required"`
	Payment *paymentPayload `json:"payment"`
}

type listResponse struct {
	Data  []Record `json:"data"`
	Count int      `json:"count"`
}

func toLineItems(in []itemPayload) []LineItem {
	items := make([]LineItem, 0, len(in))
	for _, p := range in {
		items = append(items, LineItem{Description: p.Description, Quantity: p.Quantity, UnitPrice: p.UnitPrice})
	}
	return items
}

func (p createInvoicePayload) draft() InvoiceDraft {
	return InvoiceDraft{
		ClientID: p.ClientID,
		TaxRate:  p.TaxRate,
		DueDate:  parseDate(p.DueDate),
		Items:    toLineItems(p.Items),
	}
}

func (p paymentPayload) input() (PaymentInput, error) {
	method, err := ParsePaymentMethod(p.Method)
	if err != nil {
		return PaymentInput{}, err
	}
	return PaymentInput{
		Amount:          p.Amount,
		Method:          method,
		ReferenceNumber: p.ReferenceNumber,
		Notes:           p.Notes,
		PaymentDate:     parseDate(p.PaymentDate),
	}, nil
}

func (p paymentPayload) billing(clientID int64) BillingContext {
	ctx := BillingContext{ClientID: clientID}
	if p.Billing != nil {
		ctx.CustomerRef = p.Billing.CustomerRef
		ctx.PaymentMethodRef = p.Billing.PaymentMethodRef
		ctx.Email = p.Billing.Email
		ctx.ReturnURL = p.Billing.ReturnURL
	}
	return ctx
}

// parseDate accepts the validated layout; anything else becomes the zero time.
func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
