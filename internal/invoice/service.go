package invoice

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Gateway captures funds for a payment before it is recorded.
type Gateway interface {
	Capture(ctx context.Context, req CaptureRequest) (PaymentResult, error)
}

// BillingContext carries what the processor needs to charge a client. The
// payment method reference is the token produced by the card widget.
type BillingContext struct {
	ClientID         int64
	CustomerRef      string
	PaymentMethodRef string
	Email            string
	ReturnURL        string
}

// CaptureRequest asks the gateway to collect an amount for an invoice.
type CaptureRequest struct {
	InvoiceID      int64
	Amount         float64
	Method         PaymentMethod
	Billing        BillingContext
	IdempotencyKey string
}

// PaymentResult is a successful capture, normalized across methods.
type PaymentResult struct {
	Amount           float64
	Method           PaymentMethod
	GatewayReference *string
	CapturedAt       time.Time
}

// Invalidator drops cached read models after a mutation.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Recorder receives ledger events for instrumentation.
type Recorder interface {
	PaymentRecorded(method string)
	GatewayFailed(method string)
	StatusChanged(from, to string)
}

// PaymentInput is a payment as entered by the caller.
type PaymentInput struct {
	Amount          float64
	Method          PaymentMethod
	ReferenceNumber *string
	Notes           *string
	PaymentDate     time.Time
}

func (in PaymentInput) payment() Payment {
	return Payment{
		Amount:          Round2(in.Amount),
		Method:          in.Method,
		ReferenceNumber: in.ReferenceNumber,
		Notes:           in.Notes,
		PaymentDate:     in.PaymentDate,
	}
}

// ChangeStatusRequest is the single entry point for status changes.
type ChangeStatusRequest struct {
	InvoiceID      int64
	Target         Status
	Payment        *PaymentInput
	Billing        BillingContext
	IdempotencyKey string
}

// RecordPaymentRequest records a payment without naming a target status.
type RecordPaymentRequest struct {
	InvoiceID      int64
	Payment        PaymentInput
	Billing        BillingContext
	IdempotencyKey string
}

// Service coordinates the engine, the gateway and persistence.
type Service struct {
	repo        Repository
	engine      *Engine
	gateway     Gateway
	invalidator Invalidator
	recorder    Recorder
	logger      *slog.Logger
}

// NewService builds Service instance.
func NewService(repo Repository, engine *Engine, gateway Gateway, logger *slog.Logger) *Service {
	if engine == nil {
		engine = NewEngine()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, engine: engine, gateway: gateway, logger: logger}
}

// SetInvalidator injects the read-model cache invalidation hook.
func (s *Service) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// SetRecorder injects instrumentation.
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// Engine exposes the rule engine used by the service.
func (s *Service) Engine() *Engine {
	return s.engine
}

// CreateInvoice saves a draft as a new invoice in draft status.
func (s *Service) CreateInvoice(ctx context.Context, draft InvoiceDraft) (Invoice, error) {
	if err := draft.Validate(); err != nil {
		return Invoice{}, err
	}
	inv := draft.Invoice()
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.GenerateInvoiceNumber(ctx)
		if err != nil {
			return err
		}
		inv.Number = number
		id, err = tx.CreateInvoice(ctx, inv)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.invalidate(ctx)
	s.logger.Info("invoice created", slog.Int64("invoice_id", id), slog.Int64("client_id", inv.ClientID))
	return s.repo.GetInvoice(ctx, id)
}

// UpdateLineItems replaces the line items and tax rate of a draft invoice.
func (s *Service) UpdateLineItems(ctx context.Context, id int64, items []LineItem, taxRate float64) (Invoice, error) {
	if err := validateLineItems(items); err != nil {
		return Invoice{}, err
	}
	var next Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		next, err = s.engine.EditLineItems(current, items, taxRate)
		if err != nil {
			return err
		}
		if err := tx.ReplaceLineItems(ctx, id, next.LineItems, next.TaxRate); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, next.Status, balancesOf(next))
	})
	if err != nil {
		return Invoice{}, err
	}
	s.invalidate(ctx)
	return next, nil
}

// GetInvoice loads an invoice snapshot.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.load(ctx, id)
}

// ListInvoices returns invoices matching the filter.
func (s *Service) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, req)
}

// ChangeStatus validates a status change, captures the accompanying payment
// if any, then records payment and status together. Nothing is stored
// unless every step succeeds.
func (s *Service) ChangeStatus(ctx context.Context, req ChangeStatusRequest) (Invoice, error) {
	inv, err := s.load(ctx, req.InvoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if req.Billing.ClientID == 0 {
		req.Billing.ClientID = inv.ClientID
	}
	cmd := StatusChange{Target: req.Target}
	if req.Payment != nil {
		p := req.Payment.payment()
		cmd.Payment = &p
	}
	if err := s.engine.Plan(inv, cmd); err != nil {
		return inv, err
	}
	if cmd.Payment != nil {
		result, err := s.capture(ctx, inv.ID, *req.Payment, req.Billing, req.IdempotencyKey)
		if err != nil {
			return inv, err
		}
		cmd.Payment.GatewayReference = result.GatewayReference
	}
	return s.commit(ctx, inv, cmd.Payment, func(current Invoice) (Invoice, error) {
		return s.engine.Transition(current, cmd)
	})
}

// RecordPayment captures and records a payment; the status follows the
// ledger.
func (s *Service) RecordPayment(ctx context.Context, req RecordPaymentRequest) (Invoice, error) {
	inv, err := s.load(ctx, req.InvoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if req.Billing.ClientID == 0 {
		req.Billing.ClientID = inv.ClientID
	}
	p := req.Payment.payment()
	if _, err := s.engine.RecordPayment(inv, p); err != nil {
		return inv, err
	}
	result, err := s.capture(ctx, inv.ID, req.Payment, req.Billing, req.IdempotencyKey)
	if err != nil {
		return inv, err
	}
	p.GatewayReference = result.GatewayReference
	return s.commit(ctx, inv, &p, func(current Invoice) (Invoice, error) {
		return s.engine.RecordPayment(current, p)
	})
}

func (s *Service) capture(ctx context.Context, invoiceID int64, in PaymentInput, billing BillingContext, key string) (PaymentResult, error) {
	if s.gateway == nil {
		return PaymentResult{}, &GatewayError{Code: "gateway_unavailable", Message: "no payment gateway configured"}
	}
	result, err := s.gateway.Capture(ctx, CaptureRequest{
		InvoiceID:      invoiceID,
		Amount:         Round2(in.Amount),
		Method:         in.Method,
		Billing:        billing,
		IdempotencyKey: key,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			err = ErrPaymentAbandoned
		}
		if s.recorder != nil && !errors.Is(err, ErrPaymentAbandoned) {
			s.recorder.GatewayFailed(string(in.Method))
		}
		s.logger.Warn("payment capture failed",
			slog.Int64("invoice_id", invoiceID),
			slog.String("method", string(in.Method)),
			slog.Any("error", err))
		return PaymentResult{}, err
	}
	return result, nil
}

// commit re-applies the change to a freshly locked snapshot so that a
// concurrent append is never lost, then persists ledger and status.
func (s *Service) commit(ctx context.Context, before Invoice, payment *Payment, apply func(Invoice) (Invoice, error)) (Invoice, error) {
	var next Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockInvoice(ctx, before.ID)
		if err != nil {
			return err
		}
		next, err = apply(current)
		if err != nil {
			return err
		}
		if payment != nil {
			id, err := tx.AppendPayment(ctx, next.ID, next.payments[len(next.payments)-1])
			if err != nil {
				return err
			}
			next.payments[len(next.payments)-1].ID = id
		}
		return tx.UpdateStatus(ctx, next.ID, next.Status, balancesOf(next))
	})
	if err != nil {
		if payment != nil && payment.GatewayReference != nil {
			s.logger.Error("captured payment could not be recorded",
				slog.Int64("invoice_id", before.ID),
				slog.String("gateway_reference", *payment.GatewayReference),
				slog.Any("error", err))
		}
		return before, err
	}

	s.invalidate(ctx)
	if s.recorder != nil {
		if payment != nil {
			s.recorder.PaymentRecorded(string(payment.Method))
		}
		if before.Status != next.Status {
			s.recorder.StatusChanged(string(before.Status), string(next.Status))
		}
	}
	s.logger.Info("invoice updated",
		slog.Int64("invoice_id", next.ID),
		slog.String("from", string(before.Status)),
		slog.String("to", string(next.Status)),
		slog.Float64("balance_due", Round2(next.BalanceDue())))
	return next, nil
}

func (s *Service) load(ctx context.Context, id int64) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if AdvisoryDrift(inv) {
		s.logger.Warn("stored balances disagree with ledger",
			slog.Int64("invoice_id", id),
			slog.Float64("stored_amount_paid", inv.Advisory.AmountPaid),
			slog.Float64("ledger_amount_paid", inv.AmountPaid()))
	}
	return inv, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		s.logger.Warn("invalidate invoice summaries", slog.Any("error", err))
	}
}

func balancesOf(inv Invoice) Advisory {
	return Advisory{AmountPaid: inv.AmountPaid(), BalanceDue: inv.BalanceDue()}
}
