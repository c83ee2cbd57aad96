package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/invoicely/invoicely/internal/invoice"
	jobmetrics "github.com/invoicely/invoicely/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// InvoiceStore is the slice of the invoice service the sweep needs.
type InvoiceStore interface {
	ListInvoices(ctx context.Context, req invoice.ListInvoicesRequest) ([]invoice.Invoice, error)
	ChangeStatus(ctx context.Context, req invoice.ChangeStatusRequest) (invoice.Invoice, error)
}

// OverdueSweepJob relabels sent and partial invoices whose due date has passed.
type OverdueSweepJob struct {
	Invoices InvoiceStore
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewOverdueSweepJob wires dependencies for the sweep handler.
func NewOverdueSweepJob(invoices InvoiceStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueSweepJob {
	return &OverdueSweepJob{
		Invoices: invoices,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes overdue sweep tasks.
func (j *OverdueSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Invoices == nil {
		return errors.New("overdue sweep: handler not configured")
	}
	var payload OverdueSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}

	tracker := j.metrics().Track(TaskOverdueSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Time("as_of", asOf))
	logger.Info("starting overdue sweep")

	marked := 0
	for _, status := range []invoice.Status{invoice.StatusSent, invoice.StatusPartial} {
		n, err := j.sweep(ctx, logger, status, asOf)
		marked += n
		if err != nil {
			resultErr = errors.Join(resultErr, err)
		}
	}
	if resultErr != nil {
		logger.Error("overdue sweep incomplete", slog.Int("marked", marked), slog.Any("error", resultErr))
		return resultErr
	}
	logger.Info("completed overdue sweep", slog.Int("marked", marked))
	return resultErr
}

func (j *OverdueSweepJob) sweep(ctx context.Context, logger *slog.Logger, status invoice.Status, asOf time.Time) (int, error) {
	today := invoice.StartOfDay(asOf)
	candidates, err := j.Invoices.ListInvoices(ctx, invoice.ListInvoicesRequest{Status: status, DueBefore: &today})
	if err != nil {
		return 0, err
	}
	var errs error
	marked := 0
	for _, inv := range candidates {
		if !inv.IsOverdueAt(asOf) {
			continue
		}
		_, err := j.Invoices.ChangeStatus(ctx, invoice.ChangeStatusRequest{InvoiceID: inv.ID, Target: invoice.StatusOverdue})
		switch {
		case err == nil:
			marked++
		case errors.Is(err, invoice.ErrInvalidTransition), errors.Is(err, invoice.ErrNotFound):
			// Settled or removed since the listing.
			logger.Debug("skip invoice", slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
		default:
			logger.Warn("mark overdue", slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
			errs = errors.Join(errs, err)
		}
	}
	j.metrics().AddOverdue(string(status), marked)
	return marked, errs
}

func (j *OverdueSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskOverdueSweep))
	}
	return slog.Default().With(slog.String("job", TaskOverdueSweep))
}

func (j *OverdueSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *OverdueSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
