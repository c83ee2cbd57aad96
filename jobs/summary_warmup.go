package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/hibiken/asynq"

	"github.com/invoicely/invoicely/internal/invoice"
	jobmetrics "github.com/invoicely/invoicely/internal/jobs"
)

// SummaryWarmer precomputes cached summaries.
type SummaryWarmer interface {
	Warm(ctx context.Context, clientIDs ...int64) error
}

// InvoiceLister discovers the clients to warm when the payload names none.
type InvoiceLister interface {
	ListInvoices(ctx context.Context, req invoice.ListInvoicesRequest) ([]invoice.Invoice, error)
}

// SummaryWarmupJob pre-populates the summary cache after a deploy or a bump.
type SummaryWarmupJob struct {
	Summaries SummaryWarmer
	Invoices  InvoiceLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewSummaryWarmupJob wires dependencies for the warmup handler.
func NewSummaryWarmupJob(summaries SummaryWarmer, invoices InvoiceLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *SummaryWarmupJob {
	return &SummaryWarmupJob{Summaries: summaries, Invoices: invoices, Logger: logger, Metrics: metrics}
}

// Handle processes summary warmup tasks.
func (j *SummaryWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Summaries == nil {
		return errors.New("summary warmup: handler not configured")
	}
	var payload SummaryWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskSummaryWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	start := time.Now()
	clients := payload.ClientIDs
	if len(clients) == 0 && j.Invoices != nil {
		discovered, err := j.discoverClients(ctx)
		if err != nil {
			resultErr = err
			logger.Error("discover clients", slog.Any("error", err))
			return resultErr
		}
		clients = discovered
	}

	warmCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := j.Summaries.Warm(warmCtx, clients...); err != nil {
		resultErr = err
		logger.Error("warm summaries", slog.Any("error", err))
		return resultErr
	}
	logger.Info("completed summary warmup", slog.Int("clients", len(clients)), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *SummaryWarmupJob) discoverClients(ctx context.Context) ([]int64, error) {
	invoices, err := j.Invoices.ListInvoices(ctx, invoice.ListInvoicesRequest{})
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, inv := range invoices {
		if _, ok := seen[inv.ClientID]; ok || inv.ClientID == 0 {
			continue
		}
		seen[inv.ClientID] = struct{}{}
		ids = append(ids, inv.ClientID)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids, nil
}

func (j *SummaryWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSummaryWarmup))
	}
	return slog.Default().With(slog.String("job", TaskSummaryWarmup))
}

func (j *SummaryWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
