package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueSweep relabels past-due invoices as overdue.
	TaskOverdueSweep = "invoices:overdue_sweep"
	// TaskSummaryWarmup pre-computes cached invoice summaries.
	TaskSummaryWarmup = "invoices:summary_warmup"
	// TaskIdempotencyCleanup purges expired payment idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// OverdueSweepPayload pins the sweep to a reference time. A zero AsOf means now.
type OverdueSweepPayload struct {
	AsOf time.Time `json:"as_of,omitempty"`
}

// SummaryWarmupPayload lists the clients whose summaries should be warmed.
// An empty list warms every client that has invoices.
type SummaryWarmupPayload struct {
	ClientIDs []int64 `json:"client_ids,omitempty"`
}

// NewOverdueSweepTask constructs an Asynq task for the overdue sweep.
func NewOverdueSweepTask(payload OverdueSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueSweep, data), nil
}

// NewSummaryWarmupTask constructs an Asynq task for the summary warmup.
func NewSummaryWarmupTask(payload SummaryWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSummaryWarmup, data), nil
}

// IdempotencyCleanupPayload sets how long keys are retained.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
