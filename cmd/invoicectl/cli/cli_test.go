package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoicely/invoicely/internal/invoice"
	"github.com/invoicely/invoicely/jobs"
)

func TestTotalsCommandJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"description": "Design", "quantity": 3, "unit_price": 100},
		{"description": "Hosting", "quantity": 1, "unit_price": 50}
	]`), 0o600))

	out := new(bytes.Buffer)
	root := NewRootCommand(out)
	root.SetArgs([]string{"totals", "--file", path, "--tax", "10", "--discount", "5", "--json"})
	require.NoError(t, root.Execute())

	var totals invoice.Totals
	require.NoError(t, json.Unmarshal(out.Bytes(), &totals))
	assert.Equal(t, invoice.Totals{Subtotal: 350, TaxAmount: 35, DiscountAmount: 17.5, Total: 367.5}, totals)
}

func TestTotalsCommandReadsStdin(t *testing.T) {
	out := new(bytes.Buffer)
	root := NewRootCommand(out)
	root.SetIn(strings.NewReader(`[{"description": "a", "quantity": 2, "unit_price": 50}]`))
	root.SetArgs([]string{"totals", "--currency", "???"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "Total:    100.00")
	assert.NotContains(t, out.String(), "Discount")
}

func TestTotalsCommandRejectsEmpty(t *testing.T) {
	root := NewRootCommand(new(bytes.Buffer))
	root.SetIn(strings.NewReader(`[]`))
	root.SetArgs([]string{"totals"})
	assert.ErrorContains(t, root.Execute(), "at least one line item")
}

func TestCommandNamesMatchBinary(t *testing.T) {
	root := NewRootCommand(new(bytes.Buffer))
	assert.Equal(t, "invoicectl", root.Name())

	totals, _, err := root.Find([]string{"totals"})
	require.NoError(t, err)
	for _, line := range strings.Split(totals.Example, "\n") {
		assert.Contains(t, line, "invoicectl totals")
	}
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
}

func (r *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func TestJobsTrigger(t *testing.T) {
	rec := &recordingEnqueuer{}
	c := &JobsCLI{client: rec}
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	info, err := c.Trigger(context.Background(), "overdue", asOf)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskOverdueSweep, info.Type)

	var payload jobs.OverdueSweepPayload
	require.NoError(t, json.Unmarshal(rec.tasks[0].Payload(), &payload))
	assert.True(t, payload.AsOf.Equal(asOf))

	_, err = c.Trigger(context.Background(), jobs.TaskSummaryWarmup, time.Time{})
	require.NoError(t, err)
	_, err = c.Trigger(context.Background(), "cleanup", time.Time{})
	require.NoError(t, err)
	assert.Len(t, rec.tasks, 3)

	_, err = c.Trigger(context.Background(), "reindex", time.Time{})
	assert.ErrorContains(t, err, "unsupported job")
}

func TestJobsTriggerCommand(t *testing.T) {
	rec := &recordingEnqueuer{}
	cmd := newJobsCommand(func(string) (*JobsCLI, error) { return &JobsCLI{client: rec}, nil })
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetArgs([]string{"trigger", "warmup"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "enqueued "+jobs.TaskSummaryWarmup)
	require.Len(t, rec.tasks, 1)

	cmd.SetArgs([]string{"trigger", "overdue", "--as-of", "June 1"})
	assert.Error(t, cmd.Execute())
}
