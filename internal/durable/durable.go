// Package durable binds the orchestrator's two job-control entry
// points to Temporal, the external durable-execution engine this
// service delegates retries, per-attempt timeouts, and heartbeating
// to. The workflow itself holds no ingest logic — it is a thin
// activity wrapper, so a crash mid-run makes the engine re-run the
// whole activity, which is safe because chunk upserts are idempotent.
package durable

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/knoguchi/docsearch/internal/orchestrator"
)

// TaskQueue is the default Temporal task queue this service's worker
// polls and its workflows are started on.
const TaskQueue = "docsearch-ingest"

// IngestRequest is the workflow input for both ingest kinds.
type IngestRequest struct {
	JobID     string
	SourceURL string
}

// Activities wraps an Orchestrator so its methods can be registered as
// Temporal activities.
type Activities struct {
	orch *orchestrator.Orchestrator
}

// NewActivities constructs an Activities wrapper.
func NewActivities(orch *orchestrator.Orchestrator) *Activities {
	return &Activities{orch: orch}
}

// RunHtmlIngestActivity is the Temporal activity wrapping
// Orchestrator.RunHtmlIngest. Activity heartbeats are not threaded
// through the crawl itself; Temporal's activity-level start-to-close
// timeout bounds the whole call.
func (a *Activities) RunHtmlIngestActivity(ctx context.Context, req IngestRequest) error {
	activity.RecordHeartbeat(ctx, "running")
	return a.orch.RunHtmlIngest(ctx, req.SourceURL, req.JobID)
}

// RunPdfIngestActivity is the Temporal activity wrapping
// Orchestrator.RunPdfIngest.
func (a *Activities) RunPdfIngestActivity(ctx context.Context, req IngestRequest) error {
	activity.RecordHeartbeat(ctx, "running")
	return a.orch.RunPdfIngest(ctx, req.SourceURL, req.JobID)
}

// activityOptions bounds a single ingest attempt: up to one hour
// start-to-close, heartbeat timeout so a stalled worker is detected,
// and up to 3 engine-level attempts before the workflow sees a
// terminal failure.
var activityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: time.Hour,
	HeartbeatTimeout:    30 * time.Second,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    3,
	},
}

const (
	htmlIngestActivityName = "RunHtmlIngestActivity"
	pdfIngestActivityName  = "RunPdfIngestActivity"
)

// HtmlIngestWorkflow runs RunHtmlIngestActivity under the engine's
// retry and timeout policy. Re-running the activity against the same
// (indexName, url) is safe because chunk upserts are idempotent.
// Activities are invoked by registered name, not by closing over an
// Activities instance, since workflow code must stay deterministic and
// replay-safe.
func HtmlIngestWorkflow(ctx workflow.Context, req IngestRequest) error {
	ctx = workflow.WithActivityOptions(ctx, activityOptions)
	return workflow.ExecuteActivity(ctx, htmlIngestActivityName, req).Get(ctx, nil)
}

// PdfIngestWorkflow runs RunPdfIngestActivity under the same policy.
func PdfIngestWorkflow(ctx workflow.Context, req IngestRequest) error {
	ctx = workflow.WithActivityOptions(ctx, activityOptions)
	return workflow.ExecuteActivity(ctx, pdfIngestActivityName, req).Get(ctx, nil)
}

// RegisterWith registers the ingest workflows and activities on w.
func RegisterWith(w worker.Worker, activities *Activities) {
	w.RegisterWorkflow(HtmlIngestWorkflow)
	w.RegisterWorkflow(PdfIngestWorkflow)
	w.RegisterActivityWithOptions(activities.RunHtmlIngestActivity, activity.RegisterOptions{Name: htmlIngestActivityName})
	w.RegisterActivityWithOptions(activities.RunPdfIngestActivity, activity.RegisterOptions{Name: pdfIngestActivityName})
}
