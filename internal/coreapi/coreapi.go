// Package coreapi is the service's single entry point: a plain Go
// interface over job submission, progress, and access-gated search,
// with no transport bound to it. cmd/ragd's CLI calls through this
// package rather than reaching into internal/orchestrator or
// internal/access directly; cmd/worker's Temporal activities
// (internal/durable) call the orchestrator themselves.
package coreapi

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/knoguchi/docsearch/internal/access"
	"github.com/knoguchi/docsearch/internal/indexname"
	"github.com/knoguchi/docsearch/internal/jobstore"
	"github.com/knoguchi/docsearch/internal/orchestrator"
)

// App bundles the components a caller needs to submit ingest jobs,
// check on them, and run access-gated search.
type App struct {
	Jobs         *jobstore.Store
	Access       *access.Model
	Orchestrator *orchestrator.Orchestrator
}

// New constructs an App.
func New(jobs *jobstore.Store, accessModel *access.Model, orch *orchestrator.Orchestrator) *App {
	return &App{Jobs: jobs, Access: accessModel, Orchestrator: orch}
}

// SubmitHtmlIngest creates a job row and returns its ID. The caller (a
// durable-execution workflow, or a direct synchronous call from the
// CLI) is responsible for actually invoking RunHtmlIngest with this ID.
func (a *App) SubmitHtmlIngest(ctx context.Context, sourceURL string, identity jobstore.Identity) (string, error) {
	return a.submit(ctx, sourceURL, identity)
}

// SubmitPdfIngest creates a job row for a PDF ingest.
func (a *App) SubmitPdfIngest(ctx context.Context, pdfURL string, identity jobstore.Identity) (string, error) {
	return a.submit(ctx, pdfURL, identity)
}

func (a *App) submit(ctx context.Context, sourceURL string, identity jobstore.Identity) (string, error) {
	name, err := indexname.Derive(sourceURL)
	if err != nil {
		return "", fmt.Errorf("coreapi: derive index name: %w", err)
	}

	jobID := uuid.NewString()
	job := jobstore.Job{
		JobID:     jobID,
		IndexName: name,
		SourceURL: sourceURL,
		Status:    jobstore.StatusStarted,
		Identity:  identity,
		StartedAt: time.Now().UTC(),
	}
	if err := a.Jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("coreapi: create job: %w", err)
	}
	return jobID, nil
}

// RunHtmlIngestNow runs the HTML ingest synchronously, bypassing the
// durable-execution engine. Intended for local/CLI use; production
// submission should go through internal/durable's Temporal workflow.
func (a *App) RunHtmlIngestNow(ctx context.Context, sourceURL, jobID string) error {
	return a.Orchestrator.RunHtmlIngest(ctx, sourceURL, jobID)
}

// RunPdfIngestNow runs the PDF ingest synchronously.
func (a *App) RunPdfIngestNow(ctx context.Context, pdfURL, jobID string) error {
	return a.Orchestrator.RunPdfIngest(ctx, pdfURL, jobID)
}

// JobStatus returns the current job row.
func (a *App) JobStatus(ctx context.Context, jobID string) (jobstore.Job, error) {
	return a.Jobs.Get(ctx, jobID)
}

// Search resolves sessionID to an identity and runs an access-gated
// semantic search against indexName.
func (a *App) Search(ctx context.Context, sessionID, indexName, queryText string, k int) ([]access.Result, error) {
	identity, err := a.Access.Identity(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return a.Access.Search(ctx, identity, indexName, queryText, k)
}

// LinkSession links a session to an identity.
func (a *App) LinkSession(ctx context.Context, sessionID string, identity jobstore.Identity) error {
	return a.Access.LinkSession(ctx, sessionID, identity)
}

// Grant records an access grant.
func (a *App) Grant(ctx context.Context, target jobstore.Identity, indexName string, level access.Level, grantedBy string, expiresAt *time.Time) error {
	return a.Access.Grant(ctx, target, indexName, level, grantedBy, expiresAt)
}
