// Command worker runs the Temporal worker that polls the ingest task
// queue and executes HtmlIngestWorkflow/PdfIngestWorkflow. It shares
// its wiring with cmd/ragd but never calls RunHtmlIngest/RunPdfIngest
// directly — only Temporal, via internal/durable, does that.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/knoguchi/docsearch/internal/chunk"
	"github.com/knoguchi/docsearch/internal/config"
	"github.com/knoguchi/docsearch/internal/crawl"
	"github.com/knoguchi/docsearch/internal/db"
	"github.com/knoguchi/docsearch/internal/durable"
	"github.com/knoguchi/docsearch/internal/embedding"
	"github.com/knoguchi/docsearch/internal/jobstore"
	"github.com/knoguchi/docsearch/internal/orchestrator"
	"github.com/knoguchi/docsearch/internal/ratelimit"
	"github.com/knoguchi/docsearch/internal/vectorstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	jobs := jobstore.New(database)
	if err := jobs.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure job schema: %w", err)
	}

	store := vectorstore.New(database.Pool)

	var embedder *embedding.Client
	if cfg.EmbeddingProvider == "google" {
		embedder, err = embedding.NewGoogle(ctx, embedding.GoogleConfig{
			APIKey:    cfg.EmbeddingAPIKey,
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.EmbeddingDimension,
		})
	} else {
		embedder = embedding.NewOpenAI(embedding.OpenAIConfig{
			APIKey:     cfg.EmbeddingAPIKey,
			BaseURL:    cfg.EmbeddingBaseURL,
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.EmbeddingDimension,
		})
	}
	if err != nil {
		return fmt.Errorf("initialize embedder: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Limits{
		RequestsPerMinute: cfg.EmbedRequestsPerMinute,
		TokensPerMinute:   cfg.EmbedTokensPerMinute,
		TokensPerDay:      cfg.EmbedTokensPerDay,
	})

	var distLimiter *ratelimit.DistributedLimiter
	if cfg.EmbedRateLimitDistributed {
		distLimiter = ratelimit.NewDistributed(database.Pool, cfg.EmbedRateLimitKey, ratelimit.Limits{
			RequestsPerMinute: cfg.EmbedRequestsPerMinute,
			TokensPerMinute:   cfg.EmbedTokensPerMinute,
			TokensPerDay:      cfg.EmbedTokensPerDay,
		})
		if err := distLimiter.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure distributed rate limit schema: %w", err)
		}
	}

	var include, exclude []*regexp.Regexp
	if cfg.DocsIncludeRegex != "" {
		re, err := regexp.Compile(cfg.DocsIncludeRegex)
		if err != nil {
			return fmt.Errorf("compile DOCS_INCLUDE_REGEX: %w", err)
		}
		include = append(include, re)
	}
	if cfg.DocsExcludeRegex != "" {
		re, err := regexp.Compile(cfg.DocsExcludeRegex)
		if err != nil {
			return fmt.Errorf("compile DOCS_EXCLUDE_REGEX: %w", err)
		}
		exclude = append(exclude, re)
	}

	orch := orchestrator.New(jobs, store, embedder, limiter, distLimiter, orchestrator.Config{
		BatchSize: cfg.IngestBatchSize,
		Deadline:  cfg.IngestDeadline,
		ChunkConfig: chunk.Config{
			ChunkSize: cfg.DocsChunkSize,
			Overlap:   cfg.DocsChunkOverlap,
		},
		CrawlConfig: crawl.Config{
			MaxPages:    cfg.CrawlMaxPages,
			Concurrency: cfg.CrawlConcurrency,
			Timeout:     cfg.CrawlFetchTimeout,
			UserAgent:   cfg.CrawlUserAgent,
			Include:     include,
			Exclude:     exclude,
		},
		EmbedMaxRetries:     cfg.DocsEmbedMaxRetries,
		EmbedInitialBackoff: cfg.DocsEmbedInitialBackoff,
	})

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalHostPort,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		return fmt.Errorf("dial temporal: %w", err)
	}
	defer temporalClient.Close()

	taskQueue := cfg.TemporalTaskQueue
	if taskQueue == "" {
		taskQueue = durable.TaskQueue
	}

	w := worker.New(temporalClient, taskQueue, worker.Options{})
	durable.RegisterWith(w, durable.NewActivities(orch))

	slog.Info("starting temporal worker", "task_queue", taskQueue, "host_port", cfg.TemporalHostPort)
	if err := w.Run(worker.InterruptCh()); err != nil {
		return fmt.Errorf("worker run: %w", err)
	}
	return nil
}
