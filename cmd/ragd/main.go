// Command ragd is the document indexing service's CLI: it wires the
// ingest and search components together and dispatches a single
// subcommand against them. Production job submission goes through
// cmd/worker's Temporal worker; ragd's ingest-html and ingest-pdf
// subcommands run a job
// synchronously for local use and operational debugging.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/knoguchi/docsearch/internal/access"
	"github.com/knoguchi/docsearch/internal/config"
	"github.com/knoguchi/docsearch/internal/coreapi"
	"github.com/knoguchi/docsearch/internal/crawl"
	"github.com/knoguchi/docsearch/internal/chunk"
	"github.com/knoguchi/docsearch/internal/db"
	"github.com/knoguchi/docsearch/internal/embedding"
	"github.com/knoguchi/docsearch/internal/jobstore"
	"github.com/knoguchi/docsearch/internal/orchestrator"
	"github.com/knoguchi/docsearch/internal/ratelimit"
	"github.com/knoguchi/docsearch/internal/vectorstore"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("ragd failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: ragd <ingest-html|ingest-pdf|search|link-session|grant> [args]")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, database, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	switch os.Args[1] {
	case "ingest-html":
		return cmdIngest(ctx, app, os.Args[2:], app.RunHtmlIngestNow, app.SubmitHtmlIngest)
	case "ingest-pdf":
		return cmdIngest(ctx, app, os.Args[2:], app.RunPdfIngestNow, app.SubmitPdfIngest)
	case "search":
		return cmdSearch(ctx, app, os.Args[2:])
	case "link-session":
		return cmdLinkSession(ctx, app, os.Args[2:])
	case "grant":
		return cmdGrant(ctx, app, os.Args[2:])
	default:
		return fmt.Errorf("unknown subcommand %q", os.Args[1])
	}
}

func wire(ctx context.Context, cfg *config.Config) (*coreapi.App, *db.DB, error) {
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	slog.Info("connected to PostgreSQL")

	jobs := jobstore.New(database)
	if err := jobs.EnsureSchema(ctx); err != nil {
		return nil, nil, fmt.Errorf("ensure job schema: %w", err)
	}

	store := vectorstore.New(database.Pool)

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize embedder: %w", err)
	}
	slog.Info("initialized embedding client", "provider", cfg.EmbeddingProvider, "model", cfg.EmbeddingModel)

	accessModel := access.New(database, store, embedder)
	if err := accessModel.EnsureSchema(ctx); err != nil {
		return nil, nil, fmt.Errorf("ensure access schema: %w", err)
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
			return nil, nil, fmt.Errorf("ensure distributed rate limit schema: %w", err)
		}
	}

	include, exclude, err := compileCrawlFilters(cfg)
	if err != nil {
		return nil, nil, err
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

	return coreapi.New(jobs, accessModel, orch), database, nil
}

// compileCrawlFilters compiles the configured include/exclude crawl
// patterns, if set, into the form crawl.Config expects.
func compileCrawlFilters(cfg *config.Config) (include, exclude []*regexp.Regexp, err error) {
	if cfg.DocsIncludeRegex != "" {
		re, err := regexp.Compile(cfg.DocsIncludeRegex)
		if err != nil {
			return nil, nil, fmt.Errorf("compile DOCS_INCLUDE_REGEX: %w", err)
		}
		include = append(include, re)
	}
	if cfg.DocsExcludeRegex != "" {
		re, err := regexp.Compile(cfg.DocsExcludeRegex)
		if err != nil {
			return nil, nil, fmt.Errorf("compile DOCS_EXCLUDE_REGEX: %w", err)
		}
		exclude = append(exclude, re)
	}
	return include, exclude, nil
}

func newEmbedder(ctx context.Context, cfg *config.Config) (*embedding.Client, error) {
	if cfg.EmbeddingProvider == "google" {
		return embedding.NewGoogle(ctx, embedding.GoogleConfig{
			APIKey:    cfg.EmbeddingAPIKey,
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.EmbeddingDimension,
		})
	}
	return embedding.NewOpenAI(embedding.OpenAIConfig{
		APIKey:     cfg.EmbeddingAPIKey,
		BaseURL:    cfg.EmbeddingBaseURL,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimension,
	}), nil
}

func cmdIngest(ctx context.Context, app *coreapi.App, args []string, runNow func(context.Context, string, string) error, submit func(context.Context, string, jobstore.Identity) (string, error)) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	userID := fs.String("user", "", "identity user ID initiating the job")
	teamID := fs.String("team", "", "identity team ID initiating the job")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: ragd ingest-html|ingest-pdf [-user ID|-team ID] <url>")
	}
	sourceURL := fs.Arg(0)

	identity := jobstore.Identity{Scope: jobstore.ScopeUser, UserID: *userID}
	if *teamID != "" {
		identity = jobstore.Identity{Scope: jobstore.ScopeTeam, TeamID: *teamID}
	}

	jobID, err := submit(ctx, sourceURL, identity)
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}
	slog.Info("submitted job", "job_id", jobID, "source_url", sourceURL)

	if err := runNow(ctx, sourceURL, jobID); err != nil {
		return fmt.Errorf("run job %s: %w", jobID, err)
	}

	job, err := app.JobStatus(ctx, jobID)
	if err != nil {
		return fmt.Errorf("fetch job status: %w", err)
	}
	slog.Info("job finished", "job_id", jobID, "status", job.Status,
		"pages_discovered", job.Counters.PagesDiscovered,
		"pages_indexed", job.Counters.PagesIndexed,
		"total_chunks", job.Counters.TotalChunks,
		"duration_seconds", job.DurationSeconds())
	return nil
}

func cmdSearch(ctx context.Context, app *coreapi.App, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	session := fs.String("session", "", "linked session ID")
	index := fs.String("index", "", "index name to search")
	k := fs.Int("k", 10, "number of results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || *session == "" || *index == "" {
		return fmt.Errorf("usage: ragd search -session ID -index NAME <query text>")
	}

	results, err := app.Search(ctx, *session, *index, fs.Arg(0), *k)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	for _, r := range results {
		fmt.Printf("%.4f\t%s\t%s\n", r.Score, r.URL, r.Title)
	}
	return nil
}

func cmdLinkSession(ctx context.Context, app *coreapi.App, args []string) error {
	fs := flag.NewFlagSet("link-session", flag.ExitOnError)
	session := fs.String("session", "", "session ID to link")
	userID := fs.String("user", "", "user ID")
	teamID := fs.String("team", "", "team ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *session == "" {
		return fmt.Errorf("usage: ragd link-session -session ID [-user ID|-team ID]")
	}

	identity := jobstore.Identity{Scope: jobstore.ScopeUser, UserID: *userID}
	if *teamID != "" {
		identity = jobstore.Identity{Scope: jobstore.ScopeTeam, TeamID: *teamID}
	}
	return app.LinkSession(ctx, *session, identity)
}

func cmdGrant(ctx context.Context, app *coreapi.App, args []string) error {
	fs := flag.NewFlagSet("grant", flag.ExitOnError)
	userID := fs.String("user", "", "target user ID")
	teamID := fs.String("team", "", "target team ID")
	index := fs.String("index", "", "index name")
	level := fs.String("level", "read", "access level: read|write|admin")
	grantedBy := fs.String("by", "", "identifier of the granter")
	ttl := fs.Duration("ttl", 0, "grant lifetime; zero means no expiry")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *index == "" {
		return fmt.Errorf("usage: ragd grant -index NAME [-user ID|-team ID] [-level read|write|admin] -by GRANTER")
	}

	target := jobstore.Identity{Scope: jobstore.ScopeUser, UserID: *userID}
	if *teamID != "" {
		target = jobstore.Identity{Scope: jobstore.ScopeTeam, TeamID: *teamID}
	}

	var expiresAt *time.Time
	if *ttl > 0 {
		t := time.Now().UTC().Add(*ttl)
		expiresAt = &t
	}

	return app.Grant(ctx, target, *index, access.Level(*level), *grantedBy, expiresAt)
}
