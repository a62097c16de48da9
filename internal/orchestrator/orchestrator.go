// Package orchestrator drives a single ingest job end to end: discover
// seeds, crawl or fetch, chunk, embed in rate-limited batches, and
// upsert into the vector store, while keeping the job row's status and
// counters current for callers polling progress.
package orchestrator

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/knoguchi/docsearch/internal/chunk"
	"github.com/knoguchi/docsearch/internal/crawl"
	"github.com/knoguchi/docsearch/internal/embedding"
	"github.com/knoguchi/docsearch/internal/indexname"
	"github.com/knoguchi/docsearch/internal/jobstore"
	"github.com/knoguchi/docsearch/internal/pdfingest"
	"github.com/knoguchi/docsearch/internal/ratelimit"
	"github.com/knoguchi/docsearch/internal/sitemap"
	"github.com/knoguchi/docsearch/internal/vectorstore"
)

// Config bounds a single job's run.
type Config struct {
	BatchSize   int
	CrawlConfig crawl.Config
	ChunkConfig chunk.Config
	Deadline    time.Duration // overall job deadline; zero means no deadline

	// EmbedMaxRetries and EmbedInitialBackoff bound ratelimit.WithRetry
	// around each flush's embed call.
	EmbedMaxRetries     int
	EmbedInitialBackoff time.Duration
}

func withDefaults(cfg Config) Config {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.EmbedMaxRetries <= 0 {
		cfg.EmbedMaxRetries = 3
	}
	if cfg.EmbedInitialBackoff <= 0 {
		cfg.EmbedInitialBackoff = 500 * time.Millisecond
	}
	return cfg
}

// Orchestrator wires the C4/C5/C2/C3/C7/C8/C9 components together
// behind the two job-control entry points the durable-execution engine
// invokes.
type Orchestrator struct {
	jobs       *jobstore.Store
	store      *vectorstore.Store
	embedder   *embedding.Client
	limiter    *ratelimit.Limiter
	distLimiter *ratelimit.DistributedLimiter
	discoverer *sitemap.Discoverer
	pdf        *pdfingest.Fetcher
	cfg        Config
}

// New constructs an Orchestrator. distLimiter may be nil to disable
// distributed rate-limit coordination.
func New(jobs *jobstore.Store, store *vectorstore.Store, embedder *embedding.Client, limiter *ratelimit.Limiter, distLimiter *ratelimit.DistributedLimiter, cfg Config) *Orchestrator {
	return &Orchestrator{
		jobs:        jobs,
		store:       store,
		embedder:    embedder,
		limiter:     limiter,
		distLimiter: distLimiter,
		discoverer:  sitemap.New(),
		pdf:         pdfingest.New(),
		cfg:         withDefaults(cfg),
	}
}

// pendingChunk is one chunk awaiting embedding, still tagged with its
// source page so counters can be attributed correctly.
type pendingChunk struct {
	url     string
	title   string
	content string
}

// run tracks the live counters and the deadline for one job.
type run struct {
	jobID     string
	indexName string

	mu       sync.Mutex
	counters jobstore.Counters
}

func (r *run) addDiscovered(n int) {
	r.mu.Lock()
	r.counters.PagesDiscovered += n
	r.mu.Unlock()
}

func (r *run) addProcessed(indexed bool) {
	r.mu.Lock()
	r.counters.PagesProcessed++
	if indexed {
		r.counters.PagesIndexed++
	}
	r.mu.Unlock()
}

func (r *run) addChunks(n int) {
	r.mu.Lock()
	r.counters.TotalChunks += n
	r.mu.Unlock()
}

func (r *run) snapshot() jobstore.Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}

// RunHtmlIngest crawls sourceURL (via sitemap-seeded, bounded BFS
// crawl), chunks and embeds each page's text, and upserts the result
// into jobID's index. The job is marked completed, failed, timeout, or
// cancelled depending on how the run ends.
func (o *Orchestrator) RunHtmlIngest(ctx context.Context, sourceURL, jobID string) error {
	r := &run{jobID: jobID}

	name, err := indexname.Derive(sourceURL)
	if err != nil {
		return o.fail(ctx, r, fmt.Errorf("derive index name: %w", err))
	}
	r.indexName = name

	if err := o.jobs.UpdateStatus(ctx, jobID, jobstore.StatusRunning, r.snapshot(), "", nil); err != nil {
		return err
	}

	if o.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Deadline)
		defer cancel()
	}

	if err := o.store.EnsureStore(ctx, r.indexName, o.embedder.Dimensions()); err != nil {
		return o.fail(ctx, r, fmt.Errorf("ensure store: %w", err))
	}

	var extraSeeds []string
	if discovered, err := o.discoverer.Discover(ctx, sourceURL); err == nil {
		extraSeeds = discovered
	}

	flusher := newFlusher(ctx, o, r)
	crawler := crawl.New(o.cfg.CrawlConfig)

	sink := func(p crawl.Page) {
		chunks := chunk.Split(p.Text, o.cfg.ChunkConfig)
		indexed := len(chunks) > 0
		r.addProcessed(indexed)
		if indexed {
			r.addDiscovered(1) // pages_discovered counts delivered pages with extractable text
		}
		for _, c := range chunks {
			flusher.push(pendingChunk{url: p.URL, title: p.Title, content: c})
		}
	}

	crawlErr := crawler.Run(ctx, sourceURL, extraSeeds, sink)
	flusher.drain()

	if crawlErr != nil {
		if ctx.Err() != nil {
			return o.timeoutOrCancel(ctx, r)
		}
		return o.fail(ctx, r, fmt.Errorf("crawl: %w", crawlErr))
	}
	if flusher.err != nil {
		return o.fail(ctx, r, fmt.Errorf("flush: %w", flusher.err))
	}

	return o.jobs.UpdateStatus(ctx, jobID, jobstore.StatusCompleted, r.snapshot(), "", nil)
}

// RunPdfIngest fetches and parses a single PDF, chunks and embeds its
// text, and upserts the result. pages_discovered is fixed at 1.
func (o *Orchestrator) RunPdfIngest(ctx context.Context, pdfURL, jobID string) error {
	r := &run{jobID: jobID}
	r.addDiscovered(1)

	name, err := indexname.Derive(pdfURL)
	if err != nil {
		return o.fail(ctx, r, fmt.Errorf("derive index name: %w", err))
	}
	r.indexName = name

	if err := o.jobs.UpdateStatus(ctx, jobID, jobstore.StatusRunning, r.snapshot(), "", nil); err != nil {
		return err
	}

	if o.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Deadline)
		defer cancel()
	}

	if err := o.store.EnsureStore(ctx, r.indexName, o.embedder.Dimensions()); err != nil {
		return o.fail(ctx, r, fmt.Errorf("ensure store: %w", err))
	}

	doc, err := o.pdf.FetchAndParse(ctx, pdfURL)
	if err != nil {
		if ctx.Err() != nil {
			return o.timeoutOrCancel(ctx, r)
		}
		return o.fail(ctx, r, fmt.Errorf("fetch pdf: %w", err))
	}

	chunks := chunk.Split(doc.Text, o.cfg.ChunkConfig)
	r.addProcessed(len(chunks) > 0)

	flusher := newFlusher(ctx, o, r)
	for _, c := range chunks {
		flusher.push(pendingChunk{url: pdfURL, title: doc.Title, content: c})
	}
	flusher.drain()

	if flusher.err != nil {
		return o.fail(ctx, r, fmt.Errorf("flush: %w", flusher.err))
	}

	return o.jobs.UpdateStatus(ctx, jobID, jobstore.StatusCompleted, r.snapshot(), "", nil)
}

func (o *Orchestrator) fail(ctx context.Context, r *run, cause error) error {
	details := map[string]any{"error": cause.Error()}
	_ = o.jobs.UpdateStatus(ctx, r.jobID, jobstore.StatusFailed, r.snapshot(), cause.Error(), details)
	return cause
}

func (o *Orchestrator) timeoutOrCancel(ctx context.Context, r *run) error {
	status := jobstore.StatusTimeout
	if ctx.Err() == context.Canceled {
		status = jobstore.StatusCancelled
	}
	// ctx is already done here; write the terminal status on a context
	// that keeps its values but not its cancellation.
	_ = o.jobs.UpdateStatus(context.WithoutCancel(ctx), r.jobID, status, r.snapshot(), ctx.Err().Error(), nil)
	return ctx.Err()
}

// flusher accumulates pending chunks into batches, back-pressuring the
// sink once the pending count reaches 2*batchSize, and drains each
// batch through the limiter, embedder, and vector store in buffer
// order.
type flusher struct {
	o   *Orchestrator
	r   *run
	ctx context.Context

	pending chan pendingChunk
	done    chan struct{}
	err     error
}

func newFlusher(ctx context.Context, o *Orchestrator, r *run) *flusher {
	f := &flusher{
		o:       o,
		r:       r,
		ctx:     ctx,
		pending: make(chan pendingChunk, 2*o.cfg.BatchSize),
		done:    make(chan struct{}),
	}
	go f.loop()
	return f
}

// push enqueues a chunk, blocking if the pending channel is at its
// 2*batchSize capacity — this is the back-pressure point that keeps
// the crawl sink from outrunning embedding throughput.
func (f *flusher) push(c pendingChunk) {
	f.pending <- c
}

// drain signals no more chunks are coming and waits for the final
// batch to flush.
func (f *flusher) drain() {
	close(f.pending)
	<-f.done
}

func (f *flusher) loop() {
	defer close(f.done)

	batch := make([]pendingChunk, 0, f.o.cfg.BatchSize)
	for c := range f.pending {
		if f.err != nil {
			continue // drain the channel without further work once failed
		}
		batch = append(batch, c)
		if len(batch) >= f.o.cfg.BatchSize {
			if err := f.flush(batch); err != nil {
				f.err = err
			}
			batch = make([]pendingChunk, 0, f.o.cfg.BatchSize)
		}
	}
	if f.err == nil && len(batch) > 0 {
		f.err = f.flush(batch)
	}
}

func (f *flusher) flush(batch []pendingChunk) error {
	ctx := f.ctx
	contents := make([]string, len(batch))
	var estTokens int
	for i, c := range batch {
		contents[i] = c.content
		estTokens += ratelimit.EstimateTokens(c.content)
	}

	if f.o.distLimiter != nil {
		if err := f.o.distLimiter.Acquire(ctx, 1, estTokens); err != nil {
			return fmt.Errorf("distributed rate limit: %w", err)
		}
	}
	if err := f.o.limiter.Acquire(ctx, 1, estTokens); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	var vectors [][]float32
	retryErr := ratelimit.WithRetry(ctx, f.o.cfg.EmbedMaxRetries, f.o.cfg.EmbedInitialBackoff, func() error {
		v, err := f.o.embedder.EmbedBatch(ctx, contents)
		if err != nil {
			return err
		}
		vectors = v
		return nil
	})
	if retryErr != nil {
		return fmt.Errorf("embed batch: %w", retryErr)
	}

	for i, v := range vectors {
		c := batch[i]
		chunkURL := withChunkHash(c.url, c.content)
		err := f.o.store.Upsert(ctx, f.r.indexName, vectorstore.Chunk{
			URL:       chunkURL,
			Title:     c.title,
			Content:   c.content,
			Embedding: v,
			Metadata:  map[string]any{"source_url": c.url},
		})
		if err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
	}

	f.r.addChunks(len(vectors))
	_ = f.o.jobs.UpdateStatus(ctx, f.r.jobID, jobstore.StatusRunning, f.r.snapshot(), "", nil)
	return nil
}

// withChunkHash derives the per-chunk storage key: the source page URL
// with the chunk content's hash appended, so multiple chunks from the
// same page upsert as distinct rows while a re-run of the same content
// is idempotent.
func withChunkHash(url, content string) string {
	sum := md5.Sum([]byte(content))
	return fmt.Sprintf("%s#%s", url, hex.EncodeToString(sum[:])[:12])
}
