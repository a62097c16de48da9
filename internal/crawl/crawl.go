// Package crawl implements the bounded BFS crawler: a worker pool
// fetches same-host HTML pages starting from a seed URL (plus any
// sitemap-discovered seeds), delivering each page's extracted title and
// text to a sink exactly once.
//
// The visited set and the visited counter live on the Crawler behind a
// mutex; workers update them through enqueue as they find links, and
// the pending queue is a channel shared by all workers.
package crawl

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/knoguchi/docsearch/internal/canonical"
	"github.com/knoguchi/docsearch/internal/extract"
)

// Page is a single successfully fetched and extracted document.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Config controls crawl bounds. Zero values fall back to defaults.
type Config struct {
	MaxPages    int
	Concurrency int
	Timeout     time.Duration
	UserAgent   string
	Include     []*regexp.Regexp
	Exclude     []*regexp.Regexp
	// PathPrefix, if non-empty, restricts the crawl to URLs whose path
	// starts with this prefix (the seed's own path, when non-root).
	PathPrefix string
}

// defaultExcludes covers authentication pages, category/tag/feed
// pages, and non-HTML media descriptors that otherwise tend to balloon
// a documentation crawl.
var defaultExcludes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)/(login|logout|signin|signup|sign-in|sign-up)(/|$)`),
	regexp.MustCompile(`(?i)/(tag|tags|category|categories)/`),
	regexp.MustCompile(`(?i)/feed/?$`),
	regexp.MustCompile(`(?i)\.(rss|atom)$`),
}

func withDefaults(cfg Config) Config {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10000
	}
	if cfg.Concurrency <= 0 {
		n := runtime.NumCPU()
		if n < 4 {
			n = 4
		}
		if n > 16 {
			n = 16
		}
		cfg.Concurrency = n
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "docsearch-crawler/1.0"
	}
	return cfg
}

// Sink receives each fetched page exactly once. It runs on the worker
// that fetched the page; while it blocks, that worker fetches nothing
// else, so a slow sink slows the crawl.
type Sink func(Page)

// Crawler coordinates a single bounded crawl.
type Crawler struct {
	cfg    Config
	client *http.Client

	mu      sync.Mutex
	visited map[string]bool
	count   int
}

// New constructs a Crawler with the given bounds.
func New(cfg Config) *Crawler {
	cfg = withDefaults(cfg)
	return &Crawler{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		visited: make(map[string]bool),
	}
}

// Run performs the crawl starting from seedURL plus any extraSeeds
// (typically sitemap-discovered URLs), delivering each page to sink.
// Run returns once the queue has fully drained or maxPages has been
// reached; draining is strictly monotonic — once the queue is empty
// and no worker is in flight, the crawl ends.
func (c *Crawler) Run(ctx context.Context, seedURL string, extraSeeds []string, sink Sink) error {
	seed, err := url.Parse(seedURL)
	if err != nil {
		return err
	}
	pathPrefix := c.cfg.PathPrefix
	if pathPrefix == "" && seed.Path != "" && seed.Path != "/" {
		pathPrefix = seed.Path
	}

	queue := make(chan string, 4*c.cfg.Concurrency)
	var wg sync.WaitGroup

	enqueue := func(raw string) {
		can, err := canonical.Canon(raw)
		if err != nil {
			return
		}
		u, err := url.Parse(can)
		if err != nil || !canonical.IsHTTP(u) {
			return
		}
		if !canonical.SameHost(seed, u) {
			return
		}
		if canonical.IsAsset(u) {
			return
		}
		if pathPrefix != "" && !strings.HasPrefix(u.Path, pathPrefix) {
			return
		}
		if !c.allowed(can) {
			return
		}

		c.mu.Lock()
		if c.visited[can] || c.count >= c.cfg.MaxPages {
			c.mu.Unlock()
			return
		}
		c.visited[can] = true
		c.count++
		c.mu.Unlock()

		wg.Add(1)
		select {
		case queue <- can:
		case <-ctx.Done():
			wg.Done()
		}
	}

	enqueue(seedURL)
	for _, s := range extraSeeds {
		enqueue(s)
	}

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gCtx.Done():
					return nil
				case u, ok := <-queue:
					if !ok {
						return nil
					}
					c.processOne(gCtx, u, enqueue, sink)
					wg.Done()
				}
			}
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-gCtx.Done():
	}
	close(queue)
	_ = g.Wait()
	return ctx.Err()
}

// allowed applies the include/exclude regex filters. If Include is
// non-empty, a candidate must match at least one pattern. A candidate
// matching any exclude pattern (configured or default) is rejected.
func (c *Crawler) allowed(rawURL string) bool {
	if len(c.cfg.Include) > 0 {
		matched := false
		for _, re := range c.cfg.Include {
			if re.MatchString(rawURL) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, re := range defaultExcludes {
		if re.MatchString(rawURL) {
			return false
		}
	}
	for _, re := range c.cfg.Exclude {
		if re.MatchString(rawURL) {
			return false
		}
	}
	return true
}

// processOne fetches a single URL, delivers it to sink on success, and
// enqueues any in-scope outbound links.
func (c *Crawler) processOne(ctx context.Context, rawURL string, enqueue func(string), sink Sink) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return // network error: swallowed per URL, crawl continues
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return
	}
	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/html") {
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return
	}

	page, err := extract.Extract(string(body), rawURL)
	if err != nil {
		return
	}

	sink(Page{URL: rawURL, Title: page.Title, Text: page.Text})

	for _, link := range extractLinks(rawURL, body) {
		enqueue(link)
	}
}

func extractLinks(baseURL string, body []byte) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	doc, err := extract.ParseLinks(body)
	if err != nil {
		return nil
	}
	var links []string
	for _, href := range doc {
		u, err := url.Parse(href)
		if err != nil {
			continue
		}
		links = append(links, base.ResolveReference(u).String())
	}
	return links
}
