package crawl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// TestRun_BoundsAtMaxPages is the "crawler bound" seed scenario: a seed
// page links to 10 same-host HTML pages with maxPages=3, and exactly 3
// pages should reach the sink.
func TestRun_BoundsAtMaxPages(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		html := `<html><body><main>seed page`
		for i := 0; i < 10; i++ {
			html += fmt.Sprintf(`<a href="/page%d">p%d</a>`, i, i)
		}
		html += `</main></body></html>`
		w.Write([]byte(html))
	})
	for i := 0; i < 10; i++ {
		i := i
		mux.HandleFunc(fmt.Sprintf("/page%d", i), func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(fmt.Sprintf(`<html><body><main>page %d</main></body></html>`, i)))
		})
	}
	server = httptest.NewServer(mux)
	defer server.Close()

	c := New(Config{MaxPages: 3, Concurrency: 2, Timeout: 2 * time.Second})

	var mu sync.Mutex
	var delivered []string
	sink := func(p Page) {
		mu.Lock()
		delivered = append(delivered, p.URL)
		mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Run(ctx, server.URL+"/", nil, sink); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(delivered) != 3 {
		t.Fatalf("expected exactly 3 delivered pages, got %d: %v", len(delivered), delivered)
	}
}

func TestRun_SinkCalledExactlyOncePerPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		// Two links pointing at the same page; should only be visited once.
		w.Write([]byte(`<html><body><main><a href="/a">x</a><a href="/a">y</a></main></body></html>`))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><main>page a</main></body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := New(Config{MaxPages: 10, Concurrency: 2, Timeout: 2 * time.Second})

	var mu sync.Mutex
	counts := map[string]int{}
	sink := func(p Page) {
		mu.Lock()
		counts[p.URL]++
		mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Run(ctx, server.URL+"/", nil, sink); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for u, n := range counts {
		if n != 1 {
			t.Errorf("expected %s to be delivered exactly once, got %d", u, n)
		}
	}
}
