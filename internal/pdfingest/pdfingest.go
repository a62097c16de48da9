// Package pdfingest fetches a PDF document and extracts its text and
// basic metadata, feeding the same chunk+embed+upsert path the HTML
// ingest pipeline uses.
package pdfingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Document is the result of fetching and parsing a PDF.
type Document struct {
	Title     string
	Text      string
	PageCount int
}

// Fetcher fetches PDF bytes over HTTP with the same bounds as the HTML
// crawler: at most 5 redirects, status < 400.
type Fetcher struct {
	client *http.Client
}

// New constructs a Fetcher.
func New() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// FetchAndParse downloads pdfURL and extracts its text and page count.
// The title is the URL's filename stem; the PDF's own document-level
// title is not read.
func (f *Fetcher) FetchAndParse(ctx context.Context, pdfURL string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return Document{}, fmt.Errorf("pdfingest: create request: %w", err)
	}
	req.Header.Set("Accept", "application/pdf, application/octet-stream")

	resp, err := f.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("pdfingest: fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Document{}, fmt.Errorf("pdfingest: status %d fetching %s", resp.StatusCode, pdfURL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 200<<20))
	if err != nil {
		return Document{}, fmt.Errorf("pdfingest: read body: %w", err)
	}

	text, pageCount, err := extractText(data)
	if err != nil {
		return Document{}, fmt.Errorf("pdfingest: parse pdf: %w", err)
	}

	title := strings.TrimSuffix(path.Base(pdfURL), path.Ext(pdfURL))
	if title == "" {
		title = pdfURL
	}

	return Document{Title: title, Text: text, PageCount: pageCount}, nil
}

// extractText reads every page of a PDF and concatenates its text
// content, collapsing internal whitespace the way the HTML extractor
// does so chunking sees consistent input.
func extractText(data []byte) (string, int, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, err
	}

	var sb strings.Builder
	pageCount := r.NumPage()
	for i := 1; i <= pageCount; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue // per-page parse errors are swallowed; extraction continues
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")
	}

	return strings.Join(strings.Fields(sb.String()), " "), pageCount, nil
}
