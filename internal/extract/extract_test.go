package extract

import (
	"strings"
	"testing"
)

func TestExtract_PrefersMainOverBody(t *testing.T) {
	html := `<html><head><title>Docs Title</title></head><body>
		<nav>skip me</nav>
		<main><p>Hello   world.</p></main>
		<footer>skip too</footer>
	</body></html>`

	page, err := Extract(html, "https://example.com/page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Title != "Docs Title" {
		t.Errorf("expected title 'Docs Title', got %q", page.Title)
	}
	if strings.Contains(page.Text, "skip me") || strings.Contains(page.Text, "skip too") {
		t.Errorf("expected nav/footer to be removed, got %q", page.Text)
	}
	if page.Text != "Hello world." {
		t.Errorf("expected collapsed whitespace, got %q", page.Text)
	}
}

func TestExtract_FallsBackToH1ThenURL(t *testing.T) {
	html := `<html><body><h1>Heading Title</h1><p>content</p></body></html>`
	page, err := Extract(html, "https://example.com/page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Title != "Heading Title" {
		t.Errorf("expected title from h1, got %q", page.Title)
	}

	html2 := `<html><body><p>content only</p></body></html>`
	page2, err := Extract(html2, "https://example.com/no-title")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page2.Title != "https://example.com/no-title" {
		t.Errorf("expected title fallback to URL, got %q", page2.Title)
	}
}

func TestExtract_FallsBackToBody(t *testing.T) {
	html := `<html><body><p>just a body, no main/article</p></body></html>`
	page, err := Extract(html, "https://example.com/x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Text != "just a body, no main/article" {
		t.Errorf("expected body fallback text, got %q", page.Text)
	}
}
