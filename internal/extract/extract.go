// Package extract pulls the main prose and title out of an HTML
// document, discarding navigation chrome, using the same selector
// cascade docs sites commonly rely on for their primary content
// container.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// contentSelectors are tried in order; the first one that matches a
// non-empty element wins.
var contentSelectors = []string{
	"main",
	"article",
	"#content",
	".content",
	".docs-content",
	".site-content",
	".slds-container",
}

// removedSelectors are stripped from the document before content
// selection, regardless of which container ends up chosen.
var removedSelectors = []string{
	"script", "style", "noscript",
	"[aria-hidden=\"true\"]",
	".sr-only", ".visually-hidden",
	"nav", "header", "footer", "aside",
}

// Page is the result of extracting a single HTML document.
type Page struct {
	Title string
	Text  string
}

// Extract parses html and returns its title and main-content text.
// pageURL is used as the title fallback when no <title> or <h1> is
// present.
func Extract(html string, pageURL string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Page{}, err
	}

	title := firstNonEmpty(
		strings.TrimSpace(doc.Find("title").First().Text()),
		strings.TrimSpace(doc.Find("h1").First().Text()),
		pageURL,
	)

	for _, sel := range removedSelectors {
		doc.Find(sel).Remove()
	}

	container := selectContent(doc)
	text := collapseWhitespace(container.Text())

	return Page{Title: title, Text: text}, nil
}

// selectContent returns the first non-empty element matching the
// content selector cascade, falling back to body.
func selectContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range contentSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 && strings.TrimSpace(found.Text()) != "" {
			return found
		}
	}
	return doc.Find("body")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// ParseLinks returns every href attribute value found on <a> elements
// in body, unresolved — the caller is responsible for resolving them
// against the page's base URL.
func ParseLinks(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs, nil
}
