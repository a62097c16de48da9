// Package sitemap discovers a documentation site's URL set by probing
// robots.txt and the common sitemap locations, expanding sitemap
// indexes recursively.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/temoto/robotstxt"

	"github.com/knoguchi/docsearch/internal/canonical"
)

// probePaths are tried, in order, against the seed's host.
var probePaths = []string{
	"/robots.txt",
	"/sitemap.xml",
	"/docs/sitemap.xml",
	"/sitemap_index.xml",
}

// urlset and sitemapindex mirror the subset of the sitemap protocol's
// XML schema this package needs.
type urlset struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapindex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// Discoverer probes sitemap sources over HTTP.
type Discoverer struct {
	Client *http.Client
}

// New returns a Discoverer using http.DefaultClient.
func New() *Discoverer {
	return &Discoverer{Client: http.DefaultClient}
}

// Discover probes the standard sitemap locations under seedURL's host
// and returns every same-host, canonicalized URL found. Entries that
// cannot be fetched or parsed are skipped; Discover never returns an
// error for a single missing probe path, only for a malformed seed URL.
func (d *Discoverer) Discover(ctx context.Context, seedURL string) ([]string, error) {
	seed, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("sitemap: invalid seed URL: %w", err)
	}

	seen := map[string]bool{}
	var out []string

	add := func(raw string) {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || !canonical.IsHTTP(u) || !canonical.SameHost(seed, u) {
			return
		}
		c, err := canonical.Canon(u.String())
		if err != nil || seen[c] {
			return
		}
		seen[c] = true
		out = append(out, c)
	}

	for _, p := range probePaths {
		probe := *seed
		probe.Path = p
		probe.RawQuery = ""
		probe.Fragment = ""

		body, contentType, err := d.fetch(ctx, probe.String())
		if err != nil {
			continue
		}

		switch {
		case strings.HasSuffix(p, "robots.txt"):
			d.expandRobots(ctx, body, seed, add, 0)
		case strings.Contains(contentType, "text/plain"):
			d.expandPlain(body, add)
		default:
			d.expandXML(ctx, body, seed, add, 0)
		}
	}

	return out, nil
}

func (d *Discoverer) fetch(ctx context.Context, rawURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("sitemap: %s returned status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", "", err
	}
	return string(data), resp.Header.Get("Content-Type"), nil
}

// expandRobots extracts every "Sitemap:" directive and fetches and
// expands each one as an XML sitemap (index or urlset) via expandXML,
// exactly like the <sitemap> entries inside a sitemap index — a
// "Sitemap:" directive points at a sitemap resource, not a page URL.
func (d *Discoverer) expandRobots(ctx context.Context, body string, seed *url.URL, add func(string), depth int) {
	robotsData, err := robotstxt.FromString(body)
	if err != nil || robotsData == nil {
		return
	}
	for _, s := range robotsData.Sitemaps {
		u, err := url.Parse(strings.TrimSpace(s))
		if err != nil || !canonical.SameHost(seed, u) {
			continue
		}
		childBody, _, err := d.fetch(ctx, u.String())
		if err != nil {
			continue
		}
		d.expandXML(ctx, childBody, seed, add, depth+1)
	}
}

// expandPlain handles a text/plain sitemap: one URL per line.
func (d *Discoverer) expandPlain(body string, add func(string)) {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http") {
			add(line)
		}
	}
}

// expandXML parses an XML sitemap or sitemap index. Index entries are
// fetched and expanded recursively up to a small fixed depth, to bound
// worst-case fan-out from a malicious or misconfigured index.
func (d *Discoverer) expandXML(ctx context.Context, body string, seed *url.URL, add func(string), depth int) {
	if depth > 3 {
		return
	}

	var idx sitemapindex
	if err := xml.Unmarshal([]byte(body), &idx); err == nil && len(idx.Sitemaps) > 0 {
		for _, s := range idx.Sitemaps {
			u, err := url.Parse(strings.TrimSpace(s.Loc))
			if err != nil || !canonical.SameHost(seed, u) {
				continue
			}
			childBody, _, err := d.fetch(ctx, u.String())
			if err != nil {
				continue
			}
			d.expandXML(ctx, childBody, seed, add, depth+1)
		}
		return
	}

	var set urlset
	if err := xml.Unmarshal([]byte(body), &set); err == nil && len(set.URLs) > 0 {
		for _, e := range set.URLs {
			add(e.Loc)
		}
		return
	}

	// Fall back to a bare <loc> scan in case the document is neither a
	// well-formed urlset nor sitemapindex.
	var bare struct {
		Locs []string `xml:"loc"`
	}
	if err := xml.Unmarshal([]byte(body), &bare); err == nil {
		for _, loc := range bare.Locs {
			add(loc)
		}
	}
}
