// Package canonical normalizes URLs so the crawler and sitemap discoverer
// dedupe consistently: tracking parameters stripped, fragments dropped,
// index.html and trailing slashes collapsed.
package canonical

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

// trackingParams are query parameter names dropped outright. Anything
// prefixed with "utm_" is dropped regardless of this set.
var trackingParams = map[string]bool{
	"icid":   true,
	"gclid":  true,
	"fbclid": true,
	"ref":    true,
	"source": true,
}

// assetExtensions are never enqueued by the HTML crawler.
var assetExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".tgz": true,
	".mp4": true, ".mp3": true, ".wav": true, ".webm": true, ".ico": true,
}

// Canon returns the canonical form of rawURL. It is idempotent:
// Canon(Canon(u)) == Canon(u) for every u it successfully parses.
func Canon(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	u.Fragment = ""

	if q := u.Query(); len(q) > 0 {
		kept := url.Values{}
		for key, vals := range q {
			lower := strings.ToLower(key)
			if strings.HasPrefix(lower, "utm_") || trackingParams[lower] {
				continue
			}
			kept[key] = vals
		}
		u.RawQuery = encodeSorted(kept)
	}

	if strings.HasSuffix(u.Path, "/index.html") {
		u.Path = strings.TrimSuffix(u.Path, "index.html")
	}
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)

	return u.String(), nil
}

// encodeSorted mirrors url.Values.Encode but is exposed so the stripped
// query string is deterministic regardless of map iteration order (the
// standard Encode already sorts by key, but we keep this explicit for
// clarity and to avoid relying on that guarantee shifting upstream).
func encodeSorted(v url.Values) string {
	if len(v) == 0 {
		return ""
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		for j, val := range v[k] {
			if i > 0 || j > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(val))
		}
	}
	return sb.String()
}

// SameHost reports whether candidate shares a host with seed, ignoring a
// leading "www." on either side.
func SameHost(seed, candidate *url.URL) bool {
	return stripWWW(seed.Host) == stripWWW(candidate.Host)
}

func stripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// IsAsset reports whether u's path ends in an extension the crawler never
// enqueues.
func IsAsset(u *url.URL) bool {
	return assetExtensions[strings.ToLower(path.Ext(u.Path))]
}

// IsHTTP reports whether u's scheme is http or https.
func IsHTTP(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}
