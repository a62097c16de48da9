// Package indexname derives the per-source vector table name from a
// document's URL: the stable handle the rest of the ingestion pipeline
// uses to address "docs_<name>".
package indexname

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Derive computes the index name for rawURL: the lowercase host with a
// leading "www." removed, non-alphanumerics collapsed to "-", trimmed;
// if the path ends in a filename with an extension, its sanitized stem
// is appended.
func Derive(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	name := sanitize(host)

	base := path.Base(u.Path)
	if ext := path.Ext(base); ext != "" && base != "/" && base != "." {
		stem := strings.TrimSuffix(base, ext)
		if s := sanitize(stem); s != "" {
			name += "-" + s
		}
	}

	return name, nil
}

// sanitize lowercases s, collapses runs of non-alphanumerics to a single
// "-", and trims leading/trailing "-".
func sanitize(s string) string {
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
