// Package chunk splits extracted page text into paragraph-aware,
// overlapping windows suitable for embedding. Unlike the donor's
// word-count chunker, sizing here is character-based to match the
// fixed chunkSize/overlap budget the vector store expects.
package chunk

import (
	"regexp"
	"strings"
)

// Config controls chunk sizing. Zero values are replaced by defaults in
// Split.
type Config struct {
	// ChunkSize is the target maximum chunk length in characters.
	ChunkSize int
	// Overlap is how far each window after the first is shifted back
	// from its multiple-of-ChunkSize boundary when a paragraph must be
	// sliced (see sliceWindows).
	Overlap int
}

const (
	defaultChunkSize = 1500
	defaultOverlap   = 150
)

// paragraphBoundary matches a blank-line gap or a sentence end followed
// by two or more spaces — the two paragraph-splitting rules.
var paragraphBoundary = regexp.MustCompile(`\n\s*\n|[.!?]  +`)

// Split divides text into non-empty chunks, each at most
// cfg.ChunkSize+cfg.Overlap characters, preserving source order.
func Split(text string, cfg Config) []string {
	size := cfg.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}
	overlap := cfg.Overlap
	if overlap < 0 || overlap >= size {
		overlap = defaultOverlap
	}

	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(buf.String()))
			buf.Reset()
		}
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if len(p) > size {
			// Flush whatever is pending before slicing the oversized
			// paragraph into fixed windows of its own.
			flush()
			chunks = append(chunks, sliceWindows(p, size, overlap)...)
			continue
		}

		if buf.Len() > 0 && buf.Len()+1+len(p) > size {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(p)
	}
	flush()

	return chunks
}

// splitParagraphs breaks text on blank-line gaps or a sentence end
// followed by two-or-more spaces, keeping the separators out of the
// result.
func splitParagraphs(text string) []string {
	return paragraphBoundary.Split(text, -1)
}

// sliceWindows cuts s into fixed-size windows of at most size
// characters. Window k starts at k*size-overlap (the first at 0) and
// runs for size characters, so the second window repeats the last
// overlap characters of the first, and every later window begins
// exactly where the one before it ends.
func sliceWindows(s string, size, overlap int) []string {
	runes := []rune(s)
	total := len(runes)
	var out []string

	for k := 0; ; k++ {
		start := k*size - overlap
		if start < 0 {
			start = 0
		}
		if start >= total {
			break
		}
		end := start + size
		if end > total {
			end = total
		}
		window := strings.TrimSpace(string(runes[start:end]))
		if window != "" {
			out = append(out, window)
		}
		if end >= total {
			break
		}
	}
	return out
}
