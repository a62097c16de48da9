package chunk

import (
	"strings"
	"testing"
)

func TestSplit_ThreeParagraphsPackTwoChunks(t *testing.T) {
	p1 := strings.Repeat("a", 600)
	p2 := strings.Repeat("b", 600)
	p3 := strings.Repeat("c", 600)
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	chunks := Split(text, Config{ChunkSize: 1500, Overlap: 150})

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if !strings.Contains(chunks[0], p1) || !strings.Contains(chunks[0], p2) {
		t.Errorf("expected chunk 1 to contain P1 and P2, got %q", chunks[0])
	}
	if !strings.Contains(chunks[1], p3) {
		t.Errorf("expected chunk 2 to contain P3, got %q", chunks[1])
	}
}

func TestSplit_OversizedParagraphSlicedWithOverlap(t *testing.T) {
	text := strings.Repeat("x", 3200)

	chunks := Split(text, Config{ChunkSize: 1500, Overlap: 150})

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	wantLens := []int{1500, 1500, 350}
	for i, want := range wantLens {
		if len(chunks[i]) != want {
			t.Errorf("chunk %d: expected length %d, got %d", i, want, len(chunks[i]))
		}
	}
}

func TestSplit_Coverage(t *testing.T) {
	text := "One two three.  Four five six.\n\nSeven eight nine."
	chunks := Split(text, Config{ChunkSize: 1500, Overlap: 150})

	var rejoined strings.Builder
	for _, c := range chunks {
		rejoined.WriteString(c)
	}

	for _, word := range strings.Fields(text) {
		if !strings.Contains(rejoined.String(), strings.Trim(word, ".")) {
			t.Errorf("expected rejoined chunks to contain %q", word)
		}
	}
}

func TestSplit_EveryChunkNonEmpty(t *testing.T) {
	text := "para one.\n\n\n\npara two."
	for _, c := range Split(text, Config{ChunkSize: 1500, Overlap: 150}) {
		if strings.TrimSpace(c) == "" {
			t.Errorf("expected no empty chunks, got one")
		}
	}
}

func TestSplit_MaxChunkLenBound(t *testing.T) {
	text := strings.Repeat("word ", 2000)
	for _, c := range Split(text, Config{ChunkSize: 500, Overlap: 50}) {
		if len(c) > 500+50 {
			t.Errorf("chunk exceeds chunkSize+overlap bound: len=%d", len(c))
		}
	}
}
