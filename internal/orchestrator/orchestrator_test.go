package orchestrator

import (
	"testing"

	"github.com/knoguchi/docsearch/internal/jobstore"
)

func TestWithChunkHash_DistinctPerContent(t *testing.T) {
	a := withChunkHash("https://x.test/a", "hello world")
	b := withChunkHash("https://x.test/a", "goodbye world")
	if a == b {
		t.Error("expected distinct chunk keys for distinct content on the same page")
	}
}

func TestWithChunkHash_StableForSameContent(t *testing.T) {
	a := withChunkHash("https://x.test/a", "hello world")
	b := withChunkHash("https://x.test/a", "hello world")
	if a != b {
		t.Errorf("expected a re-run to derive the same chunk key, got %q vs %q", a, b)
	}
}

func TestWithDefaults_FillsBatchSize(t *testing.T) {
	cfg := withDefaults(Config{})
	if cfg.BatchSize <= 0 {
		t.Error("expected a positive default batch size")
	}
}

func TestRun_CountersAreMonotonic(t *testing.T) {
	r := &run{}
	r.addDiscovered(1)
	r.addProcessed(true)
	r.addProcessed(false)
	r.addChunks(3)

	got := r.snapshot()
	if got.PagesDiscovered != 1 {
		t.Errorf("expected 1 discovered, got %d", got.PagesDiscovered)
	}
	if got.PagesProcessed != 2 {
		t.Errorf("expected 2 processed, got %d", got.PagesProcessed)
	}
	if got.PagesIndexed != 1 {
		t.Errorf("expected 1 indexed, got %d", got.PagesIndexed)
	}
	if got.TotalChunks != 3 {
		t.Errorf("expected 3 chunks, got %d", got.TotalChunks)
	}
}

func TestRun_FieldsAddressable(t *testing.T) {
	// Checks that a run keeps the jobID and indexName it was built with.
	r := &run{jobID: "job-1", indexName: "docs_example"}
	if r.jobID != "job-1" || r.indexName != "docs_example" {
		t.Fatal("run fields not set as expected")
	}
	_ = jobstore.StatusRunning
}
