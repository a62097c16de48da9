package pdfingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchAndParse_PropagatesHTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := New()
	_, err := f.FetchAndParse(context.Background(), server.URL+"/missing.pdf")
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
}

func TestFetchAndParse_RejectsUnparseableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("not actually a pdf"))
	}))
	defer server.Close()

	f := New()
	_, err := f.FetchAndParse(context.Background(), server.URL+"/report.pdf")
	if err == nil {
		t.Fatal("expected a parse error for a non-PDF body")
	}
}
