package chainindex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/orcfax/fact-index/internal/errs"
)

// TestFetchMatchesNotModified covers a 304 response with a matching
// If-None-Match surfacing as "no change", not an error.
func TestFetchMatchesNotModified(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") != "abcd" {
			t.Errorf("If-None-Match = %q, want abcd", r.Header.Get("If-None-Match"))
		}
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	_, err := c.FetchMatches(context.Background(), MatchesQuery{Pattern: "policy.*", IfNoneMatch: "abcd"})
	if !IsNotModified(err) {
		t.Fatalf("FetchMatches error = %v, want errNotModified", err)
	}
}

func TestFetchMatchesMissingHeadersIsProtocolViolation(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	_, err := c.FetchMatches(context.Background(), MatchesQuery{Pattern: "policy.*"})
	if err == nil {
		t.Fatal("expected an error for a 200 response missing etag/x-most-recent-checkpoint")
	}
	var pv *errs.ProtocolViolation
	if !errors.As(err, &pv) {
		t.Fatalf("FetchMatches error = %v, want a ProtocolViolation", err)
	}
}

func TestFetchMatchesSuccess(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("etag", "blockhash1")
		w.Header().Set("x-most-recent-checkpoint", "150")
		w.Write([]byte(`[{"transaction_id":"tx1","output_index":0,"address":"addr1","value":{"coins":1000000,"assets":{}},"datum_hash":"dh1","datum_type":"inline","created_at":{"slot_no":100,"header_hash":"bh1"}}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	result, err := c.FetchMatches(context.Background(), MatchesQuery{Pattern: "policy.*"})
	if err != nil {
		t.Fatalf("FetchMatches: %v", err)
	}
	if result.ETag != "blockhash1" || result.MostRecentCheckpoint != 150 {
		t.Errorf("result = %+v, want etag=blockhash1 checkpoint=150", result)
	}
	if len(result.Matches) != 1 || result.Matches[0].TransactionID != "tx1" {
		t.Errorf("matches = %+v", result.Matches)
	}
}

func TestFetchDatumNullBody(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"datum": null}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	got, err := c.FetchDatum(context.Background(), "dh1")
	if err != nil {
		t.Fatalf("FetchDatum: %v", err)
	}
	if got != "" {
		t.Errorf("FetchDatum = %q, want empty string for a null datum", got)
	}
}
