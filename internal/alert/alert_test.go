package alert

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestErrorPostsInProduction(t *testing.T) {
	t.Parallel()
	received := make(chan discordPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p discordPayload
		json.NewDecoder(r.Body).Decode(&p)
		received <- p
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewSink(srv.URL, "production")
	s.Error("fetch failed: %s", "timeout")

	select {
	case p := <-received:
		if p.Content != "production: fetch failed: timeout" {
			t.Errorf("content = %q, want %q", p.Content, "production: fetch failed: timeout")
		}
	default:
		t.Fatal("expected a webhook delivery in production mode")
	}
}

func TestErrorSkipsPostingInDevelopment(t *testing.T) {
	t.Parallel()
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewSink(srv.URL, "development")
	s.Error("fetch failed: %s", "timeout")

	if called {
		t.Error("development mode should log only, not post to the webhook")
	}
}
