package health

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestHealthzOKWithRecentTick(t *testing.T) {
	t.Parallel()
	s := New(nil, fakePinger{}, time.Minute)
	s.RecordTick("mainnet", time.Now())

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestHealthzFailsOnStaleTick(t *testing.T) {
	t.Parallel()
	s := New(nil, fakePinger{}, time.Minute)
	s.RecordTick("mainnet", time.Now().Add(-time.Hour))

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != 503 {
		t.Errorf("status = %d, want 503 for a stale tick", w.Code)
	}
}

func TestHealthzFailsOnPingError(t *testing.T) {
	t.Parallel()
	s := New(nil, fakePinger{err: errors.New("connection refused")}, time.Minute)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != 503 {
		t.Errorf("status = %d, want 503 when the store is unreachable", w.Code)
	}
}

func TestMetricsReportsTickAge(t *testing.T) {
	t.Parallel()
	s := New(nil, fakePinger{}, time.Minute)
	s.RecordTick("mainnet", time.Now())

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := w.Body.String(); len(body) == 0 {
		t.Error("expected non-empty metrics body")
	}
}
