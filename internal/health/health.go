// Package health exposes an operational HTTP surface: readiness and
// plaintext tick-age metrics, routed with gorilla/mux.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/orcfax/fact-index/internal/store"
)

// Pinger reports whether the store can currently be reached.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves /healthz and /metrics.
type Server struct {
	store store.Store
	ping  Pinger

	mu          sync.RWMutex
	lastTickAt  map[string]time.Time
	maxTickAge  time.Duration
}

// New builds a health Server. maxTickAge is the threshold past which a
// network's last-tick age fails readiness.
func New(st store.Store, ping Pinger, maxTickAge time.Duration) *Server {
	return &Server{
		store:      st,
		ping:       ping,
		lastTickAt: make(map[string]time.Time),
		maxTickAge: maxTickAge,
	}
}

// RecordTick marks networkID's last successful tick time, called by the
// scheduler after each pass.
func (s *Server) RecordTick(networkID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTickAt[networkID] = at
}

// Router builds the mux.Router serving this Server's endpoints.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if s.ping != nil {
		if err := s.ping.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "store unreachable: %v\n", err)
			return
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	for networkID, last := range s.lastTickAt {
		if s.maxTickAge > 0 && now.Sub(last) > s.maxTickAge {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "network %s last ticked %s ago, exceeds threshold\n", networkID, now.Sub(last))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	now := time.Now()
	for networkID, last := range s.lastTickAt {
		fmt.Fprintf(w, "fact_index_last_tick_age_seconds{network=%q} %f\n", networkID, now.Sub(last).Seconds())
	}
}
