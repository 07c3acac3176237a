// Package scheduler is the single periodic trigger: on a fixed interval
// (default 10 minutes, UTC), it processes every enabled network
// sequentially through Feed Sync, Policy Tracker, Incremental Syncer, and
// Archive Indexer, via a ticker-driven, non-overlapping processing pass
// with a context-cancellation shutdown path.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/orcfax/fact-index/internal/alert"
	"github.com/orcfax/fact-index/internal/archive"
	"github.com/orcfax/fact-index/internal/backfill"
	"github.com/orcfax/fact-index/internal/chainindex"
	"github.com/orcfax/fact-index/internal/feedsync"
	"github.com/orcfax/fact-index/internal/models"
	"github.com/orcfax/fact-index/internal/policy"
	"github.com/orcfax/fact-index/internal/store"
	"github.com/orcfax/fact-index/internal/syncer"
)

// TickObserver is notified after each network finishes processing, used by
// internal/health to track tick recency.
type TickObserver interface {
	RecordTick(networkID string, at time.Time)
}

// Scheduler owns the periodic trigger and per-network pipeline.
type Scheduler struct {
	store        store.Store
	feedSyncer   *feedsync.Syncer
	policyTracker *policy.Tracker
	backfiller   *backfill.Populator
	syncerSvc    *syncer.Syncer
	archiver     *archive.Indexer
	alerter      *alert.Sink
	interval     time.Duration
	observer     TickObserver
	rateLimit    float64

	manifestCache map[string]*feedsync.Manifest

	mu chan struct{} // 1-buffered mutex: guards the non-overlapping-tick guard
}

// New builds a Scheduler. interval is the tick period (default 10
// minutes); rateLimit throttles each network's chain-index client.
// alerter may be nil, in which case failures are only logged.
func New(st store.Store, interval time.Duration, rateLimit float64, observer TickObserver, alerter *alert.Sink) *Scheduler {
	tracker := policy.New(st)
	return &Scheduler{
		store:         st,
		feedSyncer:    feedsync.New(st),
		policyTracker: tracker,
		backfiller:    backfill.New(st),
		syncerSvc:     syncer.New(st, tracker),
		archiver:      archive.New(st),
		alerter:       alerter,
		interval:      interval,
		observer:      observer,
		rateLimit:     rateLimit,
		manifestCache: make(map[string]*feedsync.Manifest),
		mu:            make(chan struct{}, 1),
	}
}

// alert logs a non-fatal processing failure and, when an alert sink is
// configured, forwards it for operator visibility.
func (s *Scheduler) alert(format string, args ...interface{}) {
	if s.alerter != nil {
		s.alerter.Error(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Run blocks, firing a processing pass every interval until ctx is
// canceled. Ticks never overlap: if a pass is still running when the next
// tick fires, that tick is skipped.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.processAll(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[scheduler] shutting down")
			return
		case <-ticker.C:
			select {
			case s.mu <- struct{}{}:
				s.processAll(ctx)
				<-s.mu
			default:
				log.Printf("[scheduler] previous tick still running, skipping this fire")
			}
		}
	}
}

// processAll runs one full pass over every enabled network, sequentially.
func (s *Scheduler) processAll(ctx context.Context) {
	networks, err := s.store.ListNetworks(ctx)
	if err != nil {
		s.alert("[scheduler] list networks: %v", err)
		return
	}
	for _, net := range networks {
		if !net.IsEnabled {
			continue
		}
		s.processNetwork(ctx, net)
		if s.observer != nil {
			s.observer.RecordTick(net.ID, time.Now())
		}
	}
}

func (s *Scheduler) processNetwork(ctx context.Context, net models.Network) {
	client := chainindex.NewClient(net.ChainIndexBaseURL, s.rateLimit)

	if len(net.Policies) == 0 {
		if err := s.policyTracker.Populate(ctx, client, net); err != nil {
			s.alert("[scheduler] %s: policy population: %v", net.Name, err)
			return
		}
		policies, err := s.store.ListPolicies(ctx, net.ID)
		if err != nil {
			s.alert("[scheduler] %s: reload policies: %v", net.Name, err)
			return
		}
		net.Policies = policies
	}

	cached := s.manifestCache[net.ID]
	manifest, err := s.feedSyncer.Sync(ctx, net, cached)
	if err != nil {
		s.alert("[scheduler] %s: feed sync: %v", net.Name, err)
	} else {
		s.manifestCache[net.ID] = manifest
	}

	_, hasLast, err := s.store.LastIndexedFact(ctx, net.ID)
	if err != nil {
		s.alert("[scheduler] %s: last indexed fact: %v", net.Name, err)
		return
	}

	if !hasLast && net.LastCheckpointSlot == 0 {
		if err := s.backfiller.Run(ctx, client, net); err != nil {
			s.alert("[scheduler] %s: backfill: %v", net.Name, err)
			return
		}
		networks, err := s.store.ListNetworks(ctx)
		if err == nil {
			for _, n := range networks {
				if n.ID == net.ID {
					net = n
					break
				}
			}
		}
	}

	if err := s.syncerSvc.Tick(ctx, client, net); err != nil {
		s.alert("[scheduler] %s: incremental sync: %v", net.Name, err)
	}

	if net.TracksArchives {
		if err := s.archiver.RunNetwork(ctx, net); err != nil {
			s.alert("[scheduler] %s: archive indexing: %v", net.Name, err)
		}
	}
}
