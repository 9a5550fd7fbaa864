// Package scraper wires the stream manager, the normalizer and the
// merge store into a running ingestion session, flushing collected
// data to the configured archiver on a fixed cadence.
package scraper

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"pumpfeed/internal/domain"
	"pumpfeed/internal/normalize"
	"pumpfeed/internal/observability"
	"pumpfeed/internal/storage"
	"pumpfeed/internal/store"
	"pumpfeed/internal/stream"
)

// Default cadence for persistence and stats reporting.
const (
	DefaultPersistInterval = 20 * time.Second
	DefaultStatsInterval   = 30 * time.Second
	finalFlushTimeout      = 10 * time.Second
)

// Options configures a Scraper.
type Options struct {
	Transport stream.Transport
	Stream    stream.Config
	Store     *store.MergeStore
	Archiver  storage.Archiver       // nil disables persistence
	Metrics   *observability.Metrics // nil disables prometheus metrics
	Logger    *log.Logger

	PersistInterval time.Duration
	StatsInterval   time.Duration
}

// Scraper runs the realtime ingestion session.
type Scraper struct {
	manager  *stream.Manager
	norm     *normalize.Normalizer
	store    *store.MergeStore
	archiver storage.Archiver
	metrics  *observability.Metrics
	logger   *log.Logger

	persistInterval time.Duration
	statsInterval   time.Duration
}

// New creates a Scraper. The merge store is created when not supplied
// so short-lived callers can skip the plumbing.
func New(opts Options) *Scraper {
	if opts.Store == nil {
		opts.Store = store.NewMergeStore()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Transport == nil {
		opts.Transport = &stream.WSTransport{}
	}
	if opts.PersistInterval <= 0 {
		opts.PersistInterval = DefaultPersistInterval
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = DefaultStatsInterval
	}

	s := &Scraper{
		norm:            normalize.NewNormalizer(),
		store:           opts.Store,
		archiver:        opts.Archiver,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		persistInterval: opts.PersistInterval,
		statsInterval:   opts.StatsInterval,
	}

	hooks := stream.Hooks{
		OnMessage: s.handleMessage,
		OnConnect: func() {
			if s.metrics != nil {
				s.metrics.LastConnectedTimestamp.Set(float64(time.Now().Unix()))
			}
		},
		OnConnectionError: func(err error) {
			s.store.CountConnectionError()
			if s.metrics != nil {
				s.metrics.ConnectionErrors.Inc()
			}
		},
		OnReconnect: func(attempt int, delay time.Duration) {
			s.store.CountReconnect()
			if s.metrics != nil {
				s.metrics.ReconnectAttempts.Inc()
			}
		},
	}
	s.manager = stream.NewManager(opts.Transport, opts.Stream, hooks, opts.Logger)
	return s
}

// Store exposes the merge store for read models.
func (s *Scraper) Store() *store.MergeStore {
	return s.store
}

// Manager exposes the connection manager, mainly for health reporting.
func (s *Scraper) Manager() *stream.Manager {
	return s.manager
}

// Run drives the session until ctx is cancelled or the stream gives up
// reconnecting. A final best-effort flush runs on the way out.
func (s *Scraper) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	tickCtx, cancelTickers := context.WithCancel(ctx)
	defer cancelTickers()

	wg.Add(2)
	go func() {
		defer wg.Done()
		s.persistLoop(tickCtx)
	}()
	go func() {
		defer wg.Done()
		s.statsLoop(tickCtx)
	}()

	err := s.manager.Run(ctx)

	cancelTickers()
	wg.Wait()

	// Cancellation killed ctx, so the final flush gets its own bound.
	flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
	defer cancel()
	s.persist(flushCtx)
	s.logStats()

	return err
}

// handleMessage is the stream hook: normalize and fold into the store.
func (s *Scraper) handleMessage(msg []byte) {
	s.store.CountMessage()
	if s.metrics != nil {
		s.metrics.MessagesReceived.Inc()
	}

	if !json.Valid(msg) {
		s.store.CountParseError()
		if s.metrics != nil {
			s.metrics.ParseErrors.Inc()
		}
		return
	}

	res := s.norm.NormalizeBytes(msg)
	if res.Empty() {
		// Subscription acks and unknown envelopes are expected noise.
		return
	}
	s.dispatch(res)
}

// dispatch folds one normalized result into the merge store.
func (s *Scraper) dispatch(res normalize.Result) {
	switch res.Kind {
	case domain.EventNewToken:
		s.store.UpsertToken(res.Token)
		launched := s.store.RecordLaunch(res.Token)
		if s.metrics != nil {
			s.metrics.EventsProcessed.WithLabelValues("new_token").Inc()
			s.metrics.TokensUpserted.Inc()
			if launched {
				s.metrics.LaunchesRecorded.Inc()
			}
		}

	case domain.EventTrade:
		added := s.store.AppendTransaction(res.Transaction)
		if added {
			s.store.AddTradeVolume(res.Transaction)
		}
		if s.metrics != nil {
			s.metrics.EventsProcessed.WithLabelValues("trade").Inc()
			if added {
				s.metrics.TransactionsStored.Inc()
			} else {
				s.metrics.DuplicatesDropped.Inc()
			}
		}

	case domain.EventMigration:
		recorded := s.store.RecordMigration(res.Migration)
		if s.metrics != nil {
			s.metrics.EventsProcessed.WithLabelValues("migration").Inc()
			if recorded {
				s.metrics.MigrationsRecorded.Inc()
			}
		}
	}
}

func (s *Scraper) persistLoop(ctx context.Context) {
	ticker := time.NewTicker(s.persistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.persist(ctx)
		}
	}
}

// persist flushes a snapshot through the archiver. Per-collection
// failures are logged and counted but never stop the session.
func (s *Scraper) persist(ctx context.Context) {
	if s.archiver == nil {
		return
	}

	snap := s.store.Snapshot()
	failed := false

	if err := s.archiver.SaveTokens(ctx, snap.Tokens); err != nil {
		s.logger.Printf("persist tokens: %v", err)
		failed = true
	}
	if err := s.archiver.SaveTransactions(ctx, snap.Transactions); err != nil {
		s.logger.Printf("persist transactions: %v", err)
		failed = true
	}
	if err := s.archiver.SaveLaunches(ctx, snap.NewLaunches); err != nil {
		s.logger.Printf("persist launches: %v", err)
		failed = true
	}
	if err := s.archiver.SaveMigrations(ctx, snap.Migrations); err != nil {
		s.logger.Printf("persist migrations: %v", err)
		failed = true
	}

	s.store.CountPersistFlush(failed)
	if s.metrics != nil {
		s.metrics.PersistFlushes.Inc()
		if failed {
			s.metrics.PersistFailures.Inc()
		} else {
			s.metrics.LastFlushTimestamp.Set(float64(time.Now().Unix()))
		}
		s.updateGauges(snap)
	}
}

func (s *Scraper) updateGauges(snap *domain.Snapshot) {
	s.metrics.TokenCount.Set(float64(len(snap.Tokens)))
	s.metrics.TransactionCount.Set(float64(len(snap.Transactions)))
	s.metrics.LaunchCount.Set(float64(len(snap.NewLaunches)))
	s.metrics.MigrationCount.Set(float64(len(snap.Migrations)))
}

func (s *Scraper) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(s.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logStats()
		}
	}
}

func (s *Scraper) logStats() {
	stats := s.store.Stats()
	s.logger.Printf(
		"session: messages=%d tokens=%d txs=%d launches=%d migrations=%d dupes=%d parse_errors=%d reconnects=%d uptime=%s",
		stats.MessagesReceived,
		stats.TokensCollected,
		stats.TransactionsStored,
		stats.NewLaunches,
		stats.Migrations,
		stats.DuplicatesDropped,
		stats.ParseErrors,
		stats.ReconnectAttempts,
		time.Since(stats.SessionStart).Round(time.Second),
	)
}
