package scraper

import (
	"context"
	"log"
	"time"

	"pumpfeed/internal/domain"
	"pumpfeed/internal/normalize"
	"pumpfeed/internal/observability"
	"pumpfeed/internal/pumpapi"
	"pumpfeed/internal/storage"
	"pumpfeed/internal/store"
)

// Poller defaults, matching the REST polling cadence used in
// production.
const (
	DefaultPollInterval   = 20 * time.Second
	DefaultMaxTokens      = 500
	DefaultTradeTokens    = 50
	DefaultTradesPerToken = 100
	DefaultLaunchWindow   = 24 * time.Hour
)

// PollerOptions configures a Poller.
type PollerOptions struct {
	Client   *pumpapi.Client
	Store    *store.MergeStore
	Archiver storage.Archiver       // nil disables persistence
	Metrics  *observability.Metrics // nil disables prometheus metrics
	Logger   *log.Logger

	Interval        time.Duration
	MaxTokens       int
	TradeTokens     int // top N collected tokens to fetch trades for
	TradesPerToken  int
	NewLaunchWindow time.Duration
	MinMarketCap    float64
	MinVolume       float64
	StatsInterval   time.Duration
}

// Poller ingests by polling the REST API instead of holding a stream
// open. Each cycle lists recent coins, folds them into the same merge
// store the realtime path uses, pulls trades for the most recently
// collected mints, and flushes.
type Poller struct {
	client   *pumpapi.Client
	norm     *normalize.Normalizer
	store    *store.MergeStore
	archiver storage.Archiver
	metrics  *observability.Metrics
	logger   *log.Logger

	interval        time.Duration
	maxTokens       int
	tradeTokens     int
	tradesPerToken  int
	newLaunchWindow time.Duration
	minMarketCap    float64
	minVolume       float64
	statsInterval   time.Duration

	now func() time.Time
}

// NewPoller creates a Poller.
func NewPoller(opts PollerOptions) *Poller {
	if opts.Store == nil {
		opts.Store = store.NewMergeStore()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.TradeTokens <= 0 {
		opts.TradeTokens = DefaultTradeTokens
	}
	if opts.TradesPerToken <= 0 {
		opts.TradesPerToken = DefaultTradesPerToken
	}
	if opts.NewLaunchWindow <= 0 {
		opts.NewLaunchWindow = DefaultLaunchWindow
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = DefaultStatsInterval
	}

	return &Poller{
		client:          opts.Client,
		norm:            normalize.NewNormalizer(),
		store:           opts.Store,
		archiver:        opts.Archiver,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		interval:        opts.Interval,
		maxTokens:       opts.MaxTokens,
		tradeTokens:     opts.TradeTokens,
		tradesPerToken:  opts.TradesPerToken,
		newLaunchWindow: opts.NewLaunchWindow,
		minMarketCap:    opts.MinMarketCap,
		minVolume:       opts.MinVolume,
		statsInterval:   opts.StatsInterval,
		now:             time.Now,
	}
}

// Store exposes the merge store for read models.
func (p *Poller) Store() *store.MergeStore {
	return p.store
}

// Run polls until ctx is cancelled. The first cycle starts
// immediately; every cycle ends with a flush so the poll interval is
// also the persistence cadence.
func (p *Poller) Run(ctx context.Context) error {
	statsTicker := time.NewTicker(p.statsInterval)
	defer statsTicker.Stop()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			defer cancel()
			p.flush(flushCtx)
			p.logStats()
			return nil
		case <-statsTicker.C:
			p.logStats()
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

// cycle runs one poll of coins then trades, ending with a flush.
func (p *Poller) cycle(ctx context.Context) {
	if err := p.pollTokens(ctx); err != nil {
		p.logger.Printf("poll tokens: %v", err)
		p.store.CountConnectionError()
		if p.metrics != nil {
			p.metrics.PollErrors.Inc()
			p.metrics.ConnectionErrors.Inc()
		}
	} else {
		p.pollTrades(ctx)
		if p.metrics != nil {
			p.metrics.PollCycles.Inc()
		}
	}
	p.flush(ctx)
}

func (p *Poller) pollTokens(ctx context.Context) error {
	start := p.now()
	coins, err := p.client.ListCoins(ctx, pumpapi.ListOptions{Limit: p.maxTokens})
	if p.metrics != nil {
		p.metrics.APICallLatency.WithLabelValues("coins").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return err
	}

	for _, coin := range coins {
		p.store.CountMessage()
		res := p.norm.Normalize(coin)
		if res.Kind != domain.EventNewToken || res.Token == nil {
			continue
		}
		token := res.Token
		if token.MarketCap < p.minMarketCap || token.Volume24h < p.minVolume {
			continue
		}

		p.store.UpsertToken(token)
		if p.metrics != nil {
			p.metrics.EventsProcessed.WithLabelValues("new_token").Inc()
			p.metrics.TokensUpserted.Inc()
		}

		if p.isRecentLaunch(token) {
			if p.store.RecordLaunch(token) && p.metrics != nil {
				p.metrics.LaunchesRecorded.Inc()
			}
		}
	}
	return nil
}

// isRecentLaunch applies the lookback window to the creation time.
func (p *Poller) isRecentLaunch(token *domain.Token) bool {
	if token.CreatedTimestamp == nil {
		return false
	}
	age := p.now().Sub(*token.CreatedTimestamp)
	return age >= 0 && age <= p.newLaunchWindow
}

// pollTrades fetches trades for the most recently collected mints.
// Mints that are not plausible on-chain addresses are skipped; the
// list endpoint occasionally serves placeholder rows and the trade
// endpoint rejects them anyway.
func (p *Poller) pollTrades(ctx context.Context) {
	snap := p.store.Snapshot()

	fetched := 0
	for _, token := range snap.Tokens {
		if fetched >= p.tradeTokens {
			break
		}
		if !normalize.ValidMint(token.MintAddress) {
			continue
		}
		fetched++

		start := p.now()
		trades, err := p.client.Trades(ctx, token.MintAddress, p.tradesPerToken)
		if p.metrics != nil {
			p.metrics.APICallLatency.WithLabelValues("trades").Observe(time.Since(start).Seconds())
		}
		if err != nil {
			p.logger.Printf("poll trades for %s: %v", token.MintAddress, err)
			if p.metrics != nil {
				p.metrics.PollErrors.Inc()
			}
			continue
		}

		for _, trade := range trades {
			p.store.CountMessage()
			if _, ok := trade["mint"]; !ok {
				// Per-mint responses often omit the mint; pin it so
				// extraction has an identity to work with.
				trade["mint"] = token.MintAddress
			}
			res := p.norm.Normalize(trade)
			if res.Kind != domain.EventTrade || res.Transaction == nil {
				continue
			}
			added := p.store.AppendTransaction(res.Transaction)
			if added {
				p.store.AddTradeVolume(res.Transaction)
			}
			if p.metrics != nil {
				p.metrics.EventsProcessed.WithLabelValues("trade").Inc()
				if added {
					p.metrics.TransactionsStored.Inc()
				} else {
					p.metrics.DuplicatesDropped.Inc()
				}
			}
		}
	}
}

// flush persists a snapshot through the archiver, mirroring the
// realtime scraper's best-effort policy.
func (p *Poller) flush(ctx context.Context) {
	if p.archiver == nil {
		return
	}

	snap := p.store.Snapshot()
	failed := false

	if err := p.archiver.SaveTokens(ctx, snap.Tokens); err != nil {
		p.logger.Printf("persist tokens: %v", err)
		failed = true
	}
	if err := p.archiver.SaveTransactions(ctx, snap.Transactions); err != nil {
		p.logger.Printf("persist transactions: %v", err)
		failed = true
	}
	if err := p.archiver.SaveLaunches(ctx, snap.NewLaunches); err != nil {
		p.logger.Printf("persist launches: %v", err)
		failed = true
	}
	if err := p.archiver.SaveMigrations(ctx, snap.Migrations); err != nil {
		p.logger.Printf("persist migrations: %v", err)
		failed = true
	}

	p.store.CountPersistFlush(failed)
	if p.metrics != nil {
		p.metrics.PersistFlushes.Inc()
		if failed {
			p.metrics.PersistFailures.Inc()
		} else {
			p.metrics.LastFlushTimestamp.Set(float64(time.Now().Unix()))
		}
		p.metrics.TokenCount.Set(float64(len(snap.Tokens)))
		p.metrics.TransactionCount.Set(float64(len(snap.Transactions)))
		p.metrics.LaunchCount.Set(float64(len(snap.NewLaunches)))
		p.metrics.MigrationCount.Set(float64(len(snap.Migrations)))
	}
}

func (p *Poller) logStats() {
	stats := p.store.Stats()
	p.logger.Printf(
		"poll session: records=%d tokens=%d txs=%d launches=%d dupes=%d errors=%d uptime=%s",
		stats.MessagesReceived,
		stats.TokensCollected,
		stats.TransactionsStored,
		stats.NewLaunches,
		stats.DuplicatesDropped,
		stats.ConnectionErrors,
		time.Since(stats.SessionStart).Round(time.Second),
	)
}
