// Package collector implements C3 PriceCollector: the 1s tick that fans out
// across every tracked venue, feeds C4's spread derivation inline, and
// forwards qualifying spreads toward C5's order-book analysis queue.
// Grounded on internal/bot/engine.go's Run/priceEventWorker goroutine
// fan-out and its ctx.Done()-driven graceful shutdown.
package collector

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"arbitrage/internal/corefail"
	"arbitrage/internal/domain"
	"arbitrage/internal/kv"
	"arbitrage/internal/registry"
	"arbitrage/internal/spread"
	"arbitrage/internal/storage"
	"arbitrage/internal/venue"
)

// maxConcurrentFetches bounds the number of in-flight FetchQuote calls
// across all venues in a single tick, keeping the teacher's per-exchange
// goroutine-per-update style without letting one slow venue's fetch count
// starve the others of scheduler time.
const maxConcurrentFetches = 64

// spreadLogSampleInterval throttles how often a given pair's spread is
// written to the durable spread_log, per spec §4.3's "at most once per 60s
// per tracked pair" note.
const spreadLogSampleInterval = 60 * time.Second

// statsKey is the aggregated-counter hash for soft failures this Collector
// observes, mirroring the qualifier package's alerts:stats hash (spec §7
// "aggregated counter").
const statsKey = "collector:stats"

// Config holds the tunables Tick reads from config.PipelineConfig without
// importing internal/config directly.
type Config struct {
	MaxPriceAgeMs        int64
	MinDexLiquidityUSD   float64
	OrderbookQueueCap    int64
}

// Collector owns one tick of C3: fetch, stale-drop, feed Tracker, derive
// spreads, sample to spread_log, enqueue analysis candidates.
type Collector struct {
	pool      *venue.Pool
	registry  *registry.Registry
	tracker   *spread.Tracker
	engine    *spread.Engine
	obQueue   *kv.Queue
	kvStore   kv.Store
	spreadLog *storage.SpreadLogStore
	cfg       Config
	log       *zap.Logger

	sampleMu sync.Mutex
	lastSample map[string]time.Time

	inFlight chan struct{} // single-flight guard, spec §4.3

	baseline BaselineRecorder
}

// BaselineRecorder feeds C9's rolling baseline off the same spread samples
// C3 already computes, so C9 never re-derives a spread itself. Defined
// locally (same shape as baseline.Collector.Record) to avoid an import
// cycle back into internal/baseline.
type BaselineRecorder interface {
	Record(ctx context.Context, pairID, symbol string, spreadPct float64, at time.Time) error
}

// New returns a Collector. kvStore backs the bounded orderbook-analysis
// queue (spec §6's `queue:orderbook_analysis`, capacity from
// Config.OrderbookQueueCap, default 1000).
func New(pool *venue.Pool, reg *registry.Registry, spreadLog *storage.SpreadLogStore, kvStore kv.Store, cfg Config, log *zap.Logger) *Collector {
	cap := cfg.OrderbookQueueCap
	if cap <= 0 {
		cap = 1000
	}
	tracker := spread.NewTracker(16)
	return &Collector{
		pool:       pool,
		registry:   reg,
		tracker:    tracker,
		engine:     spread.NewEngine(tracker, cfg.MinDexLiquidityUSD, cfg.MaxPriceAgeMs),
		obQueue:    kv.NewQueue(kvStore, "queue:orderbook_analysis", cap),
		kvStore:    kvStore,
		spreadLog:  spreadLog,
		cfg:        cfg,
		log:        log,
		lastSample: make(map[string]time.Time),
		inFlight:   make(chan struct{}, 1),
	}
}

// incrStat bumps the aggregated counter for field in the collector:stats
// hash (spec §7: soft failures like stale-data drops must be aggregated,
// not just logged). Read-then-write rather than atomic: the stats hash is
// diagnostic only and an occasional missed increment under concurrent
// fetchOne calls is acceptable.
func (c *Collector) incrStat(ctx context.Context, field string) {
	fields, err := c.kvStore.HGetAll(ctx, statsKey)
	if err != nil {
		return
	}
	n, _ := strconv.ParseInt(fields[field], 10, 64)
	_ = c.kvStore.HSet(ctx, statsKey, field, strconv.FormatInt(n+1, 10))
}

// PriceTracker returns the live quote cache this Collector writes to, so
// C8/C11 can read the same quotes without a second subscription to every
// venue feed.
func (c *Collector) PriceTracker() *spread.Tracker {
	return c.tracker
}

// SetBaselineRecorder wires C9's rolling-baseline sampler in after
// construction (the pipeline builds baseline.Collector after collector.Collector
// since the latter owns the spread.Tracker baseline reads would otherwise
// need to duplicate).
func (c *Collector) SetBaselineRecorder(b BaselineRecorder) {
	c.baseline = b
}

// AnalysisCandidate is what Tick pushes onto the orderbook-analysis queue:
// enough context for C5 to re-fetch books without re-deriving the spread.
type AnalysisCandidate struct {
	Spread domain.Spread
}

// Tick runs exactly one collection cycle: fetch every tracked venue's quote
// in parallel, update the tracker, derive spreads per symbol, and enqueue
// candidates. Single-flight: a tick already in progress causes this call to
// return immediately without starting a second one (spec §4.3).
func (c *Collector) Tick(ctx context.Context) error {
	select {
	case c.inFlight <- struct{}{}:
		defer func() { <-c.inFlight }()
	default:
		return nil
	}

	nowMs := time.Now().UnixMilli()
	tickers := c.registry.Tickers()

	c.fetchAll(ctx, tickers, nowMs)

	for _, t := range tickers {
		venues := make(map[string]domain.Venue, len(t.Venues))
		for _, v := range t.Venues {
			venues[v.ID()] = v
		}
		spreads, skipped := c.engine.Derive(t.Symbol, venues, nowMs)
		if skipped > 0 {
			c.log.Debug("quotes skipped for staleness or low liquidity", zap.String("symbol", t.Symbol), zap.Int("skipped", skipped))
		}
		for _, sp := range spreads {
			c.handleSpread(ctx, sp)
		}
	}
	return nil
}

type fetchJob struct {
	symbol string
	v      domain.Venue
}

func (c *Collector) fetchAll(ctx context.Context, tickers []*domain.Ticker, nowMs int64) {
	var jobs []fetchJob
	for _, t := range tickers {
		for _, v := range t.Venues {
			jobs = append(jobs, fetchJob{symbol: t.Symbol, v: v})
		}
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentFetches)
	for _, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(j fetchJob) {
			defer wg.Done()
			defer func() { <-sem }()
			c.fetchOne(ctx, j, nowMs)
		}(j)
	}
	wg.Wait()
}

func (c *Collector) fetchOne(ctx context.Context, j fetchJob, nowMs int64) {
	adapter, ok := c.pool.Get(venue.AdapterNameFor(j.v))
	if !ok {
		return
	}

	qctx, cancel := context.WithTimeout(ctx, adapter.Timeout())
	defer cancel()

	vq, err := adapter.FetchQuote(qctx, j.v.Market)
	if err != nil {
		c.log.Debug("fetch quote failed", zap.String("venue", j.v.ID()), zap.Error(err))
		return
	}

	dq := domain.Quote{
		VenueID:      j.v.ID(),
		Symbol:       j.symbol,
		Bid:          vq.BidPrice,
		Ask:          vq.AskPrice,
		Last:         vq.LastPrice,
		ReceivedAtMs: nowMs,
		ExchangeTsMs: vq.Timestamp.UnixMilli(),
		Source:       j.v.Kind,
	}

	if j.v.IsOnChain() {
		if liq, ok, err := adapter.LiquidityUSD(qctx, j.v.Market); err == nil && ok {
			dq.LiquidityUSD = liq
		}
	}

	age := nowMs - dq.ExchangeTsMs
	if dq.ExchangeTsMs > 0 && age > c.cfg.MaxPriceAgeMs {
		err := &corefail.StaleData{VenueID: j.v.ID(), AgeMs: age}
		c.log.Debug("stale quote dropped", zap.String("venue", j.v.ID()), zap.Int64("age_ms", age), zap.Error(err))
		c.incrStat(ctx, "stale_dropped")
		return
	}
	if !dq.Valid() {
		return
	}

	c.tracker.Update(dq)
}

func (c *Collector) handleSpread(ctx context.Context, sp domain.Spread) {
	c.sampleSpreadLog(ctx, sp)

	if c.baseline != nil {
		if err := c.baseline.Record(ctx, sp.PairID, sp.Symbol, sp.SpreadPct, time.Now()); err != nil {
			c.log.Warn("baseline record failed", zap.Error(err))
		}
	}

	trimmed, err := c.obQueue.Push(ctx, AnalysisCandidate{Spread: sp})
	if err != nil {
		c.log.Warn("orderbook analysis queue push failed", zap.Error(err))
		return
	}
	if trimmed {
		c.log.Warn("orderbook analysis queue overflowed", zap.Error(&corefail.QueueOverflow{Queue: "queue:orderbook_analysis", Trimmed: 1}))
	}
}

// sampleSpreadLog persists at most one spread_log row per pair per
// spreadLogSampleInterval, per spec §4.3.
func (c *Collector) sampleSpreadLog(ctx context.Context, sp domain.Spread) {
	if c.spreadLog == nil {
		return
	}

	c.sampleMu.Lock()
	last, ok := c.lastSample[sp.PairID]
	now := time.Now()
	if ok && now.Sub(last) < spreadLogSampleInterval {
		c.sampleMu.Unlock()
		return
	}
	c.lastSample[sp.PairID] = now
	c.sampleMu.Unlock()

	rec := &storage.SpreadLogRecord{
		Ts:        now,
		Symbol:    sp.Symbol,
		Strategy:  sp.LowVenue.Category() + sp.HighVenue.Category(),
		LowVenue:  sp.LowVenue.ID(),
		HighVenue: sp.HighVenue.ID(),
		LowPrice:  sp.BuyPrice,
		HighPrice: sp.SellPrice,
		SpreadPct: sp.SpreadPct,
	}
	if err := c.spreadLog.Create(ctx, rec); err != nil {
		c.log.Warn("spread_log write failed", zap.Error(&corefail.PersistenceFailure{Operation: "spread_log.Create", Cause: err}))
	}
}

