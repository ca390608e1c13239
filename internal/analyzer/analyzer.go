// Package analyzer implements C5 OrderBookAnalyzer: the consumer pool that
// turns a queued Spread candidate into an executable-price Signal by
// walking both venues' live order books, or a conservative fallback signal
// when a book fetch fails. Grounded on internal/bot/risk.go's liquidity/
// slippage arithmetic (repurposed from margin checks to entry sizing) and
// pkg/utils/math.go's order-book-walk helpers.
package analyzer

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
	"go.uber.org/zap"

	"arbitrage/internal/domain"
	"arbitrage/internal/kv"
	"arbitrage/internal/venue"
	"arbitrage/pkg/utils"
)

// depthHistorySampleCap bounds the rolling depth-sample sorted set kept per
// venue (spec §4.5 step 7), mirroring the "last N" trim pattern used for
// alerts:processed.
const depthHistorySampleCap = 200

// Config holds C5's tunables (config.PipelineConfig fields, spec §4.5/§6).
type Config struct {
	Workers         int
	MaxSignalAge    time.Duration // default 120s
	MaxSlipPct      float64       // max_size_within_slippage bound
	HardCap         float64       // suggested_position_usd ceiling, default 5000
	PerSideTimeout  time.Duration
	OrderBookDepth  int
	PendingQueueCap int64 // default 500
}

// Candidate is the wire shape C3 pushes onto queue:orderbook_analysis.
// Field name matches collector.AnalysisCandidate so both encode/decode the
// same msgpack map regardless of which package's type is used.
type Candidate struct {
	Spread domain.Spread
}

// PendingSignal is the wire shape pushed onto signals:pending for C6.
type PendingSignal struct {
	Signal domain.Signal
}

// Analyzer runs the order-book-analysis worker pool.
type Analyzer struct {
	pool     *venue.Pool
	in       *kv.Queue
	out      *kv.Queue
	kvStore  kv.Store
	ring     *rendezvous.Rendezvous
	workerID []string
	cfg      Config
	log      *zap.Logger
}

// New returns an Analyzer. inQueue is queue:orderbook_analysis (C3's
// producer side), outQueue is signals:pending (bounded at
// cfg.PendingQueueCap, default 500, consumed by C6).
func New(pool *venue.Pool, inQueue *kv.Queue, store kv.Store, cfg Config, log *zap.Logger) *Analyzer {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxSignalAge <= 0 {
		cfg.MaxSignalAge = 120 * time.Second
	}
	if cfg.HardCap <= 0 {
		cfg.HardCap = 5000
	}
	if cfg.PendingQueueCap <= 0 {
		cfg.PendingQueueCap = 500
	}
	if cfg.OrderBookDepth <= 0 {
		cfg.OrderBookDepth = 20
	}

	workerIDs := make([]string, cfg.Workers)
	for i := range workerIDs {
		workerIDs[i] = fmt.Sprintf("analyzer-%d", i)
	}

	return &Analyzer{
		pool:     pool,
		in:       inQueue,
		out:      kv.NewQueue(store, "signals:pending", cfg.PendingQueueCap),
		kvStore:  store,
		ring:     rendezvous.New(workerIDs, xxhash.Sum64String),
		workerID: workerIDs,
		cfg:      cfg,
		log:      log,
	}
}

// Run launches the worker pool and blocks until ctx is cancelled.
func (a *Analyzer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, id := range a.workerID {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			a.runWorker(ctx, id)
		}(id)
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (a *Analyzer) runWorker(ctx context.Context, id string) {
	idleWait := 50 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var cand Candidate
		ok, err := a.in.Pop(ctx, &cand)
		if err != nil {
			a.log.Warn("orderbook queue pop failed", zap.Error(err))
			time.Sleep(idleWait)
			continue
		}
		if !ok {
			time.Sleep(idleWait)
			continue
		}

		// Rendezvous-hash by symbol so that the same worker keeps handling a
		// given symbol's candidates across the pool's lifetime; a mismatch
		// requeues the candidate rather than processing it out of assignment,
		// at the cost of re-ordering it behind whatever is pushed meanwhile.
		if assigned := a.ring.Lookup(cand.Spread.Symbol); assigned != id {
			if _, err := a.in.Push(ctx, cand); err != nil {
				a.log.Warn("requeue for reassignment failed", zap.Error(err))
			}
			continue
		}

		a.process(ctx, cand)
	}
}

func (a *Analyzer) process(ctx context.Context, cand Candidate) {
	sig := a.analyze(ctx, cand.Spread)
	if sig == nil {
		return
	}
	if _, err := a.out.Push(ctx, PendingSignal{Signal: *sig}); err != nil {
		a.log.Warn("pending-signals queue push failed", zap.Error(err))
	}
}

// analyze runs spec §4.5 steps 1-7, returning nil if the candidate is
// rejected outright (stale past MaxSignalAge).
func (a *Analyzer) analyze(ctx context.Context, sp domain.Spread) *domain.Signal {
	now := time.Now()
	if now.UnixMilli()-sp.Timestamp > a.cfg.MaxSignalAge.Milliseconds() {
		return nil
	}

	buyAdapter, buyOK := a.pool.Get(venue.AdapterNameFor(sp.LowVenue))
	sellAdapter, sellOK := a.pool.Get(venue.AdapterNameFor(sp.HighVenue))
	if !buyOK || !sellOK {
		return a.fallbackSignal(ctx, sp, now)
	}

	buyBook, sellBook, err := a.fetchBooks(ctx, buyAdapter, sellAdapter, sp)
	if err != nil {
		return a.fallbackSignal(ctx, sp, now)
	}

	return a.buildSignal(sp, buyBook, sellBook, now)
}

func (a *Analyzer) fetchBooks(ctx context.Context, buyAdapter, sellAdapter venue.Adapter, sp domain.Spread) (venue.OrderBook, venue.OrderBook, error) {
	var buyBook, sellBook venue.OrderBook
	var buyErr, sellErr error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		qctx, cancel := context.WithTimeout(ctx, a.cfg.PerSideTimeout)
		defer cancel()
		buyBook, buyErr = buyAdapter.FetchOrderBook(qctx, sp.LowVenue.Market, a.cfg.OrderBookDepth)
	}()
	go func() {
		defer wg.Done()
		qctx, cancel := context.WithTimeout(ctx, a.cfg.PerSideTimeout)
		defer cancel()
		sellBook, sellErr = sellAdapter.FetchOrderBook(qctx, sp.HighVenue.Market, a.cfg.OrderBookDepth)
	}()
	wg.Wait()

	if buyErr != nil {
		return buyBook, sellBook, buyErr
	}
	if sellErr != nil {
		return buyBook, sellBook, sellErr
	}
	if len(buyBook.Asks) == 0 || len(sellBook.Bids) == 0 {
		return buyBook, sellBook, fmt.Errorf("empty order book side")
	}
	return buyBook, sellBook, nil
}

func (a *Analyzer) buildSignal(sp domain.Spread, buyBook, sellBook venue.OrderBook, now time.Time) *domain.Signal {
	asks := toLevels(buyBook.Asks)
	bids := toLevels(sellBook.Bids)

	maxBuyUSD := utils.MaxBuyUSDWithinSlippage(asks, a.cfg.MaxSlipPct)
	maxSellUSD := utils.MaxSellUSDWithinSlippage(bids, a.cfg.MaxSlipPct)
	maxEntry := math.Min(maxBuyUSD, maxSellUSD)

	bestAsk := asks[0].Price
	bestBid := bids[0].Price

	buyAvgPrice, _, _ := utils.SimulateMarketBuy(asks, safeDiv(maxEntry, bestAsk))
	sellAvgPrice, _, _ := utils.SimulateMarketSell(bids, safeDiv(maxEntry, bestBid))
	if buyAvgPrice == 0 {
		buyAvgPrice = bestAsk
	}
	if sellAvgPrice == 0 {
		sellAvgPrice = bestBid
	}

	buyExitUSD := sumUSD(toLevels(buyBook.Bids))
	sellExitUSD := sumUSD(toLevels(sellBook.Asks))

	nominalPct := utils.CalculateSpread(bestBid, bestAsk)
	realPct := utils.CalculateSpread(sellAvgPrice, buyAvgPrice)
	lossPct := nominalPct - realPct

	exitUSD := math.Min(buyExitUSD, sellExitUSD)
	suggested := utils.RoundToPleasantNumber(math.Min(maxEntry, math.Min(0.5*exitUSD, a.cfg.HardCap)))

	a.recordDepthSample(sp.LowVenue.ID(), buyExitUSD)
	a.recordDepthSample(sp.HighVenue.ID(), sellExitUSD)

	return &domain.Signal{
		Symbol:        sp.Symbol,
		PairID:        sp.PairID,
		LowVenue:      sp.LowVenue,
		HighVenue:     sp.HighVenue,
		NominalPct:    nominalPct,
		RealPct:       realPct,
		LossPct:       lossPct,
		BuyPrice:      buyAvgPrice,
		SellPrice:     sellAvgPrice,
		BuyExitUSD:    buyExitUSD,
		SellExitUSD:   sellExitUSD,
		MaxEntryUSD:   maxEntry,
		SuggestedUSD:  suggested,
		FullyFillable: maxEntry > 0,
		SignalType:    domain.SignalAuto,
		CreatedAt:     now,
		SchemaVersion: 1,
	}
}

// fallbackSignal builds a conservative signal from cached best-bid/ask only,
// per spec §4.5 step 2 and edge case E: suggested_position_usd is capped at
// min(liquidity_usd * 0.1, HardCap), falling further back to a flat minimum
// when neither venue reports on-chain liquidity.
func (a *Analyzer) fallbackSignal(ctx context.Context, sp domain.Spread, now time.Time) *domain.Signal {
	liquidityUSD := a.bestEffortLiquidity(ctx, sp)

	cap := math.Min(500, a.cfg.HardCap)
	if liquidityUSD > 0 {
		cap = math.Min(liquidityUSD*0.1, a.cfg.HardCap)
	}

	return &domain.Signal{
		Symbol:         sp.Symbol,
		PairID:         sp.PairID,
		LowVenue:       sp.LowVenue,
		HighVenue:      sp.HighVenue,
		NominalPct:     sp.SpreadPct,
		RealPct:        0,
		LossPct:        sp.SpreadPct,
		BuyPrice:       sp.BuyPrice,
		SellPrice:      sp.SellPrice,
		SuggestedUSD:   utils.RoundToPleasantNumber(cap),
		FullyFillable:  false,
		FallbackSignal: true,
		SignalType:     domain.SignalFallback,
		CreatedAt:      now,
		SchemaVersion:  1,
	}
}

func (a *Analyzer) bestEffortLiquidity(ctx context.Context, sp domain.Spread) float64 {
	var liq float64
	for _, v := range []domain.Venue{sp.LowVenue, sp.HighVenue} {
		if !v.IsOnChain() {
			continue
		}
		adapter, ok := a.pool.Get(venue.AdapterNameFor(v))
		if !ok {
			continue
		}
		qctx, cancel := context.WithTimeout(ctx, a.cfg.PerSideTimeout)
		l, ok, err := adapter.LiquidityUSD(qctx, v.Market)
		cancel()
		if err == nil && ok && l > liq {
			liq = l
		}
	}
	return liq
}

// recordDepthSample appends a rolling depth-history sample for venueID,
// trimmed to depthHistorySampleCap, so C6's depth-vs-baseline safety
// predicate has recent context to compare against.
func (a *Analyzer) recordDepthSample(venueID string, depthUSD float64) {
	if a.kvStore == nil || depthUSD <= 0 {
		return
	}
	key := "depth_history:" + venueID
	ctx := context.Background()
	ts := time.Now().UnixNano()
	member := fmt.Sprintf("%d:%f", ts, depthUSD)
	if err := a.kvStore.ZAdd(ctx, key, kv.ZMember{Score: float64(ts), Member: member}); err != nil {
		a.log.Debug("depth history sample failed", zap.String("venue", venueID), zap.Error(err))
		return
	}
	_ = a.kvStore.ZRemRangeByRank(ctx, key, depthHistorySampleCap)
}

func toLevels(levels []venue.PriceLevel) []utils.OrderBookLevel {
	out := make([]utils.OrderBookLevel, len(levels))
	for i, l := range levels {
		out[i] = utils.OrderBookLevel{Price: l.Price, Volume: l.Volume}
	}
	return out
}

func sumUSD(levels []utils.OrderBookLevel) float64 {
	var total float64
	for _, l := range levels {
		total += l.Price * l.Volume
	}
	return total
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
