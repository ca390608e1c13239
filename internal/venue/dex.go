package venue

import (
	"context"
	"fmt"
	"time"

	"arbitrage/internal/corefail"
	"arbitrage/internal/domain"
)

// LiquiditySource fetches a DEX pool's spot price and total liquidity from a
// chain-indexer HTTP API (e.g. a DEX aggregator or subgraph). It is the only
// venue-specific piece an operator needs to supply per DexSpot venue.
type LiquiditySource interface {
	FetchPool(ctx context.Context, symbol string) (PoolState, error)
}

// PoolState is what a DEX pool reports: spot price plus the reserves needed
// to synthesize a depth-profile order book.
type PoolState struct {
	Symbol       string
	SpotPrice    float64
	LiquidityUSD float64
	// ReserveBase/ReserveQuote let the adapter model constant-product
	// slippage when synthesizing book levels (x*y=k).
	ReserveBase  float64
	ReserveQuote float64
}

// DexAdapter implements Adapter for an on-chain DexSpot venue. Since DEXes
// have no real order book, FetchOrderBook synthesizes one from the pool's
// constant-product curve (spec §4.1's "DEX order books are synthesized from
// a liquidity-depth profile, not fetched directly" note).
type DexAdapter struct {
	name    string
	source  LiquiditySource
	timeout time.Duration
}

// NewDexAdapter wraps source as a read-only DexSpot Adapter. timeout should
// be <=90s per spec §4.1's DEX bulk-call budget.
func NewDexAdapter(name string, source LiquiditySource, timeout time.Duration) *DexAdapter {
	return &DexAdapter{name: name, source: source, timeout: timeout}
}

func (a *DexAdapter) Name() string          { return a.name }
func (a *DexAdapter) Kind() domain.VenueKind { return domain.VenueDexSpot }
func (a *DexAdapter) Timeout() time.Duration { return a.timeout }

// ListSymbols is not generally supported by a single-pool LiquiditySource;
// callers configure the symbol list for DEX venues statically instead.
func (a *DexAdapter) ListSymbols(ctx context.Context) ([]string, error) {
	return nil, fmt.Errorf("dex adapter %s: ListSymbols not supported, configure symbols statically", a.name)
}

func (a *DexAdapter) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	pool, err := a.source.FetchPool(ctx, symbol)
	if err != nil {
		return Quote{}, &corefail.AdapterTransient{Venue: a.name, Cause: err}
	}
	return Quote{
		Symbol:    symbol,
		BidPrice:  pool.SpotPrice,
		AskPrice:  pool.SpotPrice,
		LastPrice: pool.SpotPrice,
		Timestamp: time.Now(),
	}, nil
}

func (a *DexAdapter) LiquidityUSD(ctx context.Context, symbol string) (float64, bool, error) {
	pool, err := a.source.FetchPool(ctx, symbol)
	if err != nil {
		return 0, false, &corefail.AdapterTransient{Venue: a.name, Cause: err}
	}
	return pool.LiquidityUSD, true, nil
}

// FetchOrderBook synthesizes depth levels from the constant-product curve
// x*y=k: each level trades a fixed USD notional against the pool and records
// the resulting average execution price, giving C5's slippage walk
// something to consume exactly as it would a real CEX book.
func (a *DexAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error) {
	pool, err := a.source.FetchPool(ctx, symbol)
	if err != nil {
		return OrderBook{}, &corefail.AdapterTransient{Venue: a.name, Cause: err}
	}
	if pool.ReserveBase <= 0 || pool.ReserveQuote <= 0 {
		return OrderBook{}, &corefail.AdapterTransient{Venue: a.name, Cause: fmt.Errorf("pool %s has no reserves", symbol)}
	}

	k := pool.ReserveBase * pool.ReserveQuote
	const notionalStep = 1000.0 // USD per synthesized level

	asks := make([]PriceLevel, 0, depth)
	quoteIn := pool.ReserveQuote
	baseOut := pool.ReserveBase
	for i := 0; i < depth; i++ {
		newQuote := quoteIn + notionalStep
		newBase := k / newQuote
		volume := baseOut - newBase
		if volume <= 0 {
			break
		}
		avgPrice := notionalStep / volume
		asks = append(asks, PriceLevel{Price: avgPrice, Volume: volume})
		quoteIn, baseOut = newQuote, newBase
	}

	bids := make([]PriceLevel, 0, depth)
	baseIn := pool.ReserveBase
	quoteOut := pool.ReserveQuote
	for i := 0; i < depth; i++ {
		sellVolume := notionalStep / pool.SpotPrice
		newBase := baseIn + sellVolume
		newQuote := k / newBase
		quoteGained := quoteOut - newQuote
		if quoteGained <= 0 {
			break
		}
		avgPrice := quoteGained / sellVolume
		bids = append(bids, PriceLevel{Price: avgPrice, Volume: sellVolume})
		baseIn, quoteOut = newBase, newQuote
	}

	return OrderBook{Symbol: symbol, Bids: bids, Asks: asks, Timestamp: time.Now()}, nil
}
