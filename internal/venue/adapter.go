// Package venue implements C1 VenueAdapter: a read-only, uniform interface
// over every venue kind the observatory watches, generalized from
// internal/exchange's per-exchange Exchange interface. Venue adapters never
// place orders or touch balances — they only fetch quotes and order books.
package venue

import (
	"context"
	"time"

	"arbitrage/internal/domain"
)

// Quote is the raw tick a venue reports before it becomes a domain.Quote.
type Quote struct {
	Symbol    string
	BidPrice  float64
	AskPrice  float64
	LastPrice float64
	Timestamp time.Time
}

// OrderBook mirrors exchange.OrderBook's shape, reused unchanged since the
// slippage-walk in pkg/utils already consumes this shape.
type OrderBook struct {
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// PriceLevel is one rung of an order book.
type PriceLevel struct {
	Price  float64
	Volume float64
}

// Adapter is the read-only surface C3/C5 call against every tracked venue.
// CEX/PerpDex adapters wrap a REST client; DexSpot adapters synthesize an
// order book from a liquidity-depth profile (spec §4.1's DEX note) and
// additionally report LiquidityUSD.
type Adapter interface {
	// Name identifies the venue for logging/metrics, e.g. "bybit", "uniswap_v3".
	Name() string

	// Kind reports which domain.VenueKind this adapter serves.
	Kind() domain.VenueKind

	// ListSymbols returns every symbol the venue currently lists.
	ListSymbols(ctx context.Context) ([]string, error)

	// FetchQuote returns the current bid/ask/last for symbol.
	FetchQuote(ctx context.Context, symbol string) (Quote, error)

	// FetchOrderBook returns up to depth levels per side for symbol.
	FetchOrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error)

	// LiquidityUSD reports on-chain TVL/liquidity for symbol, used by DexSpot
	// adapters to gate candidates below config.PipelineConfig.MinDexLiquidityUSD.
	// CEX/PerpDex adapters that have no such notion return (0, false).
	LiquidityUSD(ctx context.Context, symbol string) (float64, bool, error)

	// Timeout is the per-call budget this adapter's kind should be bound to
	// (spec §4.1: CEX <=15s, PerpDex <=60s, DEX bulk calls <=90s).
	Timeout() time.Duration
}
