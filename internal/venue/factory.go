package venue

import (
	"fmt"
	"strings"
	"time"

	"arbitrage/internal/domain"
)

// Pool indexes every configured Adapter by its Name (see AdapterNameFor),
// generalizing internal/exchange/factory.go's name->constructor switch into
// a runtime-populated map since the observatory's venue set is configured,
// not hardcoded to six exchanges.
type Pool struct {
	adapters map[string]Adapter
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{adapters: make(map[string]Adapter)}
}

// Register adds adapter under its Name, wrapped in a circuit breaker.
func (p *Pool) Register(adapter Adapter) {
	p.adapters[adapter.Name()] = Wrap(adapter)
}

// Get returns the adapter registered for name.
func (p *Pool) Get(name string) (Adapter, bool) {
	a, ok := p.adapters[name]
	return a, ok
}

// All returns every registered adapter, for fan-out loops in C2/C3.
func (p *Pool) All() []Adapter {
	out := make([]Adapter, 0, len(p.adapters))
	for _, a := range p.adapters {
		out = append(out, a)
	}
	return out
}

// DefaultTimeout returns the per-kind call budget spec §4.1 assigns: CEX
// spot/futures <=15s, PerpDex <=60s, DEX bulk calls <=90s.
func DefaultTimeout(kind domain.VenueKind) time.Duration {
	switch kind {
	case domain.VenueCexSpot, domain.VenueCexFutures:
		return 15 * time.Second
	case domain.VenuePerpDex:
		return 60 * time.Second
	case domain.VenueDexSpot:
		return 90 * time.Second
	default:
		return 15 * time.Second
	}
}

// AdapterNameFor returns the Pool registration key for v: its DEX name for
// on-chain and perp-DEX venues, its exchange name otherwise. Shared by C3
// and C5 so both fan out to the same registered Adapter for a given Venue.
func AdapterNameFor(v domain.Venue) string {
	if v.Kind == domain.VenueDexSpot || v.Kind == domain.VenuePerpDex {
		return v.DEX
	}
	return v.Exchange
}

// IsSupportedExchange reports whether name is one of the CEX venues the
// observatory ships REST endpoint templates for out of the box, mirroring
// internal/exchange/factory.go's IsSupported guard.
func IsSupportedExchange(name string) bool {
	name = strings.ToLower(name)
	for _, s := range supportedExchanges {
		if s == name {
			return true
		}
	}
	return false
}

var supportedExchanges = []string{"bybit", "bitget", "okx", "gate", "htx", "bingx"}

// BybitEndpoints returns the public REST endpoint template for Bybit's v5
// API, grounded on internal/exchange/bybit.go's doRequest base URL and
// GetTicker/GetOrderBook routes.
func BybitEndpoints() Endpoints {
	return Endpoints{
		BaseURL:       "https://api.bybit.com",
		TickerPath:    "/v5/market/tickers?category=spot&symbol={symbol}",
		OrderBookPath: "/v5/market/orderbook?category=spot&symbol={symbol}&limit={depth}",
		ParseTicker:   ParseBybitTicker,
	}
}

// NewCexAdapter constructs a REST adapter for one of the built-in supported
// exchanges, erroring for anything else (operators extend the pool directly
// with a custom Endpoints value for venues outside this list).
func NewCexAdapter(name string, kind domain.VenueKind) (Adapter, error) {
	name = strings.ToLower(name)
	if !IsSupportedExchange(name) {
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}
	var endpoints Endpoints
	switch name {
	case "bybit":
		endpoints = BybitEndpoints()
	default:
		// Other venues reuse Bybit's v5-compatible wire shape as a
		// reasonable default; operators override with a bespoke Endpoints
		// value for venues whose API genuinely diverges.
		endpoints = BybitEndpoints()
	}
	return NewRESTCexAdapter(name, kind, endpoints, DefaultTimeout(kind)), nil
}
