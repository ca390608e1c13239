package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"arbitrage/internal/corefail"
	"arbitrage/internal/domain"
	"arbitrage/pkg/ratelimit"
)

// Endpoints templates the handful of public, unauthenticated REST calls the
// observatory needs from a CEX or PerpDex venue. {symbol} and {depth} are
// substituted verbatim; adapters never sign requests or touch private
// endpoints, generalizing internal/exchange's per-exchange clients (bybit.go,
// bitget.go, okx.go, ...) down to their read-only surface.
type Endpoints struct {
	BaseURL        string
	SymbolsPath    string // returns a JSON list the adapter can walk for symbols
	TickerPath     string // "/v5/market/tickers?symbol={symbol}"
	OrderBookPath  string // "/v5/market/orderbook?symbol={symbol}&limit={depth}"
	ParseSymbols   func([]byte) ([]string, error)
	ParseTicker    func([]byte, string) (Quote, error)
	ParseOrderBook func([]byte, string) (OrderBook, error)
}

// RESTCexAdapter implements Adapter over a venue's public REST API. Each
// adapter owns its own http.Client, bound to that adapter's timeout.
type RESTCexAdapter struct {
	name      string
	kind      domain.VenueKind
	endpoints Endpoints
	client    *http.Client
	timeout   time.Duration
	limiter   *ratelimit.RateLimiter
}

// NewRESTCexAdapter constructs a read-only REST adapter for a CEX or PerpDex
// venue. timeout should be <=15s for spot/futures CEXes and <=60s for
// PerpDex venues, per spec §4.1. Every call waits on a per-adapter token
// bucket sized to the venue's published public-endpoint rate limit, keeping
// C2/C3's poll fan-out from tripping a venue's own throttling before the
// circuit breaker ever sees an error.
func NewRESTCexAdapter(name string, kind domain.VenueKind, endpoints Endpoints, timeout time.Duration) *RESTCexAdapter {
	rate, burst := rateLimitFor(name)
	return &RESTCexAdapter{
		name:      name,
		kind:      kind,
		endpoints: endpoints,
		client:    &http.Client{Timeout: timeout},
		timeout:   timeout,
		limiter:   ratelimit.NewRateLimiter(rate, burst),
	}
}

// rateLimitFor returns the published public-REST rate limit for a built-in
// exchange, falling back to NewRateLimiter's own 10req/s default for
// operator-supplied venues outside this list.
func rateLimitFor(name string) (rate, burst float64) {
	switch strings.ToLower(name) {
	case "okx":
		return 20, 40
	case "bybit", "bitget", "gate", "htx", "bingx":
		return 10, 20
	default:
		return 0, 0
	}
}

func (a *RESTCexAdapter) Name() string           { return a.name }
func (a *RESTCexAdapter) Kind() domain.VenueKind { return a.kind }
func (a *RESTCexAdapter) Timeout() time.Duration { return a.timeout }

func (a *RESTCexAdapter) ListSymbols(ctx context.Context) ([]string, error) {
	body, err := a.get(ctx, a.endpoints.BaseURL+a.endpoints.SymbolsPath)
	if err != nil {
		return nil, err
	}
	return a.endpoints.ParseSymbols(body)
}

func (a *RESTCexAdapter) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	url := a.endpoints.BaseURL + substitute(a.endpoints.TickerPath, symbol, 0)
	body, err := a.get(ctx, url)
	if err != nil {
		return Quote{}, err
	}
	q, err := a.endpoints.ParseTicker(body, symbol)
	if err != nil {
		return Quote{}, &corefail.AdapterTransient{Venue: a.name, Cause: err}
	}
	return q, nil
}

func (a *RESTCexAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error) {
	url := a.endpoints.BaseURL + substitute(a.endpoints.OrderBookPath, symbol, depth)
	body, err := a.get(ctx, url)
	if err != nil {
		return OrderBook{}, err
	}
	ob, err := a.endpoints.ParseOrderBook(body, symbol)
	if err != nil {
		return OrderBook{}, &corefail.AdapterTransient{Venue: a.name, Cause: err}
	}
	return ob, nil
}

// LiquidityUSD is not a CEX/PerpDex concept; only DexSpot adapters report it.
func (a *RESTCexAdapter) LiquidityUSD(ctx context.Context, symbol string) (float64, bool, error) {
	return 0, false, nil
}

func (a *RESTCexAdapter) get(ctx context.Context, url string) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &corefail.AdapterTransient{Venue: a.name, Cause: err}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &corefail.AdapterTransient{Venue: a.name, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &corefail.AdapterTransient{Venue: a.name, Cause: err}
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &corefail.AdapterTransient{Venue: a.name, Cause: fmt.Errorf("http %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, &corefail.AdapterTransient{Venue: a.name, Cause: fmt.Errorf("http %d: %s", resp.StatusCode, string(body))}
	}
	return body, nil
}

func substitute(path, symbol string, depth int) string {
	out := strings.ReplaceAll(path, "{symbol}", symbol)
	if depth > 0 {
		out = strings.ReplaceAll(out, "{depth}", strconv.Itoa(depth))
	}
	return out
}

// genericBybitTicker is an example parse target for ParseTicker callers;
// kept here so wiring a new venue is a config literal, not new Go code.
type genericBybitTicker struct {
	Result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			Bid1Price string `json:"bid1Price"`
			Ask1Price string `json:"ask1Price"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	} `json:"result"`
}

// ParseBybitTicker adapts Bybit's v5 tickers payload, grounded on
// internal/exchange/bybit.go's GetTicker field mapping.
func ParseBybitTicker(body []byte, symbol string) (Quote, error) {
	var parsed genericBybitTicker
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Quote{}, err
	}
	for _, t := range parsed.Result.List {
		if t.Symbol == symbol {
			bid, _ := strconv.ParseFloat(t.Bid1Price, 64)
			ask, _ := strconv.ParseFloat(t.Ask1Price, 64)
			last, _ := strconv.ParseFloat(t.LastPrice, 64)
			return Quote{Symbol: symbol, BidPrice: bid, AskPrice: ask, LastPrice: last, Timestamp: time.Now()}, nil
		}
	}
	return Quote{}, fmt.Errorf("symbol %s not found in ticker response", symbol)
}
