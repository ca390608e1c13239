// Package registry implements C2 TickerRegistry: the phased process that
// builds the tradable universe (one domain.Ticker per canonical symbol,
// each naming every venue that quotes it) and the domain.ArbitragePair set
// derived from it. Grounded on internal/service/pair_service.go's
// checkSymbolAvailability (multi-venue symbol-presence scan, here run across
// every configured venue instead of gating a single user-entered symbol) and
// internal/repository/pair_repository.go's persisted-pair-store shape.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"arbitrage/internal/domain"
	"arbitrage/internal/venue"
)

// Registry owns the current tradable universe: one Ticker per canonical
// symbol, rebuilt wholesale on each Rebuild call and swapped in atomically.
type Registry struct {
	mu      sync.RWMutex
	tickers map[string]*domain.Ticker // keyed by canonical symbol
	pairs   []domain.ArbitragePair
	pool    *venue.Pool
}

// New returns an empty Registry bound to pool.
func New(pool *venue.Pool) *Registry {
	return &Registry{tickers: make(map[string]*domain.Ticker), pool: pool}
}

// Rebuild runs the full four-phase universe-build (spec §4.2):
//  1. futures-authoritative: every CEX-futures venue's symbol list seeds the
//     universe.
//  2. spot overlay: spot venues join onto the same canonical symbol via
//     domain.BaseSymbol.
//  3. contract-address enrichment: DEX venues attach by canonical symbol.
//  4. perp-DEX overlay: perpetual-DEX venues join last.
//
// The result is validated per-ticker (domain.Ticker.Validate) and dropped if
// invalid, then swapped into the Registry atomically.
func (r *Registry) Rebuild(ctx context.Context) error {
	tickers := make(map[string]*domain.Ticker)

	futures := r.pool.All()
	// Phase 1: futures-authoritative.
	for _, a := range futures {
		if a.Kind() != domain.VenueCexFutures {
			continue
		}
		if err := r.seedVenue(ctx, a, tickers); err != nil {
			return fmt.Errorf("seed futures venue %s: %w", a.Name(), err)
		}
	}
	// Phase 2: spot overlay.
	for _, a := range futures {
		if a.Kind() != domain.VenueCexSpot {
			continue
		}
		if err := r.seedVenue(ctx, a, tickers); err != nil {
			return fmt.Errorf("seed spot venue %s: %w", a.Name(), err)
		}
	}
	// Phase 3: DEX contract-address enrichment.
	for _, a := range futures {
		if a.Kind() != domain.VenueDexSpot {
			continue
		}
		if err := r.seedVenue(ctx, a, tickers); err != nil {
			return fmt.Errorf("seed dex venue %s: %w", a.Name(), err)
		}
	}
	// Phase 4: perp-DEX overlay.
	for _, a := range futures {
		if a.Kind() != domain.VenuePerpDex {
			continue
		}
		if err := r.seedVenue(ctx, a, tickers); err != nil {
			return fmt.Errorf("seed perp-dex venue %s: %w", a.Name(), err)
		}
	}

	valid := make(map[string]*domain.Ticker, len(tickers))
	var pairs []domain.ArbitragePair
	for symbol, t := range tickers {
		t.Validate()
		if !t.Valid {
			continue
		}
		t.BuildPairs()
		valid[symbol] = t
		pairs = append(pairs, t.Pairs...)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].PairID < pairs[j].PairID })

	r.mu.Lock()
	r.tickers = valid
	r.pairs = pairs
	r.mu.Unlock()
	return nil
}

func (r *Registry) seedVenue(ctx context.Context, a venue.Adapter, tickers map[string]*domain.Ticker) error {
	symbols, err := a.ListSymbols(ctx)
	if err != nil {
		// A single venue failing discovery shouldn't abort the whole
		// rebuild; it simply contributes no symbols this cycle.
		return nil
	}
	for _, market := range symbols {
		base := domain.BaseSymbol(market)
		t, ok := tickers[base]
		if !ok {
			t = domain.NewTicker(base)
			tickers[base] = t
		}
		v := venueFor(a.Kind(), a.Name(), market)
		t.AddVenue(v)
	}
	return nil
}

func venueFor(kind domain.VenueKind, name, market string) domain.Venue {
	switch kind {
	case domain.VenueCexSpot:
		return domain.CexSpot(name, market)
	case domain.VenueCexFutures:
		return domain.CexFutures(name, market)
	case domain.VenuePerpDex:
		return domain.PerpDex(name, market)
	default:
		return domain.DexSpot(name, "", "", market)
	}
}

// Ticker returns the current Ticker for a canonical symbol, if tracked.
func (r *Registry) Ticker(symbol string) (*domain.Ticker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tickers[symbol]
	return t, ok
}

// Tickers returns a snapshot of every tracked Ticker.
func (r *Registry) Tickers() []*domain.Ticker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Ticker, 0, len(r.tickers))
	for _, t := range r.tickers {
		out = append(out, t)
	}
	return out
}

// Pairs returns the current ArbitragePair set derived from the universe.
func (r *Registry) Pairs() []domain.ArbitragePair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ArbitragePair, len(r.pairs))
	copy(out, r.pairs)
	return out
}
