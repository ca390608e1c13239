package domain

// TokenMismatchRatio is the high/low price ratio beyond which a pair is
// rejected as comparing two different underlying tokens (spec §4.4).
const TokenMismatchRatio = 10.0

// Spread is the canonicalised price difference between two venues trading
// the same base symbol, always expressed with SpreadPct >= 0 (direction is
// folded into Low/High: buy at LowVenue's ask, sell at HighVenue's bid).
type Spread struct {
	PairID    string
	Symbol    string
	LowVenue  Venue
	HighVenue Venue
	BuyPrice  float64
	SellPrice float64
	SpreadPct float64
	Timestamp int64 // unix ms
}

// ComputeSpread evaluates both directions between two quotes for the same
// symbol at venues va/vb and returns the non-negative, higher-yielding
// direction, or ok=false if neither direction is profitable (spec §4.4 step
// 1) or the pair fails the token-mismatch filter (step 2). Quotes must
// already be known-fresh; this function does no staleness filtering.
func ComputeSpread(symbol string, va, vb Venue, qa, qb Quote, nowMs int64) (Spread, bool) {
	if qa.Ask <= 0 || qb.Ask <= 0 || qa.Bid <= 0 || qb.Bid <= 0 {
		return Spread{}, false
	}

	// Direction 1: buy on A (ask), sell on B (bid).
	d1 := (qb.Bid - qa.Ask) / qa.Ask
	// Direction 2: buy on B (ask), sell on A (bid).
	d2 := (qa.Bid - qb.Ask) / qb.Ask

	var buyVenue, sellVenue Venue
	var buyPrice, sellPrice, best float64
	if d1 >= d2 {
		buyVenue, sellVenue = va, vb
		buyPrice, sellPrice = qa.Ask, qb.Bid
		best = d1
	} else {
		buyVenue, sellVenue = vb, va
		buyPrice, sellPrice = qb.Ask, qa.Bid
		best = d2
	}

	if best <= 0 {
		return Spread{}, false
	}

	hi, lo := sellPrice, buyPrice
	if hi < lo {
		hi, lo = lo, hi
	}
	if lo <= 0 || hi/lo > TokenMismatchRatio {
		return Spread{}, false
	}

	return Spread{
		PairID:    buyVenue.ID() + ":" + sellVenue.ID(),
		Symbol:    symbol,
		LowVenue:  buyVenue,
		HighVenue: sellVenue,
		BuyPrice:  buyPrice,
		SellPrice: sellPrice,
		SpreadPct: best * 100,
		Timestamp: nowMs,
	}, true
}

// PairIDFor returns low_venue_id + ":" + high_venue_id, lexicographically
// ordered, per spec §3. Exposed for callers that only hold venue IDs (e.g.
// cooldown keys).
func PairIDFor(a, b string) string {
	if a < b {
		return a + ":" + b
	}
	return b + ":" + a
}
