package spread

import (
	"arbitrage/internal/domain"
)

// Engine derives domain.Spread candidates from a Tracker's quote snapshots,
// per spec §4.4: every unordered venue pair for a symbol is evaluated both
// directions, the higher-yielding direction kept, DEX legs below the
// configured liquidity floor dropped.
type Engine struct {
	tracker         *Tracker
	minDexLiquidity float64
	maxAgeMs        int64
}

// NewEngine returns an Engine reading from tracker, filtering DEX legs whose
// reported liquidity is below minDexLiquidity (config.PipelineConfig's
// MinDexLiquidityUSD, default 1000 per spec §6) and quotes older than
// maxAgeMs (MaxPriceAgeMs, default domain.DefaultMaxQuoteAgeMs per spec §3).
func NewEngine(tracker *Tracker, minDexLiquidity float64, maxAgeMs int64) *Engine {
	return &Engine{tracker: tracker, minDexLiquidity: minDexLiquidity, maxAgeMs: maxAgeMs}
}

// Derive computes every valid Spread for symbol at nowMs, enumerating all
// C(n,2) venue pairs among the fresh tracked quotes (spec §4.4: "group all
// fresh quotes" before pairing). Token-mismatch and no-profitable-direction
// pairs are silently skipped (domain.ComputeSpread already encodes both
// rules); stale quotes and DEX legs below the liquidity floor are skipped
// before even reaching ComputeSpread, counted in the returned skip count
// rather than allocating an error per skip.
func (e *Engine) Derive(symbol string, venues map[string]domain.Venue, nowMs int64) ([]domain.Spread, int) {
	quotes := e.tracker.Quotes(symbol)
	filtered := make([]domain.Quote, 0, len(quotes))
	skipped := 0
	for _, q := range quotes {
		if !q.IsFresh(nowMs, e.maxAgeMs) {
			skipped++
			continue
		}
		v, ok := venues[q.VenueID]
		if ok && v.IsOnChain() && q.HasLiquidityInfo() && q.LiquidityUSD < e.minDexLiquidity {
			skipped++
			continue
		}
		filtered = append(filtered, q)
	}

	var spreads []domain.Spread
	for i := 0; i < len(filtered); i++ {
		for j := i + 1; j < len(filtered); j++ {
			qa, qb := filtered[i], filtered[j]
			va, vaOK := venues[qa.VenueID]
			vb, vbOK := venues[qb.VenueID]
			if !vaOK || !vbOK {
				continue
			}
			sp, ok := domain.ComputeSpread(symbol, va, vb, qa, qb, nowMs)
			if !ok {
				continue
			}
			spreads = append(spreads, sp)
		}
	}
	return spreads, skipped
}
