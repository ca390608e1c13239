package spread

import (
	"testing"

	"arbitrage/internal/domain"
)

func TestEngine_DeriveFindsProfitableDirection(t *testing.T) {
	tr := NewTracker(4)
	bybit := domain.CexSpot("bybit", "ETHUSDT")
	okx := domain.CexSpot("okx", "ETH-USDT")

	tr.Update(domain.Quote{VenueID: bybit.ID(), Symbol: "ETH", Bid: 2990, Ask: 3000, ReceivedAtMs: 1})
	tr.Update(domain.Quote{VenueID: okx.ID(), Symbol: "ETH", Bid: 3100, Ask: 3110, ReceivedAtMs: 1})

	eng := NewEngine(tr, 1000, 60_000)
	venues := map[string]domain.Venue{bybit.ID(): bybit, okx.ID(): okx}
	spreads, skipped := eng.Derive("ETH", venues, 2)

	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(spreads) != 1 {
		t.Fatalf("spreads = %d, want 1", len(spreads))
	}
	if spreads[0].SpreadPct <= 0 {
		t.Errorf("SpreadPct = %v, want > 0", spreads[0].SpreadPct)
	}
}

func TestEngine_DeriveSkipsLowLiquidityDexLeg(t *testing.T) {
	tr := NewTracker(4)
	bybit := domain.CexSpot("bybit", "ETHUSDT")
	uni := domain.DexSpot("uniswap_v3", "ethereum", "0xabc", "ETH/USDC")

	tr.Update(domain.Quote{VenueID: bybit.ID(), Symbol: "ETH", Bid: 2990, Ask: 3000, ReceivedAtMs: 1})
	tr.Update(domain.Quote{
		VenueID: uni.ID(), Symbol: "ETH", Bid: 3100, Ask: 3110, ReceivedAtMs: 1,
		LiquidityUSD: 500,
	})

	eng := NewEngine(tr, 1000, 60_000)
	venues := map[string]domain.Venue{bybit.ID(): bybit, uni.ID(): uni}
	spreads, skipped := eng.Derive("ETH", venues, 2)

	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(spreads) != 0 {
		t.Errorf("spreads = %d, want 0 (only leg left is the low-liquidity DEX one, dropped)", len(spreads))
	}
}

func TestEngine_DeriveSkipsStaleQuote(t *testing.T) {
	tr := NewTracker(4)
	bybit := domain.CexSpot("bybit", "ETHUSDT")
	okx := domain.CexSpot("okx", "ETH-USDT")

	tr.Update(domain.Quote{VenueID: bybit.ID(), Symbol: "ETH", Bid: 2990, Ask: 3000, ReceivedAtMs: 1})
	tr.Update(domain.Quote{VenueID: okx.ID(), Symbol: "ETH", Bid: 3100, Ask: 3110, ReceivedAtMs: 1})

	eng := NewEngine(tr, 1000, 60_000)
	venues := map[string]domain.Venue{bybit.ID(): bybit, okx.ID(): okx}
	// Both venues stopped updating; both quotes are now 61s stale, so no pair
	// can be formed even though both are still tracked.
	spreads, skipped := eng.Derive("ETH", venues, 61_001)

	if skipped != 2 {
		t.Errorf("skipped = %d, want 2 (both quotes past the 60s freshness window)", skipped)
	}
	if len(spreads) != 0 {
		t.Errorf("spreads = %d, want 0", len(spreads))
	}
}

func TestEngine_DeriveRejectsTokenMismatch(t *testing.T) {
	tr := NewTracker(4)
	bybit := domain.CexSpot("bybit", "ETHUSDT")
	okx := domain.CexSpot("okx", "ETH-USDT")

	tr.Update(domain.Quote{VenueID: bybit.ID(), Symbol: "ETH", Bid: 10, Ask: 11, ReceivedAtMs: 1})
	tr.Update(domain.Quote{VenueID: okx.ID(), Symbol: "ETH", Bid: 3000, Ask: 3010, ReceivedAtMs: 1})

	eng := NewEngine(tr, 1000, 60_000)
	venues := map[string]domain.Venue{bybit.ID(): bybit, okx.ID(): okx}
	spreads, _ := eng.Derive("ETH", venues, 2)

	if len(spreads) != 0 {
		t.Errorf("expected token-mismatch pair to be rejected, got %+v", spreads)
	}
}
