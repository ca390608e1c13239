package domain

import "testing"

func TestComputeSpread_BasicDirection(t *testing.T) {
	a := CexSpot("binance", "ETHUSDT")
	b := CexFutures("bybit", "ETHUSDT")

	qa := Quote{VenueID: a.ID(), Bid: 99.9, Ask: 100.0}
	qb := Quote{VenueID: b.ID(), Bid: 105.0, Ask: 105.2}

	s, ok := ComputeSpread("ETH", a, b, qa, qb, 1000)
	if !ok {
		t.Fatal("expected a profitable spread")
	}
	if s.SpreadPct <= 0 {
		t.Errorf("SpreadPct = %v, want > 0", s.SpreadPct)
	}
	if s.BuyPrice != 100.0 || s.SellPrice != 105.0 {
		t.Errorf("BuyPrice/SellPrice = %v/%v, want 100/105", s.BuyPrice, s.SellPrice)
	}
	if s.PairID != a.ID()+":"+b.ID() {
		t.Errorf("PairID = %q, want %q", s.PairID, a.ID()+":"+b.ID())
	}
}

func TestComputeSpread_RejectsNonProfitable(t *testing.T) {
	a := CexSpot("binance", "ETHUSDT")
	b := CexFutures("bybit", "ETHUSDT")
	qa := Quote{VenueID: a.ID(), Bid: 100.0, Ask: 100.1}
	qb := Quote{VenueID: b.ID(), Bid: 99.9, Ask: 100.0}

	if _, ok := ComputeSpread("ETH", a, b, qa, qb, 0); ok {
		t.Error("expected no profitable direction")
	}
}

func TestComputeSpread_TokenMismatchFilter(t *testing.T) {
	dex := DexSpot("uniswap", "ethereum", "0xabc", "PUMPBTC")
	cex := CexSpot("binance", "PUMPBTC")

	qa := Quote{VenueID: dex.ID(), Bid: 93000, Ask: 94000}
	qb := Quote{VenueID: cex.ID(), Bid: 0.019, Ask: 0.02}

	if _, ok := ComputeSpread("PUMPBTC", dex, cex, qa, qb, 0); ok {
		t.Error("expected token-mismatch rejection")
	}
}

func TestComputeSpread_ZeroSidesRejected(t *testing.T) {
	a := CexSpot("binance", "ETHUSDT")
	b := CexFutures("bybit", "ETHUSDT")
	qa := Quote{VenueID: a.ID(), Bid: 0, Ask: 100}
	qb := Quote{VenueID: b.ID(), Bid: 105, Ask: 105.2}

	if _, ok := ComputeSpread("ETH", a, b, qa, qb, 0); ok {
		t.Error("expected rejection when one side is missing")
	}
}
