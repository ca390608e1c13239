// Package domain holds the types the observatory core reasons about: venues,
// tickers, quotes, spreads, signals, trackings, snapshots and the aggregate
// stores derived from them. Nothing here performs I/O.
package domain

import "fmt"

// VenueKind discriminates the four shapes a Venue can take.
type VenueKind int

const (
	// VenueCexSpot is a centralized-exchange spot market.
	VenueCexSpot VenueKind = iota
	// VenueCexFutures is a centralized-exchange futures/perp market.
	VenueCexFutures
	// VenuePerpDex is a decentralized perpetual-futures market.
	VenuePerpDex
	// VenueDexSpot is an on-chain spot market (AMM/orderbook DEX).
	VenueDexSpot
)

func (k VenueKind) String() string {
	switch k {
	case VenueCexSpot:
		return "cex_spot"
	case VenueCexFutures:
		return "cex_futures"
	case VenuePerpDex:
		return "perp_dex"
	case VenueDexSpot:
		return "dex_spot"
	default:
		return "unknown"
	}
}

// Venue is the discriminated union described in spec §3. Only the fields
// relevant to Kind are meaningful; constructors below enforce that.
type Venue struct {
	Kind         VenueKind
	Exchange     string // CEX/PerpDex name, e.g. "binance", "hyperliquid"
	DEX          string // DEX name, e.g. "uniswap_v3"
	Chain        string // chain name for DexSpot, e.g. "ethereum"
	TokenAddress string // contract address for DexSpot
	Market       string // market/pair identifier as quoted by the venue
}

// CexSpot builds a centralized spot Venue.
func CexSpot(exchange, market string) Venue {
	return Venue{Kind: VenueCexSpot, Exchange: exchange, Market: market}
}

// CexFutures builds a centralized futures Venue.
func CexFutures(exchange, market string) Venue {
	return Venue{Kind: VenueCexFutures, Exchange: exchange, Market: market}
}

// PerpDex builds a decentralized perpetual Venue.
func PerpDex(dex, market string) Venue {
	return Venue{Kind: VenuePerpDex, DEX: dex, Market: market}
}

// DexSpot builds an on-chain spot Venue.
func DexSpot(dex, chain, tokenAddress, market string) Venue {
	return Venue{Kind: VenueDexSpot, DEX: dex, Chain: chain, TokenAddress: tokenAddress, Market: market}
}

// ID returns the venue_id string: kind+exchange+market, uniquely encoded.
func (v Venue) ID() string {
	switch v.Kind {
	case VenueCexSpot:
		return fmt.Sprintf("cex_spot:%s:%s", v.Exchange, v.Market)
	case VenueCexFutures:
		return fmt.Sprintf("cex_futures:%s:%s", v.Exchange, v.Market)
	case VenuePerpDex:
		return fmt.Sprintf("perp_dex:%s:%s", v.DEX, v.Market)
	case VenueDexSpot:
		return fmt.Sprintf("dex_spot:%s:%s:%s", v.DEX, v.Chain, v.TokenAddress)
	default:
		return "unknown:" + v.Market
	}
}

// IsOnChain reports whether the venue requires DEX-style liquidity handling
// (no central order book, synthesised depth curve).
func (v Venue) IsOnChain() bool {
	return v.Kind == VenueDexSpot
}

// IsShortable reports whether a position on this venue can be opened short
// without a physical token transfer (futures/perp venues only). Used to
// label generated ArbitragePairs "auto" vs "manual" per spec §4.2.
func (v Venue) IsShortable() bool {
	return v.Kind == VenueCexFutures || v.Kind == VenuePerpDex
}

// Category returns the one-letter venue-kind category; the qualifier joins
// the two legs' letters into its two-letter strategy type (spec §4.6,
// design note §9): S=spot CEX, F=futures CEX, D=DEX spot, P=perp DEX.
func (v Venue) Category() string {
	switch v.Kind {
	case VenueCexSpot:
		return "S"
	case VenueCexFutures:
		return "F"
	case VenueDexSpot:
		return "D"
	case VenuePerpDex:
		return "P"
	default:
		return "?"
	}
}
