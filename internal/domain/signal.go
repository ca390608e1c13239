package domain

import "time"

// SignalType classifies how a Signal was derived (spec §3).
type SignalType string

const (
	SignalAuto     SignalType = "auto"
	SignalManual   SignalType = "manual"
	SignalLagging  SignalType = "lagging"
	SignalFallback SignalType = "fallback"
	SignalInvalid  SignalType = "invalid"
)

// SafetyCheck records the outcome of one safety predicate evaluated by the
// qualifier (spec §4.6 step 3).
type SafetyCheck struct {
	Name   string
	Passed bool
	Detail string
}

// Signal is an enriched Spread carrying the executable-price analysis
// computed by the OrderBookAnalyzer and the safety evaluation performed by
// the SignalQualifier.
type Signal struct {
	ID             string // short stable ID: strategy_prefix + first 8 chars of UUID
	Symbol         string
	PairID         string
	LowVenue       Venue
	HighVenue      Venue
	NominalPct     float64 // best-vs-best spread
	RealPct        float64 // slippage-weighted spread
	LossPct        float64 // NominalPct - RealPct
	BuyPrice       float64 // executable buy price at max slippage
	SellPrice      float64 // executable sell price at max slippage
	BuyExitUSD     float64 // USD depth available to unwind the buy leg
	SellExitUSD    float64 // USD depth available to unwind the sell leg
	MaxEntryUSD    float64
	SuggestedUSD   float64
	FullyFillable  bool
	FallbackSignal bool
	SignalType     SignalType
	StrategyType   string // e.g. category taxonomy code: SF, FF, SS, DS, DF, PS, PF, PP
	SafetyChecks   []SafetyCheck
	CreatedAt      time.Time
	SchemaVersion  int
}

// Passed reports whether every recorded safety check passed.
func (s Signal) Passed() bool {
	for _, c := range s.SafetyChecks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// FailedChecks returns the names of every failing safety check.
func (s Signal) FailedChecks() []string {
	var out []string
	for _, c := range s.SafetyChecks {
		if !c.Passed {
			out = append(out, c.Name)
		}
	}
	return out
}
