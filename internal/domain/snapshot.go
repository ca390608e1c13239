package domain

import "time"

// MaxSnapshotsPerSignal bounds the snapshot sequence length (spec §3, "N≈500").
const MaxSnapshotsPerSignal = 500

// Snapshot is one point-in-time observation of both legs of a tracked
// signal, captured by the ConvergenceTracker.
type Snapshot struct {
	SignalID     string
	Seq          int // strictly increasing within a signal
	SnapshotAt   time.Time
	BuyBid       float64
	BuyAsk       float64
	SellBid      float64
	SellAsk      float64
	SpreadPct    float64
	BuyDepthUSD  float64
	SellDepthUSD float64
}

// ConvergenceReason classifies why a tracking converged (spec §4.8 C8.A).
type ConvergenceReason string

const (
	ReasonArbActivity ConvergenceReason = "arb_activity"
	ReasonUnknown     ConvergenceReason = "unknown"
	ReasonBuyUp       ConvergenceReason = "buy_up"
	ReasonSellDown    ConvergenceReason = "sell_down"
	ReasonBoth        ConvergenceReason = "both"
)

// ConvergenceAnalysis is the stored result of the post-close analyzer.
type ConvergenceAnalysis struct {
	SignalID         string
	InitialBuyPrice  float64
	InitialSellPrice float64
	FinalBuyPrice    float64
	FinalSellPrice   float64
	BuyChangePct     float64
	SellChangePct    float64
	BuyDepthChgPct   float64
	SellDepthChgPct  float64
	Reason           ConvergenceReason
	DurationMinutes  float64
	SnapshotsCount   int
	AnalyzedAt       time.Time
}
