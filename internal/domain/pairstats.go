package domain

import "time"

// PairStatistics is the per-(pair,symbol) outcome aggregate (spec §3, §4.10).
type PairStatistics struct {
	PairID               string
	Symbol               string
	MaxSpreadPct         float64
	MinSpreadPct         float64
	TotalSignals         int
	ConvergedCount       int
	DivergedCount        int
	ExpiredCount         int
	AvgConvergenceMin    float64
	MedianConvergenceMin float64
	FastestConvergenceMin float64
	SlowestConvergenceMin float64
	SuccessRatePct       float64
	FirstSignalAt        time.Time
	LastSignalAt         time.Time
	LastUpdated          time.Time
}

// RecentOutcome is one row returned by recent_outcomes(pair, symbol, limit),
// joining a closed Tracking with its ConvergenceAnalysis (spec §4.10).
type RecentOutcome struct {
	SignalID    string
	ClosedAt    time.Time
	CloseReason CloseReason
	InitialPct  float64
	FinalPct    float64
	DurationMin float64
	Reason      ConvergenceReason // zero value if no analysis exists (diverged/expired)
}

// ComputeSuccessRate derives SuccessRatePct from the three terminal buckets:
// a "successful" outcome is convergence (the pipeline's working definition
// of a spread that actually closed as predicted).
func ComputeSuccessRate(converged, diverged, expired int) float64 {
	total := converged + diverged + expired
	if total == 0 {
		return 0
	}
	return float64(converged) / float64(total) * 100
}
