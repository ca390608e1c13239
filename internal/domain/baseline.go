package domain

import "math"

// BaselineRetentionHours is how long a BaselineBucket stays before it is
// removable (spec §3, 168h = 7 days).
const BaselineRetentionHours = 168

// SamplesPerHourLimit bounds the hot-tier sample set per (pair,symbol,hour)
// (spec §4.9).
const SamplesPerHourLimit = 3600

// BaselineBucket is the per-(pair,symbol,hour) spread distribution rollup.
type BaselineBucket struct {
	PairID     string
	Symbol     string
	HourBucket int64 // unix hour index (unix seconds / 3600)
	Samples    int
	Avg        float64
	Min        float64
	Max        float64
	StdDev     float64
	P50        float64
	P95        float64
}

// MergeBaseline combines two non-overlapping hourly rollups for the same
// (pair,symbol,hour), preserving running totals per spec §4.9/§8:
// count' = count + n; avg' = weighted mean; min'/max' = min/max of both.
// Percentiles and stddev are recomputed from the merged sample set when the
// caller has the underlying samples; when only aggregates are available
// (the common case for a cold-tier merge), this uses a variance-preserving
// approximation (combined stddev via the parallel-variance formula) and
// keeps the wider bucket's percentiles as the best available estimate.
func MergeBaseline(a, b BaselineBucket) BaselineBucket {
	if a.Samples == 0 {
		return b
	}
	if b.Samples == 0 {
		return a
	}

	n1, n2 := float64(a.Samples), float64(b.Samples)
	n := n1 + n2

	avg := (a.Avg*n1 + b.Avg*n2) / n

	// Parallel-variance (Chan et al.) combination of two sample variances.
	delta := b.Avg - a.Avg
	m1 := a.StdDev * a.StdDev * (n1 - 1)
	m2 := b.StdDev * b.StdDev * (n2 - 1)
	if n1 <= 1 {
		m1 = 0
	}
	if n2 <= 1 {
		m2 = 0
	}
	mCombined := m1 + m2 + delta*delta*n1*n2/n
	var stddev float64
	if n > 1 {
		stddev = math.Sqrt(mCombined / (n - 1))
	}

	p50, p95 := a.P50, a.P95
	if n2 > n1 {
		p50, p95 = b.P50, b.P95
	}

	return BaselineBucket{
		PairID:     a.PairID,
		Symbol:     a.Symbol,
		HourBucket: a.HourBucket,
		Samples:    a.Samples + b.Samples,
		Avg:        avg,
		Min:        math.Min(a.Min, b.Min),
		Max:        math.Max(a.Max, b.Max),
		StdDev:     stddev,
		P50:        p50,
		P95:        p95,
	}
}

// BaselineWindow is the reported normal-range summary returned by
// `baseline(pair, symbol, days)` (spec §4.9).
type BaselineWindow struct {
	PairID      string
	Symbol      string
	Days        int
	P5          float64
	P95         float64
	Median      float64
	SampleCount int
	Sufficient  bool // true once >=24h of hourly buckets exist
}

// AnomalyThresholdMultiple is applied to a window's P95 to flag the current
// spread as anomalous (spec §4.9).
const AnomalyThresholdMultiple = 1.5

// IsAnomaly reports whether currentPct exceeds the window's P95 * 1.5,
// requiring the window to have enough data first.
func (w BaselineWindow) IsAnomaly(currentPct float64) bool {
	return w.Sufficient && currentPct > w.P95*AnomalyThresholdMultiple
}
