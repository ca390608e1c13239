package domain

import "testing"

func TestMergeBaseline_CountMinMax(t *testing.T) {
	a := BaselineBucket{PairID: "p", Symbol: "ETH", HourBucket: 10, Samples: 5, Avg: 2.0, Min: 1.0, Max: 3.0, StdDev: 0.5}
	b := BaselineBucket{PairID: "p", Symbol: "ETH", HourBucket: 10, Samples: 3, Avg: 4.0, Min: 2.0, Max: 5.0, StdDev: 0.8}

	merged := MergeBaseline(a, b)

	if merged.Samples != 8 {
		t.Errorf("Samples = %d, want 8", merged.Samples)
	}
	if merged.Min != 1.0 {
		t.Errorf("Min = %v, want 1.0", merged.Min)
	}
	if merged.Max != 5.0 {
		t.Errorf("Max = %v, want 5.0", merged.Max)
	}

	wantAvg := (2.0*5 + 4.0*3) / 8.0
	if diff := merged.Avg - wantAvg; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Avg = %v, want %v", merged.Avg, wantAvg)
	}
}

func TestMergeBaseline_EquivalentToSingleFlushOfUnion(t *testing.T) {
	// merging bucket-of-5 with bucket-of-0 should equal the bucket-of-5 itself.
	a := BaselineBucket{PairID: "p", Symbol: "ETH", HourBucket: 1, Samples: 5, Avg: 2.0, Min: 1.0, Max: 3.0}
	empty := BaselineBucket{PairID: "p", Symbol: "ETH", HourBucket: 1}

	merged := MergeBaseline(a, empty)
	if merged != a {
		t.Errorf("merging with an empty bucket changed the result: got %+v, want %+v", merged, a)
	}
}

func TestBaselineWindow_AnomalyRequiresSufficientData(t *testing.T) {
	w := BaselineWindow{P95: 2.0, Sufficient: false}
	if w.IsAnomaly(10.0) {
		t.Error("should not flag anomaly without sufficient data")
	}

	w.Sufficient = true
	if !w.IsAnomaly(3.5) {
		t.Error("current=3.5 > p95*1.5=3.0 should be anomalous")
	}
	if w.IsAnomaly(2.5) {
		t.Error("current=2.5 <= p95*1.5=3.0 should not be anomalous")
	}
}
