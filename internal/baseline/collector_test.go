package baseline

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"

	"arbitrage/internal/domain"
	"arbitrage/internal/kv"
	"arbitrage/internal/storage"
)

func newTestCollector(t *testing.T) (*Collector, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	c := New(kv.NewMemoryStore(), storage.NewBaselineStore(db), Config{}, zap.NewNop())
	return c, mock, func() { db.Close() }
}

func TestRecord_AppendsToHotBucket(t *testing.T) {
	c, _, cleanup := newTestCollector(t)
	defer cleanup()

	at := time.Now()
	if err := c.Record(context.Background(), "p1", "ETHUSDT", 1.5, at); err != nil {
		t.Fatalf("Record: %v", err)
	}

	members, err := c.kvStore.ZRangeByScore(context.Background(), hotKey("p1", "ETHUSDT", at.Unix()/3600), -1, 1e19)
	if err != nil {
		t.Fatalf("ZRangeByScore: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 hot sample, got %d", len(members))
	}
}

func TestAggregate_ComputesDistribution(t *testing.T) {
	members := []string{"1:1.000000", "2:2.000000", "3:3.000000", "4:4.000000", "5:5.000000"}
	b := aggregate("p1", "ETHUSDT", 100, members)

	if b.Samples != 5 {
		t.Errorf("Samples = %d, want 5", b.Samples)
	}
	if b.Avg != 3 {
		t.Errorf("Avg = %v, want 3", b.Avg)
	}
	if b.Min != 1 || b.Max != 5 {
		t.Errorf("Min/Max = %v/%v, want 1/5", b.Min, b.Max)
	}
}

func TestAggregate_SkipsMalformedMembers(t *testing.T) {
	b := aggregate("p1", "ETHUSDT", 100, []string{"garbage", "1:2.0", "2:notanumber"})
	if b.Samples != 1 {
		t.Errorf("Samples = %d, want 1 (only one well-formed member)", b.Samples)
	}
}

func TestFlushBucket_MergesWithExistingColdRow(t *testing.T) {
	c, mock, cleanup := newTestCollector(t)
	defer cleanup()

	now := time.Now()
	hour := now.Unix() / 3600
	ctx := context.Background()

	if err := c.Record(ctx, "p1", "ETHUSDT", 1.0, now); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := c.Record(ctx, "p1", "ETHUSDT", 3.0, now); err != nil {
		t.Fatalf("Record: %v", err)
	}

	hourTime := time.Unix(hour*3600, 0).UTC()
	rows := sqlmock.NewRows([]string{
		"pair_id", "symbol", "hour_bucket", "samples_count", "avg_spread_pct",
		"min_spread_pct", "max_spread_pct", "stddev_spread_pct", "p50_spread_pct", "p95_spread_pct",
	}).AddRow("p1", "ETHUSDT", hourTime, int64(2), 2.0, 1.0, 3.0, 1.0, 2.0, 3.0)
	mock.ExpectQuery(`SELECT (.+) FROM spread_baseline`).WithArgs("p1", "ETHUSDT", hourTime).WillReturnRows(rows)
	mock.ExpectExec(`INSERT INTO spread_baseline`).WillReturnResult(sqlmock.NewResult(0, 1))

	c.flushBucket(ctx, "p1", "ETHUSDT", hour)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestFlushBucket_EmptyBucketIsNoop(t *testing.T) {
	c, mock, cleanup := newTestCollector(t)
	defer cleanup()

	c.flushBucket(context.Background(), "p1", "ETHUSDT", time.Now().Unix()/3600)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected no DB calls for an empty bucket, got: %v", err)
	}
}

func TestWindow_InsufficientDataBelow24Buckets(t *testing.T) {
	c, mock, cleanup := newTestCollector(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{
		"pair_id", "symbol", "hour_bucket", "samples_count", "avg_spread_pct",
		"min_spread_pct", "max_spread_pct", "stddev_spread_pct", "p50_spread_pct", "p95_spread_pct",
	}).AddRow("p1", "ETHUSDT", time.Now(), int64(10), 2.0, 1.0, 3.0, 0.5, 2.0, 2.8)
	mock.ExpectQuery(`SELECT (.+) FROM spread_baseline`).WillReturnRows(rows)

	w, err := c.Window(context.Background(), "p1", "ETHUSDT", 7)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if w.Sufficient {
		t.Error("expected Sufficient=false with only 1 hourly bucket")
	}
	if w.IsAnomaly(100) {
		t.Error("IsAnomaly must be false until the window has >=24h of data, regardless of the current spread")
	}
}

func TestMergeBaseline_UsedByFlushSumsSamples(t *testing.T) {
	a := domain.BaselineBucket{PairID: "p", Symbol: "ETH", Samples: 2, Avg: 1, Min: 1, Max: 1}
	b := domain.BaselineBucket{PairID: "p", Symbol: "ETH", Samples: 3, Avg: 4, Min: 4, Max: 4}
	merged := domain.MergeBaseline(a, b)
	if merged.Samples != 5 {
		t.Errorf("Samples = %d, want 5", merged.Samples)
	}
}
