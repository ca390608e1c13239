package stats

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"arbitrage/internal/domain"
	"arbitrage/internal/storage"
)

type fakeBroadcaster struct {
	calls int
	last  domain.PairStatistics
}

func (f *fakeBroadcaster) BroadcastPairStats(s *domain.PairStatistics) {
	f.calls++
	f.last = *s
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	svc := New(storage.NewTrackingStore(db), storage.NewPairStatsStore(db), nil, nil)
	return svc, mock, func() { db.Close() }
}

func TestRecomputeOnClose_AggregatesAndUpserts(t *testing.T) {
	svc, mock, cleanup := newTestService(t)
	defer cleanup()

	aggRows := sqlmock.NewRows([]string{
		"total", "converged", "diverged", "expired", "max_spread", "min_spread",
		"avg_hold", "median_hold", "fastest_hold", "slowest_hold", "first_signal_at", "last_signal_at",
	}).AddRow(int64(10), int64(6), int64(3), int64(1), 4.2, 0.5, 12.5, 10.0, 2.0, 40.0, time.Now().Add(-time.Hour), time.Now())

	mock.ExpectQuery(`SELECT(.|\n)*FROM spread_convergence`).
		WithArgs("pair-1", "ETHUSDT").
		WillReturnRows(aggRows)

	mock.ExpectExec(`INSERT INTO pair_statistics`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	fb := &fakeBroadcaster{}
	svc.SetBroadcaster(fb)

	if err := svc.RecomputeOnClose(context.Background(), "pair-1", "ETHUSDT"); err != nil {
		t.Fatalf("RecomputeOnClose: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if fb.calls != 1 {
		t.Fatalf("expected 1 broadcast, got %d", fb.calls)
	}
	if fb.last.SuccessRatePct != 60.0 {
		t.Errorf("broadcast success_rate_pct = %v, want 60.0", fb.last.SuccessRatePct)
	}
}

func TestRecomputeOnClose_PropagatesAggregateError(t *testing.T) {
	svc, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT(.|\n)*FROM spread_convergence`).
		WithArgs("pair-1", "ETHUSDT").
		WillReturnError(sql.ErrConnDone)

	if err := svc.RecomputeOnClose(context.Background(), "pair-1", "ETHUSDT"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestGet_ReturnsNotFoundAsFalseNotError(t *testing.T) {
	svc, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT(.|\n)*FROM pair_statistics`).
		WithArgs("pair-1", "ETHUSDT").
		WillReturnError(sql.ErrNoRows)

	_, ok, err := svc.Get(context.Background(), "pair-1", "ETHUSDT")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing row")
	}
}

func TestRecentOutcomes_DefaultsLimitWhenNonPositive(t *testing.T) {
	svc, mock, cleanup := newTestService(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{
		"signal_id", "closed_at", "close_reason", "entry_spread_pct", "last_spread_pct",
		"convergence_reason", "duration_minutes",
	}).AddRow("sig-1", time.Now(), "converged", 1.5, 0.2, "arb_activity", 12.0)

	mock.ExpectQuery(`SELECT(.|\n)*FROM spread_convergence`).
		WithArgs("pair-1", "ETHUSDT", 20).
		WillReturnRows(rows)

	out, err := svc.RecentOutcomes(context.Background(), "pair-1", "ETHUSDT", 0)
	if err != nil {
		t.Fatalf("RecentOutcomes: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(out))
	}
	if out[0].FinalPct != 0.2 {
		t.Errorf("FinalPct = %v, want 0.2", out[0].FinalPct)
	}
}
