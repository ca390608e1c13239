package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestBaselineStoreUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	bucket := time.Now().Truncate(time.Hour)
	mock.ExpectExec(`INSERT INTO spread_baseline`).
		WithArgs("pair-1", "ETHUSDT", bucket, int64(12), 2.1, 1.0, 4.0, 0.5, 2.0, 3.5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewBaselineStore(db)
	rec := &BaselineRecord{
		PairID: "pair-1", Symbol: "ETHUSDT", HourBucket: bucket, SamplesN: 12,
		AvgSpread: 2.1, MinSpread: 1.0, MaxSpread: 4.0, StddevSpread: 0.5,
		P50Spread: 2.0, P95Spread: 3.5,
	}
	if err := store.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPairStatsStoreUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`INSERT INTO pair_statistics`).
		WithArgs("pair-1", "ETHUSDT", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(10), int64(6), int64(3), int64(1),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 60.0,
			sqlmock.AnyArg(), sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPairStatsStore(db)
	rec := &PairStatisticsRecord{
		PairID: "pair-1", Symbol: "ETHUSDT", SignalsTotal: 10, SignalsConverged: 6,
		SignalsDiverged: 3, SignalsExpired: 1, SuccessRatePct: 60.0, UpdatedAt: now,
	}
	if err := store.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
}
