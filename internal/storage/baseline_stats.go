package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// BaselineRecord mirrors the `spread_baseline` table (spec §6): hourly
// spread statistics per (pair_id, symbol, hour_bucket), unique on that
// triple, upserted by the hourly flush (C9).
type BaselineRecord struct {
	PairID       string
	Symbol       string
	HourBucket   time.Time
	SamplesN     int64
	AvgSpread    float64
	MinSpread    float64
	MaxSpread    float64
	StddevSpread float64
	P50Spread    float64
	P95Spread    float64
}

// BaselineStore persists BaselineRecord rows.
type BaselineStore struct {
	db *sql.DB
}

// NewBaselineStore returns a BaselineStore bound to db.
func NewBaselineStore(db *sql.DB) *BaselineStore {
	return &BaselineStore{db: db}
}

// Upsert writes a flushed hourly bucket into spread_baseline, overwriting
// every stored column on conflict — the caller
// (internal/baseline) computes the merged values via domain.MergeBaseline
// before calling this, so this statement is a straight replace, not an
// additional merge.
func (s *BaselineStore) Upsert(ctx context.Context, rec *BaselineRecord) error {
	query := `
		INSERT INTO spread_baseline (
			pair_id, symbol, hour_bucket, samples_count, avg_spread_pct,
			min_spread_pct, max_spread_pct, stddev_spread_pct, p50_spread_pct, p95_spread_pct
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (pair_id, symbol, hour_bucket) DO UPDATE SET
			samples_count = EXCLUDED.samples_count,
			avg_spread_pct = EXCLUDED.avg_spread_pct,
			min_spread_pct = EXCLUDED.min_spread_pct,
			max_spread_pct = EXCLUDED.max_spread_pct,
			stddev_spread_pct = EXCLUDED.stddev_spread_pct,
			p50_spread_pct = EXCLUDED.p50_spread_pct,
			p95_spread_pct = EXCLUDED.p95_spread_pct`

	_, err := s.db.ExecContext(ctx, query,
		rec.PairID, rec.Symbol, rec.HourBucket, rec.SamplesN, rec.AvgSpread,
		rec.MinSpread, rec.MaxSpread, rec.StddevSpread, rec.P50Spread, rec.P95Spread,
	)
	return err
}

// GetBucket fetches a single hour's bucket, used by the hourly flush (C9)
// to merge a freshly-flushed bucket with whatever is already durable
// before upserting, per spec §4.9's running-totals conflict resolution.
func (s *BaselineStore) GetBucket(ctx context.Context, pairID, symbol string, hourBucket time.Time) (*BaselineRecord, error) {
	query := `
		SELECT pair_id, symbol, hour_bucket, samples_count, avg_spread_pct,
			min_spread_pct, max_spread_pct, stddev_spread_pct, p50_spread_pct, p95_spread_pct
		FROM spread_baseline
		WHERE pair_id = $1 AND symbol = $2 AND hour_bucket = $3`

	rec := &BaselineRecord{}
	err := s.db.QueryRowContext(ctx, query, pairID, symbol, hourBucket).Scan(
		&rec.PairID, &rec.Symbol, &rec.HourBucket, &rec.SamplesN, &rec.AvgSpread,
		&rec.MinSpread, &rec.MaxSpread, &rec.StddevSpread, &rec.P50Spread, &rec.P95Spread,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBaselineNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Window returns the hourly buckets for a pair+symbol whose hour_bucket is
// at or after since, oldest first, feeding domain.BaselineWindow construction for the baseline(pair,symbol,days)
// query and anomaly classification.
func (s *BaselineStore) Window(ctx context.Context, pairID, symbol string, since time.Time) ([]*BaselineRecord, error) {
	query := `
		SELECT pair_id, symbol, hour_bucket, samples_count, avg_spread_pct,
			min_spread_pct, max_spread_pct, stddev_spread_pct, p50_spread_pct, p95_spread_pct
		FROM spread_baseline
		WHERE pair_id = $1 AND symbol = $2 AND hour_bucket >= $3
		ORDER BY hour_bucket ASC`

	rows, err := s.db.QueryContext(ctx, query, pairID, symbol, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BaselineRecord
	for rows.Next() {
		rec := &BaselineRecord{}
		if err := rows.Scan(
			&rec.PairID, &rec.Symbol, &rec.HourBucket, &rec.SamplesN, &rec.AvgSpread,
			&rec.MinSpread, &rec.MaxSpread, &rec.StddevSpread, &rec.P50Spread, &rec.P95Spread,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes hourly buckets past the retention window (168h
// default, domain.BaselineRetentionHours), returning the number removed.
func (s *BaselineStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM spread_baseline WHERE hour_bucket < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PairStatisticsRecord mirrors the `pair_statistics` table (spec §6):
// lifetime aggregates per (pair_id, symbol), unique on that pair,
// recomputed by C10 whenever a tracking closes.
type PairStatisticsRecord struct {
	PairID             string
	Symbol             string
	MaxSpreadPct       sql.NullFloat64
	MinSpreadPct       sql.NullFloat64
	SignalsTotal       int64
	SignalsConverged   int64
	SignalsDiverged    int64
	SignalsExpired     int64
	AvgHoldMinutes     sql.NullFloat64
	MedianHoldMinutes  sql.NullFloat64
	FastestHoldMinutes sql.NullFloat64
	SlowestHoldMinutes sql.NullFloat64
	SuccessRatePct     float64
	FirstSignalAt      sql.NullTime
	LastSignalAt       sql.NullTime
	UpdatedAt          time.Time
}

// PairStatsStore persists PairStatisticsRecord rows.
type PairStatsStore struct {
	db *sql.DB
}

// NewPairStatsStore returns a PairStatsStore bound to db.
func NewPairStatsStore(db *sql.DB) *PairStatsStore {
	return &PairStatsStore{db: db}
}

// Upsert replaces the aggregate row for a pair+symbol, per C10's
// recompute-on-close contract (spec §4.10).
func (s *PairStatsStore) Upsert(ctx context.Context, rec *PairStatisticsRecord) error {
	query := `
		INSERT INTO pair_statistics (
			pair_id, symbol, max_spread_pct, min_spread_pct, signals_total, signals_converged,
			signals_diverged, signals_expired, avg_hold_minutes, median_hold_minutes,
			fastest_hold_minutes, slowest_hold_minutes, success_rate_pct,
			first_signal_at, last_signal_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (pair_id, symbol) DO UPDATE SET
			max_spread_pct = EXCLUDED.max_spread_pct,
			min_spread_pct = EXCLUDED.min_spread_pct,
			signals_total = EXCLUDED.signals_total,
			signals_converged = EXCLUDED.signals_converged,
			signals_diverged = EXCLUDED.signals_diverged,
			signals_expired = EXCLUDED.signals_expired,
			avg_hold_minutes = EXCLUDED.avg_hold_minutes,
			median_hold_minutes = EXCLUDED.median_hold_minutes,
			fastest_hold_minutes = EXCLUDED.fastest_hold_minutes,
			slowest_hold_minutes = EXCLUDED.slowest_hold_minutes,
			success_rate_pct = EXCLUDED.success_rate_pct,
			first_signal_at = EXCLUDED.first_signal_at,
			last_signal_at = EXCLUDED.last_signal_at,
			updated_at = EXCLUDED.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		rec.PairID, rec.Symbol, rec.MaxSpreadPct, rec.MinSpreadPct, rec.SignalsTotal, rec.SignalsConverged,
		rec.SignalsDiverged, rec.SignalsExpired, rec.AvgHoldMinutes, rec.MedianHoldMinutes,
		rec.FastestHoldMinutes, rec.SlowestHoldMinutes, rec.SuccessRatePct,
		rec.FirstSignalAt, rec.LastSignalAt, rec.UpdatedAt,
	)
	return err
}

// GetByPair fetches the aggregate row for a pair+symbol.
func (s *PairStatsStore) GetByPair(ctx context.Context, pairID, symbol string) (*PairStatisticsRecord, error) {
	query := `
		SELECT pair_id, symbol, max_spread_pct, min_spread_pct, signals_total, signals_converged,
			signals_diverged, signals_expired, avg_hold_minutes, median_hold_minutes,
			fastest_hold_minutes, slowest_hold_minutes, success_rate_pct,
			first_signal_at, last_signal_at, updated_at
		FROM pair_statistics
		WHERE pair_id = $1 AND symbol = $2`

	rec := &PairStatisticsRecord{}
	err := s.db.QueryRowContext(ctx, query, pairID, symbol).Scan(
		&rec.PairID, &rec.Symbol, &rec.MaxSpreadPct, &rec.MinSpreadPct, &rec.SignalsTotal, &rec.SignalsConverged,
		&rec.SignalsDiverged, &rec.SignalsExpired, &rec.AvgHoldMinutes, &rec.MedianHoldMinutes,
		&rec.FastestHoldMinutes, &rec.SlowestHoldMinutes, &rec.SuccessRatePct,
		&rec.FirstSignalAt, &rec.LastSignalAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPairStatsNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RecentOutcome mirrors domain.RecentOutcome, joining a closed tracking with
// its C8.A analysis for the recent_outcomes(pair,symbol,limit) query.
type RecentOutcome struct {
	SignalID          string
	ClosedAt          time.Time
	CloseReason       string
	EntrySpreadPct    float64
	LastSpreadPct     float64
	ConvergenceReason sql.NullString
	DurationMinutes   sql.NullFloat64
}

// RecentOutcomes joins spread_convergence with convergence_analysis for the
// most recent closed trackings on a pair+symbol, grounded on
// internal/service/stats_service.go's join-and-summarize pattern.
func (s *PairStatsStore) RecentOutcomes(ctx context.Context, pairID, symbol string, limit int) ([]*RecentOutcome, error) {
	query := `
		SELECT t.signal_id, t.closed_at, t.close_reason, t.entry_spread_pct, t.last_spread_pct,
			a.convergence_reason, a.duration_minutes
		FROM spread_convergence t
		LEFT JOIN convergence_analysis a ON a.signal_id = t.signal_id
		WHERE t.pair_id = $1 AND t.symbol = $2 AND t.closed_at IS NOT NULL
		ORDER BY t.closed_at DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, pairID, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RecentOutcome
	for rows.Next() {
		rec := &RecentOutcome{}
		if err := rows.Scan(
			&rec.SignalID, &rec.ClosedAt, &rec.CloseReason, &rec.EntrySpreadPct, &rec.LastSpreadPct,
			&rec.ConvergenceReason, &rec.DurationMinutes,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
