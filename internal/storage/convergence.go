package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// TrackingRecord mirrors the `spread_convergence` table (spec §6): one row
// per Tracking, signal_id UNIQUE.
type TrackingRecord struct {
	SignalID       string
	Symbol         string
	PairID         string
	Strategy       string
	EntrySpreadPct float64
	LastSpreadPct  float64
	MinSpreadPct   float64
	MaxSpreadPct   float64
	ObservationsN  int64
	Status         string // tracking | converged | diverged | expired
	StartedAt      time.Time
	LastObservedAt time.Time
	ClosedAt       sql.NullTime
	CloseReason    sql.NullString
}

// TrackingStore persists TrackingRecord rows.
type TrackingStore struct {
	db *sql.DB
}

// NewTrackingStore returns a TrackingStore bound to db.
func NewTrackingStore(db *sql.DB) *TrackingStore {
	return &TrackingStore{db: db}
}

// Create inserts a new tracking row for a freshly emitted signal.
func (s *TrackingStore) Create(ctx context.Context, rec *TrackingRecord) error {
	query := `
		INSERT INTO spread_convergence (
			signal_id, symbol, pair_id, strategy, entry_spread_pct, last_spread_pct,
			min_spread_pct, max_spread_pct, observations_n, status, started_at, last_observed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.db.ExecContext(ctx, query,
		rec.SignalID, rec.Symbol, rec.PairID, rec.Strategy, rec.EntrySpreadPct, rec.LastSpreadPct,
		rec.MinSpreadPct, rec.MaxSpreadPct, rec.ObservationsN, rec.Status,
		rec.StartedAt, rec.LastObservedAt,
	)
	return err
}

// GetBySignalID fetches the tracking row for a signal.
func (s *TrackingStore) GetBySignalID(ctx context.Context, signalID string) (*TrackingRecord, error) {
	query := `
		SELECT signal_id, symbol, pair_id, strategy, entry_spread_pct, last_spread_pct,
			min_spread_pct, max_spread_pct, observations_n, status, started_at,
			last_observed_at, closed_at, close_reason
		FROM spread_convergence
		WHERE signal_id = $1`

	rec := &TrackingRecord{}
	err := s.db.QueryRowContext(ctx, query, signalID).Scan(
		&rec.SignalID, &rec.Symbol, &rec.PairID, &rec.Strategy, &rec.EntrySpreadPct, &rec.LastSpreadPct,
		&rec.MinSpreadPct, &rec.MaxSpreadPct, &rec.ObservationsN, &rec.Status, &rec.StartedAt,
		&rec.LastObservedAt, &rec.ClosedAt, &rec.CloseReason,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTrackingNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Observe updates the running min/max/last spread and observation count
// after a C8 check, mirroring domain.Tracking.Observe's accounting.
func (s *TrackingStore) Observe(ctx context.Context, rec *TrackingRecord) error {
	query := `
		UPDATE spread_convergence
		SET last_spread_pct = $2, min_spread_pct = $3, max_spread_pct = $4,
			observations_n = $5, last_observed_at = $6
		WHERE signal_id = $1`

	res, err := s.db.ExecContext(ctx, query,
		rec.SignalID, rec.LastSpreadPct, rec.MinSpreadPct, rec.MaxSpreadPct,
		rec.ObservationsN, rec.LastObservedAt,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, ErrTrackingNotFound)
}

// Close sets status and close_reason+closed_at for a tracking, idempotent
// at the SQL layer via the closed_at IS NULL predicate — only the first close wins,
// matching domain.Tracking.Close's in-memory idempotency.
func (s *TrackingStore) Close(ctx context.Context, signalID, status, reason string, closedAt time.Time) (bool, error) {
	query := `
		UPDATE spread_convergence
		SET status = $2, close_reason = $3, closed_at = $4
		WHERE signal_id = $1 AND closed_at IS NULL`

	res, err := s.db.ExecContext(ctx, query, signalID, status, reason, closedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListOpen returns all trackings still open (no closed_at), used by the
// coordinator loop (C8) to build its per-tick work list.
func (s *TrackingStore) ListOpen(ctx context.Context) ([]*TrackingRecord, error) {
	query := `
		SELECT signal_id, symbol, pair_id, strategy, entry_spread_pct, last_spread_pct,
			min_spread_pct, max_spread_pct, observations_n, status, started_at,
			last_observed_at, closed_at, close_reason
		FROM spread_convergence
		WHERE closed_at IS NULL`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TrackingRecord
	for rows.Next() {
		rec := &TrackingRecord{}
		if err := rows.Scan(
			&rec.SignalID, &rec.Symbol, &rec.PairID, &rec.Strategy, &rec.EntrySpreadPct, &rec.LastSpreadPct,
			&rec.MinSpreadPct, &rec.MaxSpreadPct, &rec.ObservationsN, &rec.Status, &rec.StartedAt,
			&rec.LastObservedAt, &rec.ClosedAt, &rec.CloseReason,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PairAggregate is the single-statement recompute result C10 needs to
// build a pair_statistics row (spec §4.10: "a single set-based statement
// that counts totals, convergence rates, and percentile timings").
type PairAggregate struct {
	Total          int64
	Converged      int64
	Diverged       int64
	Expired        int64
	MaxSpreadPct   sql.NullFloat64
	MinSpreadPct   sql.NullFloat64
	AvgHoldMinutes sql.NullFloat64
	MedianHoldMin  sql.NullFloat64
	FastestHoldMin sql.NullFloat64
	SlowestHoldMin sql.NullFloat64
	FirstSignalAt  sql.NullTime
	LastSignalAt   sql.NullTime
}

// Aggregate computes closed-tracking totals for a pair+symbol in one
// statement, grounded on internal/repository/stats_repository.go's
// aggregate-from-trades shape (a single GROUP BY over the raw rows rather
// than maintaining separate counters per event).
func (s *TrackingStore) Aggregate(ctx context.Context, pairID, symbol string) (*PairAggregate, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE closed_at IS NOT NULL),
			COUNT(*) FILTER (WHERE close_reason = 'converged'),
			COUNT(*) FILTER (WHERE close_reason = 'diverged'),
			COUNT(*) FILTER (WHERE close_reason = 'expired'),
			MAX(max_spread_pct),
			MIN(min_spread_pct),
			AVG(EXTRACT(EPOCH FROM (closed_at - started_at)) / 60.0) FILTER (WHERE closed_at IS NOT NULL),
			PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY EXTRACT(EPOCH FROM (closed_at - started_at)) / 60.0)
				FILTER (WHERE closed_at IS NOT NULL),
			MIN(EXTRACT(EPOCH FROM (closed_at - started_at)) / 60.0) FILTER (WHERE closed_at IS NOT NULL),
			MAX(EXTRACT(EPOCH FROM (closed_at - started_at)) / 60.0) FILTER (WHERE closed_at IS NOT NULL),
			MIN(started_at),
			MAX(started_at)
		FROM spread_convergence
		WHERE pair_id = $1 AND symbol = $2`

	agg := &PairAggregate{}
	err := s.db.QueryRowContext(ctx, query, pairID, symbol).Scan(
		&agg.Total, &agg.Converged, &agg.Diverged, &agg.Expired, &agg.MaxSpreadPct, &agg.MinSpreadPct,
		&agg.AvgHoldMinutes, &agg.MedianHoldMin, &agg.FastestHoldMin, &agg.SlowestHoldMin,
		&agg.FirstSignalAt, &agg.LastSignalAt,
	)
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// SnapshotRecord mirrors the `convergence_snapshots` table: bounded history
// of spread observations for one signal, unique on (signal_id, snapshot_seq).
type SnapshotRecord struct {
	ID          int64
	SignalID    string
	SnapshotSeq int
	Ts          time.Time
	SpreadPct   float64
	LowPrice    float64
	HighPrice   float64
	DepthUSD    sql.NullFloat64
}

// SnapshotStore persists SnapshotRecord rows.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore returns a SnapshotStore bound to db.
func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Create appends a bounded snapshot row. Callers enforce the
// domain.MaxSnapshotsPerSignal cap by tracking snapshot_seq themselves;
// the unique (signal_id, snapshot_seq) constraint rejects duplicates.
func (s *SnapshotStore) Create(ctx context.Context, rec *SnapshotRecord) error {
	query := `
		INSERT INTO convergence_snapshots (signal_id, snapshot_seq, ts, spread_pct, low_price, high_price, depth_usd)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (signal_id, snapshot_seq) DO NOTHING
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		rec.SignalID, rec.SnapshotSeq, rec.Ts, rec.SpreadPct, rec.LowPrice, rec.HighPrice, rec.DepthUSD,
	).Scan(&rec.ID)
	if errors.Is(err, sql.ErrNoRows) {
		// ON CONFLICT DO NOTHING suppressed the insert; not an error.
		return nil
	}
	return err
}

// ListBySignal returns all snapshots for a signal in sequence order.
func (s *SnapshotStore) ListBySignal(ctx context.Context, signalID string) ([]*SnapshotRecord, error) {
	query := `
		SELECT id, signal_id, snapshot_seq, ts, spread_pct, low_price, high_price, depth_usd
		FROM convergence_snapshots
		WHERE signal_id = $1
		ORDER BY snapshot_seq ASC`

	rows, err := s.db.QueryContext(ctx, query, signalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SnapshotRecord
	for rows.Next() {
		rec := &SnapshotRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.SignalID, &rec.SnapshotSeq, &rec.Ts,
			&rec.SpreadPct, &rec.LowPrice, &rec.HighPrice, &rec.DepthUSD,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of snapshots recorded for a signal so far, used
// to enforce the MaxSnapshotsPerSignal cap before inserting the next one.
func (s *SnapshotStore) Count(ctx context.Context, signalID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM convergence_snapshots WHERE signal_id = $1`, signalID,
	).Scan(&n)
	return n, err
}

// AnalysisRecord mirrors the `convergence_analysis` table (spec §4.8's C8.A
// output): one row per closed tracking, signal_id UNIQUE. Buy/sell legs are
// tracked separately since the classification table (spec §4.8) compares
// them against each other (e.g. "buy-side rose > 1% and > 2x sell-side").
type AnalysisRecord struct {
	SignalID          string
	BuyChangePct      float64
	SellChangePct     float64
	BuyDepthChgPct    sql.NullFloat64
	SellDepthChgPct   sql.NullFloat64
	ConvergenceReason string
	DurationMinutes   float64
	SnapshotsCount    int
	AnalyzedAt        time.Time
}

// AnalysisStore persists AnalysisRecord rows.
type AnalysisStore struct {
	db *sql.DB
}

// NewAnalysisStore returns an AnalysisStore bound to db.
func NewAnalysisStore(db *sql.DB) *AnalysisStore {
	return &AnalysisStore{db: db}
}

// Create inserts the C8.A classification result for a closed tracking.
func (s *AnalysisStore) Create(ctx context.Context, rec *AnalysisRecord) error {
	query := `
		INSERT INTO convergence_analysis (
			signal_id, buy_change_pct, sell_change_pct, buy_depth_chg_pct, sell_depth_chg_pct,
			convergence_reason, duration_minutes, snapshots_count, analyzed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (signal_id) DO UPDATE SET
			buy_change_pct = EXCLUDED.buy_change_pct,
			sell_change_pct = EXCLUDED.sell_change_pct,
			buy_depth_chg_pct = EXCLUDED.buy_depth_chg_pct,
			sell_depth_chg_pct = EXCLUDED.sell_depth_chg_pct,
			convergence_reason = EXCLUDED.convergence_reason,
			duration_minutes = EXCLUDED.duration_minutes,
			snapshots_count = EXCLUDED.snapshots_count,
			analyzed_at = EXCLUDED.analyzed_at`

	_, err := s.db.ExecContext(ctx, query,
		rec.SignalID, rec.BuyChangePct, rec.SellChangePct, rec.BuyDepthChgPct, rec.SellDepthChgPct,
		rec.ConvergenceReason, rec.DurationMinutes, rec.SnapshotsCount, rec.AnalyzedAt,
	)
	return err
}

// GetBySignalID fetches the analysis row for a signal.
func (s *AnalysisStore) GetBySignalID(ctx context.Context, signalID string) (*AnalysisRecord, error) {
	query := `
		SELECT signal_id, buy_change_pct, sell_change_pct, buy_depth_chg_pct, sell_depth_chg_pct,
			convergence_reason, duration_minutes, snapshots_count, analyzed_at
		FROM convergence_analysis
		WHERE signal_id = $1`

	rec := &AnalysisRecord{}
	err := s.db.QueryRowContext(ctx, query, signalID).Scan(
		&rec.SignalID, &rec.BuyChangePct, &rec.SellChangePct, &rec.BuyDepthChgPct, &rec.SellDepthChgPct,
		&rec.ConvergenceReason, &rec.DurationMinutes, &rec.SnapshotsCount, &rec.AnalyzedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}
