package storage

import (
	"context"
	"database/sql"
	"time"
)

// SpreadLogRecord mirrors the `spread_log` table: every spread candidate
// C4 derives, whether or not it passed C5/C6 validation.
type SpreadLogRecord struct {
	ID               int64
	Ts               time.Time
	Symbol           string
	Strategy         string
	LowVenue         string
	HighVenue        string
	LowPrice         float64
	HighPrice        float64
	SpreadPct        float64
	NetSpreadPct     sql.NullFloat64
	LiquidityUSD     sql.NullFloat64
	PassedValidation bool
	RejectionReason  sql.NullString
	SignalID         sql.NullString
}

// SpreadLogStore persists SpreadLogRecord rows.
type SpreadLogStore struct {
	db *sql.DB
}

// NewSpreadLogStore returns a SpreadLogStore bound to db.
func NewSpreadLogStore(db *sql.DB) *SpreadLogStore {
	return &SpreadLogStore{db: db}
}

// Create appends one spread-log row.
func (s *SpreadLogStore) Create(ctx context.Context, rec *SpreadLogRecord) error {
	query := `
		INSERT INTO spread_log (
			ts, symbol, strategy, low_venue, high_venue, low_price, high_price,
			spread_pct, net_spread_pct, liquidity_usd, passed_validation, rejection_reason, signal_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	return s.db.QueryRowContext(ctx, query,
		rec.Ts, rec.Symbol, rec.Strategy, rec.LowVenue, rec.HighVenue,
		rec.LowPrice, rec.HighPrice, rec.SpreadPct, rec.NetSpreadPct,
		rec.LiquidityUSD, rec.PassedValidation, rec.RejectionReason, rec.SignalID,
	).Scan(&rec.ID)
}

// RecentForPair returns recent spread_log rows for a symbol+strategy pair,
// with ts at or after since, most recent first. The C3 sampler does not
// call it: it throttles with its own in-memory per-pair timestamp map.
func (s *SpreadLogStore) RecentForPair(ctx context.Context, symbol, strategy string, since time.Time) ([]*SpreadLogRecord, error) {
	query := `
		SELECT id, ts, symbol, strategy, low_venue, high_venue, low_price, high_price,
			spread_pct, net_spread_pct, liquidity_usd, passed_validation, rejection_reason, signal_id
		FROM spread_log
		WHERE symbol = $1 AND strategy = $2 AND ts >= $3
		ORDER BY ts DESC`

	rows, err := s.db.QueryContext(ctx, query, symbol, strategy, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SpreadLogRecord
	for rows.Next() {
		rec := &SpreadLogRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.Ts, &rec.Symbol, &rec.Strategy, &rec.LowVenue, &rec.HighVenue,
			&rec.LowPrice, &rec.HighPrice, &rec.SpreadPct, &rec.NetSpreadPct,
			&rec.LiquidityUSD, &rec.PassedValidation, &rec.RejectionReason, &rec.SignalID,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ZScoreLogRecord mirrors the `zscore_log` table (spec §6): baseline
// anomaly z-score samples, retained for post-hoc review of C9's
// anomaly classification.
type ZScoreLogRecord struct {
	ID       int64
	Ts       time.Time
	Pair     string
	Ratio    float64
	Mean     float64
	Std      float64
	ZScore   float64
	SignalID sql.NullString
}

// ZScoreLogStore persists ZScoreLogRecord rows.
type ZScoreLogStore struct {
	db *sql.DB
}

// NewZScoreLogStore returns a ZScoreLogStore bound to db.
func NewZScoreLogStore(db *sql.DB) *ZScoreLogStore {
	return &ZScoreLogStore{db: db}
}

// Create appends one zscore_log row.
func (s *ZScoreLogStore) Create(ctx context.Context, rec *ZScoreLogRecord) error {
	query := `
		INSERT INTO zscore_log (ts, pair, ratio, mean, std, zscore, signal_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return s.db.QueryRowContext(ctx, query,
		rec.Ts, rec.Pair, rec.Ratio, rec.Mean, rec.Std, rec.ZScore, rec.SignalID,
	).Scan(&rec.ID)
}
