package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PositionRecord mirrors the `position_tracking` table (spec §6): a
// per-user manual entry into a signal's arbitrage opportunity, tracked
// independently of the signal's own Tracking.
type PositionRecord struct {
	ID            string
	SignalID      string
	UserID        string
	Symbol        string
	PairID        string
	EntrySpread   float64
	TargetSpread  float64
	Status        string // tracking | notified | closed
	CreatedAt     time.Time
	NotifiedAt    sql.NullTime
	ClosedAt      sql.NullTime
	TelegramMsgID sql.NullInt64
}

// PositionStore persists PositionRecord rows.
type PositionStore struct {
	db *sql.DB
}

// NewPositionStore returns a PositionStore bound to db.
func NewPositionStore(db *sql.DB) *PositionStore {
	return &PositionStore{db: db}
}

// Create inserts a new position row when a user records "I entered".
func (s *PositionStore) Create(ctx context.Context, rec *PositionRecord) error {
	query := `
		INSERT INTO position_tracking (
			id, signal_id, user_id, symbol, pair_id, entry_spread_pct,
			target_spread_pct, status, created_at, telegram_msg_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	return s.db.QueryRowContext(ctx, query,
		rec.ID, rec.SignalID, rec.UserID, rec.Symbol, rec.PairID, rec.EntrySpread,
		rec.TargetSpread, rec.Status, rec.CreatedAt, rec.TelegramMsgID,
	).Scan(&rec.ID)
}

// ListOpen returns all positions still in "tracking" status, used by C11's
// 30s periodic loop.
func (s *PositionStore) ListOpen(ctx context.Context) ([]*PositionRecord, error) {
	query := `
		SELECT id, signal_id, user_id, symbol, pair_id, entry_spread_pct,
			target_spread_pct, status, created_at, notified_at, closed_at, telegram_msg_id
		FROM position_tracking
		WHERE status = 'tracking'`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PositionRecord
	for rows.Next() {
		rec := &PositionRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.SignalID, &rec.UserID, &rec.Symbol, &rec.PairID, &rec.EntrySpread,
			&rec.TargetSpread, &rec.Status, &rec.CreatedAt, &rec.NotifiedAt, &rec.ClosedAt, &rec.TelegramMsgID,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkNotified transitions a position to "notified" once its target spread
// is reached (domain.Position.ShouldNotify), stamping telegram_msg_id so
// the notify-once invariant survives a restart.
func (s *PositionStore) MarkNotified(ctx context.Context, id string, notifiedAt time.Time, telegramMsgID int64) error {
	query := `
		UPDATE position_tracking
		SET status = 'notified', notified_at = $2, telegram_msg_id = $3
		WHERE id = $1 AND status = 'tracking'`

	res, err := s.db.ExecContext(ctx, query, id, notifiedAt, telegramMsgID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, ErrPositionNotFound)
}

// Close marks a position closed, recorded independently of the underlying
// signal's Tracking close.
func (s *PositionStore) Close(ctx context.Context, id string, closedAt time.Time) error {
	query := `UPDATE position_tracking SET status = 'closed', closed_at = $2 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, id, closedAt)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, ErrPositionNotFound)
}

// GetByID fetches a position by id.
func (s *PositionStore) GetByID(ctx context.Context, id string) (*PositionRecord, error) {
	query := `
		SELECT id, signal_id, user_id, symbol, pair_id, entry_spread_pct,
			target_spread_pct, status, created_at, notified_at, closed_at, telegram_msg_id
		FROM position_tracking
		WHERE id = $1`

	rec := &PositionRecord{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.SignalID, &rec.UserID, &rec.Symbol, &rec.PairID, &rec.EntrySpread,
		&rec.TargetSpread, &rec.Status, &rec.CreatedAt, &rec.NotifiedAt, &rec.ClosedAt, &rec.TelegramMsgID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPositionNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// TradeResultRecord mirrors the `trade_results` table (spec §6): an
// operator's self-reported outcome for a closed signal. The pair_statistics
// recompute (TrackingStore.Aggregate) does not read this table.
type TradeResultRecord struct {
	ID         int64
	SignalID   string
	UserID     string
	PnlPct     sql.NullFloat64
	HoldHours  sql.NullFloat64
	Notes      sql.NullString
	RecordedAt time.Time
}

// TradeResultStore persists TradeResultRecord rows.
type TradeResultStore struct {
	db *sql.DB
}

// NewTradeResultStore returns a TradeResultStore bound to db.
func NewTradeResultStore(db *sql.DB) *TradeResultStore {
	return &TradeResultStore{db: db}
}

// Create inserts a self-reported trade result.
func (s *TradeResultStore) Create(ctx context.Context, rec *TradeResultRecord) error {
	query := `
		INSERT INTO trade_results (signal_id, user_id, pnl_pct, hold_hours, notes, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	return s.db.QueryRowContext(ctx, query,
		rec.SignalID, rec.UserID, rec.PnlPct, rec.HoldHours, rec.Notes, rec.RecordedAt,
	).Scan(&rec.ID)
}

// ListBySignal returns all reported results for a signal.
func (s *TradeResultStore) ListBySignal(ctx context.Context, signalID string) ([]*TradeResultRecord, error) {
	query := `
		SELECT id, signal_id, user_id, pnl_pct, hold_hours, notes, recorded_at
		FROM trade_results
		WHERE signal_id = $1
		ORDER BY recorded_at ASC`

	rows, err := s.db.QueryContext(ctx, query, signalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TradeResultRecord
	for rows.Next() {
		rec := &TradeResultRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.SignalID, &rec.UserID, &rec.PnlPct, &rec.HoldHours, &rec.Notes, &rec.RecordedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
