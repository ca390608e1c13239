package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SignalRecord mirrors the `signals` table (spec §6): one row per emitted
// arbitrage signal, regardless of strategy.
type SignalRecord struct {
	ID            string
	Strategy      string
	Class         string
	Symbol        string
	Details       string // JSON blob: pairs, spreads, suggested position, etc.
	TelegramMsgID sql.NullInt64
	Status        string // sent | taken | closed | expired
	SentAt        time.Time
	TakenAt       sql.NullTime
	ClosedAt      sql.NullTime
}

// SignalStore persists SignalRecord rows, grounded on
// internal/repository/order_repository.go's CRUD shape.
type SignalStore struct {
	db *sql.DB
}

// NewSignalStore returns a SignalStore bound to db.
func NewSignalStore(db *sql.DB) *SignalStore {
	return &SignalStore{db: db}
}

// Create inserts a new signal row, returning the assigned id via RETURNING.
func (s *SignalStore) Create(ctx context.Context, rec *SignalRecord) error {
	query := `
		INSERT INTO signals (id, strategy, class, symbol, details, telegram_msg_id, status, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	return s.db.QueryRowContext(ctx, query,
		rec.ID, rec.Strategy, rec.Class, rec.Symbol, rec.Details,
		rec.TelegramMsgID, rec.Status, rec.SentAt,
	).Scan(&rec.ID)
}

// GetByID fetches a signal by its UUID.
func (s *SignalStore) GetByID(ctx context.Context, id string) (*SignalRecord, error) {
	query := `
		SELECT id, strategy, class, symbol, details, telegram_msg_id, status, sent_at, taken_at, closed_at
		FROM signals
		WHERE id = $1`

	rec := &SignalRecord{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Strategy, &rec.Class, &rec.Symbol, &rec.Details,
		&rec.TelegramMsgID, &rec.Status, &rec.SentAt, &rec.TakenAt, &rec.ClosedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSignalNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// MarkTaken transitions a signal to "taken" and stamps taken_at.
func (s *SignalStore) MarkTaken(ctx context.Context, id string, takenAt time.Time) error {
	query := `UPDATE signals SET status = 'taken', taken_at = $2 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, id, takenAt)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, ErrSignalNotFound)
}

// MarkClosed transitions a signal to "closed" and stamps closed_at.
func (s *SignalStore) MarkClosed(ctx context.Context, id string, closedAt time.Time) error {
	query := `UPDATE signals SET status = 'closed', closed_at = $2 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, id, closedAt)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, ErrSignalNotFound)
}

// SetTelegramMsgID records the notifier's dispatched message id, called
// after emission since the id isn't known at Create time (spec §4.6 step 6
// persists before step 8 dispatches).
func (s *SignalStore) SetTelegramMsgID(ctx context.Context, id string, msgID int64) error {
	query := `UPDATE signals SET telegram_msg_id = $2 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, id, msgID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, ErrSignalNotFound)
}

// MarkExpired sweeps signals still "sent" past maxAge, per spec §4.8's
// tracking-expiry note, returning the number of rows updated.
func (s *SignalStore) MarkExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `UPDATE signals SET status = 'expired' WHERE status = 'sent' AND sent_at < $1`
	res, err := s.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListBySymbol returns recent signals for a symbol, most recent first.
func (s *SignalStore) ListBySymbol(ctx context.Context, symbol string, limit int) ([]*SignalRecord, error) {
	query := `
		SELECT id, strategy, class, symbol, details, telegram_msg_id, status, sent_at, taken_at, closed_at
		FROM signals
		WHERE symbol = $1
		ORDER BY sent_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SignalRecord
	for rows.Next() {
		rec := &SignalRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.Strategy, &rec.Class, &rec.Symbol, &rec.Details,
			&rec.TelegramMsgID, &rec.Status, &rec.SentAt, &rec.TakenAt, &rec.ClosedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func checkRowsAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
