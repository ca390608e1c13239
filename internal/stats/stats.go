// Package stats implements C10, the PairStatisticsService: on every
// tracking close it recomputes the lifetime pair_statistics row for that
// (pair,symbol) from the raw spread_convergence rows in a single set-based
// statement, and serves recent_outcomes(pair,symbol,limit)
// for the dashboard (spec §4.10).
package stats

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"arbitrage/internal/domain"
	"arbitrage/internal/storage"
)

// Broadcaster pushes a refreshed pair_statistics row to connected dashboard
// clients, grounded on internal/service/stats_service.go's StatsBroadcaster
// (sent once per RecomputeOnClose, not on every read).
type Broadcaster interface {
	BroadcastPairStats(stats *domain.PairStatistics)
}

// Service recomputes and serves per-pair outcome aggregates.
type Service struct {
	trackings *storage.TrackingStore
	pairStats *storage.PairStatsStore
	broadcast Broadcaster
	log       *zap.Logger
}

// New returns a Service. broadcast may be nil if no dashboard push is wired.
func New(trackings *storage.TrackingStore, pairStats *storage.PairStatsStore, broadcast Broadcaster, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{trackings: trackings, pairStats: pairStats, broadcast: broadcast, log: log}
}

// SetBroadcaster wires the dashboard hub after construction, mirroring
// StatsService.SetWebSocketHub's late-binding pattern (the hub is built
// after the service in main wiring).
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.broadcast = b
}

// RecomputeOnClose implements tracker.PairStatsUpdater: it re-derives the
// entire pair_statistics row for (pairID, symbol) from spread_convergence in
// one aggregate query rather than incrementing counters, so the row is
// always consistent with the raw data even if a previous recompute was
// missed (e.g. after a crash mid-close).
func (s *Service) RecomputeOnClose(ctx context.Context, pairID, symbol string) error {
	agg, err := s.trackings.Aggregate(ctx, pairID, symbol)
	if err != nil {
		return err
	}

	now := time.Now()
	rec := &storage.PairStatisticsRecord{
		PairID:             pairID,
		Symbol:             symbol,
		MaxSpreadPct:       agg.MaxSpreadPct,
		MinSpreadPct:       agg.MinSpreadPct,
		SignalsTotal:       agg.Total,
		SignalsConverged:   agg.Converged,
		SignalsDiverged:    agg.Diverged,
		SignalsExpired:     agg.Expired,
		AvgHoldMinutes:     agg.AvgHoldMinutes,
		MedianHoldMinutes:  agg.MedianHoldMin,
		FastestHoldMinutes: agg.FastestHoldMin,
		SlowestHoldMinutes: agg.SlowestHoldMin,
		SuccessRatePct:     domain.ComputeSuccessRate(int(agg.Converged), int(agg.Diverged), int(agg.Expired)),
		FirstSignalAt:      agg.FirstSignalAt,
		LastSignalAt:       agg.LastSignalAt,
		UpdatedAt:          now,
	}

	if err := s.pairStats.Upsert(ctx, rec); err != nil {
		return err
	}

	s.log.Debug("recomputed pair statistics",
		zap.String("pair_id", pairID), zap.String("symbol", symbol),
		zap.Int64("total", agg.Total), zap.Float64("success_rate_pct", rec.SuccessRatePct))

	if s.broadcast != nil {
		s.broadcast.BroadcastPairStats(toDomain(rec))
	}
	return nil
}

// Get returns the current aggregate row for a pair+symbol, or
// domain's zero PairStatistics with ok=false if none has been computed yet.
func (s *Service) Get(ctx context.Context, pairID, symbol string) (domain.PairStatistics, bool, error) {
	rec, err := s.pairStats.GetByPair(ctx, pairID, symbol)
	if errors.Is(err, storage.ErrPairStatsNotFound) {
		return domain.PairStatistics{}, false, nil
	}
	if err != nil {
		return domain.PairStatistics{}, false, err
	}
	return toDomain(rec), true, nil
}

// RecentOutcomes returns the most recent closed trackings for a pair+symbol,
// newest first, capped at limit (spec §4.10's recent_outcomes query).
func (s *Service) RecentOutcomes(ctx context.Context, pairID, symbol string, limit int) ([]domain.RecentOutcome, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pairStats.RecentOutcomes(ctx, pairID, symbol, limit)
	if err != nil {
		return nil, err
	}

	out := make([]domain.RecentOutcome, 0, len(rows))
	for _, r := range rows {
		o := domain.RecentOutcome{
			SignalID:    r.SignalID,
			ClosedAt:    r.ClosedAt,
			CloseReason: domain.CloseReason(r.CloseReason),
			InitialPct:  r.EntrySpreadPct,
			FinalPct:    r.LastSpreadPct,
		}
		if r.DurationMinutes.Valid {
			o.DurationMin = r.DurationMinutes.Float64
		}
		if r.ConvergenceReason.Valid {
			o.Reason = domain.ConvergenceReason(r.ConvergenceReason.String)
		}
		out = append(out, o)
	}
	return out, nil
}

func toDomain(rec *storage.PairStatisticsRecord) domain.PairStatistics {
	p := domain.PairStatistics{
		PairID:         rec.PairID,
		Symbol:         rec.Symbol,
		TotalSignals:   int(rec.SignalsTotal),
		ConvergedCount: int(rec.SignalsConverged),
		DivergedCount:  int(rec.SignalsDiverged),
		ExpiredCount:   int(rec.SignalsExpired),
		SuccessRatePct: rec.SuccessRatePct,
		LastUpdated:    rec.UpdatedAt,
	}
	if rec.MaxSpreadPct.Valid {
		p.MaxSpreadPct = rec.MaxSpreadPct.Float64
	}
	if rec.MinSpreadPct.Valid {
		p.MinSpreadPct = rec.MinSpreadPct.Float64
	}
	if rec.AvgHoldMinutes.Valid {
		p.AvgConvergenceMin = rec.AvgHoldMinutes.Float64
	}
	if rec.MedianHoldMinutes.Valid {
		p.MedianConvergenceMin = rec.MedianHoldMinutes.Float64
	}
	if rec.FastestHoldMinutes.Valid {
		p.FastestConvergenceMin = rec.FastestHoldMinutes.Float64
	}
	if rec.SlowestHoldMinutes.Valid {
		p.SlowestConvergenceMin = rec.SlowestHoldMinutes.Float64
	}
	if rec.FirstSignalAt.Valid {
		p.FirstSignalAt = rec.FirstSignalAt.Time
	}
	if rec.LastSignalAt.Valid {
		p.LastSignalAt = rec.LastSignalAt.Time
	}
	return p
}
