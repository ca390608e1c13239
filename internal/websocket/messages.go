package websocket

import (
	"time"

	"arbitrage/internal/domain"
)

// MessageType names the envelope's payload shape for dashboard clients.
type MessageType string

const (
	// MessageTypeSignalEmitted fires when C6 dispatches a qualified signal.
	MessageTypeSignalEmitted MessageType = "signal_emitted"

	// MessageTypeTrackingConverged fires when C8 closes a tracking with
	// close_reason=converged.
	MessageTypeTrackingConverged MessageType = "tracking_converged"

	// MessageTypeTrackingDiverged fires when C8 closes a tracking with
	// close_reason=diverged or close_reason=expired.
	MessageTypeTrackingDiverged MessageType = "tracking_diverged"

	// MessageTypeBaselineFlushed fires when C9 flushes an hourly bucket to
	// cold storage.
	MessageTypeBaselineFlushed MessageType = "baseline_flushed"

	// MessageTypeStatsUpdate fires when C10 recomputes a pair's aggregate.
	MessageTypeStatsUpdate MessageType = "stats_update"
)

// BaseMessage is embedded by every envelope this hub broadcasts.
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// SignalEmittedMessage notifies dashboard clients of a newly qualified signal.
type SignalEmittedMessage struct {
	BaseMessage
	Data *SignalEmittedData `json:"data"`
}

// SignalEmittedData is the dashboard-facing projection of domain.Signal.
type SignalEmittedData struct {
	SignalID     string  `json:"signal_id"`
	Symbol       string  `json:"symbol"`
	PairID       string  `json:"pair_id"`
	LowVenue     string  `json:"low_venue"`
	HighVenue    string  `json:"high_venue"`
	NominalPct   float64 `json:"nominal_pct"`
	RealPct      float64 `json:"real_pct"`
	StrategyType string  `json:"strategy_type"`
	SuggestedUSD float64 `json:"suggested_usd"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewSignalEmittedMessage projects a domain.Signal onto the wire envelope.
func NewSignalEmittedMessage(sig domain.Signal) *SignalEmittedMessage {
	return &SignalEmittedMessage{
		BaseMessage: BaseMessage{Type: MessageTypeSignalEmitted, Timestamp: time.Now()},
		Data: &SignalEmittedData{
			SignalID:     sig.ID,
			Symbol:       sig.Symbol,
			PairID:       sig.PairID,
			LowVenue:     sig.LowVenue.ID(),
			HighVenue:    sig.HighVenue.ID(),
			NominalPct:   sig.NominalPct,
			RealPct:      sig.RealPct,
			StrategyType: sig.StrategyType,
			SuggestedUSD: sig.SuggestedUSD,
			CreatedAt:    sig.CreatedAt,
		},
	}
}

// TrackingClosedMessage notifies dashboard clients that C8 closed a
// tracking, whether by convergence, divergence, or timeout expiry.
type TrackingClosedMessage struct {
	BaseMessage
	Data *TrackingClosedData `json:"data"`
}

// TrackingClosedData is the dashboard-facing projection of a closed
// domain.Tracking.
type TrackingClosedData struct {
	SignalID        string  `json:"signal_id"`
	PairID          string  `json:"pair_id"`
	Symbol          string  `json:"symbol"`
	CloseReason     string  `json:"close_reason"`
	InitialSpread   float64 `json:"initial_spread_pct"`
	CurrentSpread   float64 `json:"current_spread_pct"`
	DurationMinutes float64 `json:"duration_minutes"`
	ClosedAt        time.Time `json:"closed_at"`
}

// NewTrackingClosedMessage builds the envelope for t, choosing between
// tracking_converged and tracking_diverged based on t.CloseReason
// (expired is reported as tracking_diverged: both mean "did not close out
// at the expected spread").
func NewTrackingClosedMessage(t *domain.Tracking) *TrackingClosedMessage {
	msgType := MessageTypeTrackingDiverged
	if t.CloseReason == domain.CloseConverged {
		msgType = MessageTypeTrackingConverged
	}
	return &TrackingClosedMessage{
		BaseMessage: BaseMessage{Type: msgType, Timestamp: time.Now()},
		Data: &TrackingClosedData{
			SignalID:        t.SignalID,
			PairID:          t.PairID,
			Symbol:          t.Symbol,
			CloseReason:     string(t.CloseReason),
			InitialSpread:   t.InitialSpread,
			CurrentSpread:   t.CurrentSpread,
			DurationMinutes: t.ClosedAt.Sub(t.StartedAt).Minutes(),
			ClosedAt:        t.ClosedAt,
		},
	}
}

// BaselineFlushedMessage notifies dashboard clients that C9 persisted an
// hourly baseline bucket to cold storage.
type BaselineFlushedMessage struct {
	BaseMessage
	Data *BaselineFlushedData `json:"data"`
}

// BaselineFlushedData is the dashboard-facing projection of a flushed
// domain.BaselineBucket.
type BaselineFlushedData struct {
	PairID     string  `json:"pair_id"`
	Symbol     string  `json:"symbol"`
	HourBucket int64   `json:"hour_bucket"`
	Samples    int     `json:"samples"`
	AvgPct     float64 `json:"avg_pct"`
	StdDevPct  float64 `json:"stddev_pct"`
	P95Pct     float64 `json:"p95_pct"`
}

// NewBaselineFlushedMessage projects a domain.BaselineBucket onto the wire
// envelope.
func NewBaselineFlushedMessage(b domain.BaselineBucket) *BaselineFlushedMessage {
	return &BaselineFlushedMessage{
		BaseMessage: BaseMessage{Type: MessageTypeBaselineFlushed, Timestamp: time.Now()},
		Data: &BaselineFlushedData{
			PairID:     b.PairID,
			Symbol:     b.Symbol,
			HourBucket: b.HourBucket,
			Samples:    b.Samples,
			AvgPct:     b.Avg,
			StdDevPct:  b.StdDev,
			P95Pct:     b.P95,
		},
	}
}

// StatsUpdateMessage notifies dashboard clients of a refreshed per-pair
// aggregate from C10.
type StatsUpdateMessage struct {
	BaseMessage
	Data *domain.PairStatistics `json:"data"`
}

// NewStatsUpdateMessage wraps a domain.PairStatistics in its wire envelope.
func NewStatsUpdateMessage(stats *domain.PairStatistics) *StatsUpdateMessage {
	return &StatsUpdateMessage{
		BaseMessage: BaseMessage{Type: MessageTypeStatsUpdate, Timestamp: time.Now()},
		Data:        stats,
	}
}
