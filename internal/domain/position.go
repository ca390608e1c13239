package domain

import "time"

// PositionStatus is the lifecycle state of a user's manual follow of a
// signal (spec §4.11).
type PositionStatus string

const (
	PositionTracking PositionStatus = "tracking"
	PositionNotified PositionStatus = "notified"
	PositionClosed   PositionStatus = "closed"
)

// Position is a user-initiated follow of a Signal.
type Position struct {
	ID             string
	SignalID       string
	User           string
	Symbol         string
	PairID         string
	EntrySpread    float64
	TargetSpread   float64
	CurrentSpread  float64
	Status         PositionStatus
	EnteredAt      time.Time
	NotifiedAt     time.Time
	ClosedAt       time.Time
	TelegramMsgID  int64
}

// DefaultTargetFraction is applied to EntrySpread to derive TargetSpread
// when the user does not supply one explicitly (spec §4.11: "defaults to
// entry_spread / 2").
const DefaultTargetFraction = 0.5

// NewPosition starts a Position with the default target (entry/2).
func NewPosition(id, signalID, user, symbol, pairID string, entrySpread float64, enteredAt time.Time) *Position {
	return &Position{
		ID:            id,
		SignalID:      signalID,
		User:          user,
		Symbol:        symbol,
		PairID:        pairID,
		EntrySpread:   entrySpread,
		TargetSpread:  entrySpread * DefaultTargetFraction,
		CurrentSpread: entrySpread,
		Status:        PositionTracking,
		EnteredAt:     enteredAt,
	}
}

// ShouldNotify reports whether the current spread has reached the target,
// per spec §4.11 ("notifies ... when current_spread <= target_spread,
// once").
func (p *Position) ShouldNotify() bool {
	return p.Status == PositionTracking && p.CurrentSpread <= p.TargetSpread
}
