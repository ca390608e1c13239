// Package position implements C11, the PositionTracker: a per-user,
// manually-entered follow of a signal that watches the live spread cache and
// fires a single "time to close" notice once the spread has collapsed to the
// user's target (spec §4.11).
package position

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"arbitrage/internal/domain"
	"arbitrage/internal/spread"
	"arbitrage/internal/storage"
)

// Notifier sends the "time to close" alert to the user who opened the
// position, mirroring tracker.Notifier's shape.
type Notifier interface {
	SendAlert(ctx context.Context, chatID string, text string, markup interface{}) (msgID int64, ok bool, err error)
}

// Config tunes the periodic check.
type Config struct {
	CheckInterval time.Duration // default 30s per spec §4.11/§5
}

// Tracker watches open positions and notifies once each reaches its target
// spread, grounded on internal/bot/position.go's MonitorPositions: a single
// ticker fanning concurrent per-position checks out to goroutines joined by
// a WaitGroup, reduced to C11's single responsibility (no PNL, stop loss, or
// liquidation handling — those are Non-goals for a manual-follow tracker).
type Tracker struct {
	positions *storage.PositionStore
	signals   *storage.SignalStore
	prices    *spread.Tracker
	notifier  Notifier
	cfg       Config
	log       *zap.Logger
}

// New returns a Tracker. signals resolves a position's venue pair from its
// originating signal, the same wire-compatible decode tracker.Tracker uses.
func New(positions *storage.PositionStore, signals *storage.SignalStore, prices *spread.Tracker, notifier Notifier, cfg Config, log *zap.Logger) *Tracker {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{positions: positions, signals: signals, prices: prices, notifier: notifier, cfg: cfg, log: log}
}

// Run drives the 30s periodic loop until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *Tracker) tick(ctx context.Context) {
	open, err := t.positions.ListOpen(ctx)
	if err != nil {
		t.log.Error("list open positions", zap.Error(err))
		return
	}

	var wg sync.WaitGroup
	for _, rec := range open {
		wg.Add(1)
		go func(rec *storage.PositionRecord) {
			defer wg.Done()
			t.checkOne(ctx, rec)
		}(rec)
	}
	wg.Wait()
}

func (t *Tracker) checkOne(ctx context.Context, rec *storage.PositionRecord) {
	lowVenue, highVenue, err := t.venueIDsFor(ctx, rec.SignalID)
	if err != nil {
		t.log.Warn("resolve position venues", zap.String("position_id", rec.ID), zap.Error(err))
		return
	}

	current, ok := t.currentSpreadPct(rec.Symbol, lowVenue, highVenue)
	if !ok {
		return // no fresh quotes this tick, try again next
	}

	pos := domain.NewPosition(rec.ID, rec.SignalID, rec.UserID, rec.Symbol, rec.PairID, rec.EntrySpread, rec.CreatedAt)
	pos.TargetSpread = rec.TargetSpread
	pos.CurrentSpread = current

	if !pos.ShouldNotify() {
		return
	}

	now := time.Now()
	text := fmt.Sprintf("Position %s (%s) has converged: spread now %.3f%%, at or below your target of %.3f%%.",
		rec.ID, rec.Symbol, current, rec.TargetSpread)

	msgID, sent, sendErr := t.notifier.SendAlert(ctx, rec.UserID, text, nil)
	if sendErr != nil {
		t.log.Error("send position notice", zap.String("position_id", rec.ID), zap.Error(sendErr))
		return
	}
	if !sent {
		return
	}

	if err := t.positions.MarkNotified(ctx, rec.ID, now, msgID); err != nil {
		t.log.Error("mark position notified", zap.String("position_id", rec.ID), zap.Error(err))
	}
}

// currentSpreadPct evaluates both directions between the two venues' latest
// quotes for symbol and returns the higher-yielding one, matching
// domain.ComputeSpread's math without needing full Venue values (the
// position only needs the numeric spread, not venue classification).
func (t *Tracker) currentSpreadPct(symbol, lowVenueID, highVenueID string) (float64, bool) {
	var qLow, qHigh domain.Quote
	var haveLow, haveHigh bool
	for _, q := range t.prices.Quotes(symbol) {
		switch q.VenueID {
		case lowVenueID:
			qLow, haveLow = q, true
		case highVenueID:
			qHigh, haveHigh = q, true
		}
	}
	if !haveLow || !haveHigh {
		return 0, false
	}
	if qLow.Ask <= 0 || qHigh.Ask <= 0 || qLow.Bid <= 0 || qHigh.Bid <= 0 {
		return 0, false
	}

	d1 := (qHigh.Bid - qLow.Ask) / qLow.Ask * 100
	d2 := (qLow.Bid - qHigh.Ask) / qHigh.Ask * 100
	if d1 >= d2 {
		return d1, true
	}
	return d2, true
}

// signalDetails decodes the subset of a signal's stored JSON this package
// needs, the same wire shape qualifier.signalDetailsJSON writes — duplicated
// locally rather than imported to avoid coupling position to qualifier, the
// pattern internal/tracker already uses for the same data.
type signalDetails struct {
	LowVenue  string `json:"low_venue"`
	HighVenue string `json:"high_venue"`
}

func (t *Tracker) venueIDsFor(ctx context.Context, signalID string) (string, string, error) {
	sig, err := t.signals.GetByID(ctx, signalID)
	if err != nil {
		return "", "", err
	}
	var details signalDetails
	if err := json.Unmarshal([]byte(sig.Details), &details); err != nil {
		return "", "", err
	}
	if details.LowVenue == "" || details.HighVenue == "" {
		return "", "", fmt.Errorf("position: signal %s missing venue details", signalID)
	}
	return details.LowVenue, details.HighVenue, nil
}
