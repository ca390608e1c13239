// Package tracker implements C8 ConvergenceTracker and its companion C8.A
// Convergence Analyzer: a coordinator loop that polls open Trackings,
// re-measures their spread against the live quote cache, classifies
// convergence/divergence, and on close spawns a background analysis job.
// Grounded on internal/bot/position.go's MonitorPositions (ticker-driven
// loop, bounded WaitGroup fan-out over the active set per tick) and
// internal/bot/recovery.go's discoverOpenPositions (mutex-guarded result
// accumulation across a goroutine fan-out).
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"database/sql"

	"go.uber.org/zap"

	"arbitrage/internal/domain"
	"arbitrage/internal/spread"
	"arbitrage/internal/storage"
)

// Notifier is the minimal dispatch contract for divergence alerts, defined
// locally (same shape as qualifier.Notifier) so this package never imports
// qualifier or notifier directly.
type Notifier interface {
	SendAlert(ctx context.Context, chatID string, text string, markup interface{}) (msgID int64, ok bool, err error)
}

// PairStatsUpdater is called whenever a Tracking closes, so C10 can
// recompute its per-pair aggregates off the critical path.
type PairStatsUpdater interface {
	RecomputeOnClose(ctx context.Context, pairID, symbol string) error
}

// Broadcaster pushes a tracking_converged/tracking_diverged event to
// connected dashboard clients.
type Broadcaster interface {
	BroadcastTrackingClosed(t *domain.Tracking)
}

// Config holds C8's tunables (config.PipelineConfig fields, spec §4.8/§6).
type Config struct {
	BaseCheckInterval        time.Duration
	MaxTrackingHours         int
	ConvergenceRatio         float64
	AbsoluteConvergencePct   float64
	DivergenceRatio          float64
	DivergenceAlertRateLimit time.Duration
	MaxConcurrentChecks      int
	AlertChatID              string
}

// trackedSignal is the coordinator's in-memory working set entry: the
// domain.Tracking plus the venue identity and first/last snapshots needed
// to re-measure its spread and, on close, feed C8.A.
type trackedSignal struct {
	tracking      *domain.Tracking
	lowVenueID    string
	highVenueID   string
	firstSnapshot *domain.Snapshot
	lastSnapshot  *domain.Snapshot
	checking      bool
}

// Tracker runs the C8 coordinator loop.
type Tracker struct {
	trackings *storage.TrackingStore
	snapshots *storage.SnapshotStore
	analyses  *storage.AnalysisStore
	signals   *storage.SignalStore
	prices    *spread.Tracker
	notifier  Notifier
	pairStats PairStatsUpdater
	broadcast Broadcaster
	cfg       Config
	log       *zap.Logger

	mu     sync.Mutex
	active map[string]*trackedSignal
}

// SetBroadcaster wires the dashboard hub after construction.
func (tr *Tracker) SetBroadcaster(b Broadcaster) {
	tr.broadcast = b
}

// New returns a Tracker. pairStats may be nil if C10 isn't wired yet.
func New(trackings *storage.TrackingStore, snapshots *storage.SnapshotStore, analyses *storage.AnalysisStore,
	signals *storage.SignalStore, prices *spread.Tracker, notifier Notifier, pairStats PairStatsUpdater,
	cfg Config, log *zap.Logger) *Tracker {
	if cfg.BaseCheckInterval <= 0 {
		cfg.BaseCheckInterval = 5 * time.Second
	}
	if cfg.MaxTrackingHours <= 0 {
		cfg.MaxTrackingHours = 168
	}
	if cfg.ConvergenceRatio <= 0 {
		cfg.ConvergenceRatio = 0.5
	}
	if cfg.AbsoluteConvergencePct <= 0 {
		cfg.AbsoluteConvergencePct = 3.0
	}
	if cfg.DivergenceRatio <= 0 {
		cfg.DivergenceRatio = 1.5
	}
	if cfg.DivergenceAlertRateLimit <= 0 {
		cfg.DivergenceAlertRateLimit = time.Hour
	}
	if cfg.MaxConcurrentChecks <= 0 {
		cfg.MaxConcurrentChecks = 32
	}
	return &Tracker{
		trackings: trackings, snapshots: snapshots, analyses: analyses, signals: signals,
		prices: prices, notifier: notifier, pairStats: pairStats, cfg: cfg, log: log,
		active: make(map[string]*trackedSignal),
	}
}

// Run drives the coordinator loop until ctx is cancelled.
func (tr *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(tr.cfg.BaseCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tr.tick(ctx)
		}
	}
}

// tick refreshes the open-tracking set from durable storage (new Trackings
// started by C6 since the last tick are picked up here), then fans out a
// bounded-parallelism check across whatever is due.
func (tr *Tracker) tick(ctx context.Context) {
	open, err := tr.trackings.ListOpen(ctx)
	if err != nil {
		tr.log.Warn("list open trackings failed", zap.Error(err))
		return
	}
	tr.reconcile(ctx, open)

	now := time.Now()
	var due []*trackedSignal
	tr.mu.Lock()
	for _, ts := range tr.active {
		if ts.checking || !isDue(ts.tracking, now) {
			continue
		}
		ts.checking = true
		due = append(due, ts)
	}
	tr.mu.Unlock()

	sem := make(chan struct{}, tr.cfg.MaxConcurrentChecks)
	var wg sync.WaitGroup
	for _, ts := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(ts *trackedSignal) {
			defer wg.Done()
			defer func() { <-sem }()
			tr.checkOne(ctx, ts)
			tr.mu.Lock()
			ts.checking = false
			tr.mu.Unlock()
		}(ts)
	}
	wg.Wait()
}

// reconcile adds newly-opened trackings to the working set and drops any
// that closed since the last poll.
func (tr *Tracker) reconcile(ctx context.Context, open []*storage.TrackingRecord) {
	seen := make(map[string]bool, len(open))
	for _, rec := range open {
		seen[rec.SignalID] = true

		tr.mu.Lock()
		_, known := tr.active[rec.SignalID]
		tr.mu.Unlock()
		if known {
			continue
		}

		lowID, highID, err := tr.venueIDsFor(ctx, rec.SignalID)
		if err != nil {
			tr.log.Warn("resolve venue ids for tracking failed", zap.String("signal_id", rec.SignalID), zap.Error(err))
			continue
		}
		t := &domain.Tracking{
			SignalID: rec.SignalID, Symbol: rec.Symbol, PairID: rec.PairID,
			InitialSpread: rec.EntrySpreadPct, CurrentSpread: rec.LastSpreadPct,
			MinSpread: rec.MinSpreadPct, MaxSpread: rec.MaxSpreadPct,
			StartedAt: rec.StartedAt, LastCheckedAt: rec.LastObservedAt, ChecksCount: int(rec.ObservationsN),
		}

		tr.mu.Lock()
		tr.active[rec.SignalID] = &trackedSignal{tracking: t, lowVenueID: lowID, highVenueID: highID}
		tr.mu.Unlock()
	}

	tr.mu.Lock()
	for id := range tr.active {
		if !seen[id] {
			delete(tr.active, id)
		}
	}
	tr.mu.Unlock()
}

// signalDetails mirrors the JSON shape qualifier.signalDetailsJSON writes
// into signals.details, decoded here to recover which two venues this
// tracking is watching (spread_convergence only stores an opaque pair_id).
type signalDetails struct {
	PairID    string `json:"pair_id"`
	LowVenue  string `json:"low_venue"`
	HighVenue string `json:"high_venue"`
}

func (tr *Tracker) venueIDsFor(ctx context.Context, signalID string) (string, string, error) {
	rec, err := tr.signals.GetByID(ctx, signalID)
	if err != nil {
		return "", "", err
	}
	var d signalDetails
	if err := json.Unmarshal([]byte(rec.Details), &d); err != nil {
		return "", "", err
	}
	if d.LowVenue == "" || d.HighVenue == "" {
		return "", "", fmt.Errorf("signal %s: details missing venue ids", signalID)
	}
	return d.LowVenue, d.HighVenue, nil
}

// checkIntervalFor returns the adaptive scheduler's check interval for a
// tracking of the given age (spec §4.8's table).
func checkIntervalFor(age time.Duration) time.Duration {
	switch {
	case age < 5*time.Minute:
		return 5 * time.Second
	case age < 30*time.Minute:
		return 30 * time.Second
	case age < 2*time.Hour:
		return 60 * time.Second
	case age < 24*time.Hour:
		return 300 * time.Second
	default:
		return 900 * time.Second
	}
}

func isDue(t *domain.Tracking, now time.Time) bool {
	if t.LastCheckedAt.IsZero() {
		return true
	}
	return now.Sub(t.LastCheckedAt) >= checkIntervalFor(t.Age(now))
}

// checkOne runs spec §4.8's per-check algorithm for one tracking.
func (tr *Tracker) checkOne(ctx context.Context, ts *trackedSignal) {
	now := time.Now()
	t := ts.tracking

	if now.Sub(t.StartedAt) > time.Duration(tr.cfg.MaxTrackingHours)*time.Hour {
		tr.closeTracking(ctx, ts, domain.CloseExpired, now)
		return
	}

	buyQuote, sellQuote, ok := tr.currentQuotes(t.Symbol, ts.lowVenueID, ts.highVenueID)
	if !ok {
		return // adapters or cache momentarily missing this pair; retry next tick
	}

	snap := &domain.Snapshot{
		SignalID: t.SignalID, SnapshotAt: now,
		BuyBid: buyQuote.Bid, BuyAsk: buyQuote.Ask, SellBid: sellQuote.Bid, SellAsk: sellQuote.Ask,
		BuyDepthUSD: buyQuote.LiquidityUSD, SellDepthUSD: sellQuote.LiquidityUSD,
	}
	if buyQuote.Ask > 0 {
		snap.SpreadPct = (sellQuote.Bid - buyQuote.Ask) / buyQuote.Ask * 100
	}

	tr.recordSnapshot(ctx, ts, snap)
	t.Observe(snap.SpreadPct, now)
	if err := tr.trackings.Observe(ctx, &storage.TrackingRecord{
		SignalID: t.SignalID, LastSpreadPct: t.CurrentSpread, MinSpreadPct: t.MinSpread,
		MaxSpreadPct: t.MaxSpread, ObservationsN: int64(t.ChecksCount), LastObservedAt: now,
	}); err != nil {
		tr.log.Warn("tracking observe persist failed", zap.String("signal_id", t.SignalID), zap.Error(err))
	}

	converged := t.CurrentSpread <= t.InitialSpread*tr.cfg.ConvergenceRatio || t.CurrentSpread <= tr.cfg.AbsoluteConvergencePct
	diverged := t.CurrentSpread >= t.InitialSpread*tr.cfg.DivergenceRatio

	switch {
	case converged && !t.Converged:
		t.Converged = true
		t.ConvergedAt = now
		tr.closeTracking(ctx, ts, domain.CloseConverged, now)
		go tr.runAnalysis(context.Background(), ts)
	case diverged && !t.Diverged:
		t.Diverged = true
		t.DivergedAt = now
		tr.maybeAlertDivergence(ctx, t, now)
		tr.closeTracking(ctx, ts, domain.CloseDiverged, now)
	}
}

// currentQuotes looks up the two venues' latest quotes from the shared
// in-process price cache (the same spread.Tracker instance C3 writes into;
// spec's `prices:latest` KV cache is this process's external view of the
// same data, so re-deriving it from KV here would just add a redundant
// round trip to data already resident in memory).
func (tr *Tracker) currentQuotes(symbol, lowVenueID, highVenueID string) (domain.Quote, domain.Quote, bool) {
	var buy, sell domain.Quote
	var haveBuy, haveSell bool
	for _, q := range tr.prices.Quotes(symbol) {
		if q.VenueID == lowVenueID {
			buy, haveBuy = q, true
		}
		if q.VenueID == highVenueID {
			sell, haveSell = q, true
		}
	}
	return buy, sell, haveBuy && haveSell
}

// recordSnapshot persists snap (bounded at domain.MaxSnapshotsPerSignal per
// signal) and tracks the first/last snapshot pair C8.A needs.
func (tr *Tracker) recordSnapshot(ctx context.Context, ts *trackedSignal, snap *domain.Snapshot) {
	if ts.firstSnapshot == nil {
		ts.firstSnapshot = snap
	}
	ts.lastSnapshot = snap

	if ts.tracking.ChecksCount >= domain.MaxSnapshotsPerSignal {
		return
	}
	rec := &storage.SnapshotRecord{
		SignalID: snap.SignalID, SnapshotSeq: ts.tracking.ChecksCount, Ts: snap.SnapshotAt,
		SpreadPct: snap.SpreadPct, LowPrice: snap.BuyAsk, HighPrice: snap.SellBid,
		DepthUSD: sql.NullFloat64{Float64: snap.BuyDepthUSD + snap.SellDepthUSD, Valid: true},
	}
	if err := tr.snapshots.Create(ctx, rec); err != nil {
		tr.log.Warn("snapshot persist failed", zap.String("signal_id", snap.SignalID), zap.Error(err))
	}
}

func (tr *Tracker) closeTracking(ctx context.Context, ts *trackedSignal, reason domain.CloseReason, at time.Time) {
	ts.tracking.Close(reason, at)
	if _, err := tr.trackings.Close(ctx, ts.tracking.SignalID, string(reason), string(reason), at); err != nil {
		tr.log.Warn("tracking close persist failed", zap.String("signal_id", ts.tracking.SignalID), zap.Error(err))
	}
	tr.mu.Lock()
	delete(tr.active, ts.tracking.SignalID)
	tr.mu.Unlock()

	if tr.broadcast != nil {
		tr.broadcast.BroadcastTrackingClosed(ts.tracking)
	}

	if tr.pairStats != nil {
		if err := tr.pairStats.RecomputeOnClose(ctx, ts.tracking.PairID, ts.tracking.Symbol); err != nil {
			tr.log.Warn("pair stats recompute failed", zap.String("signal_id", ts.tracking.SignalID), zap.Error(err))
		}
	}
}

// maybeAlertDivergence sends a divergence alert rate-limited to once per
// DivergenceAlertRateLimit per signal (spec §4.8 step 6).
func (tr *Tracker) maybeAlertDivergence(ctx context.Context, t *domain.Tracking, now time.Time) {
	if tr.notifier == nil {
		return
	}
	if !t.LastDivergAlert.IsZero() && now.Sub(t.LastDivergAlert) < tr.cfg.DivergenceAlertRateLimit {
		return
	}
	text := fmt.Sprintf("%s diverging: spread now %.2f%% (started at %.2f%%)", t.Symbol, t.CurrentSpread, t.InitialSpread)
	if _, ok, err := tr.notifier.SendAlert(ctx, tr.cfg.AlertChatID, text, nil); err != nil || !ok {
		tr.log.Warn("divergence alert send failed", zap.String("signal_id", t.SignalID), zap.Error(err))
		return
	}
	t.LastDivergAlert = now
}

// runAnalysis implements C8.A: classify why a converged tracking converged,
// using its first and last snapshots, and persist the result. Run off the
// critical path (spec §4.8 "Analyser tasks run off the critical path").
func (tr *Tracker) runAnalysis(ctx context.Context, ts *trackedSignal) {
	first, last := ts.firstSnapshot, ts.lastSnapshot
	if first == nil || last == nil {
		return
	}

	buyChangePct := pctChange(first.BuyAsk, last.BuyAsk)
	sellChangePct := pctChange(first.SellBid, last.SellBid)
	buyDepthChgPct := pctChange(first.BuyDepthUSD, last.BuyDepthUSD)
	sellDepthChgPct := pctChange(first.SellDepthUSD, last.SellDepthUSD)
	durationMinutes := last.SnapshotAt.Sub(first.SnapshotAt).Minutes()

	reason := classifyConvergence(buyChangePct, sellChangePct, buyDepthChgPct, sellDepthChgPct, durationMinutes)

	rec := &storage.AnalysisRecord{
		SignalID: ts.tracking.SignalID, BuyChangePct: buyChangePct, SellChangePct: sellChangePct,
		BuyDepthChgPct:  sql.NullFloat64{Float64: buyDepthChgPct, Valid: true},
		SellDepthChgPct: sql.NullFloat64{Float64: sellDepthChgPct, Valid: true},
		ConvergenceReason: string(reason), DurationMinutes: durationMinutes,
		SnapshotsCount: ts.tracking.ChecksCount, AnalyzedAt: time.Now(),
	}
	if err := tr.analyses.Create(ctx, rec); err != nil {
		tr.log.Warn("analysis persist failed", zap.String("signal_id", ts.tracking.SignalID), zap.Error(err))
	}
}

// classifyConvergence implements spec §4.8 C8.A's reason table.
func classifyConvergence(buyChangePct, sellChangePct, buyDepthChgPct, sellDepthChgPct, durationMinutes float64) domain.ConvergenceReason {
	depthDropped := buyDepthChgPct <= -30 || sellDepthChgPct <= -30
	if durationMinutes < 15 && depthDropped {
		return domain.ReasonArbActivity
	}

	absBuy, absSell := math.Abs(buyChangePct), math.Abs(sellChangePct)
	if absBuy < 1 && absSell < 1 {
		return domain.ReasonUnknown
	}
	if buyChangePct > 1 && absBuy > 2*absSell {
		return domain.ReasonBuyUp
	}
	if sellChangePct < -1 && absSell > 2*absBuy {
		return domain.ReasonSellDown
	}
	return domain.ReasonBoth
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}
