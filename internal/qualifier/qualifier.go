// Package qualifier implements C6 SignalQualifier: the single consumer of
// signals:pending that runs each candidate through the sequential
// blacklist/cooldown/safety/type/floor gate, persists survivors, groups them
// by symbol, and dispatches via Notifier. Grounded on
// internal/bot/risk.go's sequential-predicate style (a chain of early
// returns, each one a named rejection) and internal/service/blacklist_service.go
// for the KV-set shape of blacklist checks.
package qualifier

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"arbitrage/internal/corefail"
	"arbitrage/internal/domain"
	"arbitrage/internal/kv"
	"arbitrage/internal/storage"
)

const (
	processedKey  = "alerts:processed"
	processedCap  = 1000
	statsKey      = "alerts:stats"
	groupWindow   = 2 * time.Second
	maxAlternates = 4
)

// Notifier is the outbound-dispatch contract the qualifier depends on
// (spec §4.7). Defined here, not imported from a concrete package, so
// internal/notifier can depend on domain/kv without qualifier depending
// back on it.
type Notifier interface {
	// SendAlert sends text with an optional markup payload, returning the
	// provider's message id on success. A failure returns ok=false and a
	// nil error is acceptable — NotifierFailure is terminal for that alert;
	// the qualifier never resends it. (TelegramNotifier retries
	// transport-level errors inside SendAlert before reporting a failure.)
	SendAlert(ctx context.Context, chatID string, text string, markup interface{}) (msgID int64, ok bool, err error)
}

// Broadcaster pushes a signal_emitted event to connected dashboard clients.
// Defined locally so this package never imports internal/websocket.
type Broadcaster interface {
	BroadcastSignalEmitted(sig domain.Signal)
}

// Config holds C6's tunables (config.PipelineConfig fields, spec §4.6/§6).
type Config struct {
	CooldownSec          int
	LaggingCooldownSec   int
	MinSpreadPct         float64
	MinExitLiquidityUSD  float64
	EnableAutoSignals    bool
	EnableManualSignals  bool
	EnableLaggingSignals bool
	AlertChatID          string
	Workers              int
}

// Qualifier runs the signal-qualification worker pool.
type Qualifier struct {
	in        *kv.Queue
	kvStore   kv.Store
	signals   *storage.SignalStore
	trackings *storage.TrackingStore
	spreadLog *storage.SpreadLogStore
	notifier  Notifier
	broadcast Broadcaster
	cfg       Config
	log       *zap.Logger

	mu      sync.Mutex
	pending map[string][]domain.Signal // symbol -> buffered, awaiting the group window's flush
	timers  map[string]*time.Timer
}

// SetBroadcaster wires the dashboard hub after construction, mirroring
// stats.Service.SetBroadcaster's late-binding pattern.
func (q *Qualifier) SetBroadcaster(b Broadcaster) {
	q.broadcast = b
}

// New returns a Qualifier. inQueue is signals:pending (C5's producer side).
func New(inQueue *kv.Queue, store kv.Store, signals *storage.SignalStore, trackings *storage.TrackingStore, spreadLog *storage.SpreadLogStore, notifier Notifier, cfg Config, log *zap.Logger) *Qualifier {
	if cfg.CooldownSec <= 0 {
		cfg.CooldownSec = 300
	}
	if cfg.LaggingCooldownSec <= 0 {
		cfg.LaggingCooldownSec = 600
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	return &Qualifier{
		in: inQueue, kvStore: store, signals: signals, trackings: trackings, spreadLog: spreadLog,
		notifier: notifier, cfg: cfg, log: log,
		pending: make(map[string][]domain.Signal),
		timers:  make(map[string]*time.Timer),
	}
}

// Run launches the bounded worker pool draining signals:pending and blocks
// until ctx is cancelled (spec §5: "one bounded worker pool per queue
// consumer ... C6 on signals queue").
func (q *Qualifier) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < q.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.drain(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (q *Qualifier) drain(ctx context.Context) {
	idleWait := 50 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var env pendingSignalEnvelope
		ok, err := q.in.Pop(ctx, &env)
		if err != nil {
			q.log.Warn("pending-signals queue pop failed", zap.Error(err))
			time.Sleep(idleWait)
			continue
		}
		if !ok {
			time.Sleep(idleWait)
			continue
		}

		q.handle(ctx, env.Signal)
	}
}

// pendingSignalEnvelope mirrors analyzer.PendingSignal's single field so the
// two packages' types stay wire-compatible without a cross-package import.
type pendingSignalEnvelope struct {
	Signal domain.Signal
}

// handle runs spec §4.6 steps 1-9 for one dequeued signal.
func (q *Qualifier) handle(ctx context.Context, sig domain.Signal) {
	if reason, blocked := q.checkBlacklist(ctx, sig); blocked {
		q.reject(ctx, sig, reason)
		return
	}

	active, err := q.cooldownActive(ctx, sig)
	if err != nil {
		q.log.Warn("cooldown check failed", zap.Error(err))
		return
	}
	if active {
		q.incrStat(ctx, "cooldown_blocked")
		return
	}

	sig = q.buildValidatedSignal(ctx, sig)
	if !q.typeEnabled(sig.SignalType) {
		q.reject(ctx, sig, "signal type disabled")
		return
	}
	if sig.RealPct < q.cfg.MinSpreadPct {
		q.reject(ctx, sig, "below min_spread_pct")
		return
	}
	if !sig.Passed() {
		q.reject(ctx, sig, fmt.Sprintf("safety predicate failed: %v", sig.FailedChecks()))
		return
	}

	sig.ID = shortID(sig)
	sig.StrategyType = sig.LowVenue.Category() + sig.HighVenue.Category()
	if err := q.persist(ctx, sig); err != nil {
		q.log.Warn("persist signal failed", zap.String("signal_id", sig.ID), zap.Error(err))
	}

	q.bufferForGroup(ctx, sig)
}

// checkBlacklist rejects if the symbol, either venue's exchange/address, or
// the pair is on the respective blacklist set (spec §4.6 step 1). This is a
// deliberate redesign versus internal/service/blacklist_service.go, whose
// BlacklistService is explicitly informative-only: the spec's
// `blacklist:{symbols,addresses,exchanges,pairs}` sets are an ACTIVE filter
// here, not merely advisory metadata.
func (q *Qualifier) checkBlacklist(ctx context.Context, sig domain.Signal) (string, bool) {
	checks := []struct {
		key    string
		member string
	}{
		{"blacklist:symbols", sig.Symbol},
		{"blacklist:pairs", sig.PairID},
		{"blacklist:exchanges", sig.LowVenue.Exchange},
		{"blacklist:exchanges", sig.HighVenue.Exchange},
		{"blacklist:addresses", sig.LowVenue.TokenAddress},
		{"blacklist:addresses", sig.HighVenue.TokenAddress},
	}
	for _, c := range checks {
		if c.member == "" {
			continue
		}
		hit, err := q.kvStore.SIsMember(ctx, c.key, c.member)
		if err != nil {
			q.log.Warn("blacklist check failed", zap.String("key", c.key), zap.Error(err))
			continue
		}
		if hit {
			return fmt.Sprintf("%s blacklisted: %s", c.key, c.member), true
		}
	}
	return "", false
}

// cooldownActive reports whether (symbol, pair_id) is still within its
// cooldown window. This is a read-only check: spec §4.6 step 2 only gates
// on the cooldown, it does not set it — the cooldown is armed in
// recordOutcome, step 9, after a confirmed send (see cooldownKey/
// armCooldown).
func (q *Qualifier) cooldownActive(ctx context.Context, sig domain.Signal) (bool, error) {
	_, ok, err := q.kvStore.Get(ctx, cooldownKey(sig))
	return ok, err
}

// armCooldown sets the cooldown key, called only after a signal has been
// successfully sent (spec §4.6 step 9; §7 NotifierFailure: "cooldown is NOT
// set, permitting a retry on next match").
func (q *Qualifier) armCooldown(ctx context.Context, sig domain.Signal) {
	sec := q.cfg.CooldownSec
	if sig.SignalType == domain.SignalLagging {
		sec = q.cfg.LaggingCooldownSec
	}
	if err := q.kvStore.Set(ctx, cooldownKey(sig), sig.ID, time.Duration(sec)*time.Second); err != nil {
		q.log.Warn("arming cooldown failed", zap.String("signal_id", sig.ID), zap.Error(err))
	}
}

func cooldownKey(sig domain.Signal) string {
	return fmt.Sprintf("alert:cooldown:%s:%s", sig.Symbol, sig.PairID)
}

// buildValidatedSignal enriches sig with lagging-exchange detection and
// evaluates the safety predicates named in spec §4.6 step 3: stale data,
// insufficient depth vs historical baseline, bid-ask spread sanity, and
// position-to-exit ratio.
func (q *Qualifier) buildValidatedSignal(ctx context.Context, sig domain.Signal) domain.Signal {
	var checks []domain.SafetyCheck

	staleOK := time.Since(sig.CreatedAt) <= 2*time.Minute
	checks = append(checks, domain.SafetyCheck{Name: "stale_data", Passed: staleOK,
		Detail: fmt.Sprintf("age=%s", time.Since(sig.CreatedAt))})

	depthOK := q.checkDepthVsBaseline(ctx, sig)
	checks = append(checks, domain.SafetyCheck{Name: "depth_vs_baseline", Passed: depthOK})

	spreadSaneOK := sig.BuyPrice > 0 && sig.SellPrice > sig.BuyPrice
	checks = append(checks, domain.SafetyCheck{Name: "bid_ask_sanity", Passed: spreadSaneOK})

	exitUSD := sig.BuyExitUSD
	if sig.SellExitUSD < exitUSD {
		exitUSD = sig.SellExitUSD
	}
	ratioOK := sig.FallbackSignal || (exitUSD > 0 && sig.MaxEntryUSD/exitUSD <= 2.0)
	checks = append(checks, domain.SafetyCheck{Name: "position_to_exit_ratio", Passed: ratioOK,
		Detail: fmt.Sprintf("entry=%.2f exit=%.2f", sig.MaxEntryUSD, exitUSD)})

	sig.SafetyChecks = checks
	if sig.SignalType == "" || sig.SignalType == domain.SignalAuto {
		if isLaggingPair(sig) {
			sig.SignalType = domain.SignalLagging
		}
	}
	return sig
}

// checkDepthVsBaseline compares the most recent depth_history:<venue_id>
// samples (written by the analyzer, spec §4.5 step 7) against the exit
// depth this signal reports, rejecting a collapse of more than half.
func (q *Qualifier) checkDepthVsBaseline(ctx context.Context, sig domain.Signal) bool {
	if sig.FallbackSignal {
		return true
	}
	for _, v := range []struct {
		venueID string
		exitUSD float64
	}{
		{sig.LowVenue.ID(), sig.BuyExitUSD},
		{sig.HighVenue.ID(), sig.SellExitUSD},
	} {
		recent, err := q.kvStore.ZRangeByScore(ctx, "depth_history:"+v.venueID, 0, float64(time.Now().UnixNano()))
		if err != nil || len(recent) == 0 {
			continue // no baseline yet; don't reject for lack of history
		}
		baseline := averageDepthSample(recent)
		if baseline > 0 && v.exitUSD < baseline*0.5 {
			return false
		}
	}
	return true
}

// isLaggingPair flags a pair where one leg is a DEX venue, which tends to
// lag CEX price discovery (spec §4.6 lagging-signal note).
func isLaggingPair(sig domain.Signal) bool {
	return sig.LowVenue.IsOnChain() != sig.HighVenue.IsOnChain()
}

func (q *Qualifier) typeEnabled(t domain.SignalType) bool {
	switch t {
	case domain.SignalAuto:
		return q.cfg.EnableAutoSignals
	case domain.SignalManual:
		return q.cfg.EnableManualSignals
	case domain.SignalLagging:
		return q.cfg.EnableLaggingSignals
	default:
		return true
	}
}

func (q *Qualifier) persist(ctx context.Context, sig domain.Signal) error {
	rec := &storage.SignalRecord{
		ID: sig.ID, Strategy: sig.StrategyType, Class: string(sig.SignalType),
		Symbol: sig.Symbol, Details: signalDetailsJSON(sig), Status: "sent", SentAt: sig.CreatedAt,
	}
	if err := q.signals.Create(ctx, rec); err != nil {
		return &corefail.PersistenceFailure{Operation: "signals.Create", Cause: err}
	}
	return nil
}

// bufferForGroup buffers sig under its symbol and (re)arms a groupWindow
// timer; when the timer fires every signal buffered for that symbol in the
// meantime is flushed as one group, matching spec §4.6 step 7's "best pair
// primary + up to 4 alternatives".
func (q *Qualifier) bufferForGroup(ctx context.Context, sig domain.Signal) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[sig.Symbol] = append(q.pending[sig.Symbol], sig)
	if t, armed := q.timers[sig.Symbol]; armed {
		t.Stop()
	}
	q.timers[sig.Symbol] = time.AfterFunc(groupWindow, func() { q.flushGroup(ctx, sig.Symbol) })
}

// flushGroup emits whatever is buffered for symbol as a single group.
func (q *Qualifier) flushGroup(ctx context.Context, symbol string) {
	q.mu.Lock()
	batch := q.pending[symbol]
	delete(q.pending, symbol)
	delete(q.timers, symbol)
	q.mu.Unlock()

	if group := buildGroup(batch); group != nil {
		q.emit(ctx, *group)
	}
}

type signalGroup struct {
	Symbol     string
	Primary    domain.Signal
	Alternates []domain.Signal
}

// buildGroup picks the highest real_pct as primary, keeping up to
// maxAlternates runner-ups.
func buildGroup(signals []domain.Signal) *signalGroup {
	if len(signals) == 0 {
		return nil
	}
	sort.Slice(signals, func(i, j int) bool { return signals[i].RealPct > signals[j].RealPct })
	alt := signals[1:]
	if len(alt) > maxAlternates {
		alt = alt[:maxAlternates]
	}
	return &signalGroup{Symbol: signals[0].Symbol, Primary: signals[0], Alternates: alt}
}

// emit formats and dispatches a group, then records the outcome (spec §4.6
// steps 8-9).
func (q *Qualifier) emit(ctx context.Context, group signalGroup) {
	text, markup := formatAlert(group)
	msgID, ok, err := q.notifier.SendAlert(ctx, q.cfg.AlertChatID, text, markup)
	if err != nil || !ok {
		// NotifierFailure is terminal for this alert; the cooldown was
		// never set for this match (it's only armed in recordOutcome,
		// after a confirmed send), so the next match is free to retry
		// immediately, per spec §7.
		q.log.Warn("notifier send failed", zap.String("signal_id", group.Primary.ID), zap.Error(err))
		return
	}

	if err := q.signals.SetTelegramMsgID(ctx, group.Primary.ID, msgID); err != nil {
		q.log.Warn("persisting telegram_msg_id failed", zap.String("signal_id", group.Primary.ID), zap.Error(err))
	}

	if q.broadcast != nil {
		q.broadcast.BroadcastSignalEmitted(group.Primary)
	}

	q.recordOutcome(ctx, group.Primary)
}

// recordOutcome arms the cooldown, starts a Tracking, enables spread-history
// recording, and appends to the bounded alerts:processed set (spec §4.6
// step 9). Only reached after a confirmed send.
func (q *Qualifier) recordOutcome(ctx context.Context, sig domain.Signal) {
	q.armCooldown(ctx, sig)

	rec := &storage.TrackingRecord{
		SignalID: sig.ID, Symbol: sig.Symbol, PairID: sig.PairID, Strategy: sig.StrategyType,
		EntrySpreadPct: sig.RealPct, LastSpreadPct: sig.RealPct,
		MinSpreadPct: sig.RealPct, MaxSpreadPct: sig.RealPct,
		Status: "tracking", StartedAt: sig.CreatedAt, LastObservedAt: sig.CreatedAt,
	}
	if err := q.trackings.Create(ctx, rec); err != nil {
		q.log.Warn("tracking create failed", zap.String("signal_id", sig.ID), zap.Error(err))
	}

	now := float64(time.Now().UnixNano())
	if err := q.kvStore.ZAdd(ctx, processedKey, kv.ZMember{Score: now, Member: sig.ID}); err == nil {
		_ = q.kvStore.ZRemRangeByRank(ctx, processedKey, processedCap)
	}
	_ = q.kvStore.ZAdd(ctx, fmt.Sprintf("spread_history:%s:%s", sig.PairID, sig.Symbol),
		kv.ZMember{Score: now, Member: fmt.Sprintf("%f", sig.RealPct)})
	q.incrStat(ctx, "emitted")
}

// reject logs and counts a rejection, then persists it to spread_log with
// passed_validation=false and the reason, per spec §4.6 ("logged to durable
// store with reason") and the §6 spread_log schema.
func (q *Qualifier) reject(ctx context.Context, sig domain.Signal, reason string) {
	q.log.Info("signal rejected", zap.String("symbol", sig.Symbol), zap.String("reason", reason))
	q.incrStat(ctx, "rejected")

	if q.spreadLog == nil {
		return
	}
	rec := &storage.SpreadLogRecord{
		Ts: sig.CreatedAt, Symbol: sig.Symbol, Strategy: sig.StrategyType,
		LowVenue: sig.LowVenue.ID(), HighVenue: sig.HighVenue.ID(),
		LowPrice: sig.BuyPrice, HighPrice: sig.SellPrice, SpreadPct: sig.RealPct,
		PassedValidation: false,
		RejectionReason:  sql.NullString{String: reason, Valid: true},
	}
	if sig.ID != "" {
		rec.SignalID = sql.NullString{String: sig.ID, Valid: true}
	}
	if err := q.spreadLog.Create(ctx, rec); err != nil {
		q.log.Warn("persisting rejection to spread_log failed", zap.String("symbol", sig.Symbol), zap.Error(err))
	}
}

func (q *Qualifier) incrStat(ctx context.Context, field string) {
	_ = q.kvStore.HSet(ctx, statsKey, field, fmt.Sprintf("%d", time.Now().Unix()))
}

func shortID(sig domain.Signal) string {
	prefix := sig.StrategyType
	if prefix == "" {
		prefix = "SG"
	}
	return prefix + uuid.NewString()[:8]
}

func formatAlert(group signalGroup) (string, interface{}) {
	p := group.Primary
	text := fmt.Sprintf("%s %s: %.2f%% real spread (%.2f%% nominal), suggest $%.0f",
		p.Symbol, p.StrategyType, p.RealPct, p.NominalPct, p.SuggestedUSD)
	for _, alt := range group.Alternates {
		text += fmt.Sprintf("\n  alt %s: %.2f%%", alt.StrategyType, alt.RealPct)
	}
	return text, nil
}

func signalDetailsJSON(sig domain.Signal) string {
	return fmt.Sprintf(`{"pair_id":%q,"low_venue":%q,"high_venue":%q,"real_pct":%.4f,"nominal_pct":%.4f,"suggested_usd":%.2f}`,
		sig.PairID, sig.LowVenue.ID(), sig.HighVenue.ID(), sig.RealPct, sig.NominalPct, sig.SuggestedUSD)
}

func averageDepthSample(samples []string) float64 {
	var total float64
	var n int
	for _, s := range samples {
		var ts int64
		var usd float64
		if _, err := fmt.Sscanf(s, "%d:%f", &ts, &usd); err == nil {
			total += usd
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}
