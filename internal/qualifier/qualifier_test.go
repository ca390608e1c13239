package qualifier

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"

	"arbitrage/internal/domain"
	"arbitrage/internal/kv"
	"arbitrage/internal/storage"
)

// newEmitBackedQualifier returns a Qualifier whose SignalStore/TrackingStore
// are backed by a sqlmock *sql.DB that accepts any telegram_msg_id update
// and any tracking insert, so recordOutcome's persistence calls succeed
// without a real Postgres instance.
func newEmitBackedQualifier(t *testing.T, notifier Notifier, cfg Config) *Qualifier {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("UPDATE signals SET telegram_msg_id")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO spread_convergence")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := kv.NewMemoryStore()
	return New(kv.NewQueue(store, "signals:pending", 500), store,
		storage.NewSignalStore(db), storage.NewTrackingStore(db), nil, notifier, cfg, zap.NewNop())
}

type fakeNotifier struct {
	sent  []string
	msgID int64
	fail  bool
}

func (f *fakeNotifier) SendAlert(ctx context.Context, chatID, text string, markup interface{}) (int64, bool, error) {
	if f.fail {
		return 0, false, nil
	}
	f.sent = append(f.sent, text)
	f.msgID++
	return f.msgID, true, nil
}

func testConfig() Config {
	return Config{
		CooldownSec: 300, LaggingCooldownSec: 600,
		MinSpreadPct: 1.0, EnableAutoSignals: true, EnableManualSignals: true,
		EnableLaggingSignals: true, AlertChatID: "chat1", Workers: 1,
	}
}

func baseSignal() domain.Signal {
	return domain.Signal{
		Symbol: "ETH", PairID: "p1",
		LowVenue: domain.CexSpot("bybit", "ETHUSDT"), HighVenue: domain.CexSpot("okx", "ETH-USDT"),
		BuyPrice: 3000, SellPrice: 3100, NominalPct: 3.3, RealPct: 3.0,
		MaxEntryUSD: 1000, BuyExitUSD: 5000, SellExitUSD: 5000,
		SignalType: domain.SignalAuto, CreatedAt: time.Now(),
	}
}

func TestQualifier_RejectsBlacklistedSymbol(t *testing.T) {
	store := kv.NewMemoryStore()
	if err := store.SAdd(context.Background(), "blacklist:symbols", "ETH"); err != nil {
		t.Fatalf("seed blacklist: %v", err)
	}
	notifier := &fakeNotifier{}
	q := New(kv.NewQueue(store, "signals:pending", 500), store,
		storage.NewSignalStore(nil), storage.NewTrackingStore(nil), nil, notifier, testConfig(), zap.NewNop())

	q.handle(context.Background(), baseSignal())

	if len(notifier.sent) != 0 {
		t.Errorf("expected no alert dispatched for a blacklisted symbol, got %v", notifier.sent)
	}
}

func TestQualifier_CooldownBlocksSecondEmission(t *testing.T) {
	store := kv.NewMemoryStore()
	cfg := testConfig()
	q := New(kv.NewQueue(store, "signals:pending", 500), store,
		&noopSignalStore, &noopTrackingStore, nil, &fakeNotifier{}, cfg, zap.NewNop())

	sig := baseSignal()
	key := "alert:cooldown:" + sig.Symbol + ":" + sig.PairID
	if err := store.Set(context.Background(), key, "x", time.Duration(cfg.CooldownSec)*time.Second); err != nil {
		t.Fatalf("seed cooldown: %v", err)
	}

	active, err := q.cooldownActive(context.Background(), sig)
	if err != nil {
		t.Fatalf("cooldownActive: %v", err)
	}
	if !active {
		t.Error("expected cooldown already held, cooldownActive should report true")
	}
}

func TestQualifier_CooldownNotArmedWhenSendFails(t *testing.T) {
	cfg := testConfig()
	q := newEmitBackedQualifier(t, &fakeNotifier{fail: true}, cfg)

	sig := baseSignal()
	q.emit(context.Background(), signalGroup{Symbol: sig.Symbol, Primary: sig})

	active, err := q.cooldownActive(context.Background(), sig)
	if err != nil {
		t.Fatalf("cooldownActive: %v", err)
	}
	if active {
		t.Error("expected no cooldown to be armed when SendAlert fails, so the next match can retry immediately")
	}
}

func TestQualifier_CooldownArmedAfterConfirmedSend(t *testing.T) {
	cfg := testConfig()
	q := newEmitBackedQualifier(t, &fakeNotifier{}, cfg)

	sig := baseSignal()
	q.emit(context.Background(), signalGroup{Symbol: sig.Symbol, Primary: sig})

	active, err := q.cooldownActive(context.Background(), sig)
	if err != nil {
		t.Fatalf("cooldownActive: %v", err)
	}
	if !active {
		t.Error("expected cooldown to be armed after a confirmed send")
	}
}

func TestQualifier_RejectsBelowSpreadFloor(t *testing.T) {
	store := kv.NewMemoryStore()
	cfg := testConfig()
	cfg.MinSpreadPct = 5.0
	q := New(kv.NewQueue(store, "signals:pending", 500), store,
		&noopSignalStore, &noopTrackingStore, nil, &fakeNotifier{}, cfg, zap.NewNop())

	sig := q.buildValidatedSignal(context.Background(), baseSignal())
	if sig.RealPct >= cfg.MinSpreadPct {
		t.Fatalf("test fixture should be below the floor: %v >= %v", sig.RealPct, cfg.MinSpreadPct)
	}

	q.handle(context.Background(), baseSignal())
	counters, err := store.HGetAll(context.Background(), statsKey)
	if err != nil {
		t.Fatalf("HGetAll: %v", err)
	}
	if _, ok := counters["rejected"]; !ok {
		t.Error("expected a signal below min_spread_pct to be rejected")
	}
}

func TestQualifier_SafetyRejectsInvertedPrices(t *testing.T) {
	q := New(nil, kv.NewMemoryStore(), &noopSignalStore, &noopTrackingStore, nil, &fakeNotifier{}, testConfig(), zap.NewNop())

	sig := baseSignal()
	sig.SellPrice = sig.BuyPrice - 1 // sell below buy: nonsensical

	validated := q.buildValidatedSignal(context.Background(), sig)
	if validated.Passed() {
		t.Error("expected bid_ask_sanity predicate to fail for inverted prices")
	}
}

func TestQualifier_RejectPersistsSpreadLogRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO spread_log")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	store := kv.NewMemoryStore()
	q := New(kv.NewQueue(store, "signals:pending", 500), store,
		&noopSignalStore, &noopTrackingStore, storage.NewSpreadLogStore(db), &fakeNotifier{}, testConfig(), zap.NewNop())

	q.reject(context.Background(), baseSignal(), "below min_spread_pct")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestBuildGroup_PicksHighestRealPctAsPrimary(t *testing.T) {
	low := baseSignal()
	low.RealPct = 1.0
	high := baseSignal()
	high.RealPct = 4.0

	group := buildGroup([]domain.Signal{low, high})
	if group == nil {
		t.Fatal("expected a non-nil group")
	}
	if group.Primary.RealPct != 4.0 {
		t.Errorf("Primary.RealPct = %v, want 4.0", group.Primary.RealPct)
	}
	if len(group.Alternates) != 1 {
		t.Errorf("len(Alternates) = %d, want 1", len(group.Alternates))
	}
}

func TestShortID_UsesStrategyTypePrefix(t *testing.T) {
	sig := baseSignal()
	sig.StrategyType = "SS"
	id := shortID(sig)
	if len(id) != len("SS")+8 {
		t.Errorf("shortID length = %d, want %d", len(id), len("SS")+8)
	}
	if id[:2] != "SS" {
		t.Errorf("shortID = %q, want SS prefix", id)
	}
}

var noopSignalStore = storage.SignalStore{}
var noopTrackingStore = storage.TrackingStore{}
