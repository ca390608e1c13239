package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"

	"arbitrage/internal/domain"
	"arbitrage/internal/spread"
	"arbitrage/internal/storage"
)

type fakeNotifier struct {
	sent []string
}

func (f *fakeNotifier) SendAlert(ctx context.Context, chatID, text string, markup interface{}) (int64, bool, error) {
	f.sent = append(f.sent, text)
	return 1, true, nil
}

func newTestTracker(t *testing.T) (*Tracker, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	tr := New(
		storage.NewTrackingStore(db), storage.NewSnapshotStore(db), storage.NewAnalysisStore(db),
		storage.NewSignalStore(db), spread.NewTracker(1), &fakeNotifier{}, nil,
		Config{AlertChatID: "ops"}, zap.NewNop(),
	)
	return tr, mock, func() { db.Close() }
}

func TestCheckIntervalFor_MatchesAdaptiveSchedule(t *testing.T) {
	cases := []struct {
		age  time.Duration
		want time.Duration
	}{
		{time.Minute, 5 * time.Second},
		{10 * time.Minute, 30 * time.Second},
		{time.Hour, 60 * time.Second},
		{10 * time.Hour, 300 * time.Second},
		{48 * time.Hour, 900 * time.Second},
	}
	for _, tc := range cases {
		if got := checkIntervalFor(tc.age); got != tc.want {
			t.Errorf("checkIntervalFor(%v) = %v, want %v", tc.age, got, tc.want)
		}
	}
}

func TestIsDue_FirstCheckAlwaysDue(t *testing.T) {
	tk := &domain.Tracking{StartedAt: time.Now()}
	if !isDue(tk, time.Now()) {
		t.Error("a tracking with no prior check must be due immediately")
	}
}

func TestIsDue_RespectsInterval(t *testing.T) {
	now := time.Now()
	tk := &domain.Tracking{StartedAt: now.Add(-time.Minute), LastCheckedAt: now.Add(-2 * time.Second)}
	if isDue(tk, now) {
		t.Error("a tracking checked 2s ago (age<5min => 5s interval) should not be due yet")
	}
	tk.LastCheckedAt = now.Add(-6 * time.Second)
	if !isDue(tk, now) {
		t.Error("a tracking checked 6s ago (age<5min => 5s interval) should be due")
	}
}

func TestClassifyConvergence_ArbActivity(t *testing.T) {
	got := classifyConvergence(0.2, -0.1, -40, -5, 10)
	if got != domain.ReasonArbActivity {
		t.Errorf("classifyConvergence = %v, want arb_activity", got)
	}
}

func TestClassifyConvergence_Unknown(t *testing.T) {
	got := classifyConvergence(0.3, -0.2, -1, -1, 60)
	if got != domain.ReasonUnknown {
		t.Errorf("classifyConvergence = %v, want unknown", got)
	}
}

func TestClassifyConvergence_BuyUp(t *testing.T) {
	got := classifyConvergence(2.5, 0.3, -1, -1, 60)
	if got != domain.ReasonBuyUp {
		t.Errorf("classifyConvergence = %v, want buy_up", got)
	}
}

func TestClassifyConvergence_SellDown(t *testing.T) {
	got := classifyConvergence(0.3, -2.5, -1, -1, 60)
	if got != domain.ReasonSellDown {
		t.Errorf("classifyConvergence = %v, want sell_down", got)
	}
}

func TestClassifyConvergence_Both(t *testing.T) {
	got := classifyConvergence(1.5, -1.8, -1, -1, 60)
	if got != domain.ReasonBoth {
		t.Errorf("classifyConvergence = %v, want both", got)
	}
}

func TestPctChange_ZeroBaseAvoidsDivideByZero(t *testing.T) {
	if got := pctChange(0, 100); got != 0 {
		t.Errorf("pctChange(0, 100) = %v, want 0", got)
	}
	if got := pctChange(50, 100); got != 100 {
		t.Errorf("pctChange(50, 100) = %v, want 100", got)
	}
}

func TestCurrentQuotes_MatchesBothVenuesBySymbol(t *testing.T) {
	tr, _, cleanup := newTestTracker(t)
	defer cleanup()

	tr.prices.Update(domain.Quote{VenueID: "cex_spot:binance:BTCUSDT", Symbol: "BTCUSDT", Bid: 100, Ask: 101})
	tr.prices.Update(domain.Quote{VenueID: "cex_spot:kraken:BTCUSDT", Symbol: "BTCUSDT", Bid: 103, Ask: 104})

	buy, sell, ok := tr.currentQuotes("BTCUSDT", "cex_spot:binance:BTCUSDT", "cex_spot:kraken:BTCUSDT")
	if !ok {
		t.Fatal("expected both quotes to be found")
	}
	if buy.Ask != 101 || sell.Bid != 103 {
		t.Errorf("currentQuotes = buy %+v sell %+v, unexpected values", buy, sell)
	}
}

func TestCurrentQuotes_MissingVenueIsNotOK(t *testing.T) {
	tr, _, cleanup := newTestTracker(t)
	defer cleanup()

	tr.prices.Update(domain.Quote{VenueID: "cex_spot:binance:BTCUSDT", Symbol: "BTCUSDT", Bid: 100, Ask: 101})

	_, _, ok := tr.currentQuotes("BTCUSDT", "cex_spot:binance:BTCUSDT", "cex_spot:kraken:BTCUSDT")
	if ok {
		t.Error("expected ok=false when one venue has no recorded quote")
	}
}

func TestVenueIDsFor_ParsesSignalDetails(t *testing.T) {
	tr, mock, cleanup := newTestTracker(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{
		"id", "strategy", "class", "symbol", "details", "telegram_msg_id", "status", "sent_at", "taken_at", "closed_at",
	}).AddRow("sig-1", "spot_futures", "auto", "BTCUSDT",
		`{"pair_id":"p","low_venue":"cex_spot:binance:BTCUSDT","high_venue":"cex_spot:kraken:BTCUSDT","real_pct":1,"nominal_pct":1,"suggested_usd":1}`,
		nil, "sent", time.Now(), nil, nil)
	mock.ExpectQuery(`SELECT (.+) FROM signals`).WithArgs("sig-1").WillReturnRows(rows)

	low, high, err := tr.venueIDsFor(context.Background(), "sig-1")
	if err != nil {
		t.Fatalf("venueIDsFor: %v", err)
	}
	if low != "cex_spot:binance:BTCUSDT" || high != "cex_spot:kraken:BTCUSDT" {
		t.Errorf("venueIDsFor = (%q, %q), unexpected", low, high)
	}
}

func TestMaybeAlertDivergence_RateLimited(t *testing.T) {
	tr, _, cleanup := newTestTracker(t)
	defer cleanup()
	tr.cfg.DivergenceAlertRateLimit = time.Hour

	tk := &domain.Tracking{SignalID: "sig-1", Symbol: "BTCUSDT", CurrentSpread: 5, InitialSpread: 2}
	now := time.Now()

	tr.maybeAlertDivergence(context.Background(), tk, now)
	fn := tr.notifier.(*fakeNotifier)
	if len(fn.sent) != 1 {
		t.Fatalf("expected 1 alert sent, got %d", len(fn.sent))
	}

	tr.maybeAlertDivergence(context.Background(), tk, now.Add(time.Minute))
	if len(fn.sent) != 1 {
		t.Errorf("expected rate limit to suppress the second alert, got %d sent", len(fn.sent))
	}

	tr.maybeAlertDivergence(context.Background(), tk, now.Add(2*time.Hour))
	if len(fn.sent) != 2 {
		t.Errorf("expected the alert to fire again after the rate limit window, got %d sent", len(fn.sent))
	}
}

func TestRunAnalysis_NoSnapshotsIsNoop(t *testing.T) {
	tr, mock, cleanup := newTestTracker(t)
	defer cleanup()

	ts := &trackedSignal{tracking: &domain.Tracking{SignalID: "sig-1"}}
	tr.runAnalysis(context.Background(), ts)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected no DB calls without snapshots, got: %v", err)
	}
}

func TestRunAnalysis_PersistsClassification(t *testing.T) {
	tr, mock, cleanup := newTestTracker(t)
	defer cleanup()

	first := time.Now().Add(-20 * time.Minute)
	last := time.Now()
	ts := &trackedSignal{
		tracking: &domain.Tracking{SignalID: "sig-1", ChecksCount: 3},
		firstSnapshot: &domain.Snapshot{SignalID: "sig-1", SnapshotAt: first, BuyAsk: 100, SellBid: 103, BuyDepthUSD: 1000, SellDepthUSD: 1000},
		lastSnapshot:  &domain.Snapshot{SignalID: "sig-1", SnapshotAt: last, BuyAsk: 103, SellBid: 103.5, BuyDepthUSD: 1000, SellDepthUSD: 1000},
	}

	mock.ExpectExec(`INSERT INTO convergence_analysis`).WillReturnResult(sqlmock.NewResult(1, 1))

	tr.runAnalysis(context.Background(), ts)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
