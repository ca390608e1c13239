package config

import (
	"context"
	"testing"
	"time"
)

type fakeKVReader struct {
	fields map[string]string
	err    error
}

func (f *fakeKVReader) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fields, nil
}

func TestHotReload_CurrentReturnsBaseBeforeAnyReload(t *testing.T) {
	base := PipelineConfig{MinSpreadPct: 2.0, CooldownSec: 300}
	h := NewHotReload(&fakeKVReader{}, base)

	got := h.Current()
	if got.MinSpreadPct != 2.0 || got.CooldownSec != 300 {
		t.Fatalf("Current() = %+v, want base %+v", got, base)
	}
}

func TestHotReload_ReloadAppliesRecognisedOverrides(t *testing.T) {
	base := PipelineConfig{MinSpreadPct: 2.0, CooldownSec: 300, EnableLaggingSignals: true}
	kv := &fakeKVReader{fields: map[string]string{
		"min_spread_pct":         "3.5",
		"alert_cooldown_seconds": "600",
		"enable_lagging_signals": "false",
		"unrecognised_key":       "whatever",
	}}
	h := NewHotReload(kv, base)
	h.reload(context.Background())

	got := h.Current()
	if got.MinSpreadPct != 3.5 {
		t.Errorf("MinSpreadPct = %v, want 3.5", got.MinSpreadPct)
	}
	if got.CooldownSec != 600 {
		t.Errorf("CooldownSec = %v, want 600", got.CooldownSec)
	}
	if got.EnableLaggingSignals != false {
		t.Errorf("EnableLaggingSignals = %v, want false", got.EnableLaggingSignals)
	}
}

func TestHotReload_ReloadLeavesFieldsUnsetByOverlayAtBase(t *testing.T) {
	base := PipelineConfig{MaxPositionSizeUSD: 50_000}
	kv := &fakeKVReader{fields: map[string]string{"min_spread_pct": "1.0"}}
	h := NewHotReload(kv, base)
	h.reload(context.Background())

	got := h.Current()
	if got.MaxPositionSizeUSD != 50_000 {
		t.Errorf("MaxPositionSizeUSD = %v, want unchanged base 50000", got.MaxPositionSizeUSD)
	}
}

func TestHotReload_ReloadIgnoresUnparsableValues(t *testing.T) {
	base := PipelineConfig{MinSpreadPct: 2.0}
	kv := &fakeKVReader{fields: map[string]string{"min_spread_pct": "not-a-number"}}
	h := NewHotReload(kv, base)
	h.reload(context.Background())

	if got := h.Current().MinSpreadPct; got != 2.0 {
		t.Errorf("MinSpreadPct = %v, want base 2.0 preserved on parse failure", got)
	}
}

func TestHotReload_ReloadOnErrorKeepsPreviousConfig(t *testing.T) {
	base := PipelineConfig{MinSpreadPct: 2.0}
	kv := &fakeKVReader{fields: map[string]string{"min_spread_pct": "9.0"}}
	h := NewHotReload(kv, base)
	h.reload(context.Background())
	if got := h.Current().MinSpreadPct; got != 9.0 {
		t.Fatalf("setup: MinSpreadPct = %v, want 9.0", got)
	}

	kv.err = context.DeadlineExceeded
	h.reload(context.Background())
	if got := h.Current().MinSpreadPct; got != 9.0 {
		t.Errorf("MinSpreadPct = %v, want previous 9.0 preserved on read error", got)
	}
}

func TestHotReload_RunStopsOnContextCancel(t *testing.T) {
	h := NewHotReload(&fakeKVReader{}, PipelineConfig{})
	h.interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
