package config

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"
)

// settingsHashKey is the KV hash holding per-key overrides for the
// recognised PipelineConfig options (spec §6 "Configuration"), polled by
// HotReload so operators can change thresholds without a restart.
const settingsHashKey = "settings:config"

// kvReader is the narrow read surface HotReload needs, defined locally so
// this package never imports internal/kv directly.
type kvReader interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// HotReload polls settingsHashKey on an interval and overlays recognised
// fields on top of a base PipelineConfig, publishing the merged result via
// atomic.Value so readers never observe a partially-applied update.
type HotReload struct {
	kv       kvReader
	base     PipelineConfig
	interval time.Duration
	current  atomic.Value // PipelineConfig
}

// NewHotReload returns a HotReload seeded with base, unstarted until Run is
// called.
func NewHotReload(kv kvReader, base PipelineConfig) *HotReload {
	h := &HotReload{kv: kv, base: base, interval: 30 * time.Second}
	h.current.Store(base)
	return h
}

// Current returns the most recently merged PipelineConfig.
func (h *HotReload) Current() PipelineConfig {
	return h.current.Load().(PipelineConfig)
}

// Run polls settingsHashKey every 30s, applying overrides on top of the
// base config, until ctx is cancelled. A failed read or an empty hash
// leaves the previously published config in place; otherwise every value
// that parses is applied, and a value that does not parse leaves its field
// at the base default while the rest of the overlay is still published.
func (h *HotReload) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.reload(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.reload(ctx)
		}
	}
}

func (h *HotReload) reload(ctx context.Context) {
	fields, err := h.kv.HGetAll(ctx, settingsHashKey)
	if err != nil || len(fields) == 0 {
		return
	}

	cfg := h.base
	applyOverrides(&cfg, fields)
	h.current.Store(cfg)
}

// applyOverrides maps the spec §6 recognised option names onto
// PipelineConfig fields. Unrecognised keys and unparsable values are
// ignored, leaving the base default in place for that field.
func applyOverrides(cfg *PipelineConfig, fields map[string]string) {
	if v, ok := parseFloat(fields, "min_spread_pct"); ok {
		cfg.MinSpreadPct = v
	}
	if v, ok := parseFloat(fields, "max_slippage_pct"); ok {
		cfg.MaxSlippagePct = v
	}
	if v, ok := parseInt(fields, "alert_cooldown_seconds"); ok {
		cfg.CooldownSec = v
	}
	if v, ok := parseInt64(fields, "max_price_age_ms"); ok {
		cfg.MaxPriceAgeMs = v
	}
	if v, ok := parseFloat(fields, "suggested_position_usd"); ok {
		cfg.SuggestedPositionUSD = v
	}
	if v, ok := parseFloat(fields, "max_position_size_usd"); ok {
		cfg.MaxPositionSizeUSD = v
	}
	if v, ok := parseFloat(fields, "min_exit_liquidity_usd"); ok {
		cfg.MinExitLiquidityUSD = v
	}
	if v, ok := parseFloat(fields, "min_dex_liquidity_usd"); ok {
		cfg.MinDexLiquidityUSD = v
	}
	if v, ok := parseFloat(fields, "high_spread_threshold"); ok {
		cfg.HighSpreadThreshold = v
	}
	if v, ok := parseFloat(fields, "medium_spread_threshold"); ok {
		cfg.MediumSpreadThreshold = v
	}
	if v, ok := parseBool(fields, "enable_auto_signals"); ok {
		cfg.EnableAutoSignals = v
	}
	if v, ok := parseBool(fields, "enable_manual_signals"); ok {
		cfg.EnableManualSignals = v
	}
	if v, ok := parseBool(fields, "enable_lagging_signals"); ok {
		cfg.EnableLaggingSignals = v
	}
	if v, ok := parseInt(fields, "price_update_interval_sec"); ok {
		cfg.PriceInterval = time.Duration(v) * time.Second
	}
	if v, ok := parseInt(fields, "ticker_discovery_interval_hours"); ok {
		cfg.TickerDiscoveryInterval = time.Duration(v) * time.Hour
	}
}

func parseFloat(fields map[string]string, key string) (float64, bool) {
	raw, ok := fields[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	return v, err == nil
}

func parseInt(fields map[string]string, key string) (int, bool) {
	raw, ok := fields[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	return v, err == nil
}

func parseInt64(fields map[string]string, key string) (int64, bool) {
	raw, ok := fields[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	return v, err == nil
}

func parseBool(fields map[string]string, key string) (bool, bool) {
	raw, ok := fields[key]
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	return v, err == nil
}
