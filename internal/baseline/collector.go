// Package baseline implements C9 BaselineCollector: a two-tier per-hour
// spread distribution rollup (KV hot tier, durable cold tier), grounded on
// internal/repository/stats_repository.go's intended aggregate-from-raw-rows
// shape and the teacher's conflict-preserving upsert pattern generalized
// from trade counters to spread percentiles.
package baseline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"arbitrage/internal/domain"
	"arbitrage/internal/kv"
	"arbitrage/internal/storage"
)

const hotKeyPrefix = "baseline:hot"

// Config holds C9's tunables.
type Config struct {
	SweepInterval time.Duration // periodic stale-bucket sweep cadence, default 1m
	HotTTL        time.Duration // hot bucket TTL, default 2h (spec §4.9)
	Retention     time.Duration // cold retention, default domain.BaselineRetentionHours
}

type bucketKey struct {
	pairID, symbol string
	hour           int64
}

// Broadcaster pushes a baseline_flushed event to connected dashboard clients.
type Broadcaster interface {
	BroadcastBaselineFlushed(b domain.BaselineBucket)
}

// Collector runs the hourly hot->cold flush.
type Collector struct {
	kvStore   kv.Store
	store     *storage.BaselineStore
	broadcast Broadcaster
	cfg       Config
	log       *zap.Logger

	mu     sync.Mutex
	active map[string]bucketKey // "pair:symbol" -> most recent hour seen
}

// SetBroadcaster wires the dashboard hub after construction.
func (c *Collector) SetBroadcaster(b Broadcaster) {
	c.broadcast = b
}

// New returns a Collector.
func New(kvStore kv.Store, store *storage.BaselineStore, cfg Config, log *zap.Logger) *Collector {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.HotTTL <= 0 {
		cfg.HotTTL = 2 * time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = domain.BaselineRetentionHours * time.Hour
	}
	return &Collector{kvStore: kvStore, store: store, cfg: cfg, log: log, active: make(map[string]bucketKey)}
}

// Record appends one spread sample to the current hour's hot bucket (spec
// §4.9: "every C3 tick feeds C9"). When the wall-clock hour has advanced
// since this pair's last sample, the just-closed hour is flushed inline
// before the new sample is recorded.
func (c *Collector) Record(ctx context.Context, pairID, symbol string, spreadPct float64, at time.Time) error {
	hour := at.Unix() / 3600
	trackKey := pairID + ":" + symbol

	c.mu.Lock()
	prev, known := c.active[trackKey]
	c.active[trackKey] = bucketKey{pairID: pairID, symbol: symbol, hour: hour}
	c.mu.Unlock()

	if known && prev.hour != hour {
		c.flushBucket(ctx, prev.pairID, prev.symbol, prev.hour)
	}

	key := hotKey(pairID, symbol, hour)
	member := fmt.Sprintf("%d:%.6f", at.UnixNano(), spreadPct)
	if err := c.kvStore.ZAdd(ctx, key, kv.ZMember{Score: float64(at.UnixNano()), Member: member}); err != nil {
		return err
	}
	if err := c.kvStore.ZRemRangeByRank(ctx, key, domain.SamplesPerHourLimit); err != nil {
		return err
	}
	return c.kvStore.Expire(ctx, key, c.cfg.HotTTL)
}

// Run drives the periodic sweep: catches hour rollovers for pairs that
// stopped receiving samples (so Record's inline flush never fires for
// them) and purges cold buckets past retention.
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Collector) sweep(ctx context.Context) {
	now := time.Now()
	currentHour := now.Unix() / 3600

	c.mu.Lock()
	var stale []bucketKey
	for trackKey, b := range c.active {
		if b.hour < currentHour {
			stale = append(stale, b)
			delete(c.active, trackKey)
		}
	}
	c.mu.Unlock()

	for _, b := range stale {
		c.flushBucket(ctx, b.pairID, b.symbol, b.hour)
	}

	n, err := c.store.PurgeOlderThan(ctx, now.Add(-c.cfg.Retention))
	if err != nil {
		c.log.Warn("baseline purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		c.log.Info("purged expired baseline buckets", zap.Int64("count", n))
	}
}

// flushBucket aggregates one hour's hot samples and merges them into the
// durable store (spec §4.9's conflict-preserving upsert: running totals are
// combined, not overwritten, so a crash-and-replay or a second writer never
// loses samples already flushed).
func (c *Collector) flushBucket(ctx context.Context, pairID, symbol string, hour int64) {
	key := hotKey(pairID, symbol, hour)
	members, err := c.kvStore.ZRangeByScore(ctx, key, math.Inf(-1), math.Inf(1))
	if err != nil {
		c.log.Warn("baseline hot read failed", zap.String("pair_id", pairID), zap.Error(err))
		return
	}
	if len(members) == 0 {
		return
	}

	fresh := aggregate(pairID, symbol, hour, members)

	hourTime := time.Unix(hour*3600, 0).UTC()
	merged := fresh
	existing, err := c.store.GetBucket(ctx, pairID, symbol, hourTime)
	switch {
	case err == nil:
		merged = domain.MergeBaseline(fromRecord(existing), fresh)
	case err == storage.ErrBaselineNotFound:
		// first flush for this hour; nothing to merge with.
	default:
		c.log.Warn("baseline cold read failed", zap.String("pair_id", pairID), zap.Error(err))
		return
	}

	if err := c.store.Upsert(ctx, toRecord(merged, hourTime)); err != nil {
		c.log.Warn("baseline upsert failed", zap.String("pair_id", pairID), zap.Error(err))
		return
	}
	if err := c.kvStore.Del(ctx, key); err != nil {
		c.log.Warn("baseline hot key cleanup failed", zap.String("pair_id", pairID), zap.Error(err))
	}

	if c.broadcast != nil {
		c.broadcast.BroadcastBaselineFlushed(merged)
	}
}

// Window implements the consumer-facing `baseline(pair, symbol, days)`
// query (spec §4.9): the normal range (p5..p95 of per-hour averages),
// median, and sample count over the trailing window.
func (c *Collector) Window(ctx context.Context, pairID, symbol string, days int) (domain.BaselineWindow, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	recs, err := c.store.Window(ctx, pairID, symbol, since)
	if err != nil {
		return domain.BaselineWindow{}, err
	}

	w := domain.BaselineWindow{PairID: pairID, Symbol: symbol, Days: days, SampleCount: len(recs)}
	if len(recs) == 0 {
		return w, nil
	}

	hourlyAvgs := make([]float64, 0, len(recs))
	for _, r := range recs {
		hourlyAvgs = append(hourlyAvgs, r.AvgSpread)
	}
	sort.Float64s(hourlyAvgs)

	w.Sufficient = len(recs) >= 24
	w.Median = percentile(hourlyAvgs, 0.50)
	w.P5 = percentile(hourlyAvgs, 0.05)
	w.P95 = percentile(hourlyAvgs, 0.95)
	return w, nil
}

// aggregate parses a hot bucket's "<ts_nanos>:<spread_pct>" members into the
// hourly distribution summary spec §4.9 asks the cold tier to store.
func aggregate(pairID, symbol string, hour int64, members []string) domain.BaselineBucket {
	values := make([]float64, 0, len(members))
	for _, m := range members {
		_, rest, found := strings.Cut(m, ":")
		if !found {
			continue
		}
		v, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return domain.BaselineBucket{PairID: pairID, Symbol: symbol, HourBucket: hour}
	}
	sort.Float64s(values)

	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - avg
		variance += d * d
	}
	var stddev float64
	if len(values) > 1 {
		stddev = math.Sqrt(variance / float64(len(values)-1))
	}

	return domain.BaselineBucket{
		PairID: pairID, Symbol: symbol, HourBucket: hour,
		Samples: len(values), Avg: avg, Min: values[0], Max: values[len(values)-1],
		StdDev: stddev, P50: percentile(values, 0.50), P95: percentile(values, 0.95),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func toRecord(b domain.BaselineBucket, hourTime time.Time) *storage.BaselineRecord {
	return &storage.BaselineRecord{
		PairID: b.PairID, Symbol: b.Symbol, HourBucket: hourTime,
		SamplesN: int64(b.Samples), AvgSpread: b.Avg, MinSpread: b.Min, MaxSpread: b.Max,
		StddevSpread: b.StdDev, P50Spread: b.P50, P95Spread: b.P95,
	}
}

func fromRecord(rec *storage.BaselineRecord) domain.BaselineBucket {
	return domain.BaselineBucket{
		PairID: rec.PairID, Symbol: rec.Symbol, HourBucket: rec.HourBucket.Unix() / 3600,
		Samples: int(rec.SamplesN), Avg: rec.AvgSpread, Min: rec.MinSpread, Max: rec.MaxSpread,
		StdDev: rec.StddevSpread, P50: rec.P50Spread, P95: rec.P95Spread,
	}
}

func hotKey(pairID, symbol string, hour int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", hotKeyPrefix, pairID, symbol, hour)
}
