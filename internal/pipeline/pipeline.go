// Package pipeline wires C1-C12 into one running process: the generalized
// form of the teacher's bot.Engine. It owns the C3/C8/C9/C10/C11 periodic
// loops and the C5/C6 worker pools, constructs the queues that connect
// adjacent stages, and exposes a single Run(ctx) that powers both
// cmd/observatory and integration-style tests. Grounded on
// internal/bot/engine.go's Run (ticker-driven loops joined on one
// sync.WaitGroup, ctx.Done()-driven shutdown).
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gorilla/mux"

	"arbitrage/internal/analyzer"
	"arbitrage/internal/api"
	"arbitrage/internal/api/handlers"
	"arbitrage/internal/baseline"
	"arbitrage/internal/collector"
	"arbitrage/internal/config"
	"arbitrage/internal/domain"
	"arbitrage/internal/kv"
	"arbitrage/internal/notifier"
	"arbitrage/internal/position"
	"arbitrage/internal/qualifier"
	"arbitrage/internal/registry"
	"arbitrage/internal/stats"
	"arbitrage/internal/storage"
	"arbitrage/internal/tracker"
	"arbitrage/internal/venue"
	"arbitrage/internal/websocket"
)

const (
	orderbookQueueKey = "queue:orderbook_analysis"
	pendingSignalsKey = "signals:pending"
)

// Pipeline owns every stage's concrete instance and the background loops
// that drive them.
type Pipeline struct {
	cfg *config.Config
	log *zap.Logger

	store *storage.Store
	kv    kv.Store
	pool  *venue.Pool

	registry   *registry.Registry
	collector  *collector.Collector
	analyzer   *analyzer.Analyzer
	qualifier  *qualifier.Qualifier
	tracker    *tracker.Tracker
	baseline   *baseline.Collector
	stats      *stats.Service
	position   *position.Tracker
	notifier   *notifier.TelegramNotifier
	hub        *websocket.Hub
	hotReload  *config.HotReload

	signalStore *storage.SignalStore
}

// New assembles every component from cfg, wiring the shared live-quote
// cache, queues, and dashboard broadcaster between them. It does not start
// anything; call Run to begin serving.
func New(cfg *config.Config, log *zap.Logger) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}

	store, err := storage.Open(storage.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Name:            cfg.Database.Name,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	var kvStore kv.Store
	if cfg.Redis.Addr != "" {
		kvStore = kv.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	} else {
		kvStore = kv.NewMemoryStore()
	}

	pool, err := buildVenuePool()
	if err != nil {
		return nil, fmt.Errorf("build venue pool: %w", err)
	}

	reg := registry.New(pool)

	hub := websocket.NewHub()

	spreadLogStore := storage.NewSpreadLogStore(store.DB)
	baselineStore := storage.NewBaselineStore(store.DB)
	pairStatsStore := storage.NewPairStatsStore(store.DB)
	trackingStore := storage.NewTrackingStore(store.DB)
	snapshotStore := storage.NewSnapshotStore(store.DB)
	analysisStore := storage.NewAnalysisStore(store.DB)
	signalStore := storage.NewSignalStore(store.DB)
	positionStore := storage.NewPositionStore(store.DB)

	col := collector.New(pool, reg, spreadLogStore, kvStore, collector.Config{
		MaxPriceAgeMs:      cfg.Pipeline.MaxPriceAgeMs,
		MinDexLiquidityUSD: cfg.Pipeline.MinDexLiquidityUSD,
		OrderbookQueueCap:  int64(cfg.Pipeline.OrderbookQueueCapacity),
	}, log)

	baselineCol := baseline.New(kvStore, baselineStore, baseline.Config{
		Retention: time.Duration(cfg.Pipeline.BaselineRetentionHours) * time.Hour,
	}, log)
	baselineCol.SetBroadcaster(hubBroadcaster{hub})
	col.SetBaselineRecorder(baselineCol)

	obQueue := kv.NewQueue(kvStore, orderbookQueueKey, int64(cfg.Pipeline.OrderbookQueueCapacity))
	an := analyzer.New(pool, obQueue, kvStore, analyzer.Config{
		MaxSignalAge:    time.Duration(cfg.Pipeline.MaxSignalAgeSec) * time.Second,
		MaxSlipPct:      cfg.Pipeline.MaxSlippagePct,
		HardCap:         cfg.Pipeline.MaxPositionSizeUSD,
		PendingQueueCap: int64(cfg.Pipeline.PendingSignalsQueueCapacity),
	}, log)

	tg := notifier.New(notifier.Config{
		BotToken: cfg.Notifier.BotToken,
		Timeout:  cfg.Notifier.Timeout,
	}, log)

	pendingQueue := kv.NewQueue(kvStore, pendingSignalsKey, int64(cfg.Pipeline.PendingSignalsQueueCapacity))
	qual := qualifier.New(pendingQueue, kvStore, signalStore, trackingStore, spreadLogStore, tg, qualifier.Config{
		CooldownSec:          cfg.Pipeline.CooldownSec,
		LaggingCooldownSec:   cfg.Pipeline.LaggingCooldownSec,
		MinSpreadPct:         cfg.Pipeline.MinSpreadPct,
		MinExitLiquidityUSD:  cfg.Pipeline.MinExitLiquidityUSD,
		EnableAutoSignals:    cfg.Pipeline.EnableAutoSignals,
		EnableManualSignals:  cfg.Pipeline.EnableManualSignals,
		EnableLaggingSignals: cfg.Pipeline.EnableLaggingSignals,
		AlertChatID:          cfg.Notifier.AlertChatID,
	}, log)
	qual.SetBroadcaster(hubBroadcaster{hub})

	statsSvc := stats.New(trackingStore, pairStatsStore, hubBroadcaster{hub}, log)

	trk := tracker.New(trackingStore, snapshotStore, analysisStore, signalStore, col.PriceTracker(), tg, statsSvc, tracker.Config{
		BaseCheckInterval:        cfg.Pipeline.BaseCheckInterval,
		MaxTrackingHours:         cfg.Pipeline.MaxTrackingHours,
		ConvergenceRatio:         cfg.Pipeline.ConvergenceRatio,
		AbsoluteConvergencePct:   cfg.Pipeline.AbsoluteConvergencePct,
		DivergenceRatio:          cfg.Pipeline.DivergenceRatio,
		DivergenceAlertRateLimit: cfg.Pipeline.DivergenceAlertRateLimit,
		AlertChatID:              cfg.Notifier.AlertChatID,
	}, log)
	trk.SetBroadcaster(hubBroadcaster{hub})

	pos := position.New(positionStore, signalStore, col.PriceTracker(), tg, position.Config{
		CheckInterval: cfg.Pipeline.PositionCheckInterval,
	}, log)

	hotReload := config.NewHotReload(kvStore, cfg.Pipeline)

	return &Pipeline{
		cfg: cfg, log: log,
		store: store, kv: kvStore, pool: pool,
		registry: reg, collector: col, analyzer: an, qualifier: qual,
		tracker: trk, baseline: baselineCol, stats: statsSvc, position: pos,
		notifier: tg, hub: hub, hotReload: hotReload, signalStore: signalStore,
	}, nil
}

// buildVenuePool registers every IsSupportedExchange name as a CEX-spot
// adapter. The observatory ships only one REST endpoint template (Bybit's
// v5-compatible shape) for the six names, so a given exchange name can only
// back one VenueKind at a time without a second distinct Name() (e.g.
// "bybit-futures"); this pipeline keeps the default venue set CEX-spot-only
// and leaves multi-kind registration to an operator-supplied Pool for now
// (see DESIGN.md's venue-pool open question).
func buildVenuePool() (*venue.Pool, error) {
	pool := venue.NewPool()
	for _, name := range []string{"bybit", "bitget", "okx", "gate", "htx", "bingx"} {
		adapter, err := venue.NewCexAdapter(name, domain.VenueCexSpot)
		if err != nil {
			return nil, err
		}
		pool.Register(adapter)
	}
	return pool, nil
}

// hubBroadcaster satisfies stats.Broadcaster, qualifier.Broadcaster,
// tracker.Broadcaster, and baseline.Broadcaster by projecting each domain
// event onto its websocket wire envelope and pushing it through the shared
// dashboard hub.
type hubBroadcaster struct {
	hub *websocket.Hub
}

func (b hubBroadcaster) BroadcastPairStats(s *domain.PairStatistics) {
	b.hub.Broadcast(websocket.NewStatsUpdateMessage(s))
}

func (b hubBroadcaster) BroadcastSignalEmitted(sig domain.Signal) {
	b.hub.Broadcast(websocket.NewSignalEmittedMessage(sig))
}

func (b hubBroadcaster) BroadcastTrackingClosed(t *domain.Tracking) {
	b.hub.Broadcast(websocket.NewTrackingClosedMessage(t))
}

func (b hubBroadcaster) BroadcastBaselineFlushed(bucket domain.BaselineBucket) {
	b.hub.Broadcast(websocket.NewBaselineFlushedMessage(bucket))
}

// Hub returns the dashboard push hub, for mounting ServeWS in the HTTP
// surface.
func (p *Pipeline) Hub() *websocket.Hub {
	return p.hub
}

// Registry exposes the ticker universe for the HTTP surface's read-only
// endpoints.
func (p *Pipeline) Registry() *registry.Registry {
	return p.registry
}

// Stats exposes C10's query surface for the HTTP surface's read-only
// pair-statistics/recent-outcomes endpoints.
func (p *Pipeline) Stats() *stats.Service {
	return p.stats
}

// SignalStore exposes C12's signal table for the HTTP surface's read-only
// signal-history endpoint.
func (p *Pipeline) SignalStore() *storage.SignalStore {
	return p.signalStore
}

// Router builds the internal HTTP surface (health/ready/metrics/stats/
// signals/ws) bound to this pipeline's stores and hub.
func (p *Pipeline) Router() *mux.Router {
	obs := handlers.NewObservatoryHandler(p.stats, p.signalStore, p)
	return api.SetupRoutes(&api.Dependencies{
		Observatory:      obs,
		Hub:              p.hub,
		OperatorUser:     p.cfg.Security.OperatorUser,
		OperatorPassHash: p.cfg.Security.OperatorPassHash,
	})
}

// Ping checks both the Postgres and KV connections, for the CLI's
// healthcheck subcommand and the HTTP surface's /readyz.
func (p *Pipeline) Ping(ctx context.Context) error {
	if err := p.store.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	if _, _, err := p.kv.Get(ctx, "healthcheck:ping"); err != nil {
		return fmt.Errorf("kv ping: %w", err)
	}
	return nil
}

// Run starts every periodic loop and worker pool and blocks until ctx is
// cancelled or a stage returns a fatal error, mirroring bot.Engine.Run's
// WaitGroup-joined shutdown.
func (p *Pipeline) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, 8)

	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				p.log.Error("pipeline stage exited", zap.String("stage", name), zap.Error(err))
				select {
				case errCh <- fmt.Errorf("%s: %w", name, err):
				default:
				}
			}
		}()
	}

	runTicker := func(name string, interval time.Duration, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					fn(ctx)
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.hub.Run()
	}()

	if err := p.registry.Rebuild(ctx); err != nil {
		p.log.Warn("initial ticker registry rebuild failed", zap.Error(err))
	}
	runTicker("registry-rebuild", p.cfg.Pipeline.TickerDiscoveryInterval, func(ctx context.Context) {
		if err := p.registry.Rebuild(ctx); err != nil {
			p.log.Warn("ticker registry rebuild failed", zap.Error(err))
		}
	})

	runTicker("collector-tick", p.cfg.Pipeline.PriceInterval, func(ctx context.Context) {
		if err := p.collector.Tick(ctx); err != nil {
			p.log.Warn("collector tick failed", zap.Error(err))
		}
	})

	run("baseline-sweep", p.baseline.Run)
	run("analyzer", p.analyzer.Run)
	run("qualifier", p.qualifier.Run)
	run("tracker", p.tracker.Run)
	run("position", p.position.Run)
	run("settings-reload", p.hotReload.Run)

	<-ctx.Done()
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// Close releases the storage and KV connections. Call after Run returns.
func (p *Pipeline) Close() error {
	if closer, ok := p.kv.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	return p.store.DB.Close()
}
