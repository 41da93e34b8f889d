package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"nifty-signals/config"
	"nifty-signals/internal/analysis"
	"nifty-signals/internal/api"
	"nifty-signals/internal/bot"
	"nifty-signals/internal/breaker"
	"nifty-signals/internal/metrics"
	"nifty-signals/internal/pricesource"
	"nifty-signals/internal/scheduler"
	redisstore "nifty-signals/internal/store/redis"
	sqlitestore "nifty-signals/internal/store/sqlite"
	"nifty-signals/internal/strategy"
)

const (
	cycleLockTTL     = 10 * time.Minute
	livenessInterval = 30 * time.Second
	replaySize       = 50
	breakerFailures  = 5
	breakerCooldown  = 2 * time.Minute
	fetchTimeout     = 15 * time.Second
)

// app owns every long-lived component. It is built once at startup and
// handed by reference to whatever needs it.
type app struct {
	cfg *config.Config

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	health   *metrics.HealthStatus

	store *sqlitestore.Store
	redis *redisstore.Client
	hub   *api.Hub

	cycle      *analysis.Cycle
	scheduler  *scheduler.Scheduler
	dispatcher *bot.Dispatcher
	daily      *scheduler.DailySummary
	server     *api.Server
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewMetrics(a.registry)
	a.health = metrics.NewHealthStatus(cfg.NotificationsEnabled(), cfg.RedisEnabled())

	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		return nil, fmt.Errorf("signal store: %w", err)
	}
	a.store = store

	if cfg.RedisEnabled() {
		rc, err := redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			// Redis only adds fan-out and the shared lock; run without it.
			slog.Warn("redis unavailable, continuing without it", slog.String("error", err.Error()))
		} else {
			a.redis = rc
		}
	}

	sinks := buildNotifiers(cfg)
	source := a.buildSource()
	a.hub = api.NewHub(replaySize)

	rules := strategy.CoreRules()
	if cfg.VolumeRule {
		rules = append(rules, strategy.VolumeBreakout{})
	}

	opts := []analysis.Option{
		analysis.WithReplyNotifier(sinks.reply),
		analysis.WithMetrics(a.metrics),
		analysis.WithHealth(a.health),
		analysis.WithPublisher("websocket", a.hub),
	}
	if a.redis != nil {
		opts = append(opts,
			analysis.WithPublisher("redis", redisstore.NewPublisher(a.redis)),
			analysis.WithLock(redisstore.NewLock(a.redis, redisstore.CycleLockKey, cycleLockTTL)),
		)
	}
	a.cycle = analysis.New(analysis.Config{
		Symbols:       cfg.Symbols(),
		LookbackDays:  cfg.LookbackDays,
		MinBars:       cfg.MinBars,
		RequestDelay:  cfg.RequestDelay,
		BroadcastChat: a.broadcastChat(),
	}, source, strategy.NewEngine(rules...), store, sinks.broadcast, opts...)

	a.scheduler = scheduler.New(scheduler.Config{
		Interval:        cfg.AnalysisInterval,
		Backoff:         cfg.ErrorBackoff,
		MarketHoursOnly: cfg.MarketHoursOnly,
	}, a.cycle, a.metrics)

	if updates, err := bot.NewTelegramUpdates(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.PollTimeout); err != nil {
		slog.Warn("command dispatcher disabled", slog.String("reason", err.Error()))
	} else {
		a.dispatcher = bot.NewDispatcher(bot.Config{
			PollTimeout:          cfg.PollTimeout,
			RetryDelay:           cfg.PollRetry,
			Interval:             cfg.AnalysisInterval,
			UniverseSize:         len(cfg.Universe),
			NotificationsEnabled: cfg.NotificationsEnabled(),
		}, updates, store, a.cycle, sinks.reply, a.metrics)
	}

	if cfg.DailySummaryAt != "" && a.broadcastChat() != "" {
		daily, err := scheduler.NewDailySummary(cfg.DailySummaryAt, store, sinks.broadcast, a.broadcastChat())
		if err != nil {
			return nil, err
		}
		a.daily = daily
	}

	a.server = api.NewServer(api.Config{Port: cfg.Port}, store, a.health, a.hub, a.registry)
	return a, nil
}

// broadcastChat is the digest destination for scheduled passes.
func (a *app) broadcastChat() string { return broadcastChat(a.cfg) }

func (a *app) buildSource() pricesource.Source {
	var src pricesource.Source
	switch a.cfg.PriceSource {
	case "angel":
		src = pricesource.NewAngel(pricesource.AngelConfig{
			APIKey:     a.cfg.AngelAPIKey,
			ClientCode: a.cfg.AngelClientCode,
			Password:   a.cfg.AngelPassword,
			TOTPSecret: a.cfg.AngelTOTPSecret,
			Tokens:     a.cfg.AngelTokens(),
		})
	default:
		src = pricesource.NewYahoo(a.cfg.YahooURL, fetchTimeout)
	}

	b := breaker.New(a.cfg.PriceSource, breakerFailures, breakerCooldown)
	b.OnStateChange = func(_, to breaker.State) { a.metrics.SetBreakerState(int(to)) }
	return pricesource.Guarded(src, b)
}

func (a *app) start(ctx context.Context) {
	a.server.Start()
	a.scheduler.Start(ctx)
	if a.dispatcher != nil {
		go a.dispatcher.Run(ctx)
	}
	if a.daily != nil {
		a.daily.Start()
	}

	var redisPinger metrics.Pinger
	if a.redis != nil {
		redisPinger = a.redis
	}
	a.health.Check(ctx, a.store, redisPinger)
	a.health.StartLivenessChecker(ctx, a.store, redisPinger, livenessInterval)
}

// shutdown waits for in-flight work and releases resources. ctx bounds the wait.
func (a *app) shutdown(ctx context.Context) {
	if a.daily != nil {
		a.daily.Stop()
	}

	done := make(chan struct{})
	go func() {
		<-a.scheduler.Done()
		if a.dispatcher != nil {
			a.dispatcher.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("timed out waiting for running cycles")
	}

	if err := a.server.Stop(ctx); err != nil {
		slog.Error("http shutdown failed", slog.String("error", err.Error()))
	}
	a.hub.Close()
	if a.redis != nil {
		a.redis.Close()
	}
	if err := a.store.Close(); err != nil {
		slog.Error("store close failed", slog.String("error", err.Error()))
	}
}
