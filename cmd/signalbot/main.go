// Command signalbot scans the Nifty universe on a schedule, stores and
// broadcasts technical signals, and answers chat commands.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nifty-signals/config"
	"nifty-signals/internal/logger"
	"nifty-signals/internal/markethours"
)

func main() {
	envFile := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Init("signalbot", slog.LevelInfo)
		slog.Error("config load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Init("signalbot", logger.ParseLevel(cfg.LogLevel))

	a, err := newApp(cfg)
	if err != nil {
		slog.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	a.start(ctx)
	slog.Info("signalbot running",
		slog.Int("symbols", len(cfg.Universe)),
		slog.String("price_source", cfg.PriceSource),
		slog.Duration("interval", cfg.AnalysisInterval),
		slog.Bool("notifications", cfg.NotificationsEnabled()),
		slog.Bool("redis", cfg.RedisEnabled()),
		slog.String("market", markethours.StatusString(time.Now())))

	sig := <-sigCh
	slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	a.shutdown(shutdownCtx)
	slog.Info("shutdown complete")
}
