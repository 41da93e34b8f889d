// Package api serves the read-only HTTP API and the live signal websocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nifty-signals/internal/logger"
	"nifty-signals/internal/metrics"
	"nifty-signals/internal/model"
	"nifty-signals/internal/store/sqlite"
)

// Store is the read side of the signal store used by the handlers.
type Store interface {
	Recent(ctx context.Context, q sqlite.Query) ([]model.Signal, error)
	CountByType(ctx context.Context, since time.Time) (map[model.SignalType]int, error)
}

// Config configures the HTTP server.
type Config struct {
	Port            int
	ShutdownTimeout time.Duration
}

// Server wraps the echo instance.
type Server struct {
	echo   *echo.Echo
	config Config
	log    *slog.Logger
}

// NewServer builds the router. hub and gatherer may be nil, in which case
// /ws/signals and /metrics are not registered.
func NewServer(cfg Config, store Store, health *metrics.HealthStatus, hub *Hub, gatherer prometheus.Gatherer) *Server {
	if cfg.Port == 0 {
		cfg.Port = 5000
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	if health == nil {
		health = metrics.NewHealthStatus(false, false)
	}

	log := logger.Component("api")
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(recoverMiddleware(log))
	e.Use(requestLogging(log))

	h := &handlers{store: store, health: health, now: time.Now}
	e.GET("/api/latest-signals", h.latestSignals)
	e.GET("/api/today", h.today)
	e.GET("/health", h.healthCheck)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	if hub != nil {
		e.GET("/ws/signals", hub.HandleWS)
	}

	return &Server{echo: e, config: cfg, log: log}
}

// Start listens in the background.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.config.Port)
	go func() {
		s.log.Info("http server listening", slog.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server failed", slog.String("error", err.Error()))
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo { return s.echo }
