package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/legalconnect/scheduler/internal/cache"
	"github.com/legalconnect/scheduler/internal/config"
	"github.com/legalconnect/scheduler/internal/engine"
	"github.com/legalconnect/scheduler/internal/gateway"
	healthh "github.com/legalconnect/scheduler/internal/handler/health"
	scheduleh "github.com/legalconnect/scheduler/internal/handler/schedule"
	"github.com/legalconnect/scheduler/internal/middleware"
	"github.com/legalconnect/scheduler/internal/model"
	"github.com/legalconnect/scheduler/internal/router"
	"github.com/legalconnect/scheduler/internal/service/appointment"
	"github.com/legalconnect/scheduler/internal/service/refresh"
	"github.com/legalconnect/scheduler/pkg/clock"
	"github.com/legalconnect/scheduler/pkg/logger"
	"github.com/legalconnect/scheduler/pkg/messaging"
	redisbroker "github.com/legalconnect/scheduler/pkg/messaging/redis"
	"github.com/legalconnect/scheduler/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := logger.NewLogger(&logger.Config{
		Level:      level,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Log.Console,
	})

	m := metrics.NewMetrics("scheduler")
	clk := clock.System()

	api := gateway.NewClient(gateway.ClientConfig{
		BaseURL:           cfg.Gateway.BaseURL,
		Timeout:           cfg.Gateway.Timeout,
		RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
		Burst:             cfg.Gateway.Burst,
	}, log, m)

	availability := cache.New(func(ctx context.Context, key cache.Key) ([]model.BusyInterval, error) {
		return api.BusyIntervals(ctx, key.ProviderID, key.RequesterID, key.Date)
	}, cfg.Schedule.DebounceWindow, log, m)

	var broker messaging.Broker
	if cfg.Redis.URL != "" {
		broker, err = redisbroker.NewBroker(redisbroker.Config{URL: cfg.Redis.URL}, log)
		if err != nil {
			// Refresh signals are an enhancement; polling still covers
			// staleness, so a missing redis does not block startup.
			log.Error(err, "redis broker unavailable, continuing with polling only")
			broker = nil
		}
	}

	coordinator := refresh.NewCoordinator(availability, broker, cfg.Redis.RefreshChannel, cfg.Schedule.PollInterval, log, m)
	if err := coordinator.Start(context.Background()); err != nil {
		log.Error(err, "refresh signal subscription failed, continuing with polling only")
	}

	appts := appointment.NewService(api, availability, clk, log, m)
	sessions := engine.NewManager(api, availability, appts, coordinator, clk, log)

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.Server.AllowedOrigins
	}
	r := router.NewRouter(
		scheduleh.NewHandler(sessions),
		healthh.NewHandler(),
		router.Config{CORSConfig: corsCfg},
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessions.Close()
	coordinator.Shutdown()
	if broker != nil {
		_ = broker.Close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "forced shutdown")
	}
	log.Info("server stopped")
}
