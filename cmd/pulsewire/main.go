// Command pulsewire starts the realtime pub/sub server: the signed HTTP
// control plane, the WebSocket upgrade listener, and the optional
// NATS-ingestion and Kafka-audit bridges, wired together the way the
// donor ws-server subproject's main.go assembles its own server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/pulsewire/internal/auditlog"
	"github.com/adred-codev/pulsewire/internal/auditstream"
	"github.com/adred-codev/pulsewire/internal/config"
	"github.com/adred-codev/pulsewire/internal/eventbridge"
	"github.com/adred-codev/pulsewire/internal/httpapi"
	"github.com/adred-codev/pulsewire/internal/logging"
	"github.com/adred-codev/pulsewire/internal/metrics"
	"github.com/adred-codev/pulsewire/internal/pusherapp"
	"github.com/adred-codev/pulsewire/internal/ratelimit"
	"github.com/adred-codev/pulsewire/internal/resourceguard"
	"github.com/adred-codev/pulsewire/internal/transport"
)

func main() {
	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logging.Init(logger)
	cfg.LogConfig(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	var err error

	m := metrics.NewRegistry()
	audit := auditlog.New(auditlog.Debug)

	apps := pusherapp.NewRegistry([]pusherapp.Config{
		{ID: cfg.AppID, Key: cfg.AppKey, Secret: cfg.AppSecret, Name: cfg.AppName},
	})

	limiter := ratelimit.NewConnectionLimiter(ratelimit.ConnectionLimiterConfig{
		IPBurst:     cfg.ConnRateIPBurst,
		IPRate:      cfg.ConnRateIPPerSec,
		GlobalBurst: cfg.ConnRateGlobalBurst,
		GlobalRate:  cfg.ConnRateGlobalPerSec,
		Logger:      logger,
	})
	defer limiter.Stop()

	transportServer, currentConns := transport.NewServer(logger, audit, m, limiter)

	guard := resourceguard.New(resourceguard.Config{
		MaxConnections:      cfg.MaxConnections,
		MaxGoroutines:       cfg.MaxGoroutines,
		MemoryLimit:         cfg.MemoryLimit,
		CPURejectThreshold:  cfg.CPURejectThreshold,
		CPUPauseThreshold:   cfg.CPUPauseThreshold,
		MaxBroadcastsPerSec: cfg.MaxBroadcastsPerSec,
	}, logger, currentConns, m)
	stopMonitoring := guard.StartMonitoring(cfg.MetricsInterval)
	defer stopMonitoring()

	transportServer.Guard = guard

	var stream *auditstream.Producer
	if cfg.KafkaEnabled() {
		stream, err = auditstream.NewProducer(auditstream.Config{
			Brokers: cfg.KafkaBrokerList(),
			Topic:   cfg.KafkaTopic,
		}, logger)
		if err != nil {
			return fmt.Errorf("start audit stream: %w", err)
		}
		defer stream.Close()
		transportServer.Stream = stream
	}

	handler := &httpapi.Handler{
		Apps:      apps,
		Transport: transportServer,
		Guard:     guard,
		Logger:    logger,
		Stream:    stream,
	}

	var bridge *eventbridge.Bridge
	if cfg.NATSEnabled() {
		bridge, err = eventbridge.Connect(eventbridge.Config{URL: cfg.NATSURL, Subject: cfg.NATSSubject}, apps, logger)
		if err != nil {
			return fmt.Errorf("start event bridge: %w", err)
		}
		bridge.Stream = stream
		defer bridge.Close()
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler.NewMux(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // WebSocket upgrades hold the connection open
		IdleTimeout:  120 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", m.Handler())
	metricsServer := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      metricsMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("pulsewire listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error, shutting down")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics server shutdown error")
	}

	logger.Info().Int64("open_connections", *currentConns).Msg("pulsewire stopped")
	return nil
}
