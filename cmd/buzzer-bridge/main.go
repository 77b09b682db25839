// Package main is the entry point for buzzer-bridge
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/shiv6146/buzzer-bridge/internal/api"
	"github.com/shiv6146/buzzer-bridge/internal/call"
	"github.com/shiv6146/buzzer-bridge/internal/config"
	"github.com/shiv6146/buzzer-bridge/internal/logger"
	"github.com/shiv6146/buzzer-bridge/internal/metrics"
	"github.com/shiv6146/buzzer-bridge/internal/notify"
	"github.com/shiv6146/buzzer-bridge/internal/routing"
	"github.com/shiv6146/buzzer-bridge/internal/store"
	"github.com/shiv6146/buzzer-bridge/internal/telephony"
)

// Version is reported in the boot message
var Version = "5.0"

func main() {
	// Load configuration
	cfg := config.Load()

	log, err := logger.New(logger.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting buzzer-bridge", zap.String("version", Version))

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to PostgreSQL (optional)
	var (
		pgStore  *store.PostgresStore
		recorder call.Recorder
		history  api.History
	)
	if cfg.DatabaseURL != "" {
		log.Info("connecting to PostgreSQL")
		pgStore, err = store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		defer pgStore.Close()

		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Fatal("failed to prepare schema", zap.Error(err))
		}
		recorder, history = pgStore, pgStore
		log.Info("PostgreSQL connected")
	}

	// Connect to Valkey (optional)
	var (
		tracker call.Tracker
		mirror  api.Mirror
	)
	if cfg.ValkeyURL != "" {
		log.Info("connecting to Valkey")
		cache, err := store.NewCache(ctx, cfg.ValkeyURL, cfg.ValkeyPassword, cfg.ValkeyDB, cfg.SessionTTL)
		if err != nil {
			log.Warn("failed to connect to Valkey, continuing without session mirror", zap.Error(err))
		} else {
			defer cache.Close()
			tracker, mirror = cache, cache
			log.Info("Valkey connected")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	twilioClient := telephony.NewTwilioClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioTimeout, log)

	classifier := routing.NewClassifier(routing.Identities{
		Gateway: cfg.GatewayNumber,
		Panel:   cfg.PanelNumber,
		TenantA: cfg.TenantANumber,
		TenantB: cfg.TenantBNumber,
	})

	manager := call.NewManager(call.Options{
		Conference:   cfg.ConferenceName,
		WebhookURL:   cfg.PublicURL + "/",
		HoldURL:      cfg.PublicURL + cfg.HoldPath,
		RingAudioURL: cfg.RingAudioURL,
		TenantAName:  cfg.TenantAName,
		TenantBName:  cfg.TenantBName,
		SessionTTL:   cfg.SessionTTL,
		DialTimeout:  cfg.DialTimeout,
	}, classifier, twilioClient, recorder, tracker, m, log)

	// Lighting notifications (optional)
	var notifier api.Notifier
	if cfg.HueEnabled() {
		flasher := notify.NewHueFlasher(cfg.HueBridgeURL, cfg.HueUsername, cfg.HueColorLights, cfg.HuePlainLights, log)
		dispatcher := notify.NewDispatcher(flasher, cfg.NotifyWorkers, cfg.NotifyQueueSize, m, log)
		dispatcher.Start(ctx)
		defer dispatcher.Stop()
		notifier = dispatcher
		log.Info("lighting notifications enabled",
			zap.Strings("color_lights", cfg.HueColorLights),
			zap.Strings("plain_lights", cfg.HuePlainLights))
	}

	apiServer := api.NewServer(cfg, api.Deps{
		Manager:    manager,
		Classifier: classifier,
		Notifier:   notifier,
		History:    history,
		Mirror:     mirror,
		Gatherer:   reg,
		Logger:     log,
	})

	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			cancel()
		}
	}()

	if cfg.BootSMSEnabled {
		bootCtx, bootCancel := context.WithTimeout(ctx, cfg.TwilioTimeout)
		if err := notify.AnnounceBoot(bootCtx, twilioClient, cfg.GatewayNumber, cfg.TenantANumber, Version); err != nil {
			log.Warn("boot message not sent", zap.Int("provider_code", telephony.ErrorCode(err)), zap.Error(err))
		}
		bootCancel()
	}

	log.Info("buzzer-bridge is running",
		zap.String("public_url", cfg.PublicURL),
		zap.Int("port", cfg.HTTPPort),
		zap.Bool("tls", cfg.TLSEnabled()),
		zap.Bool("history", history != nil),
		zap.Bool("mirror", mirror != nil))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		log.Info("shutdown signal received, stopping services")
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	manager.CloseAll()
	cancel()
	log.Info("buzzer-bridge stopped")
}
