package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmehra2102/order-payment-saga/internal/config"
	sagapg "github.com/dmehra2102/order-payment-saga/internal/orchestrator/infrastructure/postgres"
	"github.com/dmehra2102/order-payment-saga/pkg/logging"
	"github.com/dmehra2102/order-payment-saga/pkg/metrics"
	"github.com/dmehra2102/order-payment-saga/pkg/outbox"
	"github.com/dmehra2102/order-payment-saga/pkg/postgres"
	"github.com/dmehra2102/order-payment-saga/pkg/shutdown"
	"github.com/dmehra2102/order-payment-saga/pkg/tracing"
)

// outbox-relay publishes saga events for deployments that run the order
// service with RELAY_IN_PROCESS=false.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "outbox-relay", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pool, err := postgres.Connect(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	writer := outbox.NewKafkaWriter(cfg.KafkaBrokers)
	defer writer.Close()

	store := sagapg.NewOutboxStore(log, pool)
	dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
	relay := outbox.NewRelay(log, store, dispatch, outbox.Config{RelayID: cfg.RelayID})

	reg := prometheus.NewRegistry()
	backlog := metrics.NewOutboxMetrics(reg)
	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				counts, err := store.Counts(ctx)
				if err != nil {
					log.Warn("outbox stats failed", "err", err)
					continue
				}
				backlog.Observe(counts)
			}
		}
	}()

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: metrics.Handler(reg), ReadTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "err", err)
		}
	}()

	if err := relay.Run(ctx); err != nil {
		log.Error("relay stopped", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("outbox-relay shutdown")
}
