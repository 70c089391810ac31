package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/order-payment-saga/internal/config"
	"github.com/dmehra2102/order-payment-saga/internal/orchestrator/application"
	sagapg "github.com/dmehra2102/order-payment-saga/internal/orchestrator/infrastructure/postgres"
	orderhttp "github.com/dmehra2102/order-payment-saga/internal/order/infrastructure/http"
	orderpg "github.com/dmehra2102/order-payment-saga/internal/order/infrastructure/postgres"
	payapp "github.com/dmehra2102/order-payment-saga/internal/payment/application"
	paygrpc "github.com/dmehra2102/order-payment-saga/internal/payment/infrastructure/grpc"
	paypg "github.com/dmehra2102/order-payment-saga/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/order-payment-saga/internal/payment/infrastructure/sandbox"
	"github.com/dmehra2102/order-payment-saga/pkg/idempotency"
	"github.com/dmehra2102/order-payment-saga/pkg/logging"
	"github.com/dmehra2102/order-payment-saga/pkg/metrics"
	"github.com/dmehra2102/order-payment-saga/pkg/outbox"
	"github.com/dmehra2102/order-payment-saga/pkg/postgres"
	"github.com/dmehra2102/order-payment-saga/pkg/shutdown"
	"github.com/dmehra2102/order-payment-saga/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "order-service", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// Postgres setup
	pool, err := postgres.Connect(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Error("migration failed", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	guard := idempotency.NewStore(rdb, cfg.RequestKeyTTL)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewSagaMetrics(reg)

	// Payment gateway: remote when configured, in-process sandbox otherwise
	var gateway payapp.Gateway
	if cfg.Gateway.Addr != "" {
		client, err := paygrpc.NewClient(log, cfg.Gateway.Addr)
		if err != nil {
			log.Error("gateway client failed", "err", err)
			os.Exit(1)
		}
		defer client.Close()
		gateway = client
	} else {
		log.Warn("GATEWAY_ADDR not set, using sandbox gateway", "approval_limit", cfg.Gateway.SandboxApprovalLimit)
		gateway = sandbox.NewGateway(log, cfg.Gateway.SandboxApprovalLimit)
	}

	orders := orderpg.NewRepository(log, pool)
	payments := paypg.NewRepository(log, pool)
	journal := sagapg.NewJournal(log, pool, "order-service")
	processor := payapp.NewProcessor(log, payments, gateway, m, cfg.Gateway.Timeout)
	coordinator := application.NewCoordinator(log, orders, processor, journal, guard, m)

	if cfg.RelayInProcess {
		writer := outbox.NewKafkaWriter(cfg.KafkaBrokers)
		defer writer.Close()
		dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
		relay := outbox.NewRelay(log, sagapg.NewOutboxStore(log, pool), dispatch, outbox.Config{RelayID: cfg.RelayID})
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped with error", "err", err)
			}
		}()
	}

	// HTTP server
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", metrics.Handler(reg))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Mount("/", orderhttp.NewHandler(log, coordinator).Routes())

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.Gateway.Timeout*2 + 5*time.Second,
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info("order-service shutdown complete")
}
