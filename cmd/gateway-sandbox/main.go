package main

import (
	"context"
	"os"

	"github.com/dmehra2102/order-payment-saga/internal/config"
	paygrpc "github.com/dmehra2102/order-payment-saga/internal/payment/infrastructure/grpc"
	"github.com/dmehra2102/order-payment-saga/internal/payment/infrastructure/sandbox"
	"github.com/dmehra2102/order-payment-saga/pkg/logging"
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

	tp, err := tracing.Init(ctx, "gateway-sandbox", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	gw := sandbox.NewGateway(log, cfg.Gateway.SandboxApprovalLimit)
	gs, err := paygrpc.Run(cfg.GRPCAddr, paygrpc.NewServer(log, gw))
	if err != nil {
		log.Error("grpc server failed", "err", err)
		os.Exit(1)
	}
	log.Info("gateway sandbox listening", "addr", cfg.GRPCAddr, "approval_limit", cfg.Gateway.SandboxApprovalLimit)

	<-ctx.Done()
	gs.GracefulStop()
	log.Info("gateway-sandbox shutdown")
}
