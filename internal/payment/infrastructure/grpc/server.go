package grpc

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmehra2102/order-payment-saga/internal/payment/application"
	"github.com/dmehra2102/order-payment-saga/internal/payment/infrastructure/sandbox"
)

const (
	serviceName     = "saga.payment.v1.Gateway"
	authorizeMethod = "/" + serviceName + "/Authorize"
	cancelMethod    = "/" + serviceName + "/Cancel"
)

// Server exposes an application.Gateway over gRPC.
type Server struct {
	log     *slog.Logger
	gateway application.Gateway
	tracer  trace.Tracer
}

func NewServer(log *slog.Logger, gateway application.Gateway) *Server {
	return &Server{log: log, gateway: gateway, tracer: otel.Tracer("gateway-grpc")}
}

type gatewayServer interface {
	authorize(ctx context.Context, req *authorizeRequest) (*authorizeResponse, error)
	cancel(ctx context.Context, req *cancelRequest) (*cancelResponse, error)
}

func (s *Server) authorize(ctx context.Context, req *authorizeRequest) (*authorizeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "Gateway.Authorize")
	defer span.End()

	res, err := s.gateway.Authorize(ctx, application.AuthorizeRequest{
		OrderID:        req.OrderID,
		UserID:         req.UserID,
		AmountCents:    req.AmountCents,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		s.log.Error("authorize failed", "order_id", req.OrderID, "err", err)
		return nil, toStatus(err)
	}
	return &authorizeResponse{ExternalPaymentID: res.ExternalPaymentID, Status: res.Status}, nil
}

func (s *Server) cancel(ctx context.Context, req *cancelRequest) (*cancelResponse, error) {
	ctx, span := s.tracer.Start(ctx, "Gateway.Cancel")
	defer span.End()

	res, err := s.gateway.Cancel(ctx, req.ExternalPaymentID)
	if err != nil {
		s.log.Error("cancel failed", "external_payment_id", req.ExternalPaymentID, "err", err)
		return nil, toStatus(err)
	}
	return &cancelResponse{Status: res.Status}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, sandbox.ErrUnknownPayment):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Unavailable, err.Error())
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*gatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Authorize", Handler: authorizeHandler},
		{MethodName: "Cancel", Handler: cancelHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func authorizeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(authorizeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(gatewayServer).authorize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: authorizeMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(gatewayServer).authorize(ctx, req.(*authorizeRequest))
	})
}

func cancelHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(cancelRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(gatewayServer).cancel(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: cancelMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(gatewayServer).cancel(ctx, req.(*cancelRequest))
	})
}

// NewGRPCServer returns a grpc.Server with the gateway service registered.
func NewGRPCServer(srv *Server) *grpc.Server {
	gs := grpc.NewServer(grpc.UnaryInterceptor(extractTrace))
	gs.RegisterService(&serviceDesc, srv)
	return gs
}

func Run(addr string, srv *Server) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := NewGRPCServer(srv)
	go func() {
		if err := gs.Serve(lis); err != nil {
			srv.log.Error("grpc serve stopped", "err", err)
		}
	}()
	return gs, nil
}
