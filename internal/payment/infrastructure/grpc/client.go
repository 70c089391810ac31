package grpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dmehra2102/order-payment-saga/internal/payment/application"
)

// Client implements application.Gateway against a remote gateway service.
type Client struct {
	log  *slog.Logger
	conn *grpc.ClientConn
}

func NewClient(log *slog.Logger, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
		grpc.WithUnaryInterceptor(injectTrace),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{log: log, conn: conn}, nil
}

func (c *Client) Authorize(ctx context.Context, req application.AuthorizeRequest) (application.AuthorizeResult, error) {
	in := &authorizeRequest{
		OrderID:        req.OrderID,
		UserID:         req.UserID,
		AmountCents:    req.AmountCents,
		IdempotencyKey: req.IdempotencyKey,
	}
	var out authorizeResponse
	if err := c.conn.Invoke(ctx, authorizeMethod, in, &out); err != nil {
		return application.AuthorizeResult{}, err
	}
	return application.AuthorizeResult{ExternalPaymentID: out.ExternalPaymentID, Status: out.Status}, nil
}

func (c *Client) Cancel(ctx context.Context, externalPaymentID string) (application.CancelResult, error) {
	var out cancelResponse
	if err := c.conn.Invoke(ctx, cancelMethod, &cancelRequest{ExternalPaymentID: externalPaymentID}, &out); err != nil {
		return application.CancelResult{}, err
	}
	return application.CancelResult{Status: out.Status}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
