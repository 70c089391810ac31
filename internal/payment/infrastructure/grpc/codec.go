package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// The gateway service exchanges plain JSON messages; the codec is selected
// per call through the "json" content subtype.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type authorizeRequest struct {
	OrderID        string `json:"order_id"`
	UserID         string `json:"user_id"`
	AmountCents    int64  `json:"amount_cents"`
	IdempotencyKey string `json:"idempotency_key"`
}

type authorizeResponse struct {
	ExternalPaymentID string `json:"external_payment_id"`
	Status            string `json:"status"`
}

type cancelRequest struct {
	ExternalPaymentID string `json:"external_payment_id"`
}

type cancelResponse struct {
	Status string `json:"status"`
}
