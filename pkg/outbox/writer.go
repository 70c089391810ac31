package outbox

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewKafkaWriter returns the producer used by the relay: acks from all
// replicas, key-hashed partitioning and a short batch window.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}
