package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lightkeepers/fieldsync/internal/model"
)

// KafkaSinkConfig configures the external event bridge.
type KafkaSinkConfig struct {
	Brokers  []string
	Topic    string
	BatchMax int // default 100
}

// KafkaSink forwards outbox events to an external Kafka topic so regional
// headquarters can consume the same facts local subscribers see. It is a
// plain bus subscriber; the publisher's retry ceiling covers broker outages.
type KafkaSink struct {
	w *kafka.Writer
}

func NewKafkaSink(c KafkaSinkConfig) *KafkaSink {
	max := c.BatchMax
	if max <= 0 {
		max = 100
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        c.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    max,
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaSink{w: w}
}

// Handle implements the subscriber contract. Events are keyed by aggregate id
// so per-aggregate ordering survives partitioning.
func (s *KafkaSink) Handle(ctx context.Context, e model.OutboxEvent) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.AggregateType.String() + ":" + e.AggregateID),
		Value: value,
	})
}

func (s *KafkaSink) Close() error { return s.w.Close() }
