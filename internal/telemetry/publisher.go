package telemetry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"aircon_manager/internal/config"
	"aircon_manager/internal/logger"
	"aircon_manager/internal/models"
)

// messageWriter is the slice of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher ships the controller snapshot to a Kafka topic after every
// optimization cycle. Delivery is best effort; the controller logs and
// continues when a write fails.
type Publisher struct {
	writer messageWriter
	topic  string
	log    *logger.Logger
}

// New builds a publisher for the configured brokers and topic.
func New(cfg config.Kafka, log *logger.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			RequiredAcks: requiredAcks(cfg.Acks),
			Async:        false,
		},
		topic: cfg.Topic,
		log:   log,
	}
}

func requiredAcks(acks int) kafka.RequiredAcks {
	switch acks {
	case -1:
		return kafka.RequireAll
	case 0:
		return kafka.RequireNone
	default:
		return kafka.RequireOne
	}
}

// Publish writes one snapshot message, stamped with the cycle time.
func (p *Publisher) Publish(ctx context.Context, snap models.ControllerSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal cycle snapshot: %w", err)
	}
	msg := kafka.Message{Value: b, Time: snap.UpdatedAt}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write cycle snapshot: %w", err)
	}
	p.log.Debugf("cycle snapshot published to %s", p.topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
