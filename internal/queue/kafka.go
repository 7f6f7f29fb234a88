package queue

import (
	"context"
	"errors"
	"io"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mahirjain10/image-optimizer/internal/queue/handlers"
)

// KafkaConsumer reads bucket notifications from a topic, the shape MinIO's Kafka
// notification target produces. Offsets are committed after every message,
// failed or not: Kafka has no per-message redelivery.
type KafkaConsumer struct {
	reader  *kafkago.Reader
	handler NotificationHandler
	logger  *zap.Logger
}

type KafkaParams struct {
	Brokers []string
	Topic   string
	GroupID string
	Handler NotificationHandler
	Logger  *zap.Logger
}

func NewKafkaConsumer(p KafkaParams) *KafkaConsumer {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaConsumer{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:  p.Brokers,
			Topic:    p.Topic,
			GroupID:  p.GroupID,
			MinBytes: 1,
			MaxBytes: 10 << 20,
		}),
		handler: p.Handler,
		logger:  logger.With(zap.String("topic", p.Topic)),
	}
}

func (c *KafkaConsumer) Start(ctx context.Context) error {
	c.logger.Info("kafka consumer started")
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Warn("fetch message failed", zap.Error(err))
			sleep(ctx, reconsumeDelay)
			continue
		}

		if _, err := c.handler.HandleNotification(ctx, m.Value); err != nil {
			c.logger.Error("error processing message",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Bool("retryable", handlers.Retryable(err)),
				zap.Error(err),
			)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Warn("commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
