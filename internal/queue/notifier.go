package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/mahirjain10/image-optimizer/internal/types"
	"github.com/mahirjain10/image-optimizer/internal/utils"
)

const publishTimeout = 5 * time.Second

// AmqpNotifier publishes status messages to a direct exchange.
type AmqpNotifier struct {
	mu         sync.Mutex
	conns      *Connection
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

func NewAmqpNotifier(conns *Connection, exchange, routingKey string) *AmqpNotifier {
	return &AmqpNotifier{conns: conns, exchange: exchange, routingKey: routingKey}
}

func (n *AmqpNotifier) Notify(ctx context.Context, msg *types.StatusMessage) error {
	body, err := utils.SerializeJSON(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	// A channel is not meant to be shared between concurrent publishers.
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ch == nil || n.ch.IsClosed() {
		ch, err := n.conns.channel()
		if err != nil {
			return err
		}
		if err := utils.NewExchange(ch, n.exchange); err != nil {
			ch.Close()
			return err
		}
		n.ch = ch
	}

	err = n.ch.PublishWithContext(ctx, n.exchange, n.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (n *AmqpNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch == nil {
		return nil
	}
	return n.ch.Close()
}

// KafkaNotifier publishes status messages keyed by source path, so all
// statuses for one object land on one partition.
type KafkaNotifier struct {
	writer *kafkago.Writer
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (n *KafkaNotifier) Notify(ctx context.Context, msg *types.StatusMessage) error {
	body, err := utils.SerializeJSON(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return n.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(msg.Data.SourcePath),
		Value: body,
		Time:  time.Now().UTC(),
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte("image.status")},
			{Key: "status", Value: []byte(msg.Data.Status)},
		},
	})
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
