package queue

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mahirjain10/image-optimizer/internal/queue/handlers"
	"github.com/mahirjain10/image-optimizer/internal/utils"
)

const (
	reconnectDelay = 5 * time.Second
	reconsumeDelay = 2 * time.Second
)

// NotificationHandler processes one raw bucket notification.
type NotificationHandler interface {
	HandleNotification(ctx context.Context, body []byte) ([]handlers.EventResult, error)
}

// Connection is a lazily (re)dialed AMQP connection shared by consumers and the
// status notifier.
type Connection struct {
	mu   sync.Mutex
	url  string
	conn *amqp.Connection
}

func NewConnection(url string) *Connection {
	return &Connection{url: url}
}

// channel opens a new channel, redialing first if the connection is gone.
func (c *Connection) channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		conn, err := utils.NewRabbitMQClient(c.url)
		if err != nil {
			return nil, err
		}
		c.conn = conn
	}
	ch, err := utils.NewChannel(c.conn)
	if err != nil && utils.IsConnectionError(err) {
		c.conn.Close()
		c.conn = nil
	}
	return ch, err
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

type RabbitMqService struct {
	conns    *Connection
	handler  NotificationHandler
	logger   *zap.Logger
	queue    string
	workers  int
	prefetch int
}

type RabbitMqParams struct {
	Conn     *Connection
	Handler  NotificationHandler
	Logger   *zap.Logger
	Queue    string
	Workers  int
	Prefetch int
}

func NewRabbitMqService(p RabbitMqParams) *RabbitMqService {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers, prefetch := p.Workers, p.Prefetch
	if workers < 1 {
		workers = 1
	}
	if prefetch < 1 {
		prefetch = 1
	}
	return &RabbitMqService{
		conns:    p.Conn,
		handler:  p.Handler,
		logger:   logger.With(zap.String("queue", p.Queue)),
		queue:    p.Queue,
		workers:  workers,
		prefetch: prefetch,
	}
}

// Start declares the queue and runs the workers until ctx is cancelled.
func (s *RabbitMqService) Start(ctx context.Context) error {
	ch, err := s.conns.channel()
	if err != nil {
		return err
	}
	if _, err := utils.NewQueue(ch, s.queue); err != nil {
		ch.Close()
		return err
	}
	ch.Close()
	s.logger.Info("queue declared", zap.Int("workers", s.workers))

	var wg sync.WaitGroup
	for i := range s.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, i+1)
		}()
	}

	<-ctx.Done()
	s.logger.Info("shutting down all consumers gracefully")
	wg.Wait()
	return nil
}

func (s *RabbitMqService) worker(ctx context.Context, id int) {
	log := s.logger.With(zap.Int("worker", id))
	for ctx.Err() == nil {
		ch, err := s.conns.channel()
		if err != nil {
			log.Warn("failed to create channel", zap.Error(err))
			sleep(ctx, reconnectDelay)
			continue
		}

		msgs, err := utils.NewQueueConsumer(ch, s.queue, s.prefetch)
		if err != nil {
			log.Warn("failed to start consumer", zap.Error(err))
			ch.Close()
			sleep(ctx, reconnectDelay)
			continue
		}

		log.Info("worker started, waiting for messages")
		s.consume(ctx, msgs)
		ch.Close()
		if ctx.Err() == nil {
			log.Warn("channel closed, will recreate")
			sleep(ctx, reconsumeDelay)
		}
	}
}

func (s *RabbitMqService) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				return
			}
			s.ProcessMessage(ctx, d)
		}
	}
}

// ProcessMessage handles one delivery and settles it. Failures worth retrying
// are requeued once; a second failure on a redelivered message drops it.
func (s *RabbitMqService) ProcessMessage(ctx context.Context, d amqp.Delivery) {
	_, err := s.handler.HandleNotification(ctx, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			s.logger.Warn("ack failed", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Error(ackErr))
		}
		return
	}

	requeue := handlers.Retryable(err) && !d.Redelivered
	s.logger.Error("error processing message",
		zap.Uint64("delivery_tag", d.DeliveryTag),
		zap.Bool("redelivered", d.Redelivered),
		zap.Bool("requeue", requeue),
		zap.Error(err),
	)
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		s.logger.Warn("nack failed", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Error(nackErr))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
