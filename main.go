package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mahirjain10/image-optimizer/config"
	"github.com/mahirjain10/image-optimizer/internal/httpapi"
	"github.com/mahirjain10/image-optimizer/internal/logger"
	"github.com/mahirjain10/image-optimizer/internal/pipeline"
	"github.com/mahirjain10/image-optimizer/internal/queue"
	"github.com/mahirjain10/image-optimizer/internal/queue/handlers"
	"github.com/mahirjain10/image-optimizer/internal/storage"
	"github.com/mahirjain10/image-optimizer/internal/tracing"
)

type App struct {
	config  *config.Config
	logger  *zap.Logger
	handler *handlers.EventHandler
	amqp    *queue.Connection
	closers []func() error
}

// NewApp creates and initializes a new App instance with all dependencies.
// The object store client is built once here and shared by every invocation.
func NewApp(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*App, error) {
	awsConfig, err := config.InitializeAws(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AWS config: %w", err)
	}

	store, err := storage.New(storage.Config{
		Provider:     cfg.Storage.Provider,
		Endpoint:     cfg.Storage.Endpoint,
		Region:       cfg.Storage.Region,
		AccessKey:    cfg.Storage.AccessKey,
		SecretKey:    cfg.Storage.SecretKey,
		UseSSL:       cfg.Storage.UseSSL,
		UsePathStyle: cfg.Storage.UsePathStyle,
	}, awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	app := &App{config: cfg, logger: logr}

	var notifier handlers.Notifier
	switch cfg.Source.Kind {
	case "rabbitmq":
		app.amqp = queue.NewConnection(cfg.RabbitMQ.URL)
		app.closers = append(app.closers, app.amqp.Close)
		if cfg.RabbitMQ.StatusExchange != "" {
			n := queue.NewAmqpNotifier(app.amqp, cfg.RabbitMQ.StatusExchange, cfg.RabbitMQ.StatusRoutingKey)
			app.closers = append(app.closers, n.Close)
			notifier = n
		}
	case "kafka":
		if cfg.Kafka.StatusTopic != "" {
			n := queue.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.StatusTopic)
			app.closers = append(app.closers, n.Close)
			notifier = n
		}
	}

	app.handler = handlers.NewEventHandler(handlers.Params{
		Processor: pipeline.New(pipeline.Params{
			Store:   store,
			Logger:  logr,
			WorkDir: cfg.Pipeline.WorkDir,
		}),
		Notifier: notifier,
		Logger:   logr,
		Timeout:  cfg.Pipeline.Timeout,
		Fanout:   cfg.Pipeline.Fanout,
	})
	return app, nil
}

// Run blocks until ctx is cancelled or the event source fails.
func (a *App) Run(ctx context.Context) error {
	switch a.config.Source.Kind {
	case "rabbitmq":
		return queue.NewRabbitMqService(queue.RabbitMqParams{
			Conn:     a.amqp,
			Handler:  a.handler,
			Logger:   a.logger,
			Queue:    a.config.RabbitMQ.Queue,
			Workers:  a.config.RabbitMQ.Workers,
			Prefetch: a.config.RabbitMQ.Prefetch,
		}).Start(ctx)
	case "kafka":
		consumer := queue.NewKafkaConsumer(queue.KafkaParams{
			Brokers: a.config.Kafka.Brokers,
			Topic:   a.config.Kafka.Topic,
			GroupID: a.config.Kafka.GroupID,
			Handler: a.handler,
			Logger:  a.logger,
		})
		defer consumer.Close()
		return consumer.Start(ctx)
	default:
		return a.serveWebhook(ctx)
	}
}

func (a *App) serveWebhook(ctx context.Context) error {
	cfg := a.config.HTTP
	handler := httpapi.NewHTTPHandler(a.handler, a.logger, cfg.WriteTimeout)
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown failed", zap.Error(err))
		}
	}()

	a.logger.Info("webhook server starting", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.InitializeEnvs()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel, cfg.App.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Attributes:  tracing.ParseResourceAttributes(cfg.Tracing.ResourceAttr),
		ServiceName: cfg.App.Name,
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	app, err := NewApp(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to initialize application", zap.Error(err))
	}
	defer app.Close()

	logr.Info("application initialized",
		zap.String("source", cfg.Source.Kind),
		zap.String("storage", cfg.Storage.Provider),
	)
	if err := app.Run(ctx); err != nil {
		logr.Error("application stopped", zap.Error(err))
	}
}
