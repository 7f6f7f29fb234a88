// Command lambda runs the optimizer as an AWS Lambda function subscribed to S3
// ObjectCreated notifications. The invocation deadline is Lambda's own timeout.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/mahirjain10/image-optimizer/config"
	"github.com/mahirjain10/image-optimizer/internal/logger"
	"github.com/mahirjain10/image-optimizer/internal/pipeline"
	"github.com/mahirjain10/image-optimizer/internal/queue/handlers"
	"github.com/mahirjain10/image-optimizer/internal/storage"
	"github.com/mahirjain10/image-optimizer/internal/types"
)

// Initialized once per cold start by setup and reused by every invocation.
var (
	logr    *zap.Logger
	handler *handlers.EventHandler
)

func setup(ctx context.Context) error {
	cfg, err := config.Parse()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logr, err = logger.New(cfg.App.LogLevel, cfg.App.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	awsConfig, err := config.InitializeAws(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("initialize AWS config: %w", err)
	}
	store := storage.NewS3Service(storage.NewS3Client(awsConfig, cfg.Storage.Endpoint, cfg.Storage.UsePathStyle))

	handler = handlers.NewEventHandler(handlers.Params{
		Processor: pipeline.New(pipeline.Params{
			Store:   store,
			Logger:  logr,
			WorkDir: cfg.Pipeline.WorkDir,
		}),
		Logger: logr,
		Fanout: cfg.Pipeline.Fanout,
	})
	return nil
}

// uploadEvents maps Lambda's S3 records onto UploadEvents. S3 does not put the
// content type in notifications; the handler looks it up.
func uploadEvents(e events.S3Event) []types.UploadEvent {
	out := make([]types.UploadEvent, 0, len(e.Records))
	for _, rec := range e.Records {
		if !types.IsObjectCreated(rec.EventName) {
			continue
		}
		ev := types.NewUploadEvent(rec.S3.Bucket.Name, rec.S3.Object.URLDecodedKey, "", rec.S3.Object.Size)
		ev.EventName = rec.EventName
		if rec.S3.Object.Sequencer != "" {
			ev.ID = rec.S3.Object.Sequencer
		}
		out = append(out, ev)
	}
	return out
}

// handle returns an error only when retrying the invocation could help, so
// Lambda's async retries are not spent on undecodable images or deleted sources.
func handle(ctx context.Context, e events.S3Event) error {
	_, err := handler.HandleEvents(ctx, uploadEvents(e))
	if err != nil && handlers.Retryable(err) {
		return err
	}
	return nil
}

func main() {
	if err := setup(context.Background()); err != nil {
		log.Fatalf("cold start: %v", err)
	}
	defer logr.Sync() //nolint:errcheck
	lambda.Start(handle)
}
