package handlers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mahirjain10/image-optimizer/internal/pipeline"
	"github.com/mahirjain10/image-optimizer/internal/queue/models"
	"github.com/mahirjain10/image-optimizer/internal/types"
	"github.com/mahirjain10/image-optimizer/internal/utils"
)

// Processor is the part of *pipeline.Pipeline the handler drives.
type Processor interface {
	ResolveContentType(ctx context.Context, ev types.UploadEvent) (types.UploadEvent, error)
	Process(ctx context.Context, ev types.UploadEvent) (pipeline.Result, error)
}

// Notifier publishes status messages for finished invocations.
type Notifier interface {
	Notify(ctx context.Context, msg *types.StatusMessage) error
}

// EventResult is the outcome of one event taken from a notification.
type EventResult struct {
	Event  types.UploadEvent    `json:"event"`
	Status string               `json:"status"`
	Object *types.DerivedObject `json:"object,omitempty"`
	Error  string               `json:"error,omitempty"`
	err    error
}

func (r EventResult) Err() error { return r.err }

// EventHandler is shared by every trigger: RabbitMQ and Kafka consumers, the
// webhook and the Lambda entry point.
type EventHandler struct {
	processor Processor
	notifier  Notifier
	logger    *zap.Logger
	timeout   time.Duration
	fanout    int
}

type Params struct {
	Processor Processor
	// Notifier is optional.
	Notifier Notifier
	Logger   *zap.Logger
	// Timeout bounds each invocation; zero leaves the caller's deadline alone.
	Timeout time.Duration
	Fanout  int
}

func NewEventHandler(p Params) *EventHandler {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fanout := p.Fanout
	if fanout < 1 {
		fanout = 1
	}
	return &EventHandler{
		processor: p.Processor,
		notifier:  p.Notifier,
		logger:    logger,
		timeout:   p.Timeout,
		fanout:    fanout,
	}
}

// HandleNotification decodes an S3/MinIO bucket notification and processes every
// ObjectCreated record in it. A payload that cannot be decoded is returned as a
// non-requeueable models.ProcessingError.
func (h *EventHandler) HandleNotification(ctx context.Context, body []byte) ([]EventResult, error) {
	var notification types.S3Notification
	if err := utils.ParseJSON(body, &notification); err != nil {
		return nil, models.ProcessingError{Err: fmt.Errorf("invalid bucket notification: %w", err), Requeue: false}
	}
	events, err := notification.UploadEvents()
	if err != nil {
		return nil, models.ProcessingError{Err: err, Requeue: false}
	}
	if len(events) == 0 {
		h.logger.Debug("notification carried no upload events", zap.String("event_name", notification.EventName))
		return nil, nil
	}
	return h.HandleEvents(ctx, events)
}

// HandleEvents processes events concurrently, at most fanout at a time. Each
// event is independent: one failing does not cancel the others. The returned
// error combines every failure.
func (h *EventHandler) HandleEvents(ctx context.Context, events []types.UploadEvent) ([]EventResult, error) {
	results := make([]EventResult, len(events))

	var g errgroup.Group
	g.SetLimit(h.fanout)
	for i, ev := range events {
		g.Go(func() error {
			results[i] = h.handle(ctx, ev)
			return nil
		})
	}
	_ = g.Wait()

	var errs error
	for _, r := range results {
		errs = multierr.Append(errs, r.err)
	}
	return results, errs
}

func (h *EventHandler) handle(parent context.Context, ev types.UploadEvent) EventResult {
	ctx := parent
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, h.timeout)
		defer cancel()
	}

	ev, err := h.processor.ResolveContentType(ctx, ev)
	if err != nil {
		h.logger.Error("content type lookup failed", zap.String("event_id", ev.ID), zap.Error(err))
		h.notify(parent, ev, types.FAILED, "", err)
		return EventResult{Event: ev, Status: types.FAILED, Error: err.Error(), err: err}
	}

	res, err := h.processor.Process(ctx, ev)
	if err != nil {
		h.notify(parent, ev, types.FAILED, "", err)
		return EventResult{Event: ev, Status: types.FAILED, Error: err.Error(), err: err}
	}
	if res.Outcome == pipeline.OutcomeSkipped {
		return EventResult{Event: ev, Status: types.SKIPPED}
	}

	h.notify(parent, ev, types.PROCESSED, res.Object.Path, nil)
	return EventResult{Event: ev, Status: types.PROCESSED, Object: res.Object}
}

// notify never fails the invocation; a lost status message is only logged.
func (h *EventHandler) notify(ctx context.Context, ev types.UploadEvent, status, destination string, cause error) {
	if h.notifier == nil {
		return
	}
	errorMsg := ""
	if cause != nil {
		errorMsg = cause.Error()
	}
	msg := utils.InitStatusMessage(utils.InitStatusData(ev, status, destination, errorMsg))
	if err := h.notifier.Notify(ctx, msg); err != nil {
		h.logger.Warn("failed to publish status",
			zap.String("event_id", ev.ID),
			zap.String("status", status),
			zap.Error(err),
		)
	}
}

// Retryable reports whether any failure combined in err is worth a redelivery.
// Successful events in the same notification are safe to redo since their
// destinations are simply overwritten.
func Retryable(err error) bool {
	for _, e := range multierr.Errors(err) {
		if pr, ok := e.(models.ProcessingError); ok {
			if pr.Requeue {
				return true
			}
			continue
		}
		if pipeline.Retryable(e) {
			return true
		}
	}
	return false
}
