// Package pipeline turns one upload event into one optimized object.
//
// An invocation runs four steps in order: the eligibility filter, materializing
// the source into a private workspace, transcoding it and publishing the result.
// The first failing step ends the invocation. Whatever happens, the workspace is
// reclaimed before Process returns.
package pipeline

import (
	"context"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mahirjain10/image-optimizer/internal/storage"
	"github.com/mahirjain10/image-optimizer/internal/transformation"
	"github.com/mahirjain10/image-optimizer/internal/types"
	"github.com/mahirjain10/image-optimizer/internal/workspace"
)

const tracerName = "github.com/mahirjain10/image-optimizer/internal/pipeline"

// outputSuffix keeps the transcoded file name distinct from any source name.
const outputSuffix = "_optimized" + transformation.Extension

type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeProcessed
)

func (o Outcome) String() string {
	if o == OutcomeProcessed {
		return types.PROCESSED
	}
	return types.SKIPPED
}

// Result is what a successful or skipped invocation produced.
type Result struct {
	Outcome  Outcome
	Object   *types.DerivedObject
	Warnings []error
}

// Pipeline holds the process-wide collaborators. It carries no per-event state
// and is safe for concurrent use.
type Pipeline struct {
	store   storage.ObjectStore
	logger  *zap.Logger
	tracer  trace.Tracer
	workDir string

	// removeArtifact deletes one workspace file during reclaim.
	removeArtifact func(path string) error
}

type Params struct {
	Store   storage.ObjectStore
	Logger  *zap.Logger
	WorkDir string
}

func New(p Params) *Pipeline {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:   p.Store,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		workDir: p.WorkDir,

		removeArtifact: workspace.Remove,
	}
}

// Process runs one invocation for ev. Ineligible events return OutcomeSkipped
// without touching storage or the local disk. Errors are *FetchError,
// *TranscodeError or *PublishError.
func (p *Pipeline) Process(ctx context.Context, ev types.UploadEvent) (res Result, err error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Process", trace.WithAttributes(
		attribute.String("event.id", ev.ID),
		attribute.String("object.bucket", ev.Bucket),
		attribute.String("object.path", ev.Path),
		attribute.String("object.content_type", ev.ContentType),
	))
	defer span.End()

	log := p.logger.With(
		zap.String("event_id", ev.ID),
		zap.String("bucket", ev.Bucket),
		zap.String("path", ev.Path),
	)

	if !Eligible(ev) {
		log.Debug("event skipped", zap.String("content_type", ev.ContentType))
		span.SetAttributes(attribute.String("pipeline.outcome", types.SKIPPED))
		return Result{Outcome: OutcomeSkipped}, nil
	}

	ws, err := workspace.New(p.workDir)
	if err != nil {
		return Result{}, p.fail(span, log, &FetchError{Bucket: ev.Bucket, Path: ev.Path, Err: err})
	}
	srcPath := ws.Path(ev.Path)
	outPath := srcPath + outputSuffix

	defer func() {
		if w := p.reclaim(ws, srcPath, outPath); w != nil {
			log.Warn("workspace cleanup failed", zap.Error(w))
			res.Warnings = append(res.Warnings, w)
		}
	}()

	if err := p.materialize(ctx, ev, srcPath); err != nil {
		return Result{}, p.fail(span, log, err)
	}

	out, err := p.transcode(ctx, srcPath, outPath)
	if err != nil {
		return Result{}, p.fail(span, log, err)
	}

	obj, err := p.publish(ctx, ev, out)
	if err != nil {
		return Result{}, p.fail(span, log, err)
	}

	span.SetAttributes(
		attribute.String("pipeline.outcome", types.PROCESSED),
		attribute.String("object.destination", obj.Path),
	)
	log.Info("derived object published",
		zap.String("destination", obj.Path),
		zap.Int("width", obj.Width),
		zap.Int("height", obj.Height),
		zap.Int64("size", obj.Size),
	)
	return Result{Outcome: OutcomeProcessed, Object: obj}, nil
}

// ResolveContentType fills in a missing content type from the object's stored
// attributes. AWS notifications omit it. Derived paths are left alone since the
// filter drops them regardless.
func (p *Pipeline) ResolveContentType(ctx context.Context, ev types.UploadEvent) (types.UploadEvent, error) {
	if ev.ContentType != "" || IsDerivedPath(ev.Path) {
		return ev, nil
	}
	info, err := p.store.Stat(ctx, ev.Bucket, ev.Path)
	if err != nil {
		return ev, &FetchError{Bucket: ev.Bucket, Path: ev.Path, Err: err}
	}
	ev.ContentType = info.ContentType
	if ev.Size == 0 {
		ev.Size = info.Size
	}
	return ev, nil
}

func (p *Pipeline) transcode(ctx context.Context, srcPath, outPath string) (transformation.Result, error) {
	_, span := p.tracer.Start(ctx, "pipeline.transcode")
	defer span.End()

	out, err := transformation.Transcode(srcPath, outPath)
	if err != nil {
		span.RecordError(err)
		return out, &TranscodeError{Path: filepath.Base(srcPath), Err: err}
	}
	span.SetAttributes(
		attribute.Int("image.source_width", out.SourceWidth),
		attribute.Int("image.source_height", out.SourceHeight),
		attribute.Int("image.width", out.Width),
		attribute.Int("image.height", out.Height),
	)
	return out, nil
}

// reclaim deletes both artifacts and then the workspace itself.
func (p *Pipeline) reclaim(ws *workspace.Workspace, artifacts ...string) error {
	var errs error
	for _, a := range artifacts {
		errs = multierr.Append(errs, p.removeArtifact(a))
	}
	errs = multierr.Append(errs, ws.Release())
	if errs != nil {
		return &CleanupWarning{Dir: ws.Dir(), Err: errs}
	}
	return nil
}

func (p *Pipeline) fail(span trace.Span, log *zap.Logger, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.Error("pipeline failed", zap.Error(err), zap.Bool("retryable", Retryable(err)))
	return err
}
