package pipeline

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mahirjain10/image-optimizer/internal/types"
)

// materialize copies the source object into dst. dst is created even when the
// download fails, so the caller must reclaim it either way.
func (p *Pipeline) materialize(ctx context.Context, ev types.UploadEvent, dst string) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.materialize")
	defer span.End()

	f, err := os.Create(dst)
	if err != nil {
		return &FetchError{Bucket: ev.Bucket, Path: ev.Path, Err: fmt.Errorf("create local file: %w", err)}
	}

	n, err := p.store.Download(ctx, ev.Bucket, ev.Path, f)
	closeErr := f.Close()
	if err != nil {
		span.RecordError(err)
		return &FetchError{Bucket: ev.Bucket, Path: ev.Path, Err: err}
	}
	if closeErr != nil {
		return &FetchError{Bucket: ev.Bucket, Path: ev.Path, Err: fmt.Errorf("close local file: %w", closeErr)}
	}

	span.SetAttributes(attribute.Int64("object.bytes", n))
	return nil
}
