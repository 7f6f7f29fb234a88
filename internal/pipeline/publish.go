package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/mahirjain10/image-optimizer/internal/storage"
	"github.com/mahirjain10/image-optimizer/internal/transformation"
	"github.com/mahirjain10/image-optimizer/internal/types"
)

// MetadataOriginalName is the user metadata key holding the source file name.
const MetadataOriginalName = "originalName"

func (p *Pipeline) publish(ctx context.Context, ev types.UploadEvent, out transformation.Result) (*types.DerivedObject, error) {
	dest := DestinationPath(ev.Path)
	ctx, span := p.tracer.Start(ctx, "pipeline.publish")
	defer span.End()

	f, err := os.Open(out.Path)
	if err != nil {
		return nil, &PublishError{Bucket: ev.Bucket, Path: dest, Err: fmt.Errorf("open transcoded file: %w", err)}
	}
	defer f.Close()

	name := OriginalName(ev.Path)
	ref, err := p.store.Upload(ctx, storage.UploadInput{
		Bucket:      ev.Bucket,
		Key:         dest,
		Body:        f,
		Size:        out.Size,
		ContentType: transformation.ContentType,
		Metadata:    map[string]string{MetadataOriginalName: name},
	})
	if err != nil {
		span.RecordError(err)
		return nil, &PublishError{Bucket: ev.Bucket, Path: dest, Err: err}
	}

	return &types.DerivedObject{
		Bucket:       ev.Bucket,
		Path:         dest,
		ContentType:  transformation.ContentType,
		Size:         out.Size,
		OriginalName: name,
		Width:        out.Width,
		Height:       out.Height,
		ETag:         ref.ETag,
		VersionID:    ref.VersionID,
	}, nil
}
