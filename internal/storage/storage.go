// Package storage abstracts the object store the pipeline reads originals from and
// publishes derived objects to.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// ErrObjectNotFound is wrapped by every implementation when the requested key
// does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the set of single-object operations the worker needs. All
// implementations are safe for concurrent use.
type ObjectStore interface {
	// Download streams the object's bytes into w.
	Download(ctx context.Context, bucket, key string, w io.Writer) (int64, error)
	// Upload writes a whole object, overwriting any existing one at key.
	Upload(ctx context.Context, in UploadInput) (ObjectRef, error)
	// Stat returns object attributes without fetching the payload.
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
}

type UploadInput struct {
	Bucket      string
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectRef identifies a written object.
type ObjectRef struct {
	Bucket    string
	Key       string
	ETag      string
	VersionID string
}

type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	ETag        string
}

// Config selects and configures an implementation.
type Config struct {
	Provider     string
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
}

func notFound(bucket, key string) error {
	return fmt.Errorf("%s/%s: %w", bucket, key, ErrObjectNotFound)
}

// New creates the store for cfg.Provider. awsCfg is only used by the s3 provider.
func New(cfg Config, awsCfg aws.Config) (ObjectStore, error) {
	switch cfg.Provider {
	case "s3":
		return NewS3Service(NewS3Client(awsCfg, cfg.Endpoint, cfg.UsePathStyle)), nil
	case "minio":
		return NewMinioStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported object store provider: %s", cfg.Provider)
	}
}
