package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements ObjectStore against MinIO or any S3 endpoint minio-go speaks to.
type MinioStore struct {
	client *minio.Client
}

// NewMinioStore creates a MinIO-backed store. Endpoint may carry an http(s)
// scheme; minio-go wants a bare host, so the scheme only feeds UseSSL.
func NewMinioStore(cfg Config) (*MinioStore, error) {
	endpoint, secure := cfg.Endpoint, cfg.UseSSL
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "http://"), false
	}

	cl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return &MinioStore{client: cl}, nil
}

func (m *MinioStore) Download(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return 0, m.translate(err, bucket, key, "get object")
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	n, err := io.Copy(w, obj)
	if err != nil {
		return n, m.translate(err, bucket, key, "read object")
	}
	return n, nil
}

func (m *MinioStore) Upload(ctx context.Context, in UploadInput) (ObjectRef, error) {
	size := in.Size
	if size <= 0 {
		size = -1
	}
	info, err := m.client.PutObject(ctx, in.Bucket, in.Key, in.Body, size, minio.PutObjectOptions{
		ContentType:  in.ContentType,
		UserMetadata: in.Metadata,
	})
	if err != nil {
		return ObjectRef{}, fmt.Errorf("put object %s: %w", in.Key, err)
	}
	return ObjectRef{Bucket: in.Bucket, Key: in.Key, ETag: info.ETag, VersionID: info.VersionID}, nil
}

func (m *MinioStore) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	info, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, m.translate(err, bucket, key, "stat object")
	}
	return ObjectInfo{
		Key:         info.Key,
		Size:        info.Size,
		ContentType: info.ContentType,
		ETag:        info.ETag,
	}, nil
}

func (m *MinioStore) translate(err error, bucket, key, op string) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return notFound(bucket, key)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}
