package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const defaultOpTimeout = 1 * time.Minute

// S3Service implements ObjectStore on top of the AWS SDK.
type S3Service struct {
	client    *s3.Client
	opTimeout time.Duration
}

// NewS3Client builds an s3.Client from the shared aws.Config. A non-empty endpoint
// points the client at an S3-compatible service (LocalStack, Ceph, ...).
func NewS3Client(cfg aws.Config, endpoint string, usePathStyle bool) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = usePathStyle
	})
}

// Using Constructor Pattern to initalize our s3Service
func NewS3Service(client *s3.Client) *S3Service {
	return &S3Service{client: client, opTimeout: defaultOpTimeout}
}

func (service *S3Service) Download(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, service.opTimeout)
	defer cancel()

	resp, err := service.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return 0, notFound(bucket, key)
		}
		return 0, fmt.Errorf("couldn't download object with key: %s, AWS error: %w", key, err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to write object data: %w", err)
	}
	return n, nil
}

func (service *S3Service) Upload(ctx context.Context, in UploadInput) (ObjectRef, error) {
	ctx, cancel := context.WithTimeout(ctx, service.opTimeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket:            aws.String(in.Bucket),
		Key:               aws.String(in.Key),
		Body:              in.Body,
		ContentType:       aws.String(in.ContentType),
		Metadata:          in.Metadata,
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	}
	if in.Size > 0 {
		input.ContentLength = aws.Int64(in.Size)
	}
	out, err := service.client.PutObject(ctx, input)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("put object %s: %w", in.Key, err)
	}
	return ObjectRef{
		Bucket:    in.Bucket,
		Key:       in.Key,
		ETag:      aws.ToString(out.ETag),
		VersionID: aws.ToString(out.VersionId),
	}, nil
}

func (service *S3Service) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, service.opTimeout)
	defer cancel()

	out, err := service.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return ObjectInfo{}, notFound(bucket, key)
		}
		return ObjectInfo{}, fmt.Errorf("head object %s: %w", key, err)
	}
	return ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
	}, nil
}
