package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// InitializeAws builds the shared aws.Config. Static keys win over the default
// credential chain when both are set.
func InitializeAws(ctx context.Context, storage StorageConfig) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(storage.Region),
	}
	if storage.AccessKey != "" && storage.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(storage.AccessKey, storage.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("error while initializing aws: %w", err)
	}
	return cfg, nil
}
