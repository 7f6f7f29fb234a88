package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "s3", cfg.Storage.Provider)
	assert.Equal(t, "rabbitmq", cfg.Source.Kind)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.Timeout)
	assert.Equal(t, "upload_events", cfg.RabbitMQ.Queue)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestParse_FromEnvironment(t *testing.T) {
	t.Setenv("STORAGE_PROVIDER", "minio")
	t.Setenv("STORAGE_ENDPOINT", "http://minio:9000")
	t.Setenv("EVENT_SOURCE", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PIPELINE_TIMEOUT", "2m")
	t.Setenv("RABBITMQ_WORKERS", "0")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "minio", cfg.Storage.Provider)
	assert.Equal(t, "kafka", cfg.Source.Kind)
	assert.Len(t, cfg.Kafka.Brokers, 2)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.Timeout)
	assert.Equal(t, 1, cfg.RabbitMQ.Workers)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown provider":       {"STORAGE_PROVIDER": "gcs"},
		"minio without endpoint": {"STORAGE_PROVIDER": "minio"},
		"unknown source":         {"EVENT_SOURCE": "sqs"},
		"non positive timeout":   {"PIPELINE_TIMEOUT": "0s"},
		"unparseable duration":   {"PIPELINE_TIMEOUT": "soon"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Parse()
			assert.Error(t, err)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.docker"), []byte("RABBITMQ_QUEUE=from_docker\n"), 0o644))
	t.Chdir(dir)
	t.Setenv("RABBITMQ_QUEUE", "")

	assert.Equal(t, ".env.docker", loadDotEnv("docker"))
	assert.Equal(t, "from_docker", os.Getenv("RABBITMQ_QUEUE"))
	assert.Equal(t, "", loadDotEnv("staging"))
}
