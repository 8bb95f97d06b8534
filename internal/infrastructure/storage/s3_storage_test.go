package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/storefront/backend/internal/infrastructure/config"
)

func exportConfig() *config.StorageConfig {
	return &config.StorageConfig{
		Bucket:       "ledger-exports",
		AccessKey:    "key",
		SecretKey:    "secret",
		Endpoint:     "http://localhost:9000",
		UsePathStyle: true,
	}
}

func TestNewS3ObjectStorage_Validation(t *testing.T) {
	_, err := NewS3ObjectStorage(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration is required")

	tests := []struct {
		name   string
		mutate func(*config.StorageConfig)
		want   string
	}{
		{"bucket", func(c *config.StorageConfig) { c.Bucket = "" }, "bucket is required"},
		{"access key", func(c *config.StorageConfig) { c.AccessKey = "" }, "access_key is required"},
		{"secret key", func(c *config.StorageConfig) { c.SecretKey = "" }, "secret_key is required"},
		{"endpoint", func(c *config.StorageConfig) { c.Endpoint = "http://" }, "invalid endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := exportConfig()
			tt.mutate(cfg)
			_, err := NewS3ObjectStorage(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("reports every missing field", func(t *testing.T) {
		_, err := NewS3ObjectStorage(&config.StorageConfig{})
		require.Error(t, err)
		for _, field := range []string{"bucket", "access_key", "secret_key"} {
			assert.Contains(t, err.Error(), field)
		}
	})
}

func TestS3ObjectStorage_Defaults(t *testing.T) {
	s, err := NewS3ObjectStorage(exportConfig())
	require.NoError(t, err)
	assert.Equal(t, defaultPresignExpiration, s.linkTTL)
	assert.Equal(t, "ledger-exports", s.bucket)

	cfg := exportConfig()
	cfg.PresignExpiration = time.Hour
	s, err = NewS3ObjectStorage(cfg, WithPresignExpiration(5*time.Minute), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, s.linkTTL)
}

func TestS3ObjectStorage_GenerateDownloadURL(t *testing.T) {
	s, err := NewS3ObjectStorage(exportConfig())
	require.NoError(t, err)
	ctx := context.Background()

	link, expires, err := s.GenerateDownloadURL(ctx, "ledger/2026/03/01.jsonl", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, link, "/ledger-exports/ledger/2026/03/01.jsonl")
	assert.Contains(t, link, "X-Amz-Expires=60")
	assert.WithinDuration(t, time.Now().Add(time.Minute), expires, 5*time.Second)

	_, expires, err = s.GenerateDownloadURL(ctx, "ledger/2026/03/01.jsonl", 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(defaultPresignExpiration), expires, 5*time.Second)
}

func TestS3ObjectStorage_EmptyKey(t *testing.T) {
	s, err := NewS3ObjectStorage(exportConfig())
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, s.Upload(ctx, "", []byte("{}"), "application/x-ndjson"), errEmptyKey)
	_, err = s.Exists(ctx, "")
	assert.ErrorIs(t, err, errEmptyKey)
	_, _, err = s.GenerateDownloadURL(ctx, "", time.Minute)
	assert.ErrorIs(t, err, errEmptyKey)
}

func TestIsMissing(t *testing.T) {
	assert.True(t, isMissing(&types.NotFound{}))
	assert.True(t, isMissing(&types.NoSuchKey{}))
	assert.True(t, isMissing(&smithy.GenericAPIError{Code: "404"}))
	assert.False(t, isMissing(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isMissing(errors.New("dial tcp: connection refused")))
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"", false, "http://localhost:9000"},
		{"s3.internal:9000", true, "https://s3.internal:9000"},
		{"http://minio:9000", true, "http://minio:9000"},
	}
	for _, tt := range tests {
		got, err := normalizeEndpoint(tt.in, tt.useSSL)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

// Runs against a local MinIO when STOREFRONT_S3_INTEGRATION=1.
func TestS3ObjectStorage_MinIO(t *testing.T) {
	if os.Getenv("STOREFRONT_S3_INTEGRATION") != "1" {
		t.Skip("set STOREFRONT_S3_INTEGRATION=1 with MinIO on localhost:9000")
	}
	cfg := exportConfig()
	cfg.AccessKey, cfg.SecretKey = "minioadmin", "minioadmin"
	s, err := NewS3ObjectStorage(cfg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.EnsureBucket(ctx))
	require.NoError(t, s.EnsureBucket(ctx))

	key := "ledger/2026/03/10.jsonl"
	require.NoError(t, s.Upload(ctx, key, []byte(`{"type":"OWED"}`+"\n"), "application/x-ndjson"))

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "ledger/1999/01/01.jsonl")
	require.NoError(t, err)
	assert.False(t, ok)
}
