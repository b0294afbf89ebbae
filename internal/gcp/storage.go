package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GCSStore reads and writes whole objects in Cloud Storage.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore wraps an existing storage client.
func NewGCSStore(client *storage.Client) *GCSStore {
	return &GCSStore{client: client}
}

// Download reads the full body of gs://bucket/key into memory. A missing
// object surfaces storage.ErrObjectNotExist in the error chain.
func (s *GCSStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	reader, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Upload writes data to gs://bucket/key with the given content type,
// replacing any existing object.
func (s *GCSStore) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	writer := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return writeError("failed to write to GCS", bucket, key, err)
	}
	if err := writer.Close(); err != nil {
		return writeError("failed to finalize GCS write", bucket, key, err)
	}
	return nil
}

func writeError(msg, bucket, key string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return fmt.Errorf("%s gs://%s/%s (HTTP %d): %w", msg, bucket, key, gerr.Code, err)
	}
	return fmt.Errorf("%s gs://%s/%s: %w", msg, bucket, key, err)
}
