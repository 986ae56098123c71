package storage

import (
	"context"
	"time"
)

// ObjectUploader stores an object and hands back a time-limited download link.
// Exports depend on this rather than on S3 so tests can swap it out.
type ObjectUploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte, metadata map[string]string) (*UploadResult, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Ensure S3Exporter implements ObjectUploader
var _ ObjectUploader = (*S3Exporter)(nil)
