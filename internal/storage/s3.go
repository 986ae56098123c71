package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/zfogg/daybook/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// s3API is the slice of the S3 client the exporter uses
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Exporter writes data exports to an S3 bucket
type S3Exporter struct {
	client  s3API
	presign presignAPI
	bucket  string
	region  string
}

// UploadResult contains the result of an S3 upload
type UploadResult struct {
	Key    string `json:"key"`
	Bucket string `json:"bucket"`
	Region string `json:"region"`
	Size   int64  `json:"size"`
}

// NewS3Exporter creates a new S3 exporter
func NewS3Exporter(ctx context.Context, region, bucket string) (*S3Exporter, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Exporter{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		region:  region,
	}, nil
}

// Upload stores data under key. Exports are private; fetch them through PresignGet.
func (u *S3Exporter) Upload(ctx context.Context, key, contentType string, data []byte, metadata map[string]string) (*UploadResult, error) {
	if contentType == "" {
		contentType = contentTypeFor(key)
	}

	ctx, span := telemetry.StartExternal(ctx, "s3", "put_object", attribute.String("s3.key", key))
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(u.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("private, no-store"),
		Metadata:     metadata,
	})
	telemetry.End(span, err)
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &UploadResult{
		Key:    key,
		Bucket: u.bucket,
		Region: u.region,
		Size:   int64(len(data)),
	}, nil
}

// PresignGet returns a download URL for key that expires after ttl
func (u *S3Exporter) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	ctx, span := telemetry.StartExternal(ctx, "s3", "presign_get", attribute.String("s3.key", key))
	req, err := u.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	telemetry.End(span, err)
	if err != nil {
		return "", fmt.Errorf("failed to presign S3 object: %w", err)
	}
	return req.URL, nil
}

// DeleteFile deletes a file from S3
func (u *S3Exporter) DeleteFile(ctx context.Context, key string) error {
	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// CheckBucketAccess verifies that we can access the S3 bucket
func (u *S3Exporter) CheckBucketAccess(ctx context.Context) error {
	_, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(u.bucket),
	})
	if err != nil {
		return fmt.Errorf("cannot access S3 bucket %s: %w", u.bucket, err)
	}
	return nil
}

// contentTypeFor returns the MIME type for an export key
func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(key), ".json"):
		return "application/json"
	case strings.HasSuffix(strings.ToLower(key), ".csv"):
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
