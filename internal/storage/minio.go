package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("tagdrop-storage")

// MinioClient wraps MinIO operations with tracing
type MinioClient struct {
	client     *minio.Client
	bucketName string
}

// NewMinioClient initializes a new MinIO client and ensures the bucket exists
func NewMinioClient(endpoint, accessKey, secretKey, bucketName string, useSSL bool, logger *zap.Logger) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	mc := &MinioClient{
		client:     client,
		bucketName: bucketName,
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		logger.Info("Creating bucket", zap.String("bucket", bucketName))
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return mc, nil
}

// Ping checks that the bucket is reachable
func (mc *MinioClient) Ping(ctx context.Context) error {
	_, err := mc.client.BucketExists(ctx, mc.bucketName)
	return err
}

// PutPayload uploads a media payload under objectKey
func (mc *MinioClient) PutPayload(ctx context.Context, objectKey string, body io.Reader, size int64, contentType string, meta map[string]string) error {
	ctx, span := tracer.Start(ctx, "minio.put_payload",
		trace.WithAttributes(
			attribute.String("object_key", objectKey),
			attribute.Int64("size_bytes", size),
		),
	)
	defer span.End()

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := mc.client.PutObject(ctx, mc.bucketName, objectKey, body, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: meta,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upload payload: %w", err)
	}

	span.SetAttributes(attribute.Bool("upload_success", true))
	return nil
}

// PayloadExists reports whether objectKey is present in the bucket
func (mc *MinioClient) PayloadExists(ctx context.Context, objectKey string) (bool, error) {
	ctx, span := tracer.Start(ctx, "minio.stat_payload",
		trace.WithAttributes(
			attribute.String("object_key", objectKey),
		),
	)
	defer span.End()

	_, err := mc.client.StatObject(ctx, mc.bucketName, objectKey, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			span.SetAttributes(attribute.Bool("found", false))
			return false, nil
		}
		span.RecordError(err)
		return false, fmt.Errorf("failed to stat payload: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return true, nil
}

// PresignPayload returns a time-limited download URL for objectKey
func (mc *MinioClient) PresignPayload(ctx context.Context, objectKey, fileName string, expiry time.Duration) (*url.URL, error) {
	ctx, span := tracer.Start(ctx, "minio.presign_payload",
		trace.WithAttributes(
			attribute.String("object_key", objectKey),
		),
	)
	defer span.End()

	params := url.Values{}
	if fileName != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	}

	u, err := mc.client.PresignedGetObject(ctx, mc.bucketName, objectKey, expiry, params)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to presign payload: %w", err)
	}
	return u, nil
}

// RemovePayload deletes a payload from MinIO
func (mc *MinioClient) RemovePayload(ctx context.Context, objectKey string) error {
	ctx, span := tracer.Start(ctx, "minio.remove_payload",
		trace.WithAttributes(
			attribute.String("object_key", objectKey),
		),
	)
	defer span.End()

	err := mc.client.RemoveObject(ctx, mc.bucketName, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to remove payload: %w", err)
	}

	return nil
}
