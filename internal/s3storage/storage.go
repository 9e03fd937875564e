// Package s3storage holds evidence attachments and their extracted text in
// MinIO/S3.
package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/networg/constructsafe/internal/config"
)

// Storage wraps MinIO interactions for raw attachments and extracted text.
type Storage struct {
	client     *minio.Client
	rawBucket  string
	textBucket string
	region     string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:     client,
		rawBucket:  cfg.EvidenceBucket,
		textBucket: cfg.ExtractedBucket,
		region:     cfg.S3Region,
	}, nil
}

// EnsureBuckets makes sure both buckets exist before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.rawBucket, s.textBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// UploadAttachment stores a raw evidence file.
func (s *Storage) UploadAttachment(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.rawBucket, objectKey, reader, size, opts); err != nil {
		return fmt.Errorf("upload attachment: %w", err)
	}
	return nil
}

// UploadExtractedText stores the text extracted from a PDF attachment.
func (s *Storage) UploadExtractedText(ctx context.Context, objectKey string, data []byte) error {
	reader := bytes.NewReader(data)
	opts := minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"}
	if _, err := s.client.PutObject(ctx, s.textBucket, objectKey, reader, int64(len(data)), opts); err != nil {
		return fmt.Errorf("upload extracted text: %w", err)
	}
	return nil
}

// DownloadAttachment fetches raw attachment bytes.
func (s *Storage) DownloadAttachment(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.rawBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	return buf, nil
}

// PresignAttachmentURL returns a signed GET URL for a raw attachment.
func (s *Storage) PresignAttachmentURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.rawBucket, objectKey, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign attachment: %w", err)
	}
	return u.String(), nil
}
