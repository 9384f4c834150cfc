// Package pdfstore keeps rendered invoice PDFs in S3/MinIO, keyed by the
// submission's file id. The presigned GET URL it hands out is what the render
// worker passes back through the completion callback.
package pdfstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/wseagar/invoice-kitchen/internal/config"
)

// Store wraps MinIO interactions for rendered PDFs.
type Store struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Store, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Store{client: client, bucket: cfg.PDFBucket, region: cfg.S3Region}, nil
}

// EnsureBucket makes sure the PDF bucket exists before use.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Put stores the rendered PDF under the submission's file id.
func (s *Store) Put(ctx context.Context, fileID string, data []byte) error {
	opts := minio.PutObjectOptions{ContentType: "application/pdf"}
	_, err := s.client.PutObject(ctx, s.bucket, objectKey(fileID), bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("upload pdf %s: %w", fileID, err)
	}
	return nil
}

// Get fetches the rendered PDF bytes.
func (s *Store) Get(ctx context.Context, fileID string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(fileID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get pdf %s: %w", fileID, err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read pdf %s: %w", fileID, err)
	}
	return buf, nil
}

// PresignURL returns a signed GET URL for the rendered PDF.
func (s *Store) PresignURL(ctx context.Context, fileID string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey(fileID), expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign pdf %s: %w", fileID, err)
	}
	return u.String(), nil
}

func objectKey(fileID string) string {
	return fileID + ".pdf"
}

// FileIDFromURL recovers the file id from a (possibly presigned) PDF URL, the
// inverse of the object key layout above. The completion callback carries a
// URL rather than a raw key, so this is how the handler finds the artifact.
func FileIDFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse pdf url: %w", err)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	fileID := strings.TrimSuffix(last, ".pdf")
	if fileID == "" {
		return "", fmt.Errorf("pdf url %q has no object key", raw)
	}
	return fileID, nil
}
