package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Storage is an Engine implementation backed by an S3-compatible object
// store. Payloads are stored in a single bucket under keys derived from their
// SHA-256 hexadecimal hash, using the same two-character prefix layout as
// LocalFileStorage.
type S3Storage struct {
	client *minio.Client
	bucket string
}

// S3Config holds connection settings for an S3-compatible backend.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewS3Storage connects to the configured endpoint and ensures the bucket
// exists.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &S3Storage{client: client, bucket: cfg.Bucket}, nil
}

func objectKey(hashHex string) (string, error) {
	if len(hashHex) < 2 {
		return "", fmt.Errorf("invalid hash length: %d", len(hashHex))
	}
	return hashHex[:2] + "/" + hashHex, nil
}

func (s *S3Storage) PutObject(ctx context.Context, hashHex string, data []byte) error {
	key, err := objectKey(hashHex)
	if err != nil {
		return err
	}

	// Same-key uploads overwrite with identical bytes, so no existence check
	// is needed; the operation is idempotent by construction.
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", hashHex, err)
	}
	return nil
}

func (s *S3Storage) GetObject(ctx context.Context, hashHex string) ([]byte, error) {
	key, err := objectKey(hashHex)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", hashHex, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", hashHex, err)
	}
	return data, nil
}

func (s *S3Storage) DeleteObject(ctx context.Context, hashHex string) error {
	key, err := objectKey(hashHex)
	if err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", hashHex, err)
	}
	return nil
}
