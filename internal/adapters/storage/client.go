package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStore implements BlobStore using MinIO.
type MinIOStore struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

// NewMinIOStore creates a new MinIO-backed blob store.
func NewMinIOStore(cfg Config) (*MinIOStore, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MinIO is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOStore{
		client:        client,
		bucket:        cfg.GetMinioBucketImages(),
		publicBaseURL: strings.TrimSuffix(cfg.GetMinIOPublicBaseURL(), "/"),
	}, nil
}

// EnsureBucketExists creates the bucket if it doesn't exist and applies a
// public-read policy so stored objects are retrievable by their public URL.
func (s *MinIOStore) EnsureBucketExists(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}

	policy := fmt.Sprintf(`{
		"Version": "2012-10-17",
		"Statement": [{
			"Effect": "Allow",
			"Principal": {"AWS": ["*"]},
			"Action": ["s3:GetObject"],
			"Resource": ["arn:aws:s3:::%s/*"]
		}]
	}`, s.bucket)
	if err := s.client.SetBucketPolicy(ctx, s.bucket, policy); err != nil {
		return fmt.Errorf("failed to set bucket policy for %s: %w", s.bucket, err)
	}

	return nil
}

// Put writes an object and returns its public and download URLs.
func (s *MinIOStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (*StoredObject, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store object %s: %w", key, err)
	}

	downloadURL, err := s.presignDownload(ctx, key)
	if err != nil {
		return nil, err
	}

	return &StoredObject{
		PublicURL:   s.publicURL(key),
		DownloadURL: downloadURL,
		Key:         key,
	}, nil
}

// Delete removes an object from storage.
func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (s *MinIOStore) publicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, s.bucket, key)
}

// presignDownload builds a presigned GET URL that forces an attachment
// disposition, so browsers download rather than render the object.
func (s *MinIOStore) presignDownload(ctx context.Context, key string) (string, error) {
	reqParams := make(url.Values)
	reqParams.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", key))

	presignedURL, err := s.client.PresignedGetObject(ctx, s.bucket, key, DownloadURLTTL, reqParams)
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL for %s: %w", key, err)
	}
	return presignedURL.String(), nil
}
