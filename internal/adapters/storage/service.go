// Package storage provides a domain-agnostic client for S3-compatible object storage.
// The ingestion pipeline consumes it as an opaque durable blob store: objects
// are written once under a derived key and read back through a public URL.
package storage

import (
	"context"
	"io"
	"time"
)

const (
	// DownloadURLTTL is the expiration time for presigned download URLs.
	DownloadURLTTL = 15 * time.Minute
)

// StoredObject describes an object after a successful write.
// PublicURL serves the object inline; DownloadURL forces an attachment
// disposition. Both remain valid for as long as the store retains the key.
type StoredObject struct {
	PublicURL   string `json:"url"`
	DownloadURL string `json:"downloadUrl"`
	Key         string `json:"pathname"`
}

// BlobStore defines the interface for object storage operations consumed
// by the ingestion pipeline. Failures surface as-is; the caller does not
// retry or implement consistency logic on top.
type BlobStore interface {
	// Put writes bytes under the given key and returns the object's URLs.
	// Writes are at-least-once: re-putting the same key overwrites it.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (*StoredObject, error)

	// Delete removes an object from storage.
	Delete(ctx context.Context, key string) error

	// EnsureBucketExists creates the backing bucket if it doesn't exist
	// and makes its objects publicly readable.
	EnsureBucketExists(ctx context.Context) error
}

// Config defines the configuration interface for storage.
type Config interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketImages() string
	GetMinIOPublicBaseURL() string
	IsMinIOEnabled() bool
}
