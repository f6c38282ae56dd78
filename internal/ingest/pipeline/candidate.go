// Package ingest implements the image ingestion pipeline: local validation,
// storage-key derivation, server-side transcoding, and concurrent batch
// orchestration of uploads into the blob store.
package pipeline

import (
	"errors"
	"fmt"

	"gallery_backend/internal/adapters/storage"
)

// Candidate is a user-submitted file awaiting validation and transfer.
// It is ephemeral: created per selected file, discarded after its outcome
// settles.
type Candidate struct {
	Data         []byte
	ContentType  string
	Size         int64
	OriginalName string
}

// Closed set of pipeline errors. Every candidate resolves to exactly one
// terminal outcome; these sentinels classify the failures.
var (
	// ErrUnsupportedType rejects files whose declared media type is not on
	// the raster-format allow-list.
	ErrUnsupportedType = errors.New("unsupported file type: only JPEG, PNG, GIF and WEBP are allowed")
	// ErrFileTooLarge rejects files whose declared size exceeds the ceiling.
	ErrFileTooLarge = errors.New("file exceeds the maximum allowed size")
	// ErrEmptyFile rejects zero-length files.
	ErrEmptyFile = errors.New("file is empty")
	// ErrCapacityExceeded rejects a whole batch that would overflow the
	// gallery, before any network transfer is attempted.
	ErrCapacityExceeded = errors.New("gallery image limit exceeded")
	// ErrUnreadableImage reports bytes that could not be decoded as an
	// image, regardless of the declared media type.
	ErrUnreadableImage = errors.New("unreadable image data")
	// ErrMissingFilename reports an upload request without a target filename.
	ErrMissingFilename = errors.New("missing filename parameter")
)

// StoreError wraps a blob store failure for a given key.
type StoreError struct {
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Outcome is the terminal result for one candidate. Exactly one of Stored
// and Err is set. Index refers back to the candidate's position in the
// submitted batch regardless of completion order.
type Outcome struct {
	Index  int                   `json:"index"`
	Name   string                `json:"name"`
	Stored *storage.StoredObject `json:"stored,omitempty"`
	Reason string                `json:"error,omitempty"`

	err error
}

// Succeeded reports whether the candidate reached the Stored state.
func (o Outcome) Succeeded() bool { return o.Stored != nil }

// Err returns the failure that settled this outcome, if any.
func (o Outcome) Err() error { return o.err }

// BatchResult aggregates the settled outcomes of one batch, ordered by
// submission. It is only produced after every candidate has settled.
type BatchResult struct {
	Outcomes []Outcome
}

// StoredURLs returns the public URLs of all successful outcomes in
// submission order.
func (r *BatchResult) StoredURLs() []string {
	urls := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			urls = append(urls, o.Stored.PublicURL)
		}
	}
	return urls
}

// FailureCount returns the number of failed outcomes.
func (r *BatchResult) FailureCount() int {
	failed := 0
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			failed++
		}
	}
	return failed
}

// FirstError returns the first failure in submission order, or nil when the
// whole batch succeeded. Callers surface it as the batch-level message
// without suppressing the successes.
func (r *BatchResult) FirstError() error {
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			return o.err
		}
	}
	return nil
}
