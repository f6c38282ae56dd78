package pipeline

import "strings"

// allowedContentTypes is the fixed allow-list of raster formats accepted
// for upload. The declared type is a cheap pre-filter only; the transcoder
// re-validates by actually decoding the bytes.
var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// DefaultMaxSize is the per-file byte ceiling for original uploads (5 MiB).
// It bounds what the client may send; the transcoder compresses further.
const DefaultMaxSize int64 = 5 * 1024 * 1024

// Validator decides acceptance of a candidate from its declared media type
// and byte size. It is pure and synchronous: it runs before any network
// transfer so rejected files never consume bandwidth.
type Validator struct {
	maxSize int64
}

// NewValidator creates a validator with the given per-file size ceiling.
// A non-positive ceiling falls back to DefaultMaxSize.
func NewValidator(maxSize int64) *Validator {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Validator{maxSize: maxSize}
}

// MaxSize returns the configured per-file byte ceiling.
func (v *Validator) MaxSize() int64 { return v.maxSize }

// Validate returns nil when the candidate is accepted, or one of
// ErrUnsupportedType, ErrFileTooLarge, ErrEmptyFile.
func (v *Validator) Validate(c Candidate) error {
	if !allowedContentTypes[normalizeContentType(c.ContentType)] {
		return ErrUnsupportedType
	}
	if c.Size <= 0 {
		return ErrEmptyFile
	}
	if c.Size > v.maxSize {
		return ErrFileTooLarge
	}
	return nil
}

// normalizeContentType strips parameters like charset and lower-cases the
// media type before the allow-list check.
func normalizeContentType(contentType string) string {
	normalized := strings.Split(contentType, ";")[0]
	return strings.TrimSpace(strings.ToLower(normalized))
}
