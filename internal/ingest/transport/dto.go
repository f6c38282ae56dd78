// Package transport defines the request/response shapes of the ingest API.
package transport

import "gallery_backend/internal/ingest/pipeline"

// UploadQuery carries the single-upload query parameters.
type UploadQuery struct {
	Filename string `form:"filename" validate:"required"`
}

// BatchResponse is the response to a batch ingest: every candidate's
// settled outcome in submission order, the updated collection, and the
// first failure message when any candidate failed.
type BatchResponse struct {
	Outcomes []pipeline.Outcome `json:"outcomes"`
	URLs     []string           `json:"urls"`
	Count    int                `json:"count"`
	Failed   int                `json:"failed"`
	Error    string             `json:"error,omitempty"`
}
