// Package handler exposes the ingestion pipeline over HTTP.
package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"gallery_backend/internal/ingest/pipeline"
	"gallery_backend/internal/ingest/transport"
	"gallery_backend/platform/apperr"
	"gallery_backend/platform/httpkit"
	"gallery_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const multipartFieldName = "files"

// CollectionViewer exposes the read side of the gallery for responses.
type CollectionViewer interface {
	URLs() []string
	Size() int
	Max() int
}

// Handler handles HTTP requests for image ingestion.
type Handler struct {
	pipe       *pipeline.Pipeline
	orch       *pipeline.Orchestrator
	val        *pipeline.Validator
	collection CollectionViewer
	dto        *validator.Validator
}

// New creates a new ingest handler.
func New(pipe *pipeline.Pipeline, orch *pipeline.Orchestrator, val *pipeline.Validator, collection CollectionViewer, dto *validator.Validator) *Handler {
	return &Handler{
		pipe:       pipe,
		orch:       orch,
		val:        val,
		collection: collection,
		dto:        dto,
	}
}

// RegisterRoutes registers ingest routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/upload", h.Upload)
	rg.POST("/gallery/images", h.BatchUpload)
}

// Upload ingests a single raw image body. The target filename comes from
// the query string and the original format from the Content-Type header.
// Declared type and size are checked before the body is read, so disallowed
// or oversized uploads are turned away without consuming the transfer.
func (h *Handler) Upload(c *gin.Context) {
	var query transport.UploadQuery
	_ = c.ShouldBindQuery(&query)
	if err := h.dto.Struct(query); err != nil {
		httpkit.HandleError(c, apperr.Validation(pipeline.ErrMissingFilename.Error()))
		return
	}

	contentType := c.GetHeader("Content-Type")
	declared := pipeline.Candidate{
		ContentType:  contentType,
		Size:         declaredSize(c.Request.ContentLength),
		OriginalName: query.Filename,
	}
	if err := h.val.Validate(declared); err != nil {
		httpkit.HandleError(c, asAppError(err))
		return
	}

	body, err := readBody(c, h.val.MaxSize())
	if err != nil {
		httpkit.HandleError(c, asAppError(err))
		return
	}

	candidate := pipeline.Candidate{
		Data:         body,
		ContentType:  contentType,
		Size:         int64(len(body)),
		OriginalName: query.Filename,
	}
	if err := h.val.Validate(candidate); err != nil {
		httpkit.HandleError(c, asAppError(err))
		return
	}

	receipt, err := h.pipe.Process(c.Request.Context(), candidate)
	if err != nil {
		httpkit.HandleError(c, asAppError(err))
		return
	}

	httpkit.OK(c, receipt)
}

// BatchUpload ingests a multipart batch of files through the orchestrator
// and commits all successes to the collection in one append.
func (h *Handler) BatchUpload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid multipart form"))
		return
	}

	files := form.File[multipartFieldName]
	if len(files) == 0 {
		httpkit.HandleError(c, apperr.BadRequest("no files submitted"))
		return
	}

	candidates := make([]pipeline.Candidate, 0, len(files))
	for _, fh := range files {
		candidates = append(candidates, h.readCandidate(fh))
	}

	result, err := h.orch.Ingest(c.Request.Context(), candidates)
	if errors.Is(err, pipeline.ErrCapacityExceeded) {
		httpkit.HandleError(c, apperr.Capacity(capacityMessage(h.collection.Max())))
		return
	}
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	resp := transport.BatchResponse{
		Outcomes: result.Outcomes,
		URLs:     h.collection.URLs(),
		Count:    h.collection.Size(),
		Failed:   result.FailureCount(),
	}
	if first := result.FirstError(); first != nil {
		resp.Error = first.Error()
	}

	httpkit.OK(c, resp)
}

// readCandidate builds a candidate from one multipart file. Files whose
// declared size already exceeds the ceiling are not read into memory; the
// orchestrator's validation rejects them from the declared size alone.
func (h *Handler) readCandidate(fh *multipart.FileHeader) pipeline.Candidate {
	candidate := pipeline.Candidate{
		ContentType:  fh.Header.Get("Content-Type"),
		Size:         fh.Size,
		OriginalName: fh.Filename,
	}
	if fh.Size <= 0 || fh.Size > h.val.MaxSize() {
		return candidate
	}

	file, err := fh.Open()
	if err != nil {
		return candidate
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		return candidate
	}
	candidate.Data = data
	candidate.Size = int64(len(data))
	return candidate
}

func declaredSize(contentLength int64) int64 {
	// An unknown length (-1) passes the pre-check; the body read below
	// still enforces the ceiling and the empty check.
	if contentLength < 0 {
		return 1
	}
	return contentLength
}

func readBody(c *gin.Context, maxSize int64) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, pipeline.ErrEmptyFile
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pipeline.ErrFileTooLarge
		}
		return nil, err
	}
	if len(body) == 0 {
		return nil, pipeline.ErrEmptyFile
	}
	return body, nil
}

// asAppError maps the pipeline's sentinel errors onto typed kinds so the
// response layer derives the status: declared-input problems are 400s,
// transcode and store failures are 500s.
func asAppError(err error) *apperr.Error {
	var storeErr *pipeline.StoreError
	switch {
	case errors.Is(err, pipeline.ErrFileTooLarge):
		return apperr.TooLarge(err.Error())
	case errors.Is(err, pipeline.ErrUnsupportedType),
		errors.Is(err, pipeline.ErrEmptyFile),
		errors.Is(err, pipeline.ErrMissingFilename):
		return apperr.Validation(err.Error())
	case errors.Is(err, pipeline.ErrUnreadableImage), errors.As(err, &storeErr):
		return apperr.Wrap(apperr.KindInternal, err.Error(), err)
	default:
		return apperr.Wrap(apperr.KindBadRequest, err.Error(), err)
	}
}

func capacityMessage(max int) string {
	return fmt.Sprintf("at most %d images can be uploaded", max)
}
