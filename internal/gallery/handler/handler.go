// Package handler exposes the gallery collection over HTTP.
package handler

import (
	"context"
	"path"
	"strconv"

	"gallery_backend/internal/gallery/service"
	"gallery_backend/platform/apperr"
	"gallery_backend/platform/httpkit"
	"gallery_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// BlobDeleter removes the stored object behind a removed image.
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Handler handles HTTP requests for the gallery collection.
type Handler struct {
	svc     *service.Service
	deleter BlobDeleter
	log     *logger.Logger
}

// New creates a new gallery handler.
func New(svc *service.Service, deleter BlobDeleter, log *logger.Logger) *Handler {
	return &Handler{svc: svc, deleter: deleter, log: log}
}

// RegisterRoutes registers gallery routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/gallery/images", h.List)
	rg.DELETE("/gallery/images/:index", h.Remove)
}

// List returns the ordered collection.
func (h *Handler) List(c *gin.Context) {
	urls := h.svc.URLs()
	httpkit.OK(c, gin.H{
		"urls":  urls,
		"count": len(urls),
		"max":   h.svc.Max(),
	})
}

// Remove deletes the image at the given index. An optional focus query
// parameter carries the viewer's current focus; the response returns it
// revalidated against the shrunken collection so a stale index is never
// used against the new length.
func (h *Handler) Remove(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid index"))
		return
	}

	removed, err := h.svc.Remove(c.Request.Context(), index)
	if httpkit.HandleError(c, err) {
		return
	}

	// Best-effort cleanup of the backing object once the collection
	// mutation has persisted. Keys are flat, so the URL's trailing path
	// segment is the storage key.
	if h.deleter != nil {
		key := path.Base(removed)
		if err := h.deleter.Delete(c.Request.Context(), key); err != nil {
			h.log.StorageError("delete", key, err)
		}
	}

	urls := h.svc.URLs()
	resp := gin.H{
		"removed": removed,
		"urls":    urls,
		"count":   len(urls),
	}
	if rawFocus := c.Query("focus"); rawFocus != "" {
		if focus, err := strconv.Atoi(rawFocus); err == nil {
			resp["focus"] = service.ResolveFocus(focus, len(urls))
		}
	}

	httpkit.OK(c, resp)
}
