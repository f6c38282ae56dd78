// Package gallery provides the gallery collection bounded context module.
package gallery

import (
	"context"

	"gallery_backend/internal/gallery/handler"
	"gallery_backend/internal/gallery/service"
	apphttp "gallery_backend/internal/http"
	"gallery_backend/platform/logger"
)

// Module is the gallery bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the gallery module, loading the
// persisted collection state. deleter cleans up stored objects when images
// are removed.
func NewModule(ctx context.Context, store service.Store, deleter handler.BlobDeleter, maxImages int, log *logger.Logger) (*Module, error) {
	svc, err := service.NewService(ctx, store, maxImages, log)
	if err != nil {
		return nil, err
	}

	return &Module{
		handler: handler.New(svc, deleter, log),
		service: svc,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "gallery"
}

// Service returns the collection owner for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts gallery routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
