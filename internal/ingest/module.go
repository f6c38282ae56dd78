// Package ingest provides the image ingestion bounded context module.
package ingest

import (
	"gallery_backend/internal/adapters/storage"
	"gallery_backend/internal/gallery/service"
	apphttp "gallery_backend/internal/http"
	"gallery_backend/internal/ingest/handler"
	"gallery_backend/internal/ingest/pipeline"
	"gallery_backend/platform/config"
	"gallery_backend/platform/logger"
	"gallery_backend/platform/validator"
)

// Module is the ingestion bounded context module implementing http.Module.
type Module struct {
	handler  *handler.Handler
	pipeline *pipeline.Pipeline
	orch     *pipeline.Orchestrator
}

// NewModule creates and initializes the ingest module.
func NewModule(cfg config.IngestConfig, store storage.BlobStore, collection *service.Service, val *validator.Validator, log *logger.Logger) *Module {
	candidateValidator := pipeline.NewValidator(cfg.GetUploadMaxSize())
	transcoder := pipeline.NewTranscoder()
	namer := pipeline.NewNamer()

	pipe := pipeline.NewPipeline(transcoder, namer, store, log)
	orch := pipeline.NewOrchestrator(candidateValidator, pipe, collection, cfg.GetGalleryMaxImages(), cfg.GetUploadConcurrency(), log)

	h := handler.New(pipe, orch, candidateValidator, collection, val)

	return &Module{
		handler:  h,
		pipeline: pipe,
		orch:     orch,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "ingest"
}

// Orchestrator returns the batch orchestrator for external use.
func (m *Module) Orchestrator() *pipeline.Orchestrator {
	return m.orch
}

// RegisterRoutes mounts ingest routes on the provided router context.
// Uploads carry megabyte bodies and a transcode each, so they sit behind
// the stricter upload rate limiter.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("")
	group.Use(ctx.UploadRateLimiter.RateLimit())
	m.handler.RegisterRoutes(group)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
