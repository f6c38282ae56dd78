package pipeline

import (
	"bytes"
	"context"

	"gallery_backend/internal/adapters/storage"
	"gallery_backend/platform/logger"
)

// Uploader transfers one accepted candidate to durable storage and returns
// the stored object. Implementations must be safe for concurrent use.
type Uploader interface {
	Upload(ctx context.Context, c Candidate) (*storage.StoredObject, error)
}

// Receipt is the response for a single processed upload, mirroring the
// stored object plus the size accounting of the transcode step.
type Receipt struct {
	URL              string `json:"url"`
	DownloadURL      string `json:"downloadUrl"`
	Pathname         string `json:"pathname"`
	OriginalSize     int64  `json:"originalSize"`
	CompressedSize   int64  `json:"compressedSize"`
	CompressionRatio int    `json:"compressionRatio"`
}

// Pipeline is the production Uploader: transcode into the canonical format,
// derive the storage key, write to the blob store. Transcoding and storage
// are per-invocation; the pipeline shares no mutable state across uploads.
type Pipeline struct {
	transcoder *Transcoder
	namer      *Namer
	store      storage.BlobStore
	log        *logger.Logger
}

// NewPipeline creates the production upload pipeline.
func NewPipeline(transcoder *Transcoder, namer *Namer, store storage.BlobStore, log *logger.Logger) *Pipeline {
	return &Pipeline{
		transcoder: transcoder,
		namer:      namer,
		store:      store,
		log:        log,
	}
}

// Upload implements Uploader.
func (p *Pipeline) Upload(ctx context.Context, c Candidate) (*storage.StoredObject, error) {
	receipt, err := p.Process(ctx, c)
	if err != nil {
		return nil, err
	}
	return &storage.StoredObject{
		PublicURL:   receipt.URL,
		DownloadURL: receipt.DownloadURL,
		Key:         receipt.Pathname,
	}, nil
}

// Process transcodes and stores one candidate, returning the full receipt.
// The namer's extension guess is overwritten by the canonical extension:
// the stored key always matches the transcoder's output format.
func (p *Pipeline) Process(ctx context.Context, c Candidate) (*Receipt, error) {
	asset, err := p.transcoder.Transcode(c.Data)
	if err != nil {
		p.log.UploadEvent(c.OriginalName, c.Size, 0, false, err.Error())
		return nil, err
	}

	key := ReplaceExt(p.namer.DeriveKey(c.OriginalName), CanonicalExt)

	obj, err := p.store.Put(ctx, key, bytes.NewReader(asset.Data), asset.EncodedSize, asset.ContentType)
	if err != nil {
		p.log.StorageError("put", key, err)
		return nil, &StoreError{Key: key, Err: err}
	}

	p.log.UploadEvent(key, asset.OriginalSize, asset.EncodedSize, true, "")

	return &Receipt{
		URL:              obj.PublicURL,
		DownloadURL:      obj.DownloadURL,
		Pathname:         obj.Key,
		OriginalSize:     asset.OriginalSize,
		CompressedSize:   asset.EncodedSize,
		CompressionRatio: asset.CompressionRatio(),
	}, nil
}
