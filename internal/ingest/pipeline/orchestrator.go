package pipeline

import (
	"context"

	"gallery_backend/platform/apperr"
	"gallery_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

// CollectionSink is the owner of the gallery's ordered URL list. The
// orchestrator reads its size for the batch capacity check and commits all
// of a batch's successes through one Append call; the sink serializes that
// against any concurrent removal.
type CollectionSink interface {
	Size() int
	Append(ctx context.Context, urls []string) (added int, err error)
}

// Orchestrator coordinates a batch of candidates through validation,
// concurrent transfer, and a single collection commit.
type Orchestrator struct {
	validator *Validator
	uploader  Uploader
	sink      CollectionSink
	maxImages int
	limit     int
	log       *logger.Logger
}

// NewOrchestrator creates a batch orchestrator. limit bounds how many
// transfers run concurrently; values below one fall back to serial.
func NewOrchestrator(validator *Validator, uploader Uploader, sink CollectionSink, maxImages, limit int, log *logger.Logger) *Orchestrator {
	if limit < 1 {
		limit = 1
	}
	return &Orchestrator{
		validator: validator,
		uploader:  uploader,
		sink:      sink,
		maxImages: maxImages,
		limit:     limit,
		log:       log,
	}
}

// Ingest runs one batch to completion.
//
// The batch is rejected outright with ErrCapacityExceeded, before any
// transfer, when it would push the collection past maxImages. Surviving
// candidates are validated synchronously; the rest are dispatched
// concurrently and independently awaited. A candidate's failure never
// cancels its siblings: the result is produced only after every candidate
// has settled, with outcomes indexed by submission order. All successes are
// then committed to the collection in one append.
func (o *Orchestrator) Ingest(ctx context.Context, candidates []Candidate) (*BatchResult, error) {
	if len(candidates) == 0 {
		return &BatchResult{}, nil
	}
	if o.sink.Size()+len(candidates) > o.maxImages {
		return nil, ErrCapacityExceeded
	}

	outcomes := make([]Outcome, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.limit)

	for i, c := range candidates {
		outcomes[i] = Outcome{Index: i, Name: c.OriginalName}

		if err := o.validator.Validate(c); err != nil {
			outcomes[i].err = err
			outcomes[i].Reason = err.Error()
			continue
		}

		i, c := i, c
		g.Go(func() error {
			obj, err := o.uploader.Upload(gctx, c)
			// Each goroutine writes only its own slot; errors settle the
			// outcome instead of failing the group, so siblings keep going.
			if err != nil {
				outcomes[i].err = err
				outcomes[i].Reason = err.Error()
				return nil
			}
			outcomes[i].Stored = obj
			return nil
		})
	}

	_ = g.Wait()

	result := &BatchResult{Outcomes: outcomes}

	if urls := result.StoredURLs(); len(urls) > 0 {
		if _, err := o.sink.Append(ctx, urls); err != nil {
			// A concurrent batch can win the window between the size check
			// above and this commit; the sink's own cap is authoritative.
			if apperr.Is(err, apperr.KindCapacity) {
				return nil, ErrCapacityExceeded
			}
			return nil, err
		}
	}

	o.log.BatchEvent(len(candidates), len(candidates)-result.FailureCount(), result.FailureCount())

	return result, nil
}
