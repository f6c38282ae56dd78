package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"gallery_backend/internal/adapters/storage"
	"gallery_backend/platform/apperr"
	"gallery_backend/platform/logger"
)

type fakeUploader struct {
	mu      sync.Mutex
	calls   int32
	failFor map[string]error
}

func (f *fakeUploader) Upload(ctx context.Context, c Candidate) (*storage.StoredObject, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	err := f.failFor[c.OriginalName]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &storage.StoredObject{
		PublicURL:   "https://cdn.example.com/" + c.OriginalName,
		DownloadURL: "https://cdn.example.com/" + c.OriginalName + "?download",
		Key:         c.OriginalName,
	}, nil
}

type fakeSink struct {
	mu      sync.Mutex
	urls    []string
	appends int
	saveErr error
}

func (f *fakeSink) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

func (f *fakeSink) Append(ctx context.Context, urls []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends++
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	f.urls = append(f.urls, urls...)
	return len(urls), nil
}

func validCandidate(name string) Candidate {
	return Candidate{
		Data:         []byte("payload"),
		ContentType:  "image/png",
		Size:         7,
		OriginalName: name,
	}
}

func newTestOrchestrator(uploader Uploader, sink CollectionSink, maxImages, limit int) *Orchestrator {
	return NewOrchestrator(NewValidator(DefaultMaxSize), uploader, sink, maxImages, limit, logger.New("test"))
}

func TestIngestCommitsSuccessesInOrder(t *testing.T) {
	uploader := &fakeUploader{}
	sink := &fakeSink{}
	o := newTestOrchestrator(uploader, sink, 10, 3)

	candidates := []Candidate{
		validCandidate("a.png"),
		validCandidate("b.png"),
		validCandidate("c.png"),
		validCandidate("d.png"),
	}
	result, err := o.Ingest(context.Background(), candidates)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.FailureCount() != 0 {
		t.Fatalf("expected no failures, got %d", result.FailureCount())
	}

	want := []string{
		"https://cdn.example.com/a.png",
		"https://cdn.example.com/b.png",
		"https://cdn.example.com/c.png",
		"https://cdn.example.com/d.png",
	}
	if len(sink.urls) != len(want) {
		t.Fatalf("expected %d committed URLs, got %d", len(want), len(sink.urls))
	}
	for i, u := range want {
		if sink.urls[i] != u {
			t.Fatalf("url %d: got %q, want %q", i, sink.urls[i], u)
		}
	}
	if sink.appends != 1 {
		t.Fatalf("expected one commit, got %d", sink.appends)
	}
}

func TestIngestSettlesAllDespitePartialFailure(t *testing.T) {
	storeErr := errors.New("connection reset")
	uploader := &fakeUploader{failFor: map[string]error{"b.png": storeErr}}
	sink := &fakeSink{}
	o := newTestOrchestrator(uploader, sink, 10, 2)

	candidates := []Candidate{
		validCandidate("a.png"),
		validCandidate("b.png"),
		validCandidate("c.png"),
	}
	result, err := o.Ingest(context.Background(), candidates)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if got := atomic.LoadInt32(&uploader.calls); got != 3 {
		t.Fatalf("a sibling failure must not cancel transfers: %d calls", got)
	}
	if result.FailureCount() != 1 {
		t.Fatalf("expected 1 failure, got %d", result.FailureCount())
	}
	if !errors.Is(result.Outcomes[1].Err(), storeErr) {
		t.Fatalf("outcome 1 should carry the upload error, got %v", result.Outcomes[1].Err())
	}
	if result.Outcomes[0].Succeeded() != true || result.Outcomes[2].Succeeded() != true {
		t.Fatal("siblings of the failed candidate should have succeeded")
	}

	want := []string{"https://cdn.example.com/a.png", "https://cdn.example.com/c.png"}
	if len(sink.urls) != 2 || sink.urls[0] != want[0] || sink.urls[1] != want[1] {
		t.Fatalf("committed URLs %v, want %v", sink.urls, want)
	}
}

func TestIngestRejectsInvalidCandidatesWithoutTransfer(t *testing.T) {
	uploader := &fakeUploader{}
	sink := &fakeSink{}
	o := newTestOrchestrator(uploader, sink, 10, 2)

	candidates := []Candidate{
		{ContentType: "application/pdf", Size: 10, OriginalName: "doc.pdf"},
		validCandidate("a.png"),
		{ContentType: "image/png", Size: 0, OriginalName: "empty.png"},
	}
	result, err := o.Ingest(context.Background(), candidates)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if got := atomic.LoadInt32(&uploader.calls); got != 1 {
		t.Fatalf("only the valid candidate should transfer, got %d calls", got)
	}
	if !errors.Is(result.Outcomes[0].Err(), ErrUnsupportedType) {
		t.Fatalf("outcome 0: got %v", result.Outcomes[0].Err())
	}
	if !errors.Is(result.Outcomes[2].Err(), ErrEmptyFile) {
		t.Fatalf("outcome 2: got %v", result.Outcomes[2].Err())
	}
	if !result.Outcomes[1].Succeeded() {
		t.Fatal("valid candidate should have succeeded")
	}
}

func TestIngestRejectsBatchOverCapacity(t *testing.T) {
	uploader := &fakeUploader{}
	sink := &fakeSink{urls: []string{"existing-1", "existing-2"}}
	o := newTestOrchestrator(uploader, sink, 4, 2)

	candidates := []Candidate{
		validCandidate("a.png"),
		validCandidate("b.png"),
		validCandidate("c.png"),
	}
	_, err := o.Ingest(context.Background(), candidates)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}

	if got := atomic.LoadInt32(&uploader.calls); got != 0 {
		t.Fatalf("no transfer may start for a rejected batch, got %d calls", got)
	}
	if sink.appends != 0 {
		t.Fatalf("rejected batch must not touch the collection, got %d appends", sink.appends)
	}
}

func TestIngestBatchFillingToExactCapacity(t *testing.T) {
	uploader := &fakeUploader{}
	sink := &fakeSink{urls: []string{"existing-1"}}
	o := newTestOrchestrator(uploader, sink, 3, 2)

	candidates := []Candidate{validCandidate("a.png"), validCandidate("b.png")}
	result, err := o.Ingest(context.Background(), candidates)
	if err != nil {
		t.Fatalf("a batch filling the collection exactly must be accepted: %v", err)
	}
	if result.FailureCount() != 0 {
		t.Fatalf("expected no failures, got %d", result.FailureCount())
	}
	if sink.Size() != 3 {
		t.Fatalf("expected collection size 3, got %d", sink.Size())
	}
}

func TestIngestEmptyBatch(t *testing.T) {
	uploader := &fakeUploader{}
	sink := &fakeSink{}
	o := newTestOrchestrator(uploader, sink, 4, 2)

	result, err := o.Ingest(context.Background(), nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(result.Outcomes) != 0 {
		t.Fatalf("expected no outcomes, got %d", len(result.Outcomes))
	}
	if sink.appends != 0 {
		t.Fatalf("empty batch must not touch the collection, got %d appends", sink.appends)
	}
}

func TestIngestPropagatesCommitFailure(t *testing.T) {
	uploader := &fakeUploader{}
	sink := &fakeSink{saveErr: fmt.Errorf("redis down")}
	o := newTestOrchestrator(uploader, sink, 10, 2)

	_, err := o.Ingest(context.Background(), []Candidate{validCandidate("a.png")})
	if err == nil {
		t.Fatal("expected commit failure to surface")
	}
}

// cappedSink rejects an append that would overflow, the way the real
// collection service does under its mutex.
type cappedSink struct {
	fakeSink
	max int
}

func (s *cappedSink) Append(ctx context.Context, urls []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.urls)+len(urls) > s.max {
		return 0, apperr.Capacity(fmt.Sprintf("gallery holds at most %d images", s.max))
	}
	s.appends++
	s.urls = append(s.urls, urls...)
	return len(urls), nil
}

func TestIngestCommitCapacityFailureMapsToSentinel(t *testing.T) {
	uploader := &fakeUploader{}
	sink := &cappedSink{fakeSink: fakeSink{urls: []string{"seeded"}}, max: 1}
	o := newTestOrchestrator(uploader, sink, 10, 2)

	_, err := o.Ingest(context.Background(), []Candidate{validCandidate("a.png")})
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded from the commit, got %v", err)
	}
}

func TestConcurrentBatchesNeverOvershootCapacity(t *testing.T) {
	uploader := &fakeUploader{}
	sink := &cappedSink{max: 3}
	o := newTestOrchestrator(uploader, sink, 3, 2)

	batches := [][]Candidate{
		{validCandidate("a.png"), validCandidate("b.png")},
		{validCandidate("c.png"), validCandidate("d.png")},
	}
	errs := make([]error, len(batches))
	var wg sync.WaitGroup
	for i := range batches {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = o.Ingest(context.Background(), batches[i])
		}(i)
	}
	wg.Wait()

	rejected := 0
	for i, err := range errs {
		if errors.Is(err, ErrCapacityExceeded) {
			rejected++
		} else if err != nil {
			t.Fatalf("batch %d: unexpected error %v", i, err)
		}
	}
	// Whichever batch loses the race gets the capacity rejection, at the
	// precheck or at the commit.
	if rejected != 1 {
		t.Fatalf("expected exactly one rejected batch, got %d", rejected)
	}
	if sink.Size() != 2 {
		t.Fatalf("collection overshoot: size %d with cap 3", sink.Size())
	}
}

func TestIngestAllFailuresSkipCommit(t *testing.T) {
	uploadErr := errors.New("upstream unavailable")
	uploader := &fakeUploader{failFor: map[string]error{"a.png": uploadErr, "b.png": uploadErr}}
	sink := &fakeSink{}
	o := newTestOrchestrator(uploader, sink, 10, 2)

	result, err := o.Ingest(context.Background(), []Candidate{validCandidate("a.png"), validCandidate("b.png")})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.FailureCount() != 2 {
		t.Fatalf("expected 2 failures, got %d", result.FailureCount())
	}
	if !errors.Is(result.FirstError(), uploadErr) {
		t.Fatalf("FirstError: got %v", result.FirstError())
	}
	if sink.appends != 0 {
		t.Fatalf("a fully failed batch must not commit, got %d appends", sink.appends)
	}
}
