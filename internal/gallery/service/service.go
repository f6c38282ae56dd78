// Package gallery owns the collection state: the ordered list of
// successfully ingested image URLs. All mutation is serialized through one
// lock-protected service, so an in-flight batch append and a user-initiated
// removal can never interleave, and observers never see mid-batch states.
package service

import (
	"context"
	"fmt"
	"sync"

	"gallery_backend/platform/apperr"
	"gallery_backend/platform/logger"
)

// Store persists the collection under a single named key: loaded once at
// startup, written after every successful mutation.
type Store interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, urls []string) error
}

// Service is the single owner of the collection.
type Service struct {
	mu    sync.Mutex
	urls  []string
	store Store
	max   int
	log   *logger.Logger
}

// NewService creates the collection owner, loading persisted state.
func NewService(ctx context.Context, store Store, max int, log *logger.Logger) (*Service, error) {
	urls, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load gallery state: %w", err)
	}
	s := &Service{
		urls:  urls,
		store: store,
		max:   max,
		log:   log,
	}
	return s, nil
}

// Size returns the current number of images.
func (s *Service) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}

// Max returns the collection capacity.
func (s *Service) Max() int { return s.max }

// URLs returns a copy of the ordered URL list.
func (s *Service) URLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.urls...)
}

// Append adds URLs not already present, preserving submission order.
// Set-semantics on value guard against a caller re-committing an
// already-successful batch. An append pushing the collection past its
// capacity is rejected whole. The new state is persisted before the
// in-memory list is updated; a persistence or capacity failure leaves the
// collection unchanged. Returns how many URLs were actually added.
func (s *Service) Append(ctx context.Context, urls []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	present := make(map[string]bool, len(s.urls))
	for _, u := range s.urls {
		present[u] = true
	}

	next := append([]string(nil), s.urls...)
	added := 0
	for _, u := range urls {
		if u == "" || present[u] {
			continue
		}
		present[u] = true
		next = append(next, u)
		added++
	}

	if added == 0 {
		return 0, nil
	}

	// Callers precheck capacity before transferring, but two concurrent
	// batches can both pass that check; the commit under the mutex is
	// authoritative.
	if len(next) > s.max {
		return 0, apperr.Capacity(fmt.Sprintf("gallery holds at most %d images", s.max))
	}

	if err := s.store.Save(ctx, next); err != nil {
		s.log.StorageError("save", "gallery", err)
		return 0, apperr.Wrap(apperr.KindInternal, "failed to persist gallery state", err)
	}

	s.urls = next
	return added, nil
}

// Remove deletes the URL at index, shifting later indices down by one, and
// returns the removed URL. Callers holding a stale index must re-resolve it
// against the new length (see ResolveFocus).
func (s *Service) Remove(ctx context.Context, index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.urls) {
		return "", apperr.NotFound(fmt.Sprintf("no image at index %d", index))
	}

	next := make([]string, 0, len(s.urls)-1)
	next = append(next, s.urls[:index]...)
	next = append(next, s.urls[index+1:]...)

	if err := s.store.Save(ctx, next); err != nil {
		s.log.StorageError("save", "gallery", err)
		return "", apperr.Wrap(apperr.KindInternal, "failed to persist gallery state", err)
	}

	removed := s.urls[index]
	s.urls = next
	return removed, nil
}

// ResolveFocus revalidates a viewer focus index against the collection's
// new length after a removal: focus shifts to the new last element when it
// ran past the end, and clears (-1) when the collection is empty.
func ResolveFocus(focus, length int) int {
	if length == 0 || focus < 0 {
		return -1
	}
	if focus >= length {
		return length - 1
	}
	return focus
}
