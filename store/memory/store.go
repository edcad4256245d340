// Package memory provides an in-memory journal store for tests and
// single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/lien"
	"github.com/xraph/lien/event"
	"github.com/xraph/lien/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps the journal in a slice ordered by sequence number.
type Store struct {
	mu     sync.RWMutex
	events []event.Event
	seqs   map[uint64]struct{}
	closed bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		events: make([]event.Event, 0),
		seqs:   make(map[uint64]struct{}),
	}
}

// Append stores every event or none of them.
func (s *Store) Append(_ context.Context, events []*event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lien.ErrStoreClosed
	}

	last := s.lastSeq()
	batch := make(map[uint64]struct{}, len(events))
	for _, e := range events {
		if _, exists := s.seqs[e.Seq]; exists {
			return fmt.Errorf("%w: %d", lien.ErrDuplicateSeq, e.Seq)
		}
		if _, exists := batch[e.Seq]; exists {
			return fmt.Errorf("%w: %d", lien.ErrDuplicateSeq, e.Seq)
		}
		if e.Seq <= last {
			return fmt.Errorf("lien: journal sequence %d is not after %d", e.Seq, last)
		}
		batch[e.Seq] = struct{}{}
		last = e.Seq
	}

	for _, e := range events {
		s.events = append(s.events, *e)
		s.seqs[e.Seq] = struct{}{}
	}
	return nil
}

// List returns copies of the matching events in sequence order.
func (s *Store) List(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, lien.ErrStoreClosed
	}

	result := make([]*event.Event, 0)
	for i := range s.events {
		if !opts.Matches(&s.events[i]) {
			continue
		}
		cp := s.events[i]
		result = append(result, &cp)
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}
	return result, nil
}

// LastSeq returns the highest stored sequence number.
func (s *Store) LastSeq(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, lien.ErrStoreClosed
	}
	return s.lastSeq(), nil
}

func (s *Store) lastSeq() uint64 {
	if len(s.events) == 0 {
		return 0
	}
	return s.events[len(s.events)-1].Seq
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds unless the store is closed.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return lien.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. The journal is kept; Reopen makes it usable
// again.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Reopen clears the closed flag so a new controller can replay the journal.
func (s *Store) Reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
}
