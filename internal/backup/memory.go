package backup

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a Store for tests and for running without a database file.
type MemoryStore struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	if err := snap.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.FormData = append([]byte(nil), snap.FormData...)
	snap.Timestamp = snap.Timestamp.UTC()
	snap.DeliveredAt = nil
	if prev, ok := s.snaps[snap.Key()]; ok {
		snap.DeliveredAt = prev.DeliveredAt
	}
	s.snaps[snap.Key()] = snap
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, searchID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[Key(searchID)]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// List implements Store, newest first.
func (s *MemoryStore) List(_ context.Context, opts ListOptions) ([]Snapshot, error) {
	s.mu.Lock()
	out := make([]Snapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		if opts.UndeliveredOnly && snap.Delivered() {
			continue
		}
		out = append(out, snap)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].SearchID > out[j].SearchID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// MarkDelivered implements Store.
func (s *MemoryStore) MarkDelivered(_ context.Context, searchID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[Key(searchID)]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	snap.DeliveredAt = &at
	s.snaps[snap.Key()] = snap
	return nil
}
