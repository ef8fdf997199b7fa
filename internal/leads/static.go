package leads

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// StaticService keeps records in memory. It backs the admin panel when no
// backend is configured and in tests.
type StaticService struct {
	mu      sync.Mutex
	records []Record
	// FailUpdates makes UpdateStatus return this error when set.
	FailUpdates error
	// FailList makes List return this error when set.
	FailList error
}

// NewStaticService constructs a service seeded with records.
func NewStaticService(records ...Record) *StaticService {
	return &StaticService{records: append([]Record(nil), records...)}
}

// Add appends a record.
func (s *StaticService) Add(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

// List implements Service, newest first.
func (s *StaticService) List(_ context.Context, status Status) (ListResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailList != nil {
		return ListResult{}, s.FailList
	}
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return ListResult{Records: out}, nil
}

// UpdateStatus implements Service.
func (s *StaticService) UpdateStatus(_ context.Context, id string, status Status) error {
	if _, ok := ParseStatus(string(status)); !ok {
		return ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpdates != nil {
		return s.FailUpdates
	}
	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// TestConnection implements Service.
func (s *StaticService) TestConnection(context.Context) (Probe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailList != nil {
		return Probe{Message: s.FailList.Error()}, s.FailList
	}
	return Probe{OK: true, Status: 200, Message: "in-memory lead store"}, nil
}
