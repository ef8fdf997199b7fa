package wizard

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrDraftNotFound is returned when no draft exists for a session.
var ErrDraftNotFound = errors.New("wizard: draft not found")

// Store keeps in-progress forms per browser session.
type Store interface {
	Load(ctx context.Context, sessionID string) (FormState, error)
	Save(ctx context.Context, sessionID string, form FormState) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore is a process-local Store with idle expiry.
type MemoryStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	drafts map[string]memoryDraft
}

type memoryDraft struct {
	form      FormState
	expiresAt time.Time
}

// NewMemoryStore creates a store whose drafts expire after ttl without writes.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{ttl: ttl, now: time.Now, drafts: make(map[string]memoryDraft)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (FormState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[sessionID]
	if !ok {
		return FormState{}, ErrDraftNotFound
	}
	if !s.now().Before(d.expiresAt) {
		delete(s.drafts, sessionID)
		return FormState{}, ErrDraftNotFound
	}
	return cloneForm(d.form), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, sessionID string, form FormState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[sessionID] = memoryDraft{form: cloneForm(form), expiresAt: s.now().Add(s.ttl)}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, sessionID)
	return nil
}

// Sweep drops expired drafts and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, d := range s.drafts {
		if !now.Before(d.expiresAt) {
			delete(s.drafts, id)
			removed++
		}
	}
	return removed
}

func cloneForm(f FormState) FormState {
	cp := f
	if f.Image != nil {
		img := *f.Image
		cp.Image = &img
	}
	cp.Files = append([]Attachment(nil), f.Files...)
	cp.Countries = append(cp.Countries[:0:0], f.Countries...)
	return cp
}
