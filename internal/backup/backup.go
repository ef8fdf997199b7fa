// Package backup keeps a local copy of every submitted search so a lead is
// never lost when the backend is unreachable.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// KeyPrefix prefixes every snapshot key.
const KeyPrefix = "trademark_search_"

var (
	// ErrNotFound is returned when no snapshot exists for a search id.
	ErrNotFound = errors.New("backup: snapshot not found")
	// ErrInvalidSnapshot is returned for snapshots without id or form data.
	ErrInvalidSnapshot = errors.New("backup: invalid snapshot")
)

// Key returns the storage key for a search id.
func Key(searchID string) string { return KeyPrefix + searchID }

// SearchIDFromKey reverses Key.
func SearchIDFromKey(key string) (string, bool) {
	id, ok := strings.CutPrefix(key, KeyPrefix)
	return id, ok && id != ""
}

// Snapshot is the stored document. FormData is the serialised form without
// file contents.
type Snapshot struct {
	SearchID    string          `json:"searchId"`
	FormData    json.RawMessage `json:"formData"`
	Timestamp   time.Time       `json:"timestamp"`
	DeliveredAt *time.Time      `json:"-"`
}

// Key returns the snapshot's storage key.
func (s Snapshot) Key() string { return Key(s.SearchID) }

// Delivered reports whether the backend acknowledged the submission.
func (s Snapshot) Delivered() bool { return s.DeliveredAt != nil }

func (s Snapshot) validate() error {
	if strings.TrimSpace(s.SearchID) == "" || len(s.FormData) == 0 || !json.Valid(s.FormData) {
		return ErrInvalidSnapshot
	}
	return nil
}

// ListOptions filters List results.
type ListOptions struct {
	Limit           int
	UndeliveredOnly bool
}

// Store persists snapshots. Save overwrites an existing snapshot with the same id.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context, searchID string) (Snapshot, error)
	List(ctx context.Context, opts ListOptions) ([]Snapshot, error)
	MarkDelivered(ctx context.Context, searchID string, at time.Time) error
}
