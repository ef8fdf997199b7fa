// Package uploads holds form attachments between wizard steps until the
// submission pipeline forwards them.
package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown or expired upload ids.
	ErrNotFound = errors.New("uploads: file not found")
	// ErrTooLarge is returned when a file exceeds the configured limit.
	ErrTooLarge = errors.New("uploads: file too large")
	// ErrEmpty is returned for zero-byte uploads.
	ErrEmpty = errors.New("uploads: file is empty")
	// ErrUnsupportedType is returned when the sniffed type is not allowed.
	ErrUnsupportedType = errors.New("uploads: unsupported file type")
)

// Kind restricts which content types an upload may have.
type Kind int

const (
	// KindImage accepts raster and vector images for the mark itself.
	KindImage Kind = iota
	// KindDocument accepts supporting material: images, PDF and office files.
	KindDocument
)

var imageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp", "image/svg+xml"}

var documentTypes = append([]string{
	"application/pdf",
	"text/plain",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/msword",
}, imageTypes...)

func (k Kind) allows(mime *mimetype.MIME) bool {
	allowed := imageTypes
	if k == KindDocument {
		allowed = documentTypes
	}
	for m := mime; m != nil; m = m.Parent() {
		for _, a := range allowed {
			if m.Is(a) {
				return true
			}
		}
	}
	return false
}

// File is a stashed upload.
type File struct {
	ID          string
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
	StoredAt    time.Time
}

// Stash is a process-local, size-bounded attachment store with expiry.
type Stash struct {
	mu       sync.Mutex
	files    map[string]File
	maxBytes int64
	ttl      time.Duration
	now      func() time.Time
}

// NewStash creates a stash. maxBytes bounds a single file; ttl bounds how
// long an unsubmitted file is kept.
func NewStash(maxBytes int64, ttl time.Duration) *Stash {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Stash{files: make(map[string]File), maxBytes: maxBytes, ttl: ttl, now: time.Now}
}

// MaxBytes reports the per-file limit.
func (s *Stash) MaxBytes() int64 { return s.maxBytes }

// Put reads r fully, sniffs its type and stores it under a fresh id.
func (s *Stash) Put(_ context.Context, filename string, r io.Reader, kind Kind) (File, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return File{}, fmt.Errorf("uploads: read %q: %w", filename, err)
	}
	if len(data) == 0 {
		return File{}, ErrEmpty
	}
	if int64(len(data)) > s.maxBytes {
		return File{}, ErrTooLarge
	}
	mime := mimetype.Detect(data)
	if !kind.allows(mime) {
		return File{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mime.String())
	}

	f := File{
		ID:          uuid.NewString(),
		Filename:    cleanFilename(filename, mime.Extension()),
		ContentType: mime.String(),
		Size:        int64(len(data)),
		Data:        data,
		StoredAt:    s.now(),
	}
	s.mu.Lock()
	s.files[f.ID] = f
	s.mu.Unlock()
	return f, nil
}

// Get returns a stored file.
func (s *Stash) Get(_ context.Context, id string) (File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return File{}, ErrNotFound
	}
	if !s.now().Before(f.StoredAt.Add(s.ttl)) {
		delete(s.files, id)
		return File{}, ErrNotFound
	}
	return f, nil
}

// Reader opens a stored file for streaming.
func (s *Stash) Reader(ctx context.Context, id string) (io.Reader, File, error) {
	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, File{}, err
	}
	return bytes.NewReader(f.Data), f, nil
}

// Delete drops files; unknown ids are ignored.
func (s *Stash) Delete(_ context.Context, ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.files, id)
	}
}

// Sweep drops expired files and returns how many were removed.
func (s *Stash) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, f := range s.files {
		if !now.Before(f.StoredAt.Add(s.ttl)) {
			delete(s.files, id)
			removed++
		}
	}
	return removed
}

func cleanFilename(name, ext string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload" + ext
	}
	if len(name) > 120 {
		name = name[len(name)-120:]
	}
	return name
}
