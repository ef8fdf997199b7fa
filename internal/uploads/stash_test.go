package uploads

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestPutSniffsImage(t *testing.T) {
	s := NewStash(1024, time.Hour)
	f, err := s.Put(context.Background(), "C:\\marks\\logo.png", bytes.NewReader(pngHeader), KindImage)
	require.NoError(t, err)
	require.Equal(t, "image/png", f.ContentType)
	require.Equal(t, "logo.png", f.Filename)
	require.Equal(t, int64(len(pngHeader)), f.Size)
	require.NotEmpty(t, f.ID)

	r, got, err := s.Reader(context.Background(), f.ID)
	require.NoError(t, err)
	require.Equal(t, f.ID, got.ID)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, pngHeader, data)
}

func TestPutRejectsWrongKind(t *testing.T) {
	s := NewStash(1024, time.Hour)
	_, err := s.Put(context.Background(), "brief.pdf", strings.NewReader("%PDF-1.7\n%comment\n"), KindImage)
	require.ErrorIs(t, err, ErrUnsupportedType)

	f, err := s.Put(context.Background(), "brief.pdf", strings.NewReader("%PDF-1.7\n%comment\n"), KindDocument)
	require.NoError(t, err)
	require.Equal(t, "application/pdf", f.ContentType)
}

func TestPutLimits(t *testing.T) {
	s := NewStash(8, time.Hour)
	_, err := s.Put(context.Background(), "big.png", bytes.NewReader(pngHeader), KindImage)
	require.ErrorIs(t, err, ErrTooLarge)

	_, err = s.Put(context.Background(), "empty.png", bytes.NewReader(nil), KindImage)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestStashExpiry(t *testing.T) {
	s := NewStash(1024, time.Minute)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	a, err := s.Put(context.Background(), "a.png", bytes.NewReader(pngHeader), KindImage)
	require.NoError(t, err)
	b, err := s.Put(context.Background(), "b.png", bytes.NewReader(pngHeader), KindImage)
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	_, err = s.Get(context.Background(), a.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 1, s.Sweep())

	s.Delete(context.Background(), b.ID, "missing")
	_, err = s.Get(context.Background(), b.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
