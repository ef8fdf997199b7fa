package verification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	s, err := NewSigner("s3cret", time.Hour)
	require.NoError(t, err)
	clock := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	tok, err := s.Issue("01JSEARCH", "ada@example.org")
	require.NoError(t, err)

	claims, err := s.Verify(tok, "01JSEARCH")
	require.NoError(t, err)
	require.Equal(t, "01JSEARCH", claims.Subject)
	require.Equal(t, "ada@example.org", claims.Email)

	_, err = s.Verify(tok, "01JOTHER")
	require.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewSigner("different", time.Hour)
	require.NoError(t, err)
	other.now = s.now
	_, err = other.Verify(tok, "01JSEARCH")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Verify("garbage", "01JSEARCH")
	require.ErrorIs(t, err, ErrInvalidToken)

	clock = clock.Add(2 * time.Hour)
	_, err = s.Verify(tok, "01JSEARCH")
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestNewSignerRequiresSecret(t *testing.T) {
	_, err := NewSigner("  ", time.Hour)
	require.Error(t, err)
}
