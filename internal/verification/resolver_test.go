package verification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finitefield.org/trademark-web/internal/backup"
	"finitefield.org/trademark-web/internal/catalog"
	"finitefield.org/trademark-web/internal/currency"
	"finitefield.org/trademark-web/internal/leads"
	"finitefield.org/trademark-web/internal/pricing"
	"finitefield.org/trademark-web/internal/wizard"
)

type stubLookup struct {
	rec leads.Record
	err error
}

func (s stubLookup) Lookup(context.Context, string) (leads.Record, error) { return s.rec, s.err }

func formJSON(t *testing.T) []byte {
	t.Helper()
	f := wizard.New(currency.USD)
	f.MarkName = "Acme"
	f.Countries = []pricing.Line{{Country: "United States", Classes: 2}, {Country: "Atlantis", Classes: 1}}
	raw, err := json.Marshal(f)
	require.NoError(t, err)
	return raw
}

func TestResolveFromBackend(t *testing.T) {
	signer, err := NewSigner("k", time.Hour)
	require.NoError(t, err)
	tok, err := signer.Issue("01J", "")
	require.NoError(t, err)

	r := &Resolver{
		Signer:  signer,
		Lookup:  stubLookup{rec: leads.Record{ID: "01J", Status: leads.StatusCompleted, SearchData: formJSON(t)}},
		Catalog: catalog.MustDefault(),
	}
	v, err := r.Resolve(context.Background(), "01J", tok)
	require.NoError(t, err)
	require.Equal(t, SourceBackend, v.Source)
	require.Equal(t, leads.StatusCompleted, v.Status)
	require.Equal(t, []string{"Atlantis"}, v.Skipped)
	require.Equal(t, int64(101200+49900), v.Estimate.Total())
}

func TestResolveFallsBackToBackup(t *testing.T) {
	signer, err := NewSigner("k", time.Hour)
	require.NoError(t, err)
	tok, err := signer.Issue("01J", "")
	require.NoError(t, err)

	store := backup.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), backup.Snapshot{SearchID: "01J", FormData: formJSON(t), Timestamp: time.Now()}))

	r := &Resolver{
		Signer:  signer,
		Lookup:  stubLookup{err: errors.New("offline")},
		Backups: store,
		Catalog: catalog.MustDefault(),
	}
	v, err := r.Resolve(context.Background(), "01J", tok)
	require.NoError(t, err)
	require.Equal(t, SourceBackup, v.Source)
	require.Equal(t, "Acme", v.Form.MarkName)

	_, err = r.Resolve(context.Background(), "01J", "")
	require.ErrorIs(t, err, ErrInvalidToken)

	tokMissing, err := signer.Issue("01JMISSING", "")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "01JMISSING", tokMissing)
	require.ErrorIs(t, err, ErrNotFound)
}
