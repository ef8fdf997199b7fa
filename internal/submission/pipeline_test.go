package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finitefield.org/trademark-web/internal/backup"
	"finitefield.org/trademark-web/internal/catalog"
	"finitefield.org/trademark-web/internal/currency"
	"finitefield.org/trademark-web/internal/leads"
	"finitefield.org/trademark-web/internal/pricing"
	"finitefield.org/trademark-web/internal/uploads"
	"finitefield.org/trademark-web/internal/wizard"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func completeForm(t *testing.T) wizard.FormState {
	t.Helper()
	cat := catalog.MustDefault()
	f := wizard.New(currency.EUR)
	f.MarkType = wizard.MarkWord
	f.MarkName = "Acme"
	f.GoodsServices = "Class 9 software"
	e := pricing.NewEstimate(cat, currency.EUR)
	require.NoError(t, e.Select("European Union"))
	require.NoError(t, e.IncrementClass("European Union"))
	f.SetEstimate(e)
	f.Contact = wizard.Contact{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.org", TermsAccepted: true}
	f.Step = wizard.StepContact
	return f
}

type countingSender struct {
	calls atomic.Int32
	err   error
}

func (s *countingSender) Send(context.Context, Payload) error {
	s.calls.Add(1)
	return s.err
}

func newTestPipeline(sender Sender, store backup.Store, policy Policy) *Pipeline {
	return NewPipeline(Deps{
		Sender:  sender,
		Backups: store,
		Catalog: catalog.MustDefault(),
		Policy:  policy,
		Now:     func() time.Time { return fixedNow },
		NewID:   func() string { return "01JTESTSEARCH" },
	})
}

func TestSubmitLenientKeepsBackupOnFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	t.Cleanup(ts.Close)
	client, err := NewClient(ts.URL, ts.Client(), time.Second)
	require.NoError(t, err)

	store := backup.NewMemoryStore()
	res, err := newTestPipeline(client, store, PolicyLenient).Submit(context.Background(), completeForm(t))
	require.NoError(t, err)
	require.Equal(t, "01JTESTSEARCH", res.SearchID)
	require.False(t, res.Delivered)
	require.ErrorContains(t, res.DeliveryErr, "502")

	snap, err := store.Get(context.Background(), res.SearchID)
	require.NoError(t, err)
	require.Equal(t, "trademark_search_01JTESTSEARCH", snap.Key())
	require.False(t, snap.Delivered())
	require.True(t, snap.Timestamp.Equal(fixedNow))

	var saved wizard.FormState
	require.NoError(t, json.Unmarshal(snap.FormData, &saved))
	require.Equal(t, "Acme", saved.MarkName)
	require.Equal(t, []pricing.Line{{Country: "European Union", Classes: 2}}, saved.Countries)
}

func TestSubmitStrictReturnsDeliveryError(t *testing.T) {
	sender := &countingSender{err: errors.New("connection refused")}
	store := backup.NewMemoryStore()
	res, err := newTestPipeline(sender, store, PolicyStrict).Submit(context.Background(), completeForm(t))
	require.ErrorIs(t, err, ErrDeliveryFailed)
	require.ErrorContains(t, err, "connection refused")
	require.Equal(t, "01JTESTSEARCH", res.SearchID)

	_, err = store.Get(context.Background(), "01JTESTSEARCH")
	require.NoError(t, err)
}

func TestSubmitPreviewMakesNoNetworkCall(t *testing.T) {
	sender := &countingSender{}
	store := backup.NewMemoryStore()
	p := NewPipeline(Deps{Sender: sender, Backups: store, Preview: true, PreviewDelay: time.Millisecond})

	res, err := p.Submit(context.Background(), completeForm(t))
	require.NoError(t, err)
	require.True(t, res.Preview)
	require.Zero(t, sender.calls.Load())
	_, err = store.Get(context.Background(), res.SearchID)
	require.NoError(t, err)

	slow := NewPipeline(Deps{Preview: true, PreviewDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = slow.Submit(ctx, completeForm(t))
	require.ErrorIs(t, err, context.Canceled)
}

func TestSubmitRejectsIncompleteForm(t *testing.T) {
	sender := &countingSender{}
	store := backup.NewMemoryStore()
	form := completeForm(t)
	form.Contact.Email = "not-an-email"

	_, err := newTestPipeline(sender, store, PolicyLenient).Submit(context.Background(), form)
	var fe wizard.FieldErrors
	require.ErrorAs(t, err, &fe)
	require.True(t, fe.Has(wizard.FieldEmail))
	require.Zero(t, sender.calls.Load())

	list, err := store.List(context.Background(), backup.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestSubmitSendsMultipartPayload(t *testing.T) {
	type received struct {
		key    string
		fields map[string]string
		logo   []byte
		logoCT string
		files  []string
	}
	got := make(chan received, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/submit-free-search", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		rec := received{key: r.Header.Get(IdempotencyHeader), fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			rec.fields[k] = v[0]
		}
		logo, hdr, err := r.FormFile("logo")
		require.NoError(t, err)
		rec.logo, _ = io.ReadAll(logo)
		rec.logoCT = hdr.Header.Get("Content-Type")
		for _, fh := range r.MultipartForm.File["files[]"] {
			rec.files = append(rec.files, fh.Filename)
		}
		got <- rec
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(ts.Close)

	stash := uploads.NewStash(1<<20, time.Hour)
	logo, err := stash.Put(context.Background(), "mark.png", bytes.NewReader(pngHeader), uploads.KindImage)
	require.NoError(t, err)
	doc, err := stash.Put(context.Background(), "brief.pdf", bytes.NewReader([]byte("%PDF-1.4\n")), uploads.KindDocument)
	require.NoError(t, err)

	form := completeForm(t)
	form.MarkType = wizard.MarkLogo
	form.Image = &wizard.Attachment{ID: logo.ID, Filename: logo.Filename, ContentType: logo.ContentType, Size: logo.Size}
	form.Files = []wizard.Attachment{{ID: doc.ID, Filename: doc.Filename}, {ID: "expired"}}

	client, err := NewClient(ts.URL, ts.Client(), time.Second)
	require.NoError(t, err)
	store := backup.NewMemoryStore()
	p := NewPipeline(Deps{
		Sender:  client,
		Backups: store,
		Uploads: stash,
		Catalog: catalog.MustDefault(),
		Now:     func() time.Time { return fixedNow },
		NewID:   func() string { return "01JMULTIPART" },
	})

	res, err := p.Submit(context.Background(), form)
	require.NoError(t, err)
	require.True(t, res.Delivered)

	rec := <-got
	require.Equal(t, "01JMULTIPART", rec.key)
	require.Equal(t, "01JMULTIPART", rec.fields["searchId"])
	require.Equal(t, FormType, rec.fields["formType"])
	require.Equal(t, "logo", rec.fields["markType"])
	require.Equal(t, "ada@example.org", rec.fields["email"])
	require.Equal(t, "EUR", rec.fields["currency"])
	require.Equal(t, "197600", rec.fields["estimatedTotal"])
	require.JSONEq(t, `[{"name":"European Union","classes":2}]`, rec.fields["countries"])
	require.Equal(t, pngHeader, rec.logo)
	require.Equal(t, "image/png", rec.logoCT)
	require.Equal(t, []string{"brief.pdf"}, rec.files)

	snap, err := store.Get(context.Background(), "01JMULTIPART")
	require.NoError(t, err)
	require.True(t, snap.Delivered())
}

func TestResubmitReplaysSnapshot(t *testing.T) {
	sender := &countingSender{}
	store := backup.NewMemoryStore()
	p := newTestPipeline(sender, store, PolicyLenient)

	formData, err := json.Marshal(completeForm(t))
	require.NoError(t, err)
	snap := backup.Snapshot{SearchID: "01JOLD", FormData: formData, Timestamp: fixedNow}
	require.NoError(t, store.Save(context.Background(), snap))

	res, err := p.Resubmit(context.Background(), snap)
	require.NoError(t, err)
	require.True(t, res.Delivered)
	require.Equal(t, int32(1), sender.calls.Load())

	stored, err := store.Get(context.Background(), "01JOLD")
	require.NoError(t, err)
	require.True(t, stored.Delivered())

	sender.err = errors.New("still down")
	_, err = p.Resubmit(context.Background(), snap)
	require.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestClientLookup(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Query().Get("search_id") {
		case "01JFOUND":
			_, _ = w.Write([]byte(`{"data":{"id":"01JFOUND","form_type":"free_search","status":"processing","search_data":{"markName":"Acme"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)

	client, err := NewClient(ts.URL, ts.Client(), time.Second)
	require.NoError(t, err)

	rec, err := client.Lookup(context.Background(), "01JFOUND")
	require.NoError(t, err)
	require.Equal(t, "01JFOUND", rec.ID)
	require.Equal(t, leads.StatusProcessing, rec.Status)
	require.Equal(t, "Acme", rec.Summary().MarkName)

	_, err = client.Lookup(context.Background(), "01JMISSING")
	require.ErrorIs(t, err, leads.ErrNotFound)
}

func TestParsePolicy(t *testing.T) {
	p, ok := ParsePolicy(" Strict ")
	require.True(t, ok)
	require.Equal(t, PolicyStrict, p)
	_, ok = ParsePolicy("yolo")
	require.False(t, ok)
}
