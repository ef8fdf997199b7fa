package middleware

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"finitefield.org/trademark-web/internal/currency"
	"finitefield.org/trademark-web/internal/i18n"
)

func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultSessionCookie {
			return c
		}
	}
	t.Fatalf("session cookie not issued")
	return nil
}

func TestSessionIssuedAndReused(t *testing.T) {
	sessions := NewSessions(SessionConfig{SigningKey: []byte("test-key")})
	var seen []string
	h := sessions.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, SessionFromContext(r.Context()).ID)
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	cookie := sessionCookie(t, first)
	assert.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	second := httptest.NewRecorder()
	h.ServeHTTP(second, req)

	require.Len(t, seen, 2)
	assert.Equal(t, seen[0], seen[1])
	assert.Empty(t, second.Result().Cookies(), "unchanged session is not re-issued")
}

func TestSessionRejectsTamperedCookie(t *testing.T) {
	sessions := NewSessions(SessionConfig{SigningKey: []byte("test-key")})
	value := sessions.Encode(&SessionData{ID: "abc", CSRFToken: "tok"})

	sd, err := sessions.Decode(value)
	require.NoError(t, err)
	assert.Equal(t, "abc", sd.ID)

	other := NewSessions(SessionConfig{SigningKey: []byte("other-key")})
	_, err = other.Decode(value)
	assert.Error(t, err)

	_, err = sessions.Decode("garbage")
	assert.Error(t, err)
}

func TestCSRFAcceptsHeaderOrFormField(t *testing.T) {
	sessions := NewSessions(SessionConfig{SigningKey: []byte("test-key")})
	var token string
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = CSRFTokenFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}), sessions.Middleware(), CSRF())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, token)
	cookie := sessionCookie(t, rec)

	missing := httptest.NewRequest(http.MethodPost, "/", nil)
	missing.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, missing)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "csrf_invalid")

	header := httptest.NewRequest(http.MethodPost, "/", nil)
	header.AddCookie(cookie)
	header.Header.Set(CSRFHeader, token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, header)
	assert.Equal(t, http.StatusOK, rec.Code)

	form := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(url.Values{CSRFField: {token}}.Encode()))
	form.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	form.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, form)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRFHandsOversizeFormsToTooLargeHandler(t *testing.T) {
	sessions := NewSessions(SessionConfig{SigningKey: []byte("test-key")})
	reached := false
	tooLarge := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, CSRFTokenFromContext(r.Context()))
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	})
	limit := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, 512)
			next.ServeHTTP(w, r)
		})
	}
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}), limit, sessions.Middleware(), CSRF(WithTooLargeHandler(tooLarge)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookie := sessionCookie(t, rec)
	reached = false

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField(CSRFField, "irrelevant"))
	part, err := mw.CreateFormFile("logo", "logo.png")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), 4096))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	body := buf.Bytes()

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, reached)

	h = chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), limit, sessions.Middleware(), CSRF())
	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "request_too_large")
}

func TestLocalePrecedence(t *testing.T) {
	bundle, err := i18n.Default("en", []string{"en", "de"})
	require.NoError(t, err)
	var lang string
	h := Locale(bundle, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang = Lang(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "de", lang)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "de-DE")
	req.AddCookie(&http.Cookie{Name: LangCookie, Value: "en"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "en", lang)

	rec := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/?hl=de", nil)
	req.AddCookie(&http.Cookie{Name: LangCookie, Value: "en"})
	h.ServeHTTP(rec, req)
	assert.Equal(t, "de", lang)
	assert.Equal(t, "de", rec.Header().Get("Content-Language"))

	req = httptest.NewRequest(http.MethodGet, "/?hl=xx", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "en", lang)
}

func TestCurrencyPreference(t *testing.T) {
	var (
		code     currency.Code
		explicit bool
	)
	h := Currency(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code, explicit = CurrencyFromContext(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, explicit)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: currency.CookieName, Value: "usd"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, explicit)
	assert.Equal(t, currency.USD, code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: currency.CookieName, Value: "GBP"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.False(t, explicit, "unsupported cookie values are ignored")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?currency=EUR", nil))
	assert.Equal(t, currency.EUR, code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, currency.CookieName, cookies[0].Name)
	assert.Equal(t, "EUR", cookies[0].Value)
}

func TestAdminGate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	gate := NewAdminGate(string(hash), "", time.Hour)

	assert.False(t, gate.Open())
	assert.True(t, gate.Check("s3cret"))
	assert.False(t, gate.Check("wrong"))

	sd := &SessionData{ID: "before", CSRFToken: "tok"}
	now := time.Now()
	assert.False(t, gate.Authenticated(sd, now))
	gate.Grant(sd, now)
	assert.True(t, gate.Authenticated(sd, now))
	assert.NotEqual(t, "before", sd.ID)
	assert.False(t, gate.Authenticated(sd, now.Add(2*time.Hour)))
	gate.Revoke(sd)
	assert.False(t, gate.Authenticated(sd, now))

	protected := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), HTMX(), gate.Require())

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin?status=new", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/login?next=%2Fadmin%3Fstatus%3Dnew", rec.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/admin/leads/table", nil)
	req.Header.Set("HX-Request", "true")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("HX-Redirect"))

	open := NewAdminGate("", "", 0)
	assert.True(t, open.Open())
	assert.True(t, open.Authenticated(&SessionData{}, now))
}

func TestRequireHTMX(t *testing.T) {
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), HTMX(), RequireHTMX())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/frag", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/frag", nil)
	req.Header.Set("HX-Request", "true")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
