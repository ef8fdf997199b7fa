package middleware

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultSessionCookie names the signed session cookie.
	DefaultSessionCookie = "TRADEMARK_WEB_SESSION"
	defaultSessionMaxAge = 30 * 24 * time.Hour
)

// SessionData is the signed cookie payload. It only carries identifiers; the
// wizard draft lives server side, keyed by ID.
type SessionData struct {
	ID        string    `json:"id"`
	CSRFToken string    `json:"csrf"`
	Admin     bool      `json:"admin,omitempty"`
	AdminAt   time.Time `json:"adminAt,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	dirty bool
}

// MarkDirty flags the session for re-issuing before the response is written.
func (s *SessionData) MarkDirty() {
	s.dirty = true
	s.UpdatedAt = time.Now().UTC()
}

// RegenerateID rotates the identifiers, used on privilege changes to prevent fixation.
func (s *SessionData) RegenerateID() {
	s.ID = uuid.NewString()
	s.CSRFToken = newToken()
	s.MarkDirty()
}

// SessionConfig configures the signed cookie.
type SessionConfig struct {
	CookieName string
	SigningKey []byte
	Secure     bool
	MaxAge     time.Duration
}

// Sessions issues and verifies HMAC-signed session cookies.
type Sessions struct {
	cookieName string
	key        []byte
	secure     bool
	maxAge     time.Duration
}

// NewSessions builds the cookie codec. An empty signing key produces a
// process-ephemeral key, which invalidates sessions on restart.
func NewSessions(cfg SessionConfig) *Sessions {
	key := cfg.SigningKey
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			key = []byte("trademark-web-insecure-development-key")
		}
	}
	name := cfg.CookieName
	if name == "" {
		name = DefaultSessionCookie
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = defaultSessionMaxAge
	}
	return &Sessions{cookieName: name, key: key, secure: cfg.Secure, maxAge: maxAge}
}

// Middleware loads or starts a session and re-issues the cookie before the
// first byte of the response when the session changed.
func (s *Sessions) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sd, ok := s.read(r)
			if !ok {
				now := time.Now().UTC()
				sd = &SessionData{ID: uuid.NewString(), CSRFToken: newToken(), CreatedAt: now, UpdatedAt: now, dirty: true}
			}
			sw := &sessionWriter{ResponseWriter: w, sessions: s, data: sd}
			ctx := context.WithValue(r.Context(), sessionContextKey, sd)
			next.ServeHTTP(sw, r.WithContext(ctx))
			sw.persist()
		})
	}
}

// SessionFromContext returns the request session. Without the middleware it
// returns an empty, unsaved session.
func SessionFromContext(ctx context.Context) *SessionData {
	if sd, ok := ctx.Value(sessionContextKey).(*SessionData); ok && sd != nil {
		return sd
	}
	return &SessionData{}
}

// Encode signs a session into a cookie value.
func (s *Sessions) Encode(sd *SessionData) string {
	payload, _ := json.Marshal(sd)
	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(s.sign(payload))
}

// Decode verifies a cookie value.
func (s *Sessions) Decode(value string) (*SessionData, error) {
	payloadPart, sigPart, found := strings.Cut(value, ".")
	if !found {
		return nil, errors.New("session: malformed cookie")
	}
	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return nil, errors.New("session: malformed payload")
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return nil, errors.New("session: malformed signature")
	}
	if !hmac.Equal(sig, s.sign(payload)) {
		return nil, errors.New("session: signature mismatch")
	}
	var sd SessionData
	if err := json.Unmarshal(payload, &sd); err != nil {
		return nil, errors.New("session: malformed payload")
	}
	if sd.ID == "" || sd.CSRFToken == "" {
		return nil, errors.New("session: incomplete payload")
	}
	return &sd, nil
}

func (s *Sessions) read(r *http.Request) (*SessionData, bool) {
	c, err := r.Cookie(s.cookieName)
	if err != nil || c.Value == "" {
		return nil, false
	}
	sd, err := s.Decode(c.Value)
	if err != nil {
		return nil, false
	}
	return sd, true
}

func (s *Sessions) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return mac.Sum(nil)
}

func (s *Sessions) cookie(sd *SessionData) *http.Cookie {
	return &http.Cookie{
		Name:     s.cookieName,
		Value:    s.Encode(sd),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.maxAge / time.Second),
	}
}

type sessionWriter struct {
	http.ResponseWriter
	sessions *Sessions
	data     *SessionData
	wrote    bool
}

func (w *sessionWriter) persist() {
	if w.wrote {
		return
	}
	w.wrote = true
	if w.data.dirty {
		http.SetCookie(w.ResponseWriter, w.sessions.cookie(w.data))
		w.data.dirty = false
	}
}

func (w *sessionWriter) WriteHeader(status int) {
	w.persist()
	w.ResponseWriter.WriteHeader(status)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.persist()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Flush() {
	w.persist()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *sessionWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func (w *sessionWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
