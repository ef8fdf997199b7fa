package middleware

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// AdminGate guards the lead review panel with a single shared password.
type AdminGate struct {
	hash      []byte
	loginPath string
	maxAge    time.Duration
}

// NewAdminGate builds the gate from a bcrypt hash. With an empty hash the
// panel is open, which is only allowed outside production.
func NewAdminGate(passwordHash, loginPath string, maxAge time.Duration) *AdminGate {
	if loginPath == "" {
		loginPath = "/admin/login"
	}
	if maxAge <= 0 {
		maxAge = 12 * time.Hour
	}
	return &AdminGate{hash: []byte(strings.TrimSpace(passwordHash)), loginPath: loginPath, maxAge: maxAge}
}

// Open reports whether no password is configured.
func (g *AdminGate) Open() bool { return len(g.hash) == 0 }

// LoginPath returns the login route.
func (g *AdminGate) LoginPath() string { return g.loginPath }

// Check compares a password against the configured hash.
func (g *AdminGate) Check(password string) bool {
	if g.Open() {
		return true
	}
	return bcrypt.CompareHashAndPassword(g.hash, []byte(password)) == nil
}

// Authenticated reports whether the session holds a live admin grant.
func (g *AdminGate) Authenticated(sd *SessionData, now time.Time) bool {
	if g.Open() {
		return true
	}
	return sd.Admin && now.Sub(sd.AdminAt) < g.maxAge
}

// Grant marks the session as admin after a successful login.
func (g *AdminGate) Grant(sd *SessionData, now time.Time) {
	sd.RegenerateID()
	sd.Admin = true
	sd.AdminAt = now.UTC()
}

// Revoke clears the admin grant.
func (g *AdminGate) Revoke(sd *SessionData) {
	sd.RegenerateID()
	sd.Admin = false
	sd.AdminAt = time.Time{}
}

// Require redirects unauthenticated requests to the login page. htmx requests
// get an HX-Redirect so the whole page navigates instead of swapping the login
// form into a fragment target.
func (g *AdminGate) Require() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.Authenticated(SessionFromContext(r.Context()), time.Now()) {
				next.ServeHTTP(w, r)
				return
			}
			target := g.loginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
			if IsHTMXRequest(r.Context()) {
				w.Header().Set("HX-Redirect", target)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
		})
	}
}
