package middleware

import (
	"net/http"
	"strings"
	"time"

	"finitefield.org/trademark-web/internal/currency"
	"finitefield.org/trademark-web/internal/i18n"
)

const (
	// LangCookie persists an explicit ?hl= choice.
	LangCookie       = "hl"
	preferenceMaxAge = 365 * 24 * time.Hour
)

// Locale resolves the page language: ?hl= override, then the hl cookie, then
// Accept-Language. Unsupported values fall through to the next source.
func Locale(bundle *i18n.Bundle, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := ""
			if q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("hl"))); q != "" && bundle.IsSupported(q) {
				lang = q
				setPreference(w, LangCookie, q, secure)
			}
			if lang == "" {
				if c, err := r.Cookie(LangCookie); err == nil && bundle.IsSupported(strings.ToLower(c.Value)) {
					lang = strings.ToLower(c.Value)
				}
			}
			if lang == "" {
				lang = bundle.Resolve(r.Header.Get("Accept-Language"))
			}
			w.Header().Set("Content-Language", lang)
			w.Header().Add("Vary", "Accept-Language")
			next.ServeHTTP(w, r.WithContext(WithLang(r.Context(), lang)))
		})
	}
}

// Currency reads the selectedCurrency preference. A valid ?currency= query
// value wins and is persisted; invalid values are ignored.
func Currency(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if code, ok := currency.Parse(r.URL.Query().Get("currency")); ok {
				SetCurrencyCookie(w, code, secure)
				ctx = WithCurrency(ctx, code)
			} else if c, err := r.Cookie(currency.CookieName); err == nil {
				if code, ok := currency.Parse(c.Value); ok {
					ctx = WithCurrency(ctx, code)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SetCurrencyCookie persists the visitor's currency for a year.
func SetCurrencyCookie(w http.ResponseWriter, code currency.Code, secure bool) {
	setPreference(w, currency.CookieName, string(code), secure)
}

func setPreference(w http.ResponseWriter, name, value string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(preferenceMaxAge / time.Second),
	})
}
