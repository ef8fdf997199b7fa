// Package middleware holds the request-scoped plumbing shared by the public
// site and the admin panel: signed sessions, CSRF, htmx detection, locale and
// currency preferences, and the admin gate.
package middleware

import (
	"context"

	"finitefield.org/trademark-web/internal/currency"
)

type contextKey string

const (
	sessionContextKey  contextKey = "session"
	csrfContextKey     contextKey = "csrf.token"
	htmxContextKey     contextKey = "htmx.info"
	langContextKey     contextKey = "lang"
	currencyContextKey contextKey = "currency"
)

type currencyPreference struct {
	code     currency.Code
	explicit bool
}

// WithLang stores the resolved page language. Tests use it to bypass the locale middleware.
func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, langContextKey, lang)
}

// Lang returns the resolved page language, or "en" when the locale middleware did not run.
func Lang(ctx context.Context) string {
	if v, ok := ctx.Value(langContextKey).(string); ok && v != "" {
		return v
	}
	return "en"
}

// WithCurrency stores an explicit currency preference.
func WithCurrency(ctx context.Context, code currency.Code) context.Context {
	return context.WithValue(ctx, currencyContextKey, currencyPreference{code: code, explicit: true})
}

// CurrencyFromContext returns the visitor's stored currency. ok is false when
// the visitor never chose one, so callers can apply a page-specific default.
func CurrencyFromContext(ctx context.Context) (currency.Code, bool) {
	pref, ok := ctx.Value(currencyContextKey).(currencyPreference)
	if !ok || !pref.explicit {
		return "", false
	}
	return pref.code, true
}

// CurrencyOr returns the stored currency or fallback.
func CurrencyOr(ctx context.Context, fallback currency.Code) currency.Code {
	if code, ok := CurrencyFromContext(ctx); ok {
		return code
	}
	return fallback
}
