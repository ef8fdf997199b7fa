package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"finitefield.org/trademark-web/internal/platform/httpx"
)

const (
	// CSRFHeader carries the token on htmx requests.
	CSRFHeader = "X-CSRF-Token"
	// CSRFField carries the token on plain form posts.
	CSRFField = "csrf_token"

	formMaxMemory = 32 << 20
)

// CSRFOption configures CSRF.
type CSRFOption func(*csrfOptions)

type csrfOptions struct {
	tooLarge http.Handler
}

// WithTooLargeHandler answers unsafe requests whose form body exceeds the
// request size limit before the token field could be read. The handler must
// not change any state; it typically re-renders the form with an error.
func WithTooLargeHandler(h http.Handler) CSRFOption {
	return func(o *csrfOptions) { o.tooLarge = h }
}

// CSRF validates the session-bound token on unsafe methods. The token may
// arrive in the header or as a form field, so forms keep working without
// JavaScript.
func CSRF(opts ...CSRFOption) func(http.Handler) http.Handler {
	options := csrfOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sd := SessionFromContext(r.Context())
			token := sd.CSRFToken
			if token == "" {
				token = newToken()
				sd.CSRFToken = token
				sd.MarkDirty()
			}

			ctx := context.WithValue(r.Context(), csrfContextKey, token)
			if isUnsafeMethod(r.Method) {
				submitted := r.Header.Get(CSRFHeader)
				if submitted == "" {
					err := r.ParseMultipartForm(formMaxMemory)
					var tooLarge *http.MaxBytesError
					if errors.As(err, &tooLarge) {
						if options.tooLarge != nil {
							options.tooLarge.ServeHTTP(w, r.WithContext(ctx))
							return
						}
						httpx.WriteError(r.Context(), w, httpx.NewError("request_too_large", "request body too large", http.StatusRequestEntityTooLarge))
						return
					}
					submitted = r.PostFormValue(CSRFField)
				}
				if submitted == "" || subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) != 1 {
					httpx.WriteError(r.Context(), w, httpx.NewError("csrf_invalid", "invalid or missing CSRF token", http.StatusForbidden))
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CSRFTokenFromContext returns the token to embed in forms.
func CSRFTokenFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(csrfContextKey).(string); ok {
		return token
	}
	return ""
}

func isUnsafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}
