package httpserver

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"finitefield.org/trademark-web/internal/platform/observability"
	"finitefield.org/trademark-web/internal/verification"
)

type verifyView struct {
	Lang     string
	View     verification.View
	Estimate estimateView
}

// handleVerify shows a submitted search to the holder of a signed link.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := s.resolver.Resolve(r.Context(), q.Get("search_id"), q.Get("verification_token"))
	switch {
	case errors.Is(err, verification.ErrExpiredToken):
		s.renderError(w, r, http.StatusGone, "verify.error.expired")
		return
	case errors.Is(err, verification.ErrInvalidToken):
		s.renderError(w, r, http.StatusForbidden, "verify.error.invalid")
		return
	case errors.Is(err, verification.ErrNotFound):
		s.renderError(w, r, http.StatusNotFound, "verify.error.not_found")
		return
	case err != nil:
		observability.FromContext(r.Context()).Error("resolve verification link", zap.Error(err))
		s.renderError(w, r, http.StatusInternalServerError, "error.generic")
		return
	}

	pd := s.newPage(r, "verify.title")
	pd.SEO.Robots = "noindex"
	pd.SEO.Canonical = ""
	pd.Currency = view.Form.Currency
	pd.Body = verifyView{Lang: pd.Lang, View: view, Estimate: newEstimateView(view.Estimate)}
	s.render.page(w, r, http.StatusOK, "verify", pd)
}
