package httpserver

import (
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"finitefield.org/trademark-web/internal/currency"
	"finitefield.org/trademark-web/internal/httpserver/middleware"
	"finitefield.org/trademark-web/internal/platform/observability"
	"finitefield.org/trademark-web/internal/pricing"
	"finitefield.org/trademark-web/internal/seo"
)

const pricesPath = "/prices"

// priceListView builds the price list workspace. Its selection travels in the
// query string so a price list URL can be shared or handed to the lead form.
func (s *Server) priceListView(r *http.Request, e *pricing.Estimate, term string, open []string) priceView {
	ctx := r.Context()
	return priceView{
		Lang:           middleware.Lang(ctx),
		CSRFToken:      middleware.CSRFTokenFromContext(ctx),
		Currency:       e.Currency(),
		Currencies:     currency.All(),
		Browser:        newBrowserView(s.cfg.Catalog.Browse(term, open...), e),
		Estimate:       newEstimateView(e),
		Action:         pricesPath + "/estimate",
		BrowseURL:      pricesPath + "/countries",
		Target:         "#price-workspace",
		StateCountries: encodedCountries(e),
		Stateful:       true,
		HandoffURL:     handoffURL(e),
	}
}

// decodePriceState reads the estimate from query or form values. The detailed
// price list defaults to EUR unless the visitor chose a currency.
func (s *Server) decodePriceState(r *http.Request, values url.Values) (*pricing.Estimate, []string, string) {
	fallback := middleware.CurrencyOr(r.Context(), currency.EUR)
	e, skipped, err := pricing.Decode(s.cfg.Catalog, values, fallback)
	if err != nil {
		observability.FromContext(r.Context()).Debug("ignoring malformed price state", zap.Error(err))
		return e, nil, "prices.notice.invalid_state"
	}
	if len(skipped) > 0 {
		return e, skipped, "prices.notice.skipped"
	}
	return e, nil, ""
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	e, skipped, notice := s.decodePriceState(r, q)

	pd := s.newPage(r, "prices.title")
	pd.Currency = e.Currency()
	pd.SEO.Description = s.cfg.I18n.T(pd.Lang, "prices.description")
	pd.SEO.OG.Description = pd.SEO.Description
	offers := make([]seo.Offer, 0, len(s.cfg.Catalog.Top()))
	for _, c := range s.cfg.Catalog.Top() {
		if p, ok := c.PriceIn(e.Currency()); ok {
			offers = append(offers, seo.Offer{Name: c.Name, Minor: p.Base, Currency: string(e.Currency())})
		}
	}
	pd.SEO.Add(seo.RegistrationService(s.cfg.Site.Name, s.absoluteURL(pricesPath), offers))

	view := s.priceListView(r, e, q.Get("term"), q["open"])
	view.Notice = notice
	view.Skipped = skipped
	pd.Body = view
	s.render.page(w, r, http.StatusOK, "prices", pd)
}

// handlePriceCountries filters the browser as the visitor types.
func (s *Server) handlePriceCountries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	e, _, _ := s.decodePriceState(r, q)
	s.render.fragment(w, r, http.StatusOK, "country_browser", s.priceListView(r, e, q.Get("term"), q["open"]))
}

// handlePriceEstimate applies one browser or estimate action to the state
// carried in the form and answers with the refreshed workspace.
func (s *Server) handlePriceEstimate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "error.bad_request")
		return
	}
	e, skipped, notice := s.decodePriceState(r, r.PostForm)
	op := parseEstimateOp(r.PostForm.Get("op"))
	opNotice, err := op.apply(e)
	if errors.Is(err, errUnknownOp) {
		s.renderError(w, r, http.StatusBadRequest, "error.bad_request")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).Error("apply estimate operation", zap.String("op", op.Action), zap.Error(err))
		s.renderError(w, r, http.StatusInternalServerError, "error.generic")
		return
	}
	if opNotice != "" {
		notice = opNotice
	}
	if op.Action == "currency" {
		middleware.SetCurrencyCookie(w, e.Currency(), s.cfg.SecureCookies)
	}

	term := r.PostForm.Get("term")
	target := pricesPath + "?" + e.Encode().Encode()
	if !middleware.IsHTMXRequest(r.Context()) {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	view := s.priceListView(r, e, term, r.PostForm["open"])
	view.Notice = notice
	view.Skipped = skipped
	w.Header().Set("HX-Push-Url", target)
	s.render.fragment(w, r, http.StatusOK, "price_workspace", view)
}
