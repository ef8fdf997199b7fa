package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"finitefield.org/trademark-web/internal/catalog"
	"finitefield.org/trademark-web/internal/currency"
	"finitefield.org/trademark-web/internal/httpserver/middleware"
	"finitefield.org/trademark-web/internal/nav"
	"finitefield.org/trademark-web/internal/pricing"
	"finitefield.org/trademark-web/internal/seo"
)

// PageData is the layout view model. Page-specific data goes in Body.
type PageData struct {
	Lang        string
	Languages   []string
	Title       string
	SEO         seo.Meta
	SiteName    string
	Path        string
	Query       string
	Nav         []nav.RenderedItem
	Breadcrumbs []nav.Crumb
	CSRFToken   string
	Currency    currency.Code
	Currencies  []currency.Code
	Analytics   Analytics
	IsAdmin     bool
	Year        int
	Body        any
}

func (s *Server) newPage(r *http.Request, titleKey string) *PageData {
	ctx := r.Context()
	lang := middleware.Lang(ctx)
	title := s.cfg.I18n.T(lang, titleKey)
	return &PageData{
		Lang:        lang,
		Languages:   s.cfg.I18n.Supported(),
		Title:       title,
		SEO:         seo.Meta{Title: title + " | " + s.cfg.Site.Name, Canonical: s.absoluteURL(r.URL.Path), OG: seo.OpenGraph{Title: title, Type: "website"}},
		SiteName:    s.cfg.Site.Name,
		Path:        r.URL.Path,
		Query:       r.URL.RawQuery,
		Nav:         nav.Build(r.URL.Path),
		Breadcrumbs: nav.Breadcrumbs(r.URL.Path, ""),
		CSRFToken:   middleware.CSRFTokenFromContext(ctx),
		Currency:    middleware.CurrencyOr(ctx, s.cfg.Site.DefaultCurrency),
		Currencies:  currency.All(),
		Analytics:   s.cfg.Analytics,
		IsAdmin:     strings.HasPrefix(r.URL.Path, "/admin"),
		Year:        s.now().Year(),
	}
}

func (s *Server) absoluteURL(p string) string {
	if s.cfg.Site.BaseURL == "" {
		return p
	}
	return strings.TrimRight(s.cfg.Site.BaseURL, "/") + p
}

// countryRow is one territory line in the browser.
type countryRow struct {
	Name       string
	FlagCode   string
	Base       int64
	Additional int64
	Priced     bool
	Selected   bool
	Classes    int
}

// countryCell pairs a row with the view it is rendered in, since a nested
// template only receives a single value.
type countryCell struct {
	Row      countryRow
	Currency currency.Code
	Lang     string
}

func newCountryCell(v priceView, row countryRow) countryCell {
	return countryCell{Row: row, Currency: v.Currency, Lang: v.Lang}
}

type groupRow struct {
	Name      string
	Expanded  bool
	Matches   int
	Countries []countryRow
}

type browserView struct {
	Term      string
	Searching bool
	Top       []countryRow
	Groups    []groupRow
	Results   []countryRow
}

type estimateView struct {
	Lines    []pricing.Selection
	Total    int64
	Currency currency.Code
	Unpriced []string
	Empty    bool
}

// priceView drives the shared browser and estimate partials. The price list
// carries its state in hidden fields; the wizard keeps it in the draft.
type priceView struct {
	Lang           string
	CSRFToken      string
	Currency       currency.Code
	Currencies     []currency.Code
	Browser        browserView
	Estimate       estimateView
	Action         string
	BrowseURL      string
	Target         string
	StateCountries string
	Stateful       bool
	Notice         string
	Skipped        []string
	HandoffURL     string
}

func newEstimateView(e *pricing.Estimate) estimateView {
	return estimateView{
		Lines:    e.Selections(),
		Total:    e.Total(),
		Currency: e.Currency(),
		Unpriced: e.Unpriced(),
		Empty:    e.Len() == 0,
	}
}

func newBrowserView(view catalog.View, e *pricing.Estimate) browserView {
	rows := func(countries []catalog.Country) []countryRow {
		out := make([]countryRow, 0, len(countries))
		for _, c := range countries {
			row := countryRow{Name: c.Name, FlagCode: c.FlagCode}
			if p, ok := c.PriceIn(e.Currency()); ok {
				row.Base, row.Additional, row.Priced = p.Base, p.AdditionalClass, true
			}
			if sel, ok := e.Get(c.Name); ok {
				row.Selected, row.Classes = true, sel.Classes
			}
			out = append(out, row)
		}
		return out
	}
	bv := browserView{Term: view.Term, Searching: view.Searching, Top: rows(view.Top), Results: rows(view.Results)}
	for _, g := range view.Groups {
		bv.Groups = append(bv.Groups, groupRow{Name: g.Name, Expanded: g.Expanded, Matches: g.Matches, Countries: rows(g.Countries)})
	}
	return bv
}

func encodedCountries(e *pricing.Estimate) string {
	if e.Len() == 0 {
		return ""
	}
	raw, _ := json.Marshal(e.Lines())
	return string(raw)
}

// handoffURL carries the selection from the price list into the lead form.
func handoffURL(e *pricing.Estimate) string {
	return "/free-search?" + e.Encode().Encode()
}

// estimateOp is a browser or estimate button press, encoded as
// "action:argument". The argument is a country name, or a currency code for
// the currency action.
type estimateOp struct {
	Action  string
	Country string
}

func parseEstimateOp(raw string) estimateOp {
	action, country, _ := strings.Cut(strings.TrimSpace(raw), ":")
	return estimateOp{Action: strings.ToLower(action), Country: strings.TrimSpace(country)}
}

var errUnknownOp = errors.New("httpserver: unknown estimate operation")

// apply runs op against e and returns an i18n notice key for soft failures.
func (op estimateOp) apply(e *pricing.Estimate) (string, error) {
	var err error
	switch op.Action {
	case "toggle":
		_, err = e.Toggle(op.Country)
	case "select":
		err = e.Select(op.Country)
	case "deselect", "remove":
		e.Deselect(op.Country)
	case "inc":
		err = e.IncrementClass(op.Country)
	case "dec":
		err = e.DecrementClass(op.Country)
	case "currency":
		if code, ok := currency.Parse(op.Country); ok {
			e.SetCurrency(code)
		}
	case "clear":
		e.Reset()
	case "", "search":
	default:
		return "", errUnknownOp
	}
	switch {
	case err == nil:
		return "", nil
	case errors.Is(err, pricing.ErrPriceUnavailable):
		return "prices.notice.unavailable", nil
	case errors.Is(err, pricing.ErrClassFloor):
		return "prices.notice.class_floor", nil
	case errors.Is(err, pricing.ErrClassCeiling):
		return "prices.notice.class_ceiling", nil
	case errors.Is(err, pricing.ErrUnknownCountry), errors.Is(err, pricing.ErrNotSelected):
		return "prices.notice.unknown", nil
	default:
		return "", err
	}
}

// localRedirect keeps redirects on this site.
func localRedirect(target, fallback string) string {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil || target == "" || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return fallback
	}
	return u.RequestURI()
}
