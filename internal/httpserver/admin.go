package httpserver

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finitefield.org/trademark-web/internal/httpserver/middleware"
	"finitefield.org/trademark-web/internal/leads"
	"finitefield.org/trademark-web/internal/platform/observability"
	"finitefield.org/trademark-web/internal/pricing"
	"finitefield.org/trademark-web/internal/wizard"
)

const adminPath = "/admin"

type leadRow struct {
	Record  leads.Record
	Summary leads.Summary
}

type adminTableView struct {
	Lang            string
	CSRFToken       string
	State           leads.State
	Rows            []leadRow
	Statuses        []leads.Status
	Filter          string
	IntervalSeconds int
	Open            bool
}

type connectionView struct {
	Lang     string
	State    leads.State
	Probe    *leads.Probe
	ProbeErr string
}

type adminLoginView struct {
	Lang      string
	CSRFToken string
	Next      string
	Failed    bool
}

type adminLeadView struct {
	Lang      string
	CSRFToken string
	Record    leads.Record
	Summary   leads.Summary
	Form      wizard.FormState
	FormErr   bool
	Estimate  estimateView
	Skipped   []string
	Statuses  []leads.Status
}

func (s *Server) adminTableView(r *http.Request, state leads.State) adminTableView {
	rows := make([]leadRow, 0, len(state.Records))
	for _, rec := range state.Records {
		rows = append(rows, leadRow{Record: rec, Summary: rec.Summary()})
	}
	return adminTableView{
		Lang:            middleware.Lang(r.Context()),
		CSRFToken:       middleware.CSRFTokenFromContext(r.Context()),
		State:           state,
		Rows:            rows,
		Statuses:        leads.Statuses(),
		Filter:          string(state.Filter),
		IntervalSeconds: int(s.cfg.Panel.Interval().Seconds()),
		Open:            s.gate.Open(),
	}
}

func (s *Server) respondTable(w http.ResponseWriter, r *http.Request, state leads.State) {
	if !middleware.IsHTMXRequest(r.Context()) {
		target := adminPath
		if state.Filter != "" {
			target += "?status=" + string(state.Filter)
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	s.render.fragment(w, r, http.StatusOK, "lead_table", s.adminTableView(r, state))
}

func (s *Server) handleAdminLoginForm(w http.ResponseWriter, r *http.Request) {
	sd := middleware.SessionFromContext(r.Context())
	next := localRedirect(r.URL.Query().Get("next"), adminPath)
	if s.gate.Authenticated(sd, s.now()) {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	s.renderLogin(w, r, http.StatusOK, next, false)
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	next := localRedirect(r.PostFormValue("next"), adminPath)
	if !s.gate.Check(r.PostFormValue("password")) {
		observability.FromContext(r.Context()).Warn("admin login rejected")
		s.renderLogin(w, r, http.StatusUnauthorized, next, true)
		return
	}
	s.gate.Grant(middleware.SessionFromContext(r.Context()), s.now())
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	s.gate.Revoke(middleware.SessionFromContext(r.Context()))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) renderLogin(w http.ResponseWriter, r *http.Request, status int, next string, failed bool) {
	pd := s.newPage(r, "admin.login.title")
	pd.SEO.Robots = "noindex, nofollow"
	pd.Breadcrumbs = nil
	pd.Body = adminLoginView{Lang: pd.Lang, CSRFToken: pd.CSRFToken, Next: next, Failed: failed}
	s.render.page(w, r, status, "admin_login", pd)
}

// handleAdminLeads loads the lead list for the requested status filter.
func (s *Server) handleAdminLeads(w http.ResponseWriter, r *http.Request) {
	status, _ := leads.ParseStatus(r.URL.Query().Get("status"))
	state, err := s.cfg.Panel.SetFilter(r.Context(), status)
	if err != nil {
		observability.FromContext(r.Context()).Warn("admin lead refresh failed", zap.Error(err))
	}
	pd := s.newPage(r, "admin.title")
	pd.SEO.Robots = "noindex, nofollow"
	pd.Breadcrumbs = nil
	pd.Body = s.adminTableView(r, state)
	s.render.page(w, r, http.StatusOK, "admin", pd)
}

// handleAdminTable serves the polling fragment. The background poller keeps
// the panel fresh; ?refresh=1 forces a fetch for the retry button.
func (s *Server) handleAdminTable(w http.ResponseWriter, r *http.Request) {
	state := s.cfg.Panel.State()
	if r.URL.Query().Get("refresh") == "1" {
		var err error
		if state, err = s.cfg.Panel.Refresh(r.Context()); err != nil {
			observability.FromContext(r.Context()).Warn("admin lead refresh failed", zap.Error(err))
		}
	}
	s.render.fragment(w, r, http.StatusOK, "lead_table", s.adminTableView(r, state))
}

func (s *Server) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, ok := leads.ParseStatus(r.PostFormValue("status"))
	if !ok {
		s.renderError(w, r, http.StatusBadRequest, "admin.error.status")
		return
	}
	state, err := s.cfg.Panel.UpdateStatus(r.Context(), id, status)
	if errors.Is(err, leads.ErrUnknownRecord) {
		s.renderError(w, r, http.StatusNotFound, "error.not_found")
		return
	}
	if err != nil {
		// The panel restored the previous status and carries the message.
		observability.FromContext(r.Context()).Warn("admin status update failed", zap.String("search_id", id), zap.Error(err))
	}
	s.respondTable(w, r, state)
}

func (s *Server) handleAdminConnection(w http.ResponseWriter, r *http.Request) {
	probe, err := s.cfg.Panel.TestConnection(r.Context())
	if !middleware.IsHTMXRequest(r.Context()) {
		http.Redirect(w, r, adminPath, http.StatusSeeOther)
		return
	}
	view := connectionView{Lang: middleware.Lang(r.Context()), State: s.cfg.Panel.State(), Probe: &probe}
	if err != nil {
		view.ProbeErr = err.Error()
	}
	s.render.fragment(w, r, http.StatusOK, "connection_status", view)
}

func (s *Server) handleAdminAutoRefresh(w http.ResponseWriter, r *http.Request) {
	s.cfg.Panel.ToggleAutoRefresh()
	s.respondTable(w, r, s.cfg.Panel.State())
}

// handleAdminLead shows one lead with its estimate recomputed from the catalog.
func (s *Server) handleAdminLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var (
		rec   leads.Record
		found bool
	)
	for _, candidate := range s.cfg.Panel.State().Records {
		if candidate.ID == id {
			rec, found = candidate, true
			break
		}
	}
	if !found {
		s.renderError(w, r, http.StatusNotFound, "error.not_found")
		return
	}

	pd := s.newPage(r, "admin.lead.title")
	pd.SEO.Robots = "noindex, nofollow"
	pd.Breadcrumbs = nil
	view := adminLeadView{
		Lang:      pd.Lang,
		CSRFToken: pd.CSRFToken,
		Record:    rec,
		Summary:   rec.Summary(),
		Statuses:  leads.Statuses(),
	}
	form, err := rec.Form()
	if err != nil {
		view.FormErr = true
	} else {
		e, skipped := pricing.FromLines(s.cfg.Catalog, form.Currency, form.Countries)
		view.Form = form
		view.Estimate = newEstimateView(e)
		view.Skipped = skipped
	}
	pd.Body = view
	s.render.page(w, r, http.StatusOK, "admin_lead", pd)
}
