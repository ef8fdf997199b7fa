package httpserver

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finitefield.org/trademark-web/internal/cms"
	"finitefield.org/trademark-web/internal/currency"
	"finitefield.org/trademark-web/internal/httpserver/middleware"
	"finitefield.org/trademark-web/internal/nav"
	"finitefield.org/trademark-web/internal/platform/observability"
	"finitefield.org/trademark-web/internal/pricing"
	"finitefield.org/trademark-web/internal/seo"
)

type homeView struct {
	Lang     string
	Currency currency.Code
	Top      []countryRow
	Steps    []string
}

type errorView struct {
	Status     int
	MessageKey string
}

type alertView struct {
	Lang       string
	Kind       string
	MessageKey string
}

type blogIndexView struct {
	Lang  string
	Posts []cms.Post
}

type blogPostView struct {
	Lang string
	Post cms.Post
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	pd := s.newPage(r, "home.title")
	pd.SEO.Description = s.cfg.I18n.T(pd.Lang, "home.description")
	pd.SEO.OG.Description = pd.SEO.Description
	pd.SEO.Add(seo.Organization(s.cfg.Site.Name, s.absoluteURL("/"), ""))
	pd.SEO.Add(seo.WebSite(s.cfg.Site.Name, s.absoluteURL("/"), s.absoluteURL("/free-search?q=")))
	pd.Breadcrumbs = nil

	e := pricing.NewEstimate(s.cfg.Catalog, pd.Currency)
	browser := newBrowserView(s.cfg.Catalog.Browse(""), e)
	pd.Body = homeView{
		Lang:     pd.Lang,
		Currency: pd.Currency,
		Top:      browser.Top,
		Steps:    []string{"home.step.details", "home.step.territories", "home.step.contact"},
	}
	s.render.page(w, r, http.StatusOK, "home", pd)
}

// handleSetCurrency stores the currency preference and returns to the page
// the selector was posted from.
func (s *Server) handleSetCurrency(w http.ResponseWriter, r *http.Request) {
	back := localRedirect(r.PostFormValue("return"), "/")
	if code, ok := currency.Parse(r.PostFormValue("currency")); ok {
		middleware.SetCurrencyCookie(w, code, s.cfg.SecureCookies)
	}
	if middleware.IsHTMXRequest(r.Context()) {
		w.Header().Set("HX-Refresh", "true")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func (s *Server) handleBlogIndex(w http.ResponseWriter, r *http.Request) {
	pd := s.newPage(r, "blog.title")
	posts, err := s.cfg.Blog.ListPosts(r.Context(), pd.Lang)
	if err != nil {
		observability.FromContext(r.Context()).Error("list blog posts", zap.Error(err))
		s.renderError(w, r, http.StatusInternalServerError, "error.generic")
		return
	}
	pd.SEO.Description = s.cfg.I18n.T(pd.Lang, "blog.description")
	pd.Body = blogIndexView{Lang: pd.Lang, Posts: posts}
	s.render.page(w, r, http.StatusOK, "blog_index", pd)
}

func (s *Server) handleBlogPost(w http.ResponseWriter, r *http.Request) {
	pd := s.newPage(r, "blog.title")
	post, err := s.cfg.Blog.GetPost(r.Context(), chi.URLParam(r, "slug"), pd.Lang)
	if errors.Is(err, cms.ErrNotFound) {
		s.renderError(w, r, http.StatusNotFound, "error.not_found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).Error("load blog post", zap.Error(err))
		s.renderError(w, r, http.StatusInternalServerError, "error.generic")
		return
	}

	title := post.Title
	if post.SEO.Title != "" {
		title = post.SEO.Title
	}
	description := post.Summary
	if post.SEO.Description != "" {
		description = post.SEO.Description
	}
	if description == "" {
		description = post.Excerpt
	}
	image := post.HeroImage
	if post.SEO.OGImage != "" {
		image = post.SEO.OGImage
	}
	canonical := s.absoluteURL("/blog/" + post.Slug)
	pd.Title = post.Title
	pd.SEO.Title = title + " | " + s.cfg.Site.Name
	pd.SEO.Description = description
	pd.SEO.OG = seo.OpenGraph{Title: title, Description: description, Image: image, Type: "article"}
	pd.SEO.Add(seo.Article(post.Title, canonical, image, post.Author, post.PublishedAt, post.UpdatedAt))
	pd.Breadcrumbs = nav.Breadcrumbs(r.URL.Path, post.Title)
	pd.SEO.Add(seo.BreadcrumbList([]seo.BreadcrumbItem{
		{Name: s.cfg.I18n.T(pd.Lang, "nav.home"), Item: s.absoluteURL("/")},
		{Name: s.cfg.I18n.T(pd.Lang, "nav.blog"), Item: s.absoluteURL("/blog")},
		{Name: post.Title, Item: canonical},
	}))
	pd.Body = blogPostView{Lang: pd.Lang, Post: post}
	s.render.page(w, r, http.StatusOK, "blog_post", pd)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.renderError(w, r, http.StatusNotFound, "error.not_found")
}

// renderError answers with the error page, or an alert fragment for htmx.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, messageKey string) {
	if middleware.IsHTMXRequest(r.Context()) {
		s.render.fragment(w, r, status, "alert", alertView{Lang: middleware.Lang(r.Context()), Kind: "error", MessageKey: messageKey})
		return
	}
	pd := s.newPage(r, "error.title")
	pd.SEO.Robots = "noindex"
	pd.Breadcrumbs = nil
	pd.Body = errorView{Status: status, MessageKey: messageKey}
	s.render.page(w, r, status, "error", pd)
}
