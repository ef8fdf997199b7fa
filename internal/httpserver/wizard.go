package httpserver

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"finitefield.org/trademark-web/internal/currency"
	"finitefield.org/trademark-web/internal/httpserver/middleware"
	"finitefield.org/trademark-web/internal/platform/observability"
	"finitefield.org/trademark-web/internal/pricing"
	"finitefield.org/trademark-web/internal/submission"
	"finitefield.org/trademark-web/internal/uploads"
	"finitefield.org/trademark-web/internal/wizard"
)

const (
	wizardPath = "/free-search"
	fieldFiles = "files"
	// scrollTop swaps the wizard body and scrolls the window to the top.
	scrollTop = "innerHTML show:window:top"
)

type stepMark struct {
	Number   int
	LabelKey string
	Active   bool
	Done     bool
}

type wizardView struct {
	Lang      string
	CSRFToken string
	Form      wizard.FormState
	Step      int
	Steps     []stepMark
	Errors    wizard.FieldErrors
	MarkTypes []wizard.MarkType
	Price     priceView
	Summary   estimateView
	AlertKey  string
	Retry     bool
	MaxUpload int64
}

type thankYouView struct {
	Lang      string
	SearchID  string
	VerifyURL string
	Verified  bool
	Preview   bool
}

// loadDraft returns the visitor's draft, or a fresh form priced in their
// preferred currency. A submitted draft starts over.
func (s *Server) loadDraft(ctx context.Context) (wizard.FormState, string) {
	sid := middleware.SessionFromContext(ctx).ID
	fresh := wizard.New(middleware.CurrencyOr(ctx, s.cfg.Site.DefaultCurrency))
	if sid == "" {
		return fresh, sid
	}
	form, err := s.cfg.Drafts.Load(ctx, sid)
	if err != nil {
		if !errors.Is(err, wizard.ErrDraftNotFound) {
			observability.FromContext(ctx).Warn("load wizard draft", zap.Error(err))
		}
		return fresh, sid
	}
	if form.Submitted() {
		return fresh, sid
	}
	form.Normalize()
	return form, sid
}

func (s *Server) saveDraft(ctx context.Context, sid string, form wizard.FormState) {
	if sid == "" {
		return
	}
	if err := s.cfg.Drafts.Save(ctx, sid, form); err != nil {
		observability.FromContext(ctx).Warn("save wizard draft", zap.Error(err))
	}
}

func (s *Server) wizardView(r *http.Request, form wizard.FormState, errs wizard.FieldErrors, term string) wizardView {
	ctx := r.Context()
	e := form.Estimate(s.cfg.Catalog)
	labels := []string{"wizard.step.details", "wizard.step.territories", "wizard.step.contact"}
	steps := make([]stepMark, 0, len(labels))
	for i, key := range labels {
		n := i + 1
		steps = append(steps, stepMark{Number: n, LabelKey: key, Active: int(form.Step) == n, Done: int(form.Step) > n})
	}
	return wizardView{
		Lang:      middleware.Lang(ctx),
		CSRFToken: middleware.CSRFTokenFromContext(ctx),
		Form:      form,
		Step:      int(form.Step),
		Steps:     steps,
		Errors:    errs,
		MarkTypes: wizard.MarkTypes(),
		Price: priceView{
			Lang:       middleware.Lang(ctx),
			CSRFToken:  middleware.CSRFTokenFromContext(ctx),
			Currency:   e.Currency(),
			Currencies: currency.All(),
			Browser:    newBrowserView(s.cfg.Catalog.Browse(term), e),
			Estimate:   newEstimateView(e),
			Action:     wizardPath + "/countries",
			BrowseURL:  wizardPath + "/browse",
			Target:     "#wizard",
		},
		Summary:   newEstimateView(e),
		MaxUpload: s.cfg.Uploads.MaxBytes(),
	}
}

// respondWizard renders the wizard body for htmx or the whole page otherwise.
// A completed transition resets the scroll position: htmx gets an HX-Reswap
// override, a plain form post is redirected to the #top anchor.
func (s *Server) respondWizard(w http.ResponseWriter, r *http.Request, status int, view wizardView, tr *wizard.Transition) {
	if middleware.IsHTMXRequest(r.Context()) {
		if tr != nil && tr.ResetScroll {
			w.Header().Set("HX-Reswap", scrollTop)
		}
		s.render.fragment(w, r, status, "wizard", view)
		return
	}
	if status == http.StatusOK && r.Method == http.MethodPost {
		target := wizardPath
		if tr != nil && tr.ResetScroll {
			target += "#top"
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	pd := s.newPage(r, "wizard.title")
	pd.SEO.Description = s.cfg.I18n.T(pd.Lang, "wizard.description")
	pd.Currency = view.Form.Currency
	pd.Body = view
	s.render.page(w, r, status, "free_search", pd)
}

// handleWizard shows the current step. ?q= prefills the mark name and
// ?countries=&currency= seed the territory selection from the price list.
func (s *Server) handleWizard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form, sid := s.loadDraft(ctx)
	q := r.URL.Query()

	changed := false
	if name := strings.TrimSpace(q.Get("q")); name != "" {
		form.MarkName = name
		changed = true
	}
	if strings.TrimSpace(q.Get(pricing.QueryCountries)) != "" {
		e, skipped, err := pricing.Decode(s.cfg.Catalog, q, form.Currency)
		if err != nil {
			observability.FromContext(ctx).Debug("ignoring malformed countries prefill", zap.Error(err))
		} else {
			if len(skipped) > 0 {
				observability.FromContext(ctx).Debug("prefill skipped unknown countries", zap.Strings("countries", skipped))
			}
			form.SetEstimate(e)
			changed = true
		}
	} else if code, ok := currency.Parse(q.Get(pricing.QueryCurrency)); ok && code != form.Currency {
		e := form.Estimate(s.cfg.Catalog)
		e.SetCurrency(code)
		form.SetEstimate(e)
		changed = true
	}
	if changed {
		form.UpdatedAt = s.now()
		s.saveDraft(ctx, sid, form)
	}
	s.respondWizard(w, r, http.StatusOK, s.wizardView(r, form, nil, ""), nil)
}

func (s *Server) handleWizardNext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form, sid := s.loadDraft(ctx)

	if form.Step == wizard.StepDetails {
		uploadErrs, err := s.bindDetails(r, &form)
		if err != nil {
			observability.FromContext(ctx).Warn("read wizard details", zap.Error(err))
			s.renderError(w, r, http.StatusBadRequest, "error.bad_request")
			return
		}
		if len(uploadErrs) > 0 {
			s.saveDraft(ctx, sid, form)
			errs := form.Validate(wizard.StepDetails)
			if errs == nil {
				errs = wizard.FieldErrors{}
			}
			for field, key := range uploadErrs {
				errs[field] = key
			}
			s.respondWizard(w, r, http.StatusUnprocessableEntity, s.wizardView(r, form, errs, ""), nil)
			return
		}
	}

	tr, err := form.Next(s.now())
	var fieldErrs wizard.FieldErrors
	switch {
	case err == nil:
		s.saveDraft(ctx, sid, form)
		s.respondWizard(w, r, http.StatusOK, s.wizardView(r, form, nil, ""), &tr)
	case errors.As(err, &fieldErrs):
		s.saveDraft(ctx, sid, form)
		s.respondWizard(w, r, http.StatusUnprocessableEntity, s.wizardView(r, form, fieldErrs, ""), nil)
	default:
		// ErrSubmitRequired: the contact step is left through /submit.
		s.respondWizard(w, r, http.StatusOK, s.wizardView(r, form, nil, ""), nil)
	}
}

func (s *Server) handleWizardBack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form, sid := s.loadDraft(ctx)
	if form.Step == wizard.StepContact {
		// Keep what was typed on the contact step.
		s.bindContact(r, &form)
	}
	tr, moved := form.Back(s.now())
	if !moved {
		s.respondWizard(w, r, http.StatusOK, s.wizardView(r, form, nil, ""), nil)
		return
	}
	s.saveDraft(ctx, sid, form)
	s.respondWizard(w, r, http.StatusOK, s.wizardView(r, form, nil, ""), &tr)
}

// handleWizardGoTo serves the "edit" links on the contact step summary.
func (s *Server) handleWizardGoTo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form, sid := s.loadDraft(ctx)
	n, err := strconv.Atoi(r.PostFormValue("step"))
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, "error.bad_request")
		return
	}
	if form.Step == wizard.StepContact {
		s.bindContact(r, &form)
	}
	tr, err := form.GoTo(wizard.Step(n), s.now())
	if err != nil {
		s.respondWizard(w, r, http.StatusConflict, s.wizardView(r, form, nil, ""), nil)
		return
	}
	s.saveDraft(ctx, sid, form)
	s.respondWizard(w, r, http.StatusOK, s.wizardView(r, form, nil, ""), &tr)
}

func (s *Server) handleWizardBrowse(w http.ResponseWriter, r *http.Request) {
	form, _ := s.loadDraft(r.Context())
	view := s.wizardView(r, form, nil, r.URL.Query().Get("term"))
	s.render.fragment(w, r, http.StatusOK, "country_browser", view.Price)
}

// handleWizardCountries applies territory and class changes on step two.
func (s *Server) handleWizardCountries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form, sid := s.loadDraft(ctx)
	e := form.Estimate(s.cfg.Catalog)
	op := parseEstimateOp(r.PostFormValue("op"))
	notice, err := op.apply(e)
	if errors.Is(err, errUnknownOp) {
		s.renderError(w, r, http.StatusBadRequest, "error.bad_request")
		return
	}
	if err != nil {
		observability.FromContext(ctx).Error("apply wizard estimate operation", zap.String("op", op.Action), zap.Error(err))
		s.renderError(w, r, http.StatusInternalServerError, "error.generic")
		return
	}
	form.SetEstimate(e)
	form.UpdatedAt = s.now()
	s.saveDraft(ctx, sid, form)

	view := s.wizardView(r, form, nil, r.PostFormValue("term"))
	view.Price.Notice = notice
	s.respondWizard(w, r, http.StatusOK, view, nil)
}

// handleWizardSubmit validates the contact step and runs the submission
// pipeline. Success redirects to the thank-you page with a verification link.
func (s *Server) handleWizardSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)
	form, sid := s.loadDraft(ctx)
	if form.Step != wizard.StepContact {
		s.respondWizard(w, r, http.StatusConflict, s.wizardView(r, form, nil, ""), nil)
		return
	}
	s.bindContact(r, &form)
	if errs := form.Validate(wizard.StepContact); errs != nil {
		s.saveDraft(ctx, sid, form)
		s.respondWizard(w, r, http.StatusUnprocessableEntity, s.wizardView(r, form, errs, ""), nil)
		return
	}
	s.saveDraft(ctx, sid, form)

	res, err := s.cfg.Pipeline.Submit(ctx, form)
	var fieldErrs wizard.FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		// An earlier step became incomplete; send the visitor back to it.
		for step := wizard.StepDetails; step < wizard.StepContact; step++ {
			if form.Validate(step) != nil {
				_, _ = form.GoTo(step, s.now())
				break
			}
		}
		s.saveDraft(ctx, sid, form)
		s.respondWizard(w, r, http.StatusUnprocessableEntity, s.wizardView(r, form, fieldErrs, ""), nil)
		return
	case errors.Is(err, submission.ErrDeliveryFailed):
		logger.Warn("free search delivery failed", zap.String("search_id", res.SearchID), zap.Error(err))
		view := s.wizardView(r, form, nil, "")
		view.AlertKey = "submit.error.delivery"
		view.Retry = true
		s.respondWizard(w, r, http.StatusBadGateway, view, nil)
		return
	case err != nil:
		logger.Error("free search submission failed", zap.Error(err))
		view := s.wizardView(r, form, nil, "")
		view.AlertKey = "submit.error.generic"
		view.Retry = true
		s.respondWizard(w, r, http.StatusInternalServerError, view, nil)
		return
	}

	form.MarkSubmitted(s.now())
	if sid != "" {
		if err := s.cfg.Drafts.Delete(ctx, sid); err != nil {
			logger.Warn("delete wizard draft", zap.Error(err))
		}
	}
	s.cfg.Uploads.Delete(ctx, attachmentIDs(form)...)

	query := url.Values{"search_id": {res.SearchID}}
	token, err := s.cfg.Signer.Issue(res.SearchID, form.Contact.Email)
	if err != nil {
		logger.Error("issue verification token", zap.String("search_id", res.SearchID), zap.Error(err))
	} else {
		query.Set("verification_token", token)
	}
	if res.Preview {
		query.Set("preview", "1")
	}
	target := wizardPath + "/thank-you?" + query.Encode()
	if middleware.IsHTMXRequest(ctx) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleThankYou(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pd := s.newPage(r, "thanks.title")
	pd.SEO.Robots = "noindex"
	view := thankYouView{Lang: pd.Lang, Preview: q.Get("preview") == "1"}
	searchID, token := q.Get("search_id"), q.Get("verification_token")
	if searchID != "" && token != "" {
		if _, err := s.cfg.Signer.Verify(token, searchID); err == nil {
			view.Verified = true
			view.SearchID = searchID
			view.VerifyURL = s.absoluteURL("/verify?" + url.Values{"search_id": {searchID}, "verification_token": {token}}.Encode())
		}
	}
	pd.Body = view
	s.render.page(w, r, http.StatusOK, "thank_you", pd)
}

// handleTooLarge answers a form post whose body overran the size limit
// before its CSRF token could be read. Nothing is saved: wizard posts get the
// current step back with the upload error.
func (s *Server) handleTooLarge(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, wizardPath) {
		s.renderError(w, r, http.StatusRequestEntityTooLarge, "form.error.upload_too_large")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	form, _ := s.loadDraft(r.Context())
	errs := wizard.FieldErrors{wizard.FieldImage: "form.error.upload_too_large"}
	s.respondWizard(w, r, http.StatusRequestEntityTooLarge, s.wizardView(r, form, errs, ""), nil)
}

// bindDetails copies step one fields and stashes uploaded files. Upload
// problems come back as field errors so the step can be shown again.
func (s *Server) bindDetails(r *http.Request, form *wizard.FormState) (wizard.FieldErrors, error) {
	ctx := r.Context()
	errs := wizard.FieldErrors{}
	if err := r.ParseMultipartForm(s.cfg.Uploads.MaxBytes()); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errs[wizard.FieldImage] = "form.error.upload_too_large"
			return errs, nil
		}
		return nil, err
	}

	if t, ok := wizard.ParseMarkType(r.PostFormValue("markType")); ok {
		form.MarkType = t
	} else {
		form.MarkType = ""
	}
	form.MarkName = r.PostFormValue("markName")
	form.GoodsServices = r.PostFormValue("goodsServices")

	if removed := r.PostForm["removeFile"]; len(removed) > 0 {
		drop := make(map[string]struct{}, len(removed))
		for _, id := range removed {
			drop[id] = struct{}{}
		}
		kept := form.Files[:0]
		for _, f := range form.Files {
			if _, ok := drop[f.ID]; ok {
				s.cfg.Uploads.Delete(ctx, f.ID)
				continue
			}
			kept = append(kept, f)
		}
		form.Files = kept
	}

	if r.MultipartForm != nil {
		if headers := r.MultipartForm.File[wizard.FieldImage]; len(headers) > 0 && headers[0].Filename != "" {
			att, err := s.stashUpload(ctx, headers[0], uploads.KindImage)
			if err != nil {
				errs[wizard.FieldImage] = uploadErrorKey(err)
			} else {
				if form.Image != nil {
					s.cfg.Uploads.Delete(ctx, form.Image.ID)
				}
				form.Image = &att
			}
		}
		for _, header := range r.MultipartForm.File[fieldFiles] {
			if header.Filename == "" {
				continue
			}
			att, err := s.stashUpload(ctx, header, uploads.KindDocument)
			if err != nil {
				errs[fieldFiles] = uploadErrorKey(err)
				continue
			}
			form.Files = append(form.Files, att)
		}
	}
	form.Normalize()
	form.UpdatedAt = s.now()
	if len(errs) == 0 {
		return nil, nil
	}
	return errs, nil
}

func (s *Server) bindContact(r *http.Request, form *wizard.FormState) {
	form.Contact = wizard.Contact{
		FirstName:      r.PostFormValue("firstName"),
		LastName:       r.PostFormValue("lastName"),
		Email:          r.PostFormValue("email"),
		Phone:          r.PostFormValue("phone"),
		Company:        r.PostFormValue("company"),
		MarketingOptIn: checked(r.PostFormValue("marketingOptIn")),
		TermsAccepted:  checked(r.PostFormValue("terms")),
	}
	form.Normalize()
	form.UpdatedAt = s.now()
}

func (s *Server) stashUpload(ctx context.Context, header *multipart.FileHeader, kind uploads.Kind) (wizard.Attachment, error) {
	f, err := header.Open()
	if err != nil {
		return wizard.Attachment{}, err
	}
	defer f.Close()
	stored, err := s.cfg.Uploads.Put(ctx, header.Filename, f, kind)
	if err != nil {
		return wizard.Attachment{}, err
	}
	return wizard.Attachment{ID: stored.ID, Filename: stored.Filename, ContentType: stored.ContentType, Size: stored.Size}, nil
}

func uploadErrorKey(err error) string {
	switch {
	case errors.Is(err, uploads.ErrTooLarge):
		return "form.error.upload_too_large"
	case errors.Is(err, uploads.ErrUnsupportedType):
		return "form.error.upload_type"
	case errors.Is(err, uploads.ErrEmpty):
		return "form.error.upload_empty"
	default:
		return "form.error.upload_failed"
	}
}

func attachmentIDs(form wizard.FormState) []string {
	ids := make([]string, 0, len(form.Files)+1)
	if form.Image != nil {
		ids = append(ids, form.Image.ID)
	}
	for _, f := range form.Files {
		ids = append(ids, f.ID)
	}
	return ids
}

func checked(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "1", "true", "yes":
		return true
	default:
		return false
	}
}
