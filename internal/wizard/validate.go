package wizard

import (
	"sort"
	"strings"
)

// Field names used as FieldErrors keys; they match the form input names.
const (
	FieldMarkType      = "markType"
	FieldMarkName      = "markName"
	FieldGoodsServices = "goodsServices"
	FieldImage         = "logo"
	FieldCountries     = "countries"
	FieldFirstName     = "firstName"
	FieldLastName      = "lastName"
	FieldEmail         = "email"
	FieldTerms         = "terms"
)

// FieldErrors maps a field to an i18n message key.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "wizard: invalid fields: " + strings.Join(fields, ", ")
}

// Has reports whether field failed validation.
func (e FieldErrors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// Validate checks the gate for leaving step. It returns nil when the step is complete.
func (f *FormState) Validate(step Step) FieldErrors {
	errs := FieldErrors{}
	switch step {
	case StepDetails:
		switch {
		case f.MarkType == "":
			errs[FieldMarkType] = "form.error.mark_type_required"
		case f.MarkType.RequiresName() && strings.TrimSpace(f.MarkName) == "":
			errs[FieldMarkName] = "form.error.mark_name_required"
		}
		if strings.TrimSpace(f.GoodsServices) == "" {
			errs[FieldGoodsServices] = "form.error.goods_services_required"
		}
		if f.MarkType.RequiresImage() && f.Image == nil {
			errs[FieldImage] = "form.error.image_required"
		}
	case StepTerritories:
		if len(f.Countries) == 0 {
			errs[FieldCountries] = "form.error.countries_required"
		}
	case StepContact:
		if strings.TrimSpace(f.Contact.FirstName) == "" {
			errs[FieldFirstName] = "form.error.first_name_required"
		}
		if strings.TrimSpace(f.Contact.LastName) == "" {
			errs[FieldLastName] = "form.error.last_name_required"
		}
		if !PlausibleEmail(f.Contact.Email) {
			errs[FieldEmail] = "form.error.email_invalid"
		}
		if !f.Contact.TermsAccepted {
			errs[FieldTerms] = "form.error.terms_required"
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// PlausibleEmail accepts addresses with a local part, an @ and a dotted domain.
func PlausibleEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" || strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" {
			return false
		}
	}
	return true
}
