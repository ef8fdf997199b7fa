// Package wizard implements the three-step free trademark search form: the
// form state, its per-step gates and the linear step transitions.
package wizard

import (
	"errors"
	"strings"
	"time"

	"finitefield.org/trademark-web/internal/catalog"
	"finitefield.org/trademark-web/internal/currency"
	"finitefield.org/trademark-web/internal/pricing"
)

// Step is the wizard cursor.
type Step int

const (
	StepDetails Step = iota + 1
	StepTerritories
	StepContact
	StepSubmitted
)

func (s Step) String() string {
	switch s {
	case StepDetails:
		return "details"
	case StepTerritories:
		return "territories"
	case StepContact:
		return "contact"
	case StepSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// MarkType is the kind of trademark being searched.
type MarkType string

const (
	MarkWord       MarkType = "word"
	MarkLogo       MarkType = "logo"
	MarkFigurative MarkType = "figurative"
)

// MarkTypes lists the selectable types in display order.
func MarkTypes() []MarkType {
	return []MarkType{MarkWord, MarkLogo, MarkFigurative}
}

// ParseMarkType validates raw form input.
func ParseMarkType(raw string) (MarkType, bool) {
	switch t := MarkType(strings.ToLower(strings.TrimSpace(raw))); t {
	case MarkWord, MarkLogo, MarkFigurative:
		return t, true
	default:
		return "", false
	}
}

// RequiresName reports whether the mark needs a textual name.
func (t MarkType) RequiresName() bool { return t != MarkFigurative }

// RequiresImage reports whether the mark needs an uploaded image.
func (t MarkType) RequiresImage() bool { return t == MarkLogo || t == MarkFigurative }

// Attachment references an uploaded file held in the upload stash.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Contact holds step three.
type Contact struct {
	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Company        string `json:"company,omitempty"`
	MarketingOptIn bool   `json:"marketingOptIn"`
	TermsAccepted  bool   `json:"termsAccepted"`
}

// FormState is the whole wizard. It never carries file bytes, so it can be
// serialised as the backup snapshot as-is.
type FormState struct {
	Step          Step           `json:"step"`
	MarkType      MarkType       `json:"markType,omitempty"`
	MarkName      string         `json:"markName,omitempty"`
	Image         *Attachment    `json:"image,omitempty"`
	GoodsServices string         `json:"goodsServices,omitempty"`
	Files         []Attachment   `json:"files,omitempty"`
	Currency      currency.Code  `json:"currency"`
	Countries     []pricing.Line `json:"countries,omitempty"`
	Contact       Contact        `json:"contact"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

var (
	// ErrSubmitted is returned for transitions after the terminal step.
	ErrSubmitted = errors.New("wizard: form already submitted")
	// ErrStepSkip is returned when a jump would skip a step.
	ErrStepSkip = errors.New("wizard: steps cannot be skipped")
	// ErrSubmitRequired is returned by Next on the contact step.
	ErrSubmitRequired = errors.New("wizard: contact step completes by submitting")
)

// New starts a form at step one.
func New(code currency.Code) FormState {
	if _, ok := currency.Parse(string(code)); !ok {
		code = currency.Default
	}
	return FormState{Step: StepDetails, Currency: code}
}

// Normalize trims free-text input and clamps the cursor.
func (f *FormState) Normalize() {
	f.MarkName = strings.TrimSpace(f.MarkName)
	f.GoodsServices = strings.TrimSpace(f.GoodsServices)
	f.Contact.FirstName = strings.TrimSpace(f.Contact.FirstName)
	f.Contact.LastName = strings.TrimSpace(f.Contact.LastName)
	f.Contact.Email = strings.TrimSpace(f.Contact.Email)
	f.Contact.Phone = strings.TrimSpace(f.Contact.Phone)
	f.Contact.Company = strings.TrimSpace(f.Contact.Company)
	if f.Step < StepDetails || f.Step > StepSubmitted {
		f.Step = StepDetails
	}
	if _, ok := currency.Parse(string(f.Currency)); !ok {
		f.Currency = currency.Default
	}
}

// Estimate prices the selected territories.
func (f *FormState) Estimate(cat *catalog.Catalog) *pricing.Estimate {
	e, _ := pricing.FromLines(cat, f.Currency, f.Countries)
	return e
}

// SetEstimate stores the estimate's selections and currency on the form.
func (f *FormState) SetEstimate(e *pricing.Estimate) {
	f.Countries = e.Lines()
	f.Currency = e.Currency()
}

// Submitted reports whether the terminal state was reached.
func (f *FormState) Submitted() bool { return f.Step == StepSubmitted }
