// Package pricing aggregates selected territories into a running estimate.
package pricing

import (
	"errors"
	"fmt"

	"finitefield.org/trademark-web/internal/catalog"
	"finitefield.org/trademark-web/internal/currency"
)

// MaxClasses is the number of Nice classes; no filing covers more.
const MaxClasses = 45

var (
	// ErrUnknownCountry is returned for names missing from the catalog.
	ErrUnknownCountry = errors.New("pricing: unknown country")
	// ErrNotSelected is returned when a class change targets an unselected country.
	ErrNotSelected = errors.New("pricing: country not selected")
	// ErrClassFloor is returned when decrementing a selection already at one class.
	ErrClassFloor = errors.New("pricing: a territory needs at least one class")
	// ErrClassCeiling is returned when incrementing a selection already at MaxClasses.
	ErrClassCeiling = errors.New("pricing: class count exceeds the Nice classification")
	// ErrPriceUnavailable is returned when selecting a country with no price in the active currency.
	ErrPriceUnavailable = errors.New("pricing: no price in selected currency")
)

// Selection is one chosen territory with its class count and current price.
type Selection struct {
	Country  string
	FlagCode string
	Classes  int
	Price    int64
	Priced   bool
}

// Line is the portable form of a selection: what the visitor chose, without prices.
type Line struct {
	Country string `json:"name"`
	Classes int    `json:"classes"`
}

// Estimate holds the selected territories for one visitor. It is not safe for
// concurrent use; each request builds or loads its own.
type Estimate struct {
	catalog  *catalog.Catalog
	currency currency.Code
	items    []Selection
}

// NewEstimate creates an empty estimate priced in code.
func NewEstimate(cat *catalog.Catalog, code currency.Code) *Estimate {
	if _, ok := currency.Parse(string(code)); !ok {
		code = currency.Default
	}
	return &Estimate{catalog: cat, currency: code}
}

// Currency returns the active currency.
func (e *Estimate) Currency() currency.Code { return e.currency }

// Len returns the number of selected territories.
func (e *Estimate) Len() int { return len(e.items) }

// Has reports whether name is selected.
func (e *Estimate) Has(name string) bool {
	return e.index(name) >= 0
}

// Get returns the selection for name.
func (e *Estimate) Get(name string) (Selection, bool) {
	if i := e.index(name); i >= 0 {
		return e.items[i], true
	}
	return Selection{}, false
}

// Selections returns a copy of the current selections in selection order.
func (e *Estimate) Selections() []Selection {
	return append([]Selection(nil), e.items...)
}

// Lines returns the selections without prices.
func (e *Estimate) Lines() []Line {
	out := make([]Line, len(e.items))
	for i, s := range e.items {
		out[i] = Line{Country: s.Country, Classes: s.Classes}
	}
	return out
}

// Toggle selects name at one class, or removes it when already selected.
// It reports whether the country is selected afterwards.
func (e *Estimate) Toggle(name string) (bool, error) {
	if i := e.index(name); i >= 0 {
		e.remove(i)
		return false, nil
	}
	if err := e.Select(name); err != nil {
		return false, err
	}
	return true, nil
}

// Select adds name at one class. Selecting an already selected country is a no-op.
func (e *Estimate) Select(name string) error {
	return e.selectClasses(name, 1)
}

// Deselect removes name and reports whether it was selected.
func (e *Estimate) Deselect(name string) bool {
	if i := e.index(name); i >= 0 {
		e.remove(i)
		return true
	}
	return false
}

// IncrementClass adds one class to a selected country, up to MaxClasses.
func (e *Estimate) IncrementClass(name string) error {
	i := e.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotSelected, name)
	}
	if e.items[i].Classes >= MaxClasses {
		return ErrClassCeiling
	}
	e.items[i].Classes++
	e.reprice(i)
	return nil
}

// DecrementClass removes one class; the count never drops below one.
func (e *Estimate) DecrementClass(name string) error {
	i := e.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotSelected, name)
	}
	if e.items[i].Classes <= 1 {
		return ErrClassFloor
	}
	e.items[i].Classes--
	e.reprice(i)
	return nil
}

// SetCurrency switches the active currency and recomputes every selection
// from the new currency's catalog prices. Class counts are kept. Selections
// the catalog cannot price in code stay selected but unpriced.
func (e *Estimate) SetCurrency(code currency.Code) {
	if _, ok := currency.Parse(string(code)); !ok {
		return
	}
	e.currency = code
	for i := range e.items {
		e.reprice(i)
	}
}

// Total sums the priced selections.
func (e *Estimate) Total() int64 {
	var total int64
	for _, s := range e.items {
		if s.Priced {
			total += s.Price
		}
	}
	return total
}

// Unpriced lists selections quoted on request in the active currency.
func (e *Estimate) Unpriced() []string {
	var out []string
	for _, s := range e.items {
		if !s.Priced {
			out = append(out, s.Country)
		}
	}
	return out
}

// Reset clears all selections.
func (e *Estimate) Reset() {
	e.items = nil
}

// Clone returns an independent copy.
func (e *Estimate) Clone() *Estimate {
	cp := *e
	cp.items = append([]Selection(nil), e.items...)
	return &cp
}

func (e *Estimate) selectClasses(name string, classes int) error {
	if e.index(name) >= 0 {
		return nil
	}
	country, ok := e.catalog.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCountry, name)
	}
	if _, ok := country.PriceIn(e.currency); !ok {
		return fmt.Errorf("%w: %s in %s", ErrPriceUnavailable, country.Name, e.currency)
	}
	if classes < 1 {
		classes = 1
	}
	e.items = append(e.items, Selection{Country: country.Name, FlagCode: country.FlagCode, Classes: classes})
	e.reprice(len(e.items) - 1)
	return nil
}

func (e *Estimate) reprice(i int) {
	s := &e.items[i]
	country, ok := e.catalog.Lookup(s.Country)
	if !ok {
		s.Price, s.Priced = 0, false
		return
	}
	p, ok := country.PriceIn(e.currency)
	if !ok {
		s.Price, s.Priced = 0, false
		return
	}
	s.Price, s.Priced = p.ForClasses(s.Classes), true
}

func (e *Estimate) index(name string) int {
	country, ok := e.catalog.Lookup(name)
	if !ok {
		return -1
	}
	for i, s := range e.items {
		if s.Country == country.Name {
			return i
		}
	}
	return -1
}

func (e *Estimate) remove(i int) {
	e.items = append(e.items[:i], e.items[i+1:]...)
}
