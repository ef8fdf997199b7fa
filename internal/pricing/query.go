package pricing

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"finitefield.org/trademark-web/internal/catalog"
	"finitefield.org/trademark-web/internal/currency"
)

// Query parameter names shared by the price list and the lead form.
const (
	QueryCountries = "countries"
	QueryCurrency  = "currency"
)

// FromLines rebuilds an estimate from portable lines. Unknown countries and
// duplicates are skipped and returned; class counts are clamped to
// [1, MaxClasses].
func FromLines(cat *catalog.Catalog, code currency.Code, lines []Line) (*Estimate, []string) {
	e := NewEstimate(cat, code)
	var skipped []string
	for _, line := range lines {
		country, ok := cat.Lookup(line.Country)
		if !ok || e.Has(country.Name) {
			skipped = append(skipped, line.Country)
			continue
		}
		classes := min(max(line.Classes, 1), MaxClasses)
		e.items = append(e.items, Selection{Country: country.Name, FlagCode: country.FlagCode, Classes: classes})
		e.reprice(len(e.items) - 1)
	}
	return e, skipped
}

// Encode writes the estimate as query parameters.
func (e *Estimate) Encode() url.Values {
	v := url.Values{}
	v.Set(QueryCurrency, string(e.currency))
	if len(e.items) > 0 {
		raw, _ := json.Marshal(e.Lines())
		v.Set(QueryCountries, string(raw))
	}
	return v
}

// Decode reads an estimate from query parameters. countries may be a JSON
// array of {"name","classes"} objects or of plain names. A missing or invalid
// currency falls back to fallback.
func Decode(cat *catalog.Catalog, values url.Values, fallback currency.Code) (*Estimate, []string, error) {
	code := currency.ParseOr(values.Get(QueryCurrency), fallback)
	lines, err := ParseLines(values.Get(QueryCountries))
	if err != nil {
		return NewEstimate(cat, code), nil, err
	}
	e, skipped := FromLines(cat, code, lines)
	return e, skipped, nil
}

// ParseLines decodes the countries parameter.
func ParseLines(raw string) ([]Line, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("pricing: countries parameter: %w", err)
	}
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			lines = append(lines, Line{Country: name, Classes: 1})
			continue
		}
		var line Line
		if err := json.Unmarshal(item, &line); err != nil {
			return nil, fmt.Errorf("pricing: countries parameter: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}
