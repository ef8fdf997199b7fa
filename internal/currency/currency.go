// Package currency defines the closed set of currencies prices are quoted in.
package currency

import "strings"

// Code is an ISO 4217 currency code supported by the price catalog.
type Code string

const (
	USD Code = "USD"
	EUR Code = "EUR"
)

// Default is used when no preference has been stored.
const Default = EUR

// CookieName is the persisted preference key.
const CookieName = "selectedCurrency"

// All returns the supported codes in display order.
func All() []Code {
	return []Code{EUR, USD}
}

// Parse normalises raw input into a supported code.
func Parse(raw string) (Code, bool) {
	switch Code(strings.ToUpper(strings.TrimSpace(raw))) {
	case USD:
		return USD, true
	case EUR:
		return EUR, true
	default:
		return "", false
	}
}

// ParseOr returns the parsed code, or fallback when raw is not supported.
func ParseOr(raw string, fallback Code) Code {
	if c, ok := Parse(raw); ok {
		return c
	}
	return fallback
}

// Symbol returns the display symbol.
func (c Code) Symbol() string {
	switch c {
	case USD:
		return "$"
	case EUR:
		return "€"
	default:
		return string(c)
	}
}

func (c Code) String() string { return string(c) }
