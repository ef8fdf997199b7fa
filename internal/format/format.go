package format

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"finitefield.org/trademark-web/internal/currency"
)

// Money formats an amount in minor units with grouping for the page language.
// Whole amounts drop the decimals: Money(155100, EUR, "en") => "€1,551".
func Money(minor int64, code currency.Code, lang string) string {
	neg := minor < 0
	if neg {
		minor = -minor
	}
	tag := languageTag(lang)
	p := message.NewPrinter(tag)

	var amount string
	if minor%100 == 0 {
		amount = p.Sprintf("%d", minor/100)
	} else {
		amount = p.Sprintf("%.2f", float64(minor)/100)
	}

	var out string
	if base, _ := tag.Base(); base.String() == "de" {
		out = amount + " " + code.Symbol()
	} else {
		out = code.Symbol() + amount
	}
	if neg {
		return "-" + out
	}
	return out
}

// Date formats time in a locale-friendly short form.
func Date(t time.Time, lang string) string {
	if t.IsZero() {
		return ""
	}
	switch strings.ToLower(lang) {
	case "de":
		return t.Format("02.01.2006")
	default:
		return t.Format("Jan 2, 2006")
	}
}

// DateTime formats a timestamp for admin tables.
func DateTime(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func languageTag(lang string) language.Tag {
	tag, err := language.Parse(strings.TrimSpace(lang))
	if err != nil {
		return language.English
	}
	return tag
}
