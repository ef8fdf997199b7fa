// Package seo builds page metadata and schema.org JSON-LD payloads.
package seo

import (
	"encoding/json"
	"html/template"
	"strconv"
	"time"
)

// OpenGraph holds og:* values.
type OpenGraph struct {
	Title       string
	Description string
	Image       string
	Type        string
}

// Meta is the head metadata of a page.
type Meta struct {
	Title       string
	Description string
	Canonical   string
	Robots      string
	OG          OpenGraph
	JSONLD      []template.JS
}

// Add appends a JSON-LD payload.
func (m *Meta) Add(v any) {
	if s := JSON(v); s != "" {
		m.JSONLD = append(m.JSONLD, template.JS(s))
	}
}

// JSON marshals v to a compact JSON string. It returns an empty string on error.
func JSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Organization returns a minimal Organization schema.
func Organization(name, url, logoURL string) map[string]any {
	m := map[string]any{
		"@context": "https://schema.org",
		"@type":    "Organization",
		"name":     name,
	}
	if url != "" {
		m["url"] = url
	}
	if logoURL != "" {
		m["logo"] = logoURL
	}
	return m
}

// WebSite returns a WebSite schema whose search action prefills the free search.
func WebSite(name, url, searchActionURL string) map[string]any {
	m := map[string]any{
		"@context": "https://schema.org",
		"@type":    "WebSite",
		"name":     name,
	}
	if url != "" {
		m["url"] = url
	}
	if searchActionURL != "" {
		m["potentialAction"] = map[string]any{
			"@type":       "SearchAction",
			"target":      searchActionURL + "{search_term_string}",
			"query-input": "required name=search_term_string",
		}
	}
	return m
}

// BreadcrumbItem maps name and absolute item URL.
type BreadcrumbItem struct {
	Name string
	Item string
}

// BreadcrumbList builds schema.org BreadcrumbList.
func BreadcrumbList(items []BreadcrumbItem) map[string]any {
	el := make([]map[string]any, 0, len(items))
	for i, it := range items {
		el = append(el, map[string]any{
			"@type":    "ListItem",
			"position": i + 1,
			"name":     it.Name,
			"item":     it.Item,
		})
	}
	return map[string]any{
		"@context":        "https://schema.org",
		"@type":           "BreadcrumbList",
		"itemListElement": el,
	}
}

// Article returns an Article schema.
func Article(headline, url, imageURL, authorName string, published, modified time.Time) map[string]any {
	m := map[string]any{
		"@context": "https://schema.org",
		"@type":    "Article",
		"headline": headline,
	}
	if url != "" {
		m["url"] = url
	}
	if imageURL != "" {
		m["image"] = imageURL
	}
	if authorName != "" {
		m["author"] = map[string]any{"@type": "Person", "name": authorName}
	}
	if !published.IsZero() {
		m["datePublished"] = published.UTC().Format(time.RFC3339)
	}
	if !modified.IsZero() {
		m["dateModified"] = modified.UTC().Format(time.RFC3339)
	}
	return m
}

// Offer is one priced service line.
type Offer struct {
	Name     string
	Minor    int64
	Currency string
}

// RegistrationService describes trademark registration with its per-territory
// offers. Amounts are minor units.
func RegistrationService(provider, url string, offers []Offer) map[string]any {
	list := make([]map[string]any, 0, len(offers))
	for _, o := range offers {
		list = append(list, map[string]any{
			"@type":         "Offer",
			"name":          o.Name,
			"price":         minorToDecimal(o.Minor),
			"priceCurrency": o.Currency,
		})
	}
	m := map[string]any{
		"@context":    "https://schema.org",
		"@type":       "Service",
		"serviceType": "Trademark registration",
		"provider":    map[string]any{"@type": "Organization", "name": provider},
		"offers":      list,
	}
	if url != "" {
		m["url"] = url
	}
	return m
}

func minorToDecimal(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	cents := minor % 100
	out := sign + strconv.FormatInt(minor/100, 10) + "."
	if cents < 10 {
		out += "0"
	}
	return out + strconv.FormatInt(cents, 10)
}
