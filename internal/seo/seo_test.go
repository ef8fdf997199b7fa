package seo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistrationServiceOffers(t *testing.T) {
	got := JSON(RegistrationService("Markfield", "https://example.test/prices", []Offer{
		{Name: "European Union", Minor: 155100, Currency: "EUR"},
		{Name: "United States", Minor: 101205, Currency: "USD"},
	}))
	require.JSONEq(t, `{
		"@context":"https://schema.org","@type":"Service","serviceType":"Trademark registration",
		"provider":{"@type":"Organization","name":"Markfield"},
		"url":"https://example.test/prices",
		"offers":[
			{"@type":"Offer","name":"European Union","price":"1551.00","priceCurrency":"EUR"},
			{"@type":"Offer","name":"United States","price":"1012.05","priceCurrency":"USD"}
		]}`, got)
}

func TestBreadcrumbList(t *testing.T) {
	got := BreadcrumbList([]BreadcrumbItem{{Name: "Home", Item: "https://x/"}, {Name: "Blog", Item: "https://x/blog"}})
	items := got["itemListElement"].([]map[string]any)
	require.Len(t, items, 2)
	require.Equal(t, 2, items[1]["position"])
}

func TestMetaAdd(t *testing.T) {
	var m Meta
	m.Add(Organization("Markfield", "", ""))
	m.Add(func() {})
	require.Len(t, m.JSONLD, 1)
}
