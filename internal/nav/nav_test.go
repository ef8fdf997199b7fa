package nav

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildMarksActiveSection(t *testing.T) {
	items := Build("/blog/madrid-system")
	require.Len(t, items, len(Main))
	for _, it := range items {
		require.Equal(t, it.Href == "/blog", it.Active, it.Href)
	}
	for _, it := range Build("/prices-old") {
		require.False(t, it.Active)
	}
}

func TestBreadcrumbs(t *testing.T) {
	require.Equal(t, []Crumb{{Href: "/", LabelKey: "nav.home", Active: true}}, Breadcrumbs("/", ""))

	got := Breadcrumbs("/blog/madrid-system", "The Madrid system")
	require.Equal(t, []Crumb{
		{Href: "/", LabelKey: "nav.home"},
		{Href: "/blog", LabelKey: "nav.blog", Label: "Blog"},
		{Href: "/blog/madrid-system", Label: "The Madrid system", Active: true},
	}, got)

	got = Breadcrumbs("/free-search/thank-you", "")
	require.Equal(t, "Thank you", got[2].Label)
}
