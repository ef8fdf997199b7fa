package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBrowseEmptyTermShowsShortlistAndCollapsedRegions(t *testing.T) {
	cat := MustDefault()

	view := cat.Browse("  ", "Asia-Pacific")
	require.False(t, view.Searching)
	require.Empty(t, view.Results)
	require.Equal(t, cat.Top(), view.Top)
	require.Len(t, view.Groups, len(cat.Regions()))
	for _, g := range view.Groups {
		require.Equal(t, g.Name == "Asia-Pacific", g.Expanded, g.Name)
	}
}

func TestBrowseSearchFlattensAndExpandsMatches(t *testing.T) {
	cat := MustDefault()

	view := cat.Browse("UNITED")
	require.True(t, view.Searching)
	require.Nil(t, view.Top)

	names := make([]string, 0, len(view.Results))
	for _, c := range view.Results {
		names = append(names, c.Name)
	}
	// United States and United Kingdom are in the shortlist, so they lead.
	require.Equal(t, []string{"United States", "United Kingdom", "United Arab Emirates"}, names)

	expanded := map[string]int{}
	for _, g := range view.Groups {
		if g.Expanded {
			expanded[g.Name] = g.Matches
		}
	}
	require.Equal(t, map[string]int{"Europe": 1, "North America": 1, "Middle East & Africa": 1}, expanded)
}

func TestSearchMatchesBruteForceUnion(t *testing.T) {
	cat := MustDefault()

	for _, term := range []string{"a", "AN", "ia", "land", "zz", "", "Union", "e"} {
		var want []string
		seen := map[string]bool{}
		pool := append(cat.Top(), cat.All()...)
		for _, c := range pool {
			if seen[c.Name] {
				continue
			}
			seen[c.Name] = true
			if strings.Contains(strings.ToLower(c.Name), strings.ToLower(term)) {
				want = append(want, c.Name)
			}
		}

		var got []string
		for _, c := range cat.Search(term) {
			got = append(got, c.Name)
		}
		require.Equal(t, want, got, "term %q", term)
	}
}
