package catalog

import (
	"strings"
)

// Group is one region in the browser view.
type Group struct {
	Name      string
	Countries []Country
	Expanded  bool
	Matches   int
}

// View is what the country browser renders for a search term.
type View struct {
	Term      string
	Searching bool
	Top       []Country
	Groups    []Group
	Results   []Country
}

// Browse builds the browser view. With an empty term it returns the shortlist
// and every region, collapsed unless named in open. With a term it returns the
// de-duplicated matches as a flat result list and expands matching regions.
func (c *Catalog) Browse(term string, open ...string) View {
	term = strings.TrimSpace(term)
	openSet := make(map[string]struct{}, len(open))
	for _, name := range open {
		openSet[strings.TrimSpace(name)] = struct{}{}
	}

	view := View{Term: term, Searching: term != ""}
	needle := foldKey(term)
	view.Groups = make([]Group, 0, len(c.regions))
	for _, r := range c.regions {
		g := Group{Name: r.Name, Countries: append([]Country(nil), r.Countries...)}
		if view.Searching {
			for _, country := range r.Countries {
				if strings.Contains(country.key, needle) {
					g.Matches++
				}
			}
			g.Expanded = g.Matches > 0
		}
		if _, ok := openSet[r.Name]; ok {
			g.Expanded = true
		}
		view.Groups = append(view.Groups, g)
	}

	if view.Searching {
		view.Results = c.Search(term)
		return view
	}
	view.Top = c.Top()
	return view
}

// Search returns every country whose name contains term, case-insensitively,
// drawn from the shortlist and all regions and de-duplicated by name. The
// shortlist order comes first, then region order.
func (c *Catalog) Search(term string) []Country {
	needle := foldKey(term)
	seen := make(map[string]struct{}, len(c.byKey))
	var out []Country
	consider := func(country Country) {
		if _, dup := seen[country.key]; dup {
			return
		}
		seen[country.key] = struct{}{}
		if strings.Contains(country.key, needle) {
			out = append(out, country)
		}
	}
	for _, country := range c.top {
		consider(country)
	}
	for _, r := range c.regions {
		for _, country := range r.Countries {
			consider(country)
		}
	}
	return out
}
