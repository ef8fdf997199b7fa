// Package nav defines the site navigation and breadcrumbs.
package nav

import (
	"path"
	"strings"
)

// Item represents a top-level navigation item.
type Item struct {
	Path     string
	LabelKey string
}

// RenderedItem is a view model for templates.
type RenderedItem struct {
	Href     string
	LabelKey string
	Active   bool
}

// Crumb represents a breadcrumb entry. If LabelKey is empty, use Label.
type Crumb struct {
	Href     string
	LabelKey string
	Label    string
	Active   bool
}

// Main is the primary navigation.
var Main = []Item{
	{Path: "/prices", LabelKey: "nav.prices"},
	{Path: "/free-search", LabelKey: "nav.free_search"},
	{Path: "/blog", LabelKey: "nav.blog"},
}

// Build renders navigation items with active state given the current path.
func Build(currentPath string) []RenderedItem {
	if currentPath == "" {
		currentPath = "/"
	}
	items := make([]RenderedItem, 0, len(Main))
	for _, it := range Main {
		items = append(items, RenderedItem{Href: it.Path, LabelKey: it.LabelKey, Active: isActive(it.Path, currentPath)})
	}
	return items
}

func isActive(itemPath, currentPath string) bool {
	return currentPath == itemPath || strings.HasPrefix(currentPath, itemPath+"/")
}

// Breadcrumbs builds entries from the current path, starting with Home.
// Known sections use their nav label; deeper segments are prettified, or
// replaced by leaf when it is non-empty.
func Breadcrumbs(currentPath, leaf string) []Crumb {
	if currentPath == "" {
		currentPath = "/"
	}
	crumbs := []Crumb{{Href: "/", LabelKey: "nav.home", Active: currentPath == "/"}}
	if currentPath == "/" {
		return crumbs
	}

	parts := strings.Split(strings.TrimPrefix(path.Clean(currentPath), "/"), "/")
	href := ""
	for i, part := range parts {
		href += "/" + part
		c := Crumb{Href: href, Label: titleFromSegment(part), Active: i == len(parts)-1}
		if i == 0 {
			for _, it := range Main {
				if it.Path == href {
					c.LabelKey = it.LabelKey
				}
			}
		}
		if c.Active && i > 0 && leaf != "" {
			c.Label = leaf
		}
		crumbs = append(crumbs, c)
	}
	return crumbs
}

func titleFromSegment(seg string) string {
	s := strings.NewReplacer("-", " ", "_", " ").Replace(seg)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
