// Package catalog holds the canonical territory price list. A Catalog is
// immutable once loaded and safe for concurrent use.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"finitefield.org/trademark-web/internal/currency"
)

//go:embed data/catalog.yaml
var defaultCatalog []byte

var (
	// ErrInvalidCatalog wraps every structural problem found while loading.
	ErrInvalidCatalog = errors.New("catalog: invalid data")

	flagPattern = regexp.MustCompile(`^[a-z]{2}$`)
)

// Price is a territory fee in minor units (cents) for one currency.
type Price struct {
	Base            int64
	AdditionalClass int64
}

// ForClasses returns the fee covering the given number of classes.
func (p Price) ForClasses(classes int) int64 {
	if classes < 1 {
		classes = 1
	}
	return p.Base + int64(classes-1)*p.AdditionalClass
}

// Country is a selectable registration territory.
type Country struct {
	Name     string
	FlagCode string
	Region   string

	key    string
	prices map[currency.Code]Price
}

// PriceIn reports the fee in the given currency; ok is false when the
// territory is quoted on request in that currency.
func (c Country) PriceIn(code currency.Code) (Price, bool) {
	p, ok := c.prices[code]
	return p, ok
}

// Currencies lists the currencies the territory is priced in.
func (c Country) Currencies() []currency.Code {
	out := make([]currency.Code, 0, len(c.prices))
	for _, code := range currency.All() {
		if _, ok := c.prices[code]; ok {
			out = append(out, code)
		}
	}
	return out
}

// Region groups countries for display.
type Region struct {
	Name      string
	Countries []Country
}

// Catalog is the loaded price list.
type Catalog struct {
	top     []Country
	regions []Region
	byKey   map[string]Country
}

type document struct {
	Top     []string         `yaml:"top"`
	Regions []regionDocument `yaml:"regions"`
}

type regionDocument struct {
	Name      string            `yaml:"name"`
	Countries []countryDocument `yaml:"countries"`
}

type countryDocument struct {
	Name   string                   `yaml:"name"`
	Flag   string                   `yaml:"flag"`
	Prices map[string]priceDocument `yaml:"prices"`
}

type priceDocument struct {
	Base            *int64 `yaml:"base"`
	AdditionalClass *int64 `yaml:"additional_class"`
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// MustDefault is Default for program start-up and tests.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Load parses a YAML catalog document and validates it.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidCatalog, err)
	}
	return build(doc)
}

func build(doc document) (*Catalog, error) {
	if len(doc.Regions) == 0 {
		return nil, fmt.Errorf("%w: no regions", ErrInvalidCatalog)
	}
	c := &Catalog{byKey: make(map[string]Country)}
	seenRegions := make(map[string]struct{}, len(doc.Regions))
	for _, rd := range doc.Regions {
		regionName := strings.TrimSpace(rd.Name)
		if regionName == "" {
			return nil, fmt.Errorf("%w: region without name", ErrInvalidCatalog)
		}
		if _, dup := seenRegions[regionName]; dup {
			return nil, fmt.Errorf("%w: duplicate region %q", ErrInvalidCatalog, regionName)
		}
		seenRegions[regionName] = struct{}{}

		region := Region{Name: regionName, Countries: make([]Country, 0, len(rd.Countries))}
		for _, cd := range rd.Countries {
			country, err := buildCountry(regionName, cd)
			if err != nil {
				return nil, err
			}
			if _, dup := c.byKey[country.key]; dup {
				return nil, fmt.Errorf("%w: %q listed in more than one region", ErrInvalidCatalog, country.Name)
			}
			c.byKey[country.key] = country
			region.Countries = append(region.Countries, country)
		}
		c.regions = append(c.regions, region)
	}

	seenTop := make(map[string]struct{}, len(doc.Top))
	for _, name := range doc.Top {
		country, ok := c.byKey[foldKey(name)]
		if !ok {
			return nil, fmt.Errorf("%w: top country %q not found in any region", ErrInvalidCatalog, name)
		}
		if _, dup := seenTop[country.key]; dup {
			continue
		}
		seenTop[country.key] = struct{}{}
		c.top = append(c.top, country)
	}
	return c, nil
}

func buildCountry(region string, cd countryDocument) (Country, error) {
	name := strings.TrimSpace(cd.Name)
	if name == "" {
		return Country{}, fmt.Errorf("%w: country without name in %s", ErrInvalidCatalog, region)
	}
	flag := strings.ToLower(strings.TrimSpace(cd.Flag))
	if !flagPattern.MatchString(flag) {
		return Country{}, fmt.Errorf("%w: %s: flag %q must be a two-letter code", ErrInvalidCatalog, name, cd.Flag)
	}
	if len(cd.Prices) == 0 {
		return Country{}, fmt.Errorf("%w: %s: no prices", ErrInvalidCatalog, name)
	}
	prices := make(map[currency.Code]Price, len(cd.Prices))
	for raw, pd := range cd.Prices {
		code, ok := currency.Parse(raw)
		if !ok {
			return Country{}, fmt.Errorf("%w: %s: unsupported currency %q", ErrInvalidCatalog, name, raw)
		}
		if pd.Base == nil || pd.AdditionalClass == nil {
			return Country{}, fmt.Errorf("%w: %s: %s price needs base and additional_class", ErrInvalidCatalog, name, code)
		}
		if *pd.Base < 0 || *pd.AdditionalClass < 0 {
			return Country{}, fmt.Errorf("%w: %s: negative %s price", ErrInvalidCatalog, name, code)
		}
		prices[code] = Price{Base: *pd.Base * 100, AdditionalClass: *pd.AdditionalClass * 100}
	}
	return Country{
		Name:     name,
		FlagCode: flag,
		Region:   region,
		key:      foldKey(name),
		prices:   prices,
	}, nil
}

// Lookup finds a country by name, ignoring case and surrounding space.
func (c *Catalog) Lookup(name string) (Country, bool) {
	country, ok := c.byKey[foldKey(name)]
	return country, ok
}

// Top returns the curated shortlist.
func (c *Catalog) Top() []Country {
	return append([]Country(nil), c.top...)
}

// Regions returns all regions in catalog order.
func (c *Catalog) Regions() []Region {
	out := make([]Region, len(c.regions))
	for i, r := range c.regions {
		out[i] = Region{Name: r.Name, Countries: append([]Country(nil), r.Countries...)}
	}
	return out
}

// All returns every country once, in region order.
func (c *Catalog) All() []Country {
	out := make([]Country, 0, len(c.byKey))
	for _, r := range c.regions {
		out = append(out, r.Countries...)
	}
	return out
}

// Names returns every country name sorted alphabetically.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.byKey))
	for _, country := range c.byKey {
		out = append(out, country.Name)
	}
	sort.Strings(out)
	return out
}

func foldKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
