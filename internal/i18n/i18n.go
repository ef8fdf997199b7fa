// Package i18n holds the translated interface strings and picks a language
// per request.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"golang.org/x/text/language"
)

//go:embed locales/*.json
var embedded embed.FS

// Bundle is an immutable set of dictionaries.
type Bundle struct {
	dict      map[string]map[string]string
	fallback  string
	supported []string
	matcher   language.Matcher
}

// Default loads the embedded locales.
func Default(fallback string, supported []string) (*Bundle, error) {
	return Load(embedded, "locales", fallback, supported)
}

// Load reads <lang>.json files from dir in fsys. The fallback language must
// be present; other missing languages are skipped.
func Load(fsys fs.FS, dir, fallback string, supported []string) (*Bundle, error) {
	if len(supported) == 0 {
		supported = []string{"en", "de"}
	}
	fallback = strings.ToLower(strings.TrimSpace(fallback))
	b := &Bundle{dict: map[string]map[string]string{}, fallback: fallback}

	// The fallback goes first so the matcher prefers it on ties.
	ordered := []string{fallback}
	for _, l := range supported {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" && l != fallback {
			ordered = append(ordered, l)
		}
	}

	tags := make([]language.Tag, 0, len(ordered))
	for _, l := range ordered {
		raw, err := fs.ReadFile(fsys, path.Join(dir, l+".json"))
		if err != nil {
			if l == fallback {
				return nil, fmt.Errorf("i18n: load fallback locale %s: %w", l, err)
			}
			continue
		}
		var m map[string]string
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("i18n: decode locale %s: %w", l, err)
		}
		tag, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("i18n: locale %s: %w", l, err)
		}
		b.dict[l] = m
		b.supported = append(b.supported, l)
		tags = append(tags, tag)
	}
	b.matcher = language.NewMatcher(tags)
	return b, nil
}

// Supported lists loaded languages, fallback first.
func (b *Bundle) Supported() []string { return append([]string(nil), b.supported...) }

// Fallback returns the default language.
func (b *Bundle) Fallback() string { return b.fallback }

// IsSupported reports whether lang has a dictionary.
func (b *Bundle) IsSupported(lang string) bool {
	_, ok := b.dict[strings.ToLower(strings.TrimSpace(lang))]
	return ok
}

// T translates key, falling back to the default language and then the key.
// With args the message is used as a fmt format.
func (b *Bundle) T(lang, key string, args ...any) string {
	msg, ok := b.lookup(lang, key)
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

// Has reports whether key exists in lang or the fallback.
func (b *Bundle) Has(lang, key string) bool {
	_, ok := b.lookup(lang, key)
	return ok
}

func (b *Bundle) lookup(lang, key string) (string, bool) {
	if m, ok := b.dict[lang]; ok {
		if v, ok := m[key]; ok {
			return v, true
		}
	}
	if m, ok := b.dict[b.fallback]; ok {
		if v, ok := m[key]; ok {
			return v, true
		}
	}
	return "", false
}

// Resolve picks the best supported language for an Accept-Language header.
func (b *Bundle) Resolve(acceptLanguage string) string {
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return b.fallback
	}
	_, idx, conf := b.matcher.Match(prefs...)
	if conf == language.No || idx < 0 || idx >= len(b.supported) {
		return b.fallback
	}
	return b.supported[idx]
}
