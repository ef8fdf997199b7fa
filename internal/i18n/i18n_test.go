package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestResolveHonorsQValues(t *testing.T) {
	b, err := Default("en", []string{"en", "de"})
	require.NoError(t, err)

	require.Equal(t, "de", b.Resolve("en;q=0.8, de-AT;q=0.9"))
	require.Equal(t, "en", b.Resolve("fr-FR"))
	require.Equal(t, "en", b.Resolve(""))
	require.Equal(t, "de", b.Resolve("de-CH, en;q=0.5"))
}

func TestEmbeddedLocalesHaveSameKeys(t *testing.T) {
	b, err := Default("en", []string{"en", "de"})
	require.NoError(t, err)
	for key := range b.dict["en"] {
		_, ok := b.dict["de"][key]
		require.True(t, ok, "de is missing %q", key)
	}
	for key := range b.dict["de"] {
		_, ok := b.dict["en"][key]
		require.True(t, ok, "en is missing %q", key)
	}
}

func TestTranslateFallsBack(t *testing.T) {
	fsys := fstest.MapFS{
		"l/en.json": {Data: []byte(`{"hello":"Hello %s","only_en":"English"}`)},
		"l/de.json": {Data: []byte(`{"hello":"Hallo %s"}`)},
	}
	b, err := Load(fsys, "l", "en", []string{"en", "de", "fr"})
	require.NoError(t, err)
	require.Equal(t, []string{"en", "de"}, b.Supported())
	require.Equal(t, "Hallo Ada", b.T("de", "hello", "Ada"))
	require.Equal(t, "English", b.T("de", "only_en"))
	require.Equal(t, "missing.key", b.T("de", "missing.key"))
	require.True(t, b.IsSupported("DE"))
	require.False(t, b.IsSupported("fr"))

	_, err = Load(fsys, "l", "ja", nil)
	require.Error(t, err)
}
