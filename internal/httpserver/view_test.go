package httpserver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"finitefield.org/trademark-web/internal/catalog"
	"finitefield.org/trademark-web/internal/currency"
	"finitefield.org/trademark-web/internal/pricing"
)

func TestLocalRedirect(t *testing.T) {
	cases := map[string]string{
		"/admin?status=pending": "/admin?status=pending",
		"":                      "/fallback",
		"https://evil.test/":    "/fallback",
		"//evil.test/x":         "/fallback",
		"relative":              "/fallback",
	}
	for in, want := range cases {
		require.Equal(t, want, localRedirect(in, "/fallback"), in)
	}
}

func TestFlagEmoji(t *testing.T) {
	require.Equal(t, "\U0001F1E9\U0001F1EA", flagEmoji("de"))
	require.Equal(t, "", flagEmoji("deu"))
	require.Equal(t, "", flagEmoji("1a"))
}

func TestEstimateOpApply(t *testing.T) {
	cat := catalog.MustDefault()
	e := pricing.NewEstimate(cat, currency.EUR)

	notice, err := parseEstimateOp("toggle:European Union").apply(e)
	require.NoError(t, err)
	require.Empty(t, notice)
	require.True(t, e.Has("European Union"))

	notice, err = parseEstimateOp("dec:European Union").apply(e)
	require.NoError(t, err)
	require.Equal(t, "prices.notice.class_floor", notice)

	for i := 1; i < pricing.MaxClasses; i++ {
		_, err = parseEstimateOp("inc:European Union").apply(e)
		require.NoError(t, err)
	}
	notice, err = parseEstimateOp("inc:European Union").apply(e)
	require.NoError(t, err)
	require.Equal(t, "prices.notice.class_ceiling", notice)

	notice, err = parseEstimateOp("toggle:Atlantis").apply(e)
	require.NoError(t, err)
	require.Equal(t, "prices.notice.unknown", notice)

	_, err = parseEstimateOp("currency:usd").apply(e)
	require.NoError(t, err)
	require.Equal(t, currency.USD, e.Currency())

	_, err = parseEstimateOp("explode:").apply(e)
	require.ErrorIs(t, err, errUnknownOp)

	_, err = parseEstimateOp("clear:").apply(e)
	require.NoError(t, err)
	require.Zero(t, e.Len())
}
