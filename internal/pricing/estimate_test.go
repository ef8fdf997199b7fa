package pricing

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"finitefield.org/trademark-web/internal/catalog"
	"finitefield.org/trademark-web/internal/currency"
)

func closedForm(t *testing.T, cat *catalog.Catalog, e *Estimate) int64 {
	t.Helper()
	var total int64
	for _, s := range e.Selections() {
		country, ok := cat.Lookup(s.Country)
		require.True(t, ok)
		p, ok := country.PriceIn(e.Currency())
		require.Equal(t, ok, s.Priced, s.Country)
		if !ok {
			continue
		}
		require.Equal(t, p.Base+int64(s.Classes-1)*p.AdditionalClass, s.Price, s.Country)
		require.GreaterOrEqual(t, s.Classes, 1)
		total += s.Price
	}
	return total
}

func TestEstimateScenarioEuropeanUnion(t *testing.T) {
	cat := catalog.MustDefault()
	e := NewEstimate(cat, currency.EUR)

	selected, err := e.Toggle("European Union")
	require.NoError(t, err)
	require.True(t, selected)
	require.EqualValues(t, 155100, e.Total())

	require.NoError(t, e.IncrementClass("European Union"))
	require.EqualValues(t, 197600, e.Total())

	e.SetCurrency(currency.USD)
	s, ok := e.Get("European Union")
	require.True(t, ok)
	require.Equal(t, 2, s.Classes)
	require.EqualValues(t, 169500+46500, s.Price, "recomputed from the USD entry, not relabelled")

	selected, err = e.Toggle("United States")
	require.NoError(t, err)
	require.True(t, selected)
	require.EqualValues(t, 169500+46500+101200, e.Total())
}

func TestEstimateCountryWithoutPriceInCurrency(t *testing.T) {
	cat := catalog.MustDefault()
	e := NewEstimate(cat, currency.EUR)

	_, err := e.Toggle("United States")
	require.ErrorIs(t, err, ErrPriceUnavailable)
	require.Zero(t, e.Len())

	e.SetCurrency(currency.USD)
	require.NoError(t, e.Select("United States"))
	require.NoError(t, e.Select("Canada"))

	e.SetCurrency(currency.EUR)
	require.Equal(t, []string{"United States"}, e.Unpriced())
	require.EqualValues(t, 118000, e.Total())

	e.SetCurrency(currency.USD)
	require.Empty(t, e.Unpriced())
	require.EqualValues(t, 101200+129000, e.Total())
}

func TestEstimateClassFloor(t *testing.T) {
	cat := catalog.MustDefault()
	e := NewEstimate(cat, currency.EUR)
	require.NoError(t, e.Select("Japan"))

	for i := 0; i < 5; i++ {
		require.ErrorIs(t, e.DecrementClass("Japan"), ErrClassFloor)
	}
	s, _ := e.Get("Japan")
	require.Equal(t, 1, s.Classes)

	require.NoError(t, e.IncrementClass("Japan"))
	require.NoError(t, e.IncrementClass("Japan"))
	require.NoError(t, e.DecrementClass("Japan"))
	s, _ = e.Get("Japan")
	require.Equal(t, 2, s.Classes)
	require.EqualValues(t, 132000+76000, s.Price)
}

func TestEstimateToggleTwiceRestoresSet(t *testing.T) {
	cat := catalog.MustDefault()
	e := NewEstimate(cat, currency.EUR)
	require.NoError(t, e.Select("China"))
	before := e.Lines()

	_, err := e.Toggle("Brazil")
	require.NoError(t, err)
	require.NoError(t, e.IncrementClass("Brazil"))
	_, err = e.Toggle("Brazil")
	require.NoError(t, err)
	require.Equal(t, before, e.Lines())

	// Re-selection starts over at one class.
	_, err = e.Toggle("brazil")
	require.NoError(t, err)
	s, _ := e.Get("Brazil")
	require.Equal(t, 1, s.Classes)
}

func TestEstimateSelectIsIdempotent(t *testing.T) {
	cat := catalog.MustDefault()
	e := NewEstimate(cat, currency.EUR)
	require.NoError(t, e.Select("Peru"))
	require.NoError(t, e.IncrementClass("Peru"))
	require.NoError(t, e.Select("PERU"))

	require.Equal(t, 1, e.Len())
	s, _ := e.Get("Peru")
	require.Equal(t, 2, s.Classes)

	require.True(t, e.Deselect("Peru"))
	require.False(t, e.Deselect("Peru"))
}

func TestEstimateErrors(t *testing.T) {
	cat := catalog.MustDefault()
	e := NewEstimate(cat, currency.EUR)

	_, err := e.Toggle("Atlantis")
	require.True(t, errors.Is(err, ErrUnknownCountry))
	require.ErrorIs(t, e.IncrementClass("Peru"), ErrNotSelected)
	require.ErrorIs(t, e.DecrementClass("Peru"), ErrNotSelected)
}

func TestEstimateInvariantUnderRandomOperations(t *testing.T) {
	cat := catalog.MustDefault()
	names := cat.Names()
	rng := rand.New(rand.NewSource(42))
	e := NewEstimate(cat, currency.EUR)

	for step := 0; step < 2000; step++ {
		name := names[rng.Intn(len(names))]
		switch rng.Intn(6) {
		case 0, 1:
			_, _ = e.Toggle(name)
		case 2:
			_ = e.IncrementClass(name)
		case 3:
			_ = e.DecrementClass(name)
		case 4:
			if rng.Intn(2) == 0 {
				e.SetCurrency(currency.USD)
			} else {
				e.SetCurrency(currency.EUR)
			}
		case 5:
			_ = e.Select(name)
		}
		require.Equal(t, closedForm(t, cat, e), e.Total(), "step %d", step)
	}
}

func TestCurrencySwitchKeepsClassCounts(t *testing.T) {
	cat := catalog.MustDefault()
	e := NewEstimate(cat, currency.USD)
	for _, name := range []string{"Mexico", "India", "Norway"} {
		require.NoError(t, e.Select(name))
	}
	require.NoError(t, e.IncrementClass("India"))
	require.NoError(t, e.IncrementClass("India"))

	before := e.Lines()
	e.SetCurrency(currency.EUR)
	require.Equal(t, before, e.Lines())
	require.Equal(t, closedForm(t, cat, e), e.Total())
	india, _ := e.Get("India")
	require.EqualValues(t, 54000+2*42000, india.Price)
}

func TestEstimateClassCeiling(t *testing.T) {
	e := NewEstimate(catalog.MustDefault(), currency.EUR)
	require.NoError(t, e.Select("European Union"))
	for i := 1; i < MaxClasses; i++ {
		require.NoError(t, e.IncrementClass("European Union"))
	}
	require.ErrorIs(t, e.IncrementClass("European Union"), ErrClassCeiling)

	sel, _ := e.Get("European Union")
	require.Equal(t, MaxClasses, sel.Classes)
	require.EqualValues(t, 155100+(MaxClasses-1)*42500, e.Total())
}
