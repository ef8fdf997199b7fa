package format

import (
	"testing"
	"time"

	"finitefield.org/trademark-web/internal/currency"
)

func TestMoney(t *testing.T) {
	cases := []struct {
		minor int64
		code  currency.Code
		lang  string
		want  string
	}{
		{155100, currency.EUR, "en", "€1,551"},
		{197600, currency.EUR, "de", "1.976 €"},
		{101200, currency.USD, "en", "$1,012"},
		{4950, currency.USD, "en", "$49.50"},
		{0, currency.EUR, "", "€0"},
		{-50000, currency.USD, "en", "-$500"},
	}
	for _, tc := range cases {
		if got := Money(tc.minor, tc.code, tc.lang); got != tc.want {
			t.Errorf("Money(%d, %s, %q) = %q, want %q", tc.minor, tc.code, tc.lang, got, tc.want)
		}
	}
}

func TestDate(t *testing.T) {
	ts := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	if got := Date(ts, "en"); got != "Mar 7, 2026" {
		t.Errorf("unexpected en date %q", got)
	}
	if got := Date(ts, "de"); got != "07.03.2026" {
		t.Errorf("unexpected de date %q", got)
	}
	if got := Date(time.Time{}, "en"); got != "" {
		t.Errorf("expected empty for zero time, got %q", got)
	}
}
