package domain

import "testing"

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		amount   int64
		currency string
		want     string
	}{
		{2500, "usd", "$25.00"},
		{5, "USD", "$0.05"},
		{1999, "eur", "€19.99"},
		{500, "jpy", "¥500"},
		{12345, "cad", "123.45 CAD"},
		{-250, "usd", "-$2.50"},
	}
	for _, tc := range cases {
		if got := FormatAmount(tc.amount, tc.currency); got != tc.want {
			t.Fatalf("FormatAmount(%d, %q) = %q, want %q", tc.amount, tc.currency, got, tc.want)
		}
	}
}
