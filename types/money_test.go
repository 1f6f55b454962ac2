package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMoneyFormatting(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		display  string
	}{
		{"USD", "49", "usd", "$49.00"},
		{"EUR", "199.5", "eur", "€199.50"},
		{"Upper currency", "25", "CAD", "C$25.00"},
		{"JPY", "100.4", "jpy", "¥100"},
		{"Unknown currency", "7.5", "xyz", "XYZ 7.50"},
		{"No currency", "33.333", "", "33.33"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse(tt.amount, tt.currency)
			if err != nil {
				t.Fatal(err)
			}
			if !m.Amount.Equal(d(tt.amount)) {
				t.Errorf("Amount: got %s, want %s", m.Amount, tt.amount)
			}
			if got := m.String(); got != tt.display {
				t.Errorf("Display: got %s, want %s", got, tt.display)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse("ten", "usd"); err == nil {
		t.Error("expected error for non-numeric amount")
	}
}

func TestMoneyEqual(t *testing.T) {
	if !New(d("1.0"), "USD").Equal(New(d("1"), "usd")) {
		t.Error("1.0 and 1 should be equal")
	}
	if New(d("1"), "usd").Equal(New(d("1"), "eur")) {
		t.Error("different currencies should not be equal")
	}
	if !New(decimal.Zero, "usd").IsZero() {
		t.Error("zero amount should be zero")
	}
}

func TestDecimalHelpers(t *testing.T) {
	tests := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"RoundUp", RoundUp(d("33.331")), "33.34"},
		{"RoundUp exact", RoundUp(d("33.33")), "33.33"},
		{"RoundUp division noise", RoundUp(d("10.0000000000000005")), "10"},
		{"RoundCents half", RoundCents(d("0.125")), "0.13"},
		{"FloorCents", FloorCents(d("33.339")), "33.33"},
		{"FloorCents division noise", FloorCents(d("4.9999999999999998")), "5"},
		{"Percent", Percent(d("25")), "0.25"},
		{"MinDecimal", MinDecimal(d("2"), d("1")), "1"},
		{"Clamp high", Clamp(d("5"), d("0"), d("3")), "3"},
		{"Clamp low", Clamp(d("-1"), d("0"), d("3")), "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.got.Equal(d(tt.want)) {
				t.Errorf("got %s, want %s", tt.got, tt.want)
			}
		})
	}

	if _, ok := Div(d("1"), decimal.Zero); ok {
		t.Error("Div by zero should report false")
	}
	if q, ok := Div(d("1"), d("4")); !ok || !q.Equal(d("0.25")) {
		t.Errorf("Div: got %s", q)
	}
}
