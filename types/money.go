// Package types provides common types used across valueflow.
package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money pairs an exact decimal amount in major units with its currency.
// Distribution amounts are carried at full precision and only quantized
// when formatted.
//
// Examples:
//   - New(d, "usd") with d = 49 prints "$49.00"
//   - New(d, "jpy") with d = 100 prints "¥100"
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"` // ISO 4217 lowercase: "usd", "eur", "gbp"
}

// New creates a Money value from a decimal amount.
func New(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToLower(currency)}
}

// Parse creates a Money value from a decimal string.
func Parse(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", amount, err)
	}
	return New(d, currency), nil
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount.IsZero() }

// Equal returns true if both Money values are numerically equal in the same currency.
func (m Money) Equal(other Money) bool {
	return m.Amount.Equal(other.Amount) && m.Currency == other.Currency
}

// FormatMajor returns the amount rounded to the currency's minor unit without symbol.
// For currencies with 2 decimal places: "49.00". For JPY: "100".
func (m Money) FormatMajor() string {
	return m.Amount.StringFixed(int32(currencyDecimals(m.Currency)))
}

// String returns a human-readable string with currency symbol.
// Examples: "$49.00", "€199.00", "£99.00", "¥100". Without a currency
// only the amount is printed.
func (m Money) String() string {
	if m.Currency == "" {
		return m.FormatMajor()
	}
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// currencySymbol returns the symbol for a currency code.
func currencySymbol(currency string) string {
	symbols := map[string]string{
		"usd": "$",
		"eur": "€",
		"gbp": "£",
		"jpy": "¥",
		"cad": "C$",
		"aud": "A$",
		"chf": "CHF ",
		"cny": "¥",
		"sek": "kr ",
		"nzd": "NZ$",
	}
	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

// currencyDecimals returns the number of decimal places for a currency.
func currencyDecimals(currency string) int {
	zeroDecimal := map[string]bool{
		"jpy": true, // Japanese Yen
		"krw": true, // Korean Won
		"vnd": true, // Vietnamese Dong
		"clp": true, // Chilean Peso
		"pyg": true, // Paraguayan Guarani
		"idr": true, // Indonesian Rupiah
	}
	if zeroDecimal[strings.ToLower(currency)] {
		return 0
	}
	return 2
}
