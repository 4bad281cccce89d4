package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Monetary amounts travel through the engine as fixed-point decimals.
// Conversion to minor-unit integers happens only at the gateway boundary.

// currencyExponents maps ISO 4217 codes to their minor-unit exponent.
// Currencies not listed use the common exponent of 2.
var currencyExponents = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
}

// CurrencyExponent returns the minor-unit exponent for a currency code.
func CurrencyExponent(currency string) int32 {
	if exp, ok := currencyExponents[currency]; ok {
		return exp
	}
	return 2
}

// MinorUnits converts a decimal amount to the currency's minor-unit integer.
// It fails on sub-minor-unit precision rather than round money silently.
func MinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	scaled := amount.Shift(CurrencyExponent(currency))
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %s has sub-minor-unit precision for %s", amount.String(), currency)
	}
	return scaled.IntPart(), nil
}

// FromMinorUnits converts a minor-unit integer back to a decimal amount.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-CurrencyExponent(currency))
}

// FormatAmount renders an amount with its currency, e.g. "50.00 USD".
func FormatAmount(amount decimal.Decimal, currency string) string {
	return fmt.Sprintf("%s %s", amount.StringFixed(CurrencyExponent(currency)), currency)
}
