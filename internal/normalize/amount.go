// Package normalize converts broker-specific export fields into canonical
// numeric and temporal values. Every function in this package is pure.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// currencyStripper removes currency symbols, codes and thousands separators
var currencyStripper = strings.NewReplacer(
	"$", "", "€", "", "£", "", "¥", "", "₹", "", "₩", "",
	",", "", "'", "", "_", "", " ", "",
)

// NormalizeAmount converts a broker amount into a decimal.
// nil, blank and "null" are zero. ok is false when the value could not be
// converted; the returned value is then zero and the caller should record a
// warning. It never panics.
func NormalizeAmount(raw interface{}) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case nil:
		return decimal.Zero, true
	case decimal.Decimal:
		return v, true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(v), true
	case float32:
		return NormalizeAmount(float64(v))
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int32:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case json.Number:
		return NormalizeAmountString(v.String())
	case string:
		return NormalizeAmountString(v)
	case bool:
		return decimal.Zero, false
	default:
		return NormalizeAmountString(fmt.Sprint(v))
	}
}

// NormalizeAmountString applies the textual amount rules in order:
// trim, blank/null is zero, a plain decimal (exponent form included) is taken
// as is, parentheses or a trailing '-' mean negative, strip currency symbols
// and thousands separators, drop anything that is not a digit, '.' or a
// leading '-'. A remainder of "", "." or "-" is zero.
func NormalizeAmountString(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "null") {
		return decimal.Zero, true
	}

	if value, err := decimal.NewFromString(s); err == nil {
		if !withinAmountRange(value) {
			return decimal.Zero, false
		}
		return value, true
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = currencyStripper.Replace(s)
	// "$(20.50)" style: the currency sign sits outside the parentheses
	if !negative && strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
	}
	// "100.00-" style accounting negative
	if len(s) > 1 && strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSuffix(s, "-")
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		}
	}

	cleaned := b.String()
	switch cleaned {
	case "", ".", "-", "-.":
		return decimal.Zero, true
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}

	if negative {
		value = value.Abs().Neg()
	}

	return value, true
}

// maxAmountExponent bounds exponent-form input; rescaling 1e2000000000 during
// arithmetic would not finish.
const maxAmountExponent = 64

func withinAmountRange(value decimal.Decimal) bool {
	exp := value.Exponent()
	return exp <= maxAmountExponent && exp >= -maxAmountExponent
}
