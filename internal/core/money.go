// Package core provides money parsing and handling utilities.
//
// All money is carried as integer cents. Decimal inputs are rounded to the
// nearest cent half away from zero (half-up for the non-negative amounts the
// domain deals with) and every sum is checked against MaxSafeCents.
package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// MaxSafeCents is the largest magnitude a cents value may take. It matches the
// largest integer a float64 represents exactly, so totals survive JSON clients.
const MaxSafeCents int64 = 1<<53 - 1

var (
	maxSafeDecimal = decimal.NewFromInt(MaxSafeCents)
	minSafeDecimal = decimal.NewFromInt(-MaxSafeCents)
)

// ToCents converts a non-negative decimal amount to integer cents.
//
// Examples:
//
//	ToCents(12.34)  -> 1234
//	ToCents(12.345) -> 1235 (half-up)
//	ToCents(-1)     -> ErrInvalidAmount
func ToCents(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, amount.String())
	}
	return ToSignedCents(amount)
}

// ToSignedCents is ToCents without the sign restriction.
func ToSignedCents(amount decimal.Decimal) (int64, error) {
	cents := amount.Shift(2).Round(0)
	if cents.GreaterThan(maxSafeDecimal) || cents.LessThan(minSafeDecimal) {
		return 0, fmt.Errorf("%w: %s exceeds safe range", ErrArithmeticOverflow, amount.String())
	}
	return cents.IntPart(), nil
}

// FloatToCents converts a float amount (as decoded from loosely typed input)
// to cents. NaN, infinities and negative values are rejected.
func FloatToCents(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: not finite", ErrInvalidAmount)
	}
	return ToCents(decimal.NewFromFloat(f))
}

// SafeAdd returns a+b or ErrArithmeticOverflow when the result leaves the safe range.
func SafeAdd(a, b int64) (int64, error) {
	if !inSafeRange(a) || !inSafeRange(b) {
		return 0, fmt.Errorf("%w: operand outside safe range", ErrArithmeticOverflow)
	}
	// Both operands fit in 54 bits, so the int64 sum cannot wrap.
	sum := a + b
	if !inSafeRange(sum) {
		return 0, fmt.Errorf("%w: %d + %d", ErrArithmeticOverflow, a, b)
	}
	return sum, nil
}

// SafeSub returns a-b with the same guarantees as SafeAdd.
func SafeSub(a, b int64) (int64, error) {
	if !inSafeRange(b) {
		return 0, fmt.Errorf("%w: operand outside safe range", ErrArithmeticOverflow)
	}
	return SafeAdd(a, -b)
}

// SafeMul returns cents*n, failing when the product leaves the safe range.
func SafeMul(cents int64, n int64) (int64, error) {
	if !inSafeRange(cents) || !inSafeRange(n) {
		return 0, fmt.Errorf("%w: operand outside safe range", ErrArithmeticOverflow)
	}
	if cents == 0 || n == 0 {
		return 0, nil
	}
	if abs(cents) > MaxSafeCents/abs(n) {
		return 0, fmt.Errorf("%w: %d * %d", ErrArithmeticOverflow, cents, n)
	}
	return cents * n, nil
}

func inSafeRange(v int64) bool {
	return v <= MaxSafeCents && v >= -MaxSafeCents
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// FormatCurrencyFromCents renders cents in US dollars, e.g. -35000 -> "-$350.00".
func FormatCurrencyFromCents(cents int64) string {
	return FormatCurrencyFromCentsIn(cents, "USD")
}

var currencySymbols = map[string]string{
	"USD": "$",
	"AUD": "A$",
	"CAD": "C$",
	"NZD": "NZ$",
	"EUR": "€",
	"GBP": "£",
}

// FormatCurrencyFromCentsIn renders cents with the symbol for the given ISO
// currency code. Unknown codes are used verbatim as a prefix ("CHF 12.00").
func FormatCurrencyFromCentsIn(cents int64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	symbol, ok := currencySymbols[code]
	if !ok {
		if code == "" {
			symbol = "$"
		} else {
			symbol = code + " "
		}
	}

	neg := cents < 0
	// Negate in uint64 so math.MinInt64 does not overflow.
	u := uint64(cents)
	if neg {
		u = -u
	}
	units := u / 100
	rem := u % 100

	s := symbol + groupThousands(strconv.FormatUint(units, 10)) + "." + fmt.Sprintf("%02d", rem)
	if neg {
		return "-" + s
	}
	return s
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Thousands separators are not
// accepted. Returns ErrInvalidAmount for invalid formats, negative values, or zero.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil
func ParseDecimalToCents(s string) (int64, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return 0, err
	}
	cents, err := ToCents(d)
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseDecimal parses user input into a non-negative decimal.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if intPart == "" {
		intPart = "0"
	}
	s = intPart
	if fracPart != "" {
		s += "." + fracPart
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return d, nil
}

// Money is an amount in integer cents.
type Money struct {
	Cents int64 `json:"cents"`
}

// Validate rejects zero and negative amounts.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// String implements fmt.Stringer.
func (m Money) String() string {
	return FormatCurrencyFromCents(m.Cents)
}

// Dollars returns the value as a float64 for charts and other display purposes.
// Use cents for calculations.
func (m Money) Dollars() float64 {
	return float64(m.Cents) / 100.0
}
