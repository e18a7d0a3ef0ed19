package coerce

import (
	"math"
	"strconv"
	"strings"
)

// keep returns s with every rune outside allowed removed.
func keep(s string, allowed func(r rune) bool) string {
	return strings.Map(func(r rune) rune {
		if allowed(r) {
			return r
		}
		return -1
	}, s)
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isNumeric(r rune) bool { return isDigit(r) || r == '.' || r == '-' }

// ParseMoney strips everything but digits, '.' and '-' and parses what is
// left. Unreadable or non-finite results are 0, never an error.
//
// Dots are not treated as thousands separators: "1.234.567 VND" strips to
// "1.234.567", which is not a number, so it parses as 0.
func ParseMoney(s string) float64 {
	stripped := keep(s, isNumeric)
	if stripped == "" {
		return 0
	}
	v, err := strconv.ParseFloat(stripped, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ParseQuantity parses a quantity cell. When both '.' and ',' occur the
// dot is a thousands separator and the first comma the decimal point
// ("1.234,5" is 1234.5). Otherwise all separators are dropped and the
// digits read as an integer ("1,234" and "1.234" are both 1234).
// Empty or unreadable input is NaN.
func ParseQuantity(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}

	var cleaned string
	if strings.Contains(s, ".") && strings.Contains(s, ",") {
		cleaned = strings.ReplaceAll(s, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
		cleaned = keep(cleaned, isNumeric)
	} else {
		cleaned = keep(s, func(r rune) bool { return isDigit(r) || r == '-' })
	}

	if cleaned == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}
