// Package format renders numbers for chart labels and tooltips.
package format

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer groups thousands with commas, as the source sheets do.
var printer = message.NewPrinter(language.English)

func fixed(v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	scale := math.Pow(10, float64(decimals))
	v = math.Round(v*scale) / scale
	if v == 0 {
		v = 0 // drop negative zero
	}
	return printer.Sprintf("%."+strconv.Itoa(decimals)+"f", v)
}

// Int formats v rounded to a whole number: 1528 -> "1,528".
func Int(v float64) string {
	return fixed(v, 0)
}

// VND formats a full amount: "1,234,567 VND".
func VND(v float64) string {
	return fixed(v, 0) + " VND"
}

// Millions formats an amount in millions of VND: "12 triệu VND".
func Millions(v float64) string {
	return fixed(v/1e6, 0) + " triệu VND"
}

// MillionsOne formats an amount in millions of VND with one decimal:
// "12.4 triệu VND".
func MillionsOne(v float64) string {
	return fixed(v/1e6, 1) + " triệu VND"
}

// MillionsShort formats an axis tick in millions with one decimal: "1.5M".
func MillionsShort(v float64) string {
	return fixed(v/1e6, 1) + "M"
}

// Percent formats a ratio in [0,1] with one decimal: 0.1234 -> "12.3%".
func Percent(p float64) string {
	return fixed(p*100, 1) + "%"
}

// PercentTick formats a ratio as a whole percent for axis ticks.
func PercentTick(p float64) string {
	return fixed(p*100, 0) + "%"
}

// HourRange labels an hour bucket: 9 -> "09:00-09:59".
func HourRange(h int) string {
	return printer.Sprintf("%02d:00-%02d:59", h, h)
}

// Range labels a histogram bin as "lower - upper".
func Range(lower, upper float64) string {
	return Int(lower) + " - " + Int(upper)
}

var weekdays = []string{"", "Thứ Hai", "Thứ Ba", "Thứ Tư", "Thứ Năm", "Thứ Sáu", "Thứ Bảy", "Chủ Nhật"}

// Weekday names 1 (Monday) .. 7 (Sunday) in Vietnamese.
func Weekday(d int) string {
	if d < 1 || d >= len(weekdays) {
		return ""
	}
	return weekdays[d]
}

// Month labels month m as "Tháng 03".
func Month(m int) string {
	return printer.Sprintf("Tháng %02d", m)
}

// Truncate shortens s to n runes with an ellipsis, for long item names on
// axis labels.
func Truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if n <= 0 || len(r) <= n {
		return string(r)
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
