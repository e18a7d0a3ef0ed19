// Package coerce turns the loosely typed cells of a sales export into dates
// and numbers. None of its functions return errors: a cell that cannot be
// read yields the zero time, 0 or NaN and the caller decides what to drop.
package coerce

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateOrder resolves the ambiguity of slash dates such as 03/04/2024,
// where both fields are valid months.
type DateOrder int

const (
	// DayFirst tries DD/MM/YYYY before MM/DD/YYYY.
	DayFirst DateOrder = iota
	// MonthFirst tries MM/DD/YYYY before DD/MM/YYYY.
	MonthFirst
)

// ParseDateOrder maps "dmy"/"mdy" to a DateOrder.
func ParseDateOrder(s string) (DateOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dmy", "day-first", "dayfirst":
		return DayFirst, nil
	case "mdy", "month-first", "monthfirst":
		return MonthFirst, nil
	}
	return DayFirst, fmt.Errorf("unknown date order %q (want dmy or mdy)", s)
}

func (o DateOrder) String() string {
	if o == MonthFirst {
		return "mdy"
	}
	return "dmy"
}

// serialThreshold separates spreadsheet serial dates from small numbers.
const serialThreshold = 10000

const (
	unixEpochSerial = 25569 // serial of 1970-01-01
	msPerDay        = 86400000
	middayMs        = 12 * 3600 * 1000
)

const (
	layoutDateTime = "2006-1-2 15:4:5"
	layoutDate     = "2006-1-2"
	layoutDMY      = "2/1/2006"
	layoutMDY      = "1/2/2006"
)

// Parser parses date cells. The zero value is usable: day-first, UTC.
type Parser struct {
	Order    DateOrder
	Location *time.Location
}

// NewParser returns a parser with the given order and location; a nil
// location means UTC.
func NewParser(order DateOrder, loc *time.Location) Parser {
	return Parser{Order: order, Location: loc}
}

func (p Parser) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

func (p Parser) layouts() []string {
	if p.Order == MonthFirst {
		return []string{layoutDateTime, layoutDate, layoutMDY, layoutDMY}
	}
	return []string{layoutDateTime, layoutDate, layoutDMY, layoutMDY}
}

// ParseDate reads a date cell. Numeric cells above 10000 are spreadsheet
// serial days; otherwise the textual layouts are tried in order and the
// first match wins. ok is false for empty or unreadable input.
func (p Parser) ParseDate(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n > serialThreshold && !math.IsInf(n, 0) {
			return FromSerial(n).In(p.location()), true
		}
		return time.Time{}, false
	}

	loc := p.location()
	for _, layout := range p.layouts() {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FromSerial converts a spreadsheet serial day count (epoch 1899-12-30) to
// an instant. Noon UTC is added so that truncating to a calendar date in
// any zone within ±12h keeps the intended day.
func FromSerial(n float64) time.Time {
	ms := int64(math.Round((n-unixEpochSerial)*msPerDay)) + middayMs
	return time.UnixMilli(ms).UTC()
}
