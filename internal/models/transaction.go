package models

import (
	"math"
	"sort"
	"time"
)

// RawRow is a single record of the sales export keyed by header name.
// Values are untouched strings; only the normalizer reads them.
type RawRow map[string]string

// Transaction is one normalized sales line.
type Transaction struct {
	Order     string `json:"order"`
	GroupCode string `json:"group_code"`
	Group     string `json:"group"` // "[code] name"
	ItemCode  string `json:"item_code"`
	Item      string `json:"item"` // "[code] name"
	Customer  string `json:"customer"`

	// Time is the zero value when the date cell was empty or unparseable.
	Time  time.Time `json:"time"`
	Month int       `json:"month"` // 1..12, 0 when Time is unknown
	Hour  int       `json:"hour"`  // 0..23, -1 when Time is unknown

	Amount   float64 `json:"amount"`
	Quantity float64 `json:"quantity"` // NaN when the SL cell is empty
}

// HasDate reports whether the order timestamp was parsed.
func (t *Transaction) HasDate() bool {
	return !t.Time.IsZero()
}

// HasQuantity reports whether a quantity was present.
func (t *Transaction) HasQuantity() bool {
	return !math.IsNaN(t.Quantity)
}

// Day returns the calendar date of the transaction at midnight in the
// timestamp's location, or the zero time.
func (t *Transaction) Day() time.Time {
	if !t.HasDate() {
		return time.Time{}
	}
	y, m, d := t.Time.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Time.Location())
}

// DayKey formats Day as "2006-01-02", or "" when unknown.
func (t *Transaction) DayKey() string {
	if !t.HasDate() {
		return ""
	}
	return t.Time.Format("2006-01-02")
}

// Weekday returns 1 (Monday) .. 7 (Sunday), or 0 when unknown.
func (t *Transaction) Weekday() int {
	if !t.HasDate() {
		return 0
	}
	return (int(t.Time.Weekday())+6)%7 + 1
}

// TransactionSet wraps a slice with the small set of summary helpers the
// dashboard needs.
type TransactionSet struct {
	Transactions []Transaction
}

// NewTransactionSet creates a new TransactionSet from a slice
func NewTransactionSet(transactions []Transaction) *TransactionSet {
	return &TransactionSet{Transactions: transactions}
}

// Len returns the number of transactions
func (ts *TransactionSet) Len() int {
	return len(ts.Transactions)
}

// SumAmount returns the sum of all transaction amounts
func (ts *TransactionSet) SumAmount() float64 {
	var sum float64
	for _, t := range ts.Transactions {
		sum += t.Amount
	}
	return sum
}

// SumQuantity returns the sum of known quantities.
func (ts *TransactionSet) SumQuantity() float64 {
	var sum float64
	for _, t := range ts.Transactions {
		if t.HasQuantity() {
			sum += t.Quantity
		}
	}
	return sum
}

// CountNegative returns how many lines carry a negative amount.
func (ts *TransactionSet) CountNegative() int {
	n := 0
	for _, t := range ts.Transactions {
		if t.Amount < 0 {
			n++
		}
	}
	return n
}

// CountUndated returns how many lines have no usable order time.
func (ts *TransactionSet) CountUndated() int {
	n := 0
	for _, t := range ts.Transactions {
		if !t.HasDate() {
			n++
		}
	}
	return n
}

// RevenueByMonth sums amounts per "2006-01" month of dated lines.
func (ts *TransactionSet) RevenueByMonth() map[string]float64 {
	out := make(map[string]float64)
	for _, t := range ts.Transactions {
		if t.HasDate() {
			out[t.Time.Format("2006-01")] += t.Amount
		}
	}
	return out
}

// DistinctOrders returns the number of unique non-empty order codes.
func (ts *TransactionSet) DistinctOrders() int {
	return ts.distinct(func(t Transaction) string { return t.Order })
}

// DistinctCustomers returns the number of unique non-empty customer codes.
func (ts *TransactionSet) DistinctCustomers() int {
	return ts.distinct(func(t Transaction) string { return t.Customer })
}

func (ts *TransactionSet) distinct(field func(Transaction) string) int {
	seen := make(map[string]struct{})
	for _, t := range ts.Transactions {
		if v := field(t); v != "" {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

// MinDate returns the earliest known transaction time
func (ts *TransactionSet) MinDate() time.Time {
	var minDate time.Time
	for _, t := range ts.Transactions {
		if !t.HasDate() {
			continue
		}
		if minDate.IsZero() || t.Time.Before(minDate) {
			minDate = t.Time
		}
	}
	return minDate
}

// MaxDate returns the latest known transaction time
func (ts *TransactionSet) MaxDate() time.Time {
	var maxDate time.Time
	for _, t := range ts.Transactions {
		if t.HasDate() && t.Time.After(maxDate) {
			maxDate = t.Time
		}
	}
	return maxDate
}

// Groups returns a sorted list of unique group labels
func (ts *TransactionSet) Groups() []string {
	set := make(map[string]bool)
	for _, t := range ts.Transactions {
		if t.Group != "" {
			set[t.Group] = true
		}
	}

	groups := make([]string, 0, len(set))
	for g := range set {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}
