package models

import "strings"

// Key identifies a group. Single-level groupings use a one-element key,
// nested groupings list the outer key first.
type Key []string

// String joins the key parts for display and tie-breaking.
func (k Key) String() string {
	return strings.Join(k, " | ")
}

// Last returns the innermost key part.
func (k Key) Last() string {
	if len(k) == 0 {
		return ""
	}
	return k[len(k)-1]
}

// CompareKeys orders keys part by part, shorter keys first on a common prefix.
func CompareKeys(a, b Key) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// AggregateRecord is the reduced value of one group. Which fields are
// meaningful depends on the reducers used to produce it.
type AggregateRecord struct {
	Key           Key      `json:"key"`
	Count         int      `json:"count"`
	Sum           float64  `json:"sum"`
	DistinctCount int      `json:"distinct_count"`
	Mean          *float64 `json:"mean"`
	Quantity      *float64 `json:"quantity"` // nil when no line in the group had a quantity
	Mode          string   `json:"mode,omitempty"`
}

// ProbabilityRecord is the share of a subset's distinct keys within its
// population. Probability is 0 when Denominator is 0.
type ProbabilityRecord struct {
	NumeratorKey   Key     `json:"numerator_key"`
	DenominatorKey Key     `json:"denominator_key"`
	Numerator      int     `json:"numerator"`
	Denominator    int     `json:"denominator"`
	Probability    float64 `json:"probability"`
}

// HistogramBin is the half-open interval [LowerBound, UpperBound).
type HistogramBin struct {
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
	Count      int     `json:"count"`
}
