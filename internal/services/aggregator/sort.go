package aggregator

import (
	"cmp"
	"slices"

	"salesviz/internal/models"
)

// SortByValueDesc orders records by value descending, ties by key
// ascending. The sort is stable and sorts in place.
func SortByValueDesc(records []models.AggregateRecord, value func(models.AggregateRecord) float64) {
	slices.SortStableFunc(records, func(a, b models.AggregateRecord) int {
		if c := cmp.Compare(value(b), value(a)); c != 0 {
			return c
		}
		return models.CompareKeys(a.Key, b.Key)
	})
}

// SortByKeyAsc orders records by key ascending.
func SortByKeyAsc(records []models.AggregateRecord) {
	slices.SortStableFunc(records, func(a, b models.AggregateRecord) int {
		return models.CompareKeys(a.Key, b.Key)
	})
}

// SortSharesDesc orders shares by probability descending, ties by
// numerator key ascending.
func SortSharesDesc(shares []models.ProbabilityRecord) {
	slices.SortStableFunc(shares, func(a, b models.ProbabilityRecord) int {
		if c := cmp.Compare(b.Probability, a.Probability); c != 0 {
			return c
		}
		return models.CompareKeys(a.NumeratorKey, b.NumeratorKey)
	})
}

// SortSharesByKey orders shares by numerator key ascending.
func SortSharesByKey(shares []models.ProbabilityRecord) {
	slices.SortStableFunc(shares, func(a, b models.ProbabilityRecord) int {
		return models.CompareKeys(a.NumeratorKey, b.NumeratorKey)
	})
}

// BySum and ByMean are value accessors for SortByValueDesc.
func BySum(r models.AggregateRecord) float64 { return r.Sum }

func ByMean(r models.AggregateRecord) float64 {
	if r.Mean == nil {
		return 0
	}
	return *r.Mean
}

// Top returns at most n leading records; n <= 0 keeps all.
func Top[S ~[]E, E any](s S, n int) S {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[:n]
}
