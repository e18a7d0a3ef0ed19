// Package aggregator groups records by one or more keys and reduces each
// group to an AggregateRecord. It is order-agnostic: groups come out in the
// order their key was first seen and callers sort with the helpers in
// sort.go.
package aggregator

import (
	"math"
	"strings"

	"salesviz/internal/models"
)

// KeyFunc extracts one grouping key from a record.
type KeyFunc[T any] func(T) string

// ValueFunc extracts a numeric value from a record.
type ValueFunc[T any] func(T) float64

// Reducer folds the records of one group into rec.
type Reducer[T any] func(group []T, rec *models.AggregateRecord)

// keySep cannot appear in a trimmed cell value.
const keySep = "\x00"

// Group is a bucket of records sharing a key.
type Group[T any] struct {
	Key     models.Key
	Records []T
}

// GroupBy buckets records by the tuple of keys, in first-seen order.
func GroupBy[T any](records []T, keys ...KeyFunc[T]) []Group[T] {
	index := make(map[string]int)
	var groups []Group[T]

	parts := make([]string, len(keys))
	for _, r := range records {
		for i, k := range keys {
			parts[i] = k(r)
		}
		id := strings.Join(parts, keySep)
		pos, ok := index[id]
		if !ok {
			pos = len(groups)
			index[id] = pos
			groups = append(groups, Group[T]{Key: append(models.Key(nil), parts...)})
		}
		groups[pos].Records = append(groups[pos].Records, r)
	}
	return groups
}

// GroupReduce groups records by keys and applies every reducer to each
// group. With no keys all records fall into one group with an empty key.
func GroupReduce[T any](records []T, keys []KeyFunc[T], reducers ...Reducer[T]) []models.AggregateRecord {
	groups := GroupBy(records, keys...)
	out := make([]models.AggregateRecord, 0, len(groups))
	for _, g := range groups {
		rec := models.AggregateRecord{Key: g.Key}
		for _, reduce := range reducers {
			reduce(g.Records, &rec)
		}
		out = append(out, rec)
	}
	return out
}

// Keys is a convenience for building a key slice inline.
func Keys[T any](keys ...KeyFunc[T]) []KeyFunc[T] {
	return keys
}

// Sum adds field over the group into Sum.
func Sum[T any](field ValueFunc[T]) Reducer[T] {
	return func(group []T, rec *models.AggregateRecord) {
		var s float64
		for _, r := range group {
			s += field(r)
		}
		rec.Sum = s
	}
}

// Count stores the number of records in Count.
func Count[T any]() Reducer[T] {
	return func(group []T, rec *models.AggregateRecord) {
		rec.Count = len(group)
	}
}

// DistinctCount stores the number of distinct non-empty values of field.
func DistinctCount[T any](field KeyFunc[T]) Reducer[T] {
	return func(group []T, rec *models.AggregateRecord) {
		rec.DistinctCount = distinct(group, field)
	}
}

func distinct[T any](group []T, field KeyFunc[T]) int {
	seen := make(map[string]struct{}, len(group))
	for _, r := range group {
		if v := field(r); v != "" {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

// Mean stores the arithmetic mean of field, or nil for an empty group.
func Mean[T any](field ValueFunc[T]) Reducer[T] {
	return func(group []T, rec *models.AggregateRecord) {
		rec.Mean = mean(group, field)
	}
}

func mean[T any](group []T, field ValueFunc[T]) *float64 {
	if len(group) == 0 {
		return nil
	}
	var s float64
	for _, r := range group {
		s += field(r)
	}
	m := s / float64(len(group))
	return &m
}

// SumQuantity adds the non-NaN values of field into Quantity. Quantity
// stays nil when every value is NaN.
func SumQuantity[T any](field ValueFunc[T]) Reducer[T] {
	return func(group []T, rec *models.AggregateRecord) {
		var s float64
		found := false
		for _, r := range group {
			if v := field(r); !math.IsNaN(v) {
				s += v
				found = true
			}
		}
		if found {
			rec.Quantity = &s
		}
	}
}

// MeanQuantity stores the mean of field in Quantity.
func MeanQuantity[T any](field ValueFunc[T]) Reducer[T] {
	return func(group []T, rec *models.AggregateRecord) {
		rec.Quantity = mean(group, field)
	}
}

// Mode stores the most frequent non-empty value of field. Ties go to the
// value seen first.
func Mode[T any](field KeyFunc[T]) Reducer[T] {
	return func(group []T, rec *models.AggregateRecord) {
		counts := make(map[string]int)
		var order []string
		for _, r := range group {
			v := field(r)
			if v == "" {
				continue
			}
			if counts[v] == 0 {
				order = append(order, v)
			}
			counts[v]++
		}
		best, bestN := "", 0
		for _, v := range order {
			if counts[v] > bestN {
				best, bestN = v, counts[v]
			}
		}
		rec.Mode = best
	}
}
