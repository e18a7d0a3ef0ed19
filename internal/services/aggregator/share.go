package aggregator

import (
	"strings"

	"salesviz/internal/models"
)

// Share computes, for every (population, subset) pair present in records,
// the distinct count of distinctKey within the pair over the distinct
// count within the population alone.
//
// The denominator counts every record of the population. A record whose
// subset key has an empty part contributes to its population's denominator
// but produces no numerator of its own. Empty distinct keys are ignored.
// Output is in first-seen order of the (population, subset) pair.
func Share[T any](records []T, population, subset []KeyFunc[T], distinctKey KeyFunc[T]) []models.ProbabilityRecord {
	type bucket struct {
		popKey  models.Key
		fullKey models.Key
		popID   string
		values  map[string]struct{}
	}

	denominators := make(map[string]map[string]struct{})
	index := make(map[string]int)
	var buckets []*bucket

	for _, r := range records {
		popKey := keyOf(r, population)
		popID := strings.Join(popKey, keySep)
		v := distinctKey(r)

		if _, ok := denominators[popID]; !ok {
			denominators[popID] = make(map[string]struct{})
		}
		if v != "" {
			denominators[popID][v] = struct{}{}
		}

		subKey := keyOf(r, subset)
		if hasEmpty(subKey) {
			continue
		}

		fullKey := append(append(models.Key(nil), popKey...), subKey...)
		id := strings.Join(fullKey, keySep)
		pos, ok := index[id]
		if !ok {
			pos = len(buckets)
			index[id] = pos
			buckets = append(buckets, &bucket{
				popKey:  popKey,
				fullKey: fullKey,
				popID:   popID,
				values:  make(map[string]struct{}),
			})
		}
		if v != "" {
			buckets[pos].values[v] = struct{}{}
		}
	}

	out := make([]models.ProbabilityRecord, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, NewProbability(b.fullKey, b.popKey, len(b.values), len(denominators[b.popID])))
	}
	return out
}

// NewProbability builds a record with Probability = num/den, or 0 when den
// is 0.
func NewProbability(numKey, denKey models.Key, num, den int) models.ProbabilityRecord {
	p := 0.0
	if den > 0 {
		p = float64(num) / float64(den)
	}
	return models.ProbabilityRecord{
		NumeratorKey:   numKey,
		DenominatorKey: denKey,
		Numerator:      num,
		Denominator:    den,
		Probability:    p,
	}
}

func keyOf[T any](r T, keys []KeyFunc[T]) models.Key {
	k := make(models.Key, len(keys))
	for i, f := range keys {
		k[i] = f(r)
	}
	return k
}

func hasEmpty(k models.Key) bool {
	for _, p := range k {
		if p == "" {
			return true
		}
	}
	return false
}
