package analyses

import (
	"slices"
	"strconv"

	"github.com/samber/lo"

	"salesviz/internal/models"
	agg "salesviz/internal/services/aggregator"
	"salesviz/internal/services/format"
	nz "salesviz/internal/services/normalizer"
)

func shareTooltip(s models.ProbabilityRecord, extra ...models.Field) []models.Field {
	return append(extra,
		field("Số đơn", format.Int(float64(s.Numerator))),
		field("Tổng đơn", format.Int(float64(s.Denominator))),
		field("Xác suất", format.Percent(s.Probability)),
	)
}

// groupShare is Q7: the share of all orders that contain each group.
func groupShare() Analysis {
	return Analysis{
		ID:         "Q7",
		Title:      "Xác suất bán hàng theo Nhóm hàng",
		Kind:       models.KindHorizontalBar,
		ValueLabel: "Xác suất bán",
		Unit:       models.UnitShare,
		Needs:      nz.FieldOrder | nz.FieldGroup,
		Required:   nz.FieldOrder,
		compute: func(txs []models.Transaction, opts Options) (*models.ChartResult, error) {
			shares := agg.Share(txs, nil, agg.Keys(groupOf), orderOf)
			agg.SortSharesDesc(shares)

			rows := lo.Map(shares, func(s models.ProbabilityRecord, _ int) models.ChartRow {
				g := s.NumeratorKey.Last()
				return models.ChartRow{
					Label:   g,
					Series:  g,
					Value:   s.Probability,
					Display: format.Percent(s.Probability),
					Tooltip: shareTooltip(s, field("Nhóm hàng", g)),
				}
			})
			return &models.ChartResult{Shares: shares, Rows: rows}, nil
		},
	}
}

// groupShareByMonth is Q8: for every group and month, the share of that
// month's orders containing the group. Every group gets all twelve months.
func groupShareByMonth() Analysis {
	return Analysis{
		ID:         "Q8",
		Title:      "Xác suất bán hàng của Nhóm hàng theo Tháng",
		Kind:       models.KindLine,
		ValueLabel: "Xác suất bán",
		Unit:       models.UnitShare,
		Needs:      nz.FieldOrder | nz.FieldGroup | nz.FieldDate,
		Required:   nz.FieldOrder | nz.FieldGroup | nz.FieldDate,
		compute: func(txs []models.Transaction, opts Options) (*models.ChartResult, error) {
			sparse := agg.Share(txs, agg.Keys(monthOf), agg.Keys(groupOf), orderOf)

			denominators := make(map[string]int)
			byKey := make(map[string]models.ProbabilityRecord, len(sparse))
			for _, s := range sparse {
				denominators[s.DenominatorKey[0]] = s.Denominator
				byKey[s.NumeratorKey.String()] = s
			}

			groups := lo.Uniq(lo.Map(sparse, func(s models.ProbabilityRecord, _ int) string { return s.NumeratorKey[1] }))
			slices.Sort(groups)

			var shares []models.ProbabilityRecord
			var rows []models.ChartRow
			for _, g := range groups {
				for m := 1; m <= 12; m++ {
					month := pad2(m)
					key := models.Key{month, g}
					s, ok := byKey[key.String()]
					if !ok {
						s = agg.NewProbability(key, models.Key{month}, 0, denominators[month])
					}
					shares = append(shares, s)
					rows = append(rows, models.ChartRow{
						Label:   strconv.Itoa(m),
						Series:  g,
						Value:   s.Probability,
						Display: format.Percent(s.Probability),
						Tooltip: shareTooltip(s, field("Nhóm hàng", g), field("Tháng", format.Month(m))),
					})
				}
			}
			return &models.ChartResult{Shares: shares, Rows: rows}, nil
		},
	}
}

// itemShareByGroup is Q9: within each group, the share of the group's
// orders that contain each item. One small multiple per group.
func itemShareByGroup() Analysis {
	return Analysis{
		ID:         "Q9",
		Title:      "Xác suất bán hàng của Mặt hàng theo Nhóm hàng",
		Kind:       models.KindSmallMultiple,
		ValueLabel: "Xác suất bán / Nhóm hàng",
		Unit:       models.UnitShare,
		Needs:      nz.FieldOrder | nz.FieldItem | nz.FieldGroup,
		Required:   nz.FieldOrder | nz.FieldItem | nz.FieldGroup,
		compute: func(txs []models.Transaction, opts Options) (*models.ChartResult, error) {
			shares := agg.Share(txs, agg.Keys(groupOf), agg.Keys(itemOf), orderOf)
			agg.SortSharesDesc(shares)
			slices.SortStableFunc(shares, func(a, b models.ProbabilityRecord) int {
				return models.CompareKeys(a.DenominatorKey, b.DenominatorKey)
			})

			rows := lo.Map(shares, func(s models.ProbabilityRecord, _ int) models.ChartRow {
				g, item := s.NumeratorKey[0], s.NumeratorKey[1]
				return models.ChartRow{
					Label:   item,
					Series:  item,
					Subplot: g,
					Value:   s.Probability,
					Display: format.Percent(s.Probability),
					Tooltip: shareTooltip(s, field("Nhóm hàng", g), field("Mặt hàng", item)),
				}
			})
			return &models.ChartResult{Shares: shares, Rows: rows}, nil
		},
	}
}

// itemShareByGroupMonth is Q10: within each group and month, the share of
// that group-month's orders containing each item.
func itemShareByGroupMonth() Analysis {
	return Analysis{
		ID:         "Q10",
		Title:      "Xác suất bán hàng của Mặt hàng theo Nhóm hàng và Tháng",
		Kind:       models.KindSmallMultiple,
		ValueLabel: "Xác suất bán / Nhóm hàng",
		Unit:       models.UnitShare,
		Needs:      nz.FieldOrder | nz.FieldItem | nz.FieldGroup | nz.FieldDate,
		Required:   nz.FieldOrder | nz.FieldItem | nz.FieldGroup | nz.FieldDate,
		compute: func(txs []models.Transaction, opts Options) (*models.ChartResult, error) {
			shares := agg.Share(txs, agg.Keys(groupOf, monthOf), agg.Keys(itemOf), orderOf)
			agg.SortSharesByKey(shares)

			rows := lo.Map(shares, func(s models.ProbabilityRecord, _ int) models.ChartRow {
				g, month, item := s.NumeratorKey[0], s.NumeratorKey[1], s.NumeratorKey[2]
				return models.ChartRow{
					Label:   "T" + month,
					Series:  item,
					Subplot: g,
					Value:   s.Probability,
					Display: format.Percent(s.Probability),
					Tooltip: shareTooltip(s, field("Nhóm hàng", g), field("Mặt hàng", item), field("Tháng", "T"+month)),
				}
			})
			return &models.ChartResult{Shares: shares, Rows: rows}, nil
		},
	}
}
