package analyses

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/samber/lo"

	"salesviz/internal/models"
	agg "salesviz/internal/services/aggregator"
	"salesviz/internal/services/binner"
	"salesviz/internal/services/format"
	nz "salesviz/internal/services/normalizer"
)

// purchaseFrequency is Q11: how many customers placed 1, 2, 3... distinct
// orders.
func purchaseFrequency() Analysis {
	return Analysis{
		ID:         "Q11",
		Title:      "Phân phối Lượt mua hàng",
		Kind:       models.KindColumn,
		ValueLabel: "Số khách hàng",
		Unit:       models.UnitCount,
		Needs:      nz.FieldCustomer | nz.FieldOrder,
		Required:   nz.FieldCustomer | nz.FieldOrder,
		compute: func(txs []models.Transaction, opts Options) (*models.ChartResult, error) {
			perCustomer := agg.GroupReduce(txs, agg.Keys(customerOf), agg.DistinctCount(orderOf))
			frequency := func(r models.AggregateRecord) string { return strconv.Itoa(r.DistinctCount) }
			recs := agg.GroupReduce(perCustomer, agg.Keys(frequency), agg.Count[models.AggregateRecord]())
			slices.SortStableFunc(recs, func(a, b models.AggregateRecord) int {
				x, _ := strconv.Atoi(a.Key[0])
				y, _ := strconv.Atoi(b.Key[0])
				return cmp.Compare(x, y)
			})

			rows := lo.Map(recs, func(r models.AggregateRecord, _ int) models.ChartRow {
				return models.ChartRow{
					Label:   r.Key[0],
					Series:  r.Key[0],
					Value:   float64(r.Count),
					Display: format.Int(float64(r.Count)),
					Tooltip: []models.Field{
						field("Số lượt mua", r.Key[0]),
						field("Số khách hàng", format.Int(float64(r.Count))),
					},
				}
			})
			return &models.ChartResult{Aggregates: recs, Rows: rows}, nil
		},
	}
}

// spendDistribution is Q12: a histogram of total spend per customer.
// Customers whose total is negative are counted in Rejected, not binned.
func spendDistribution() Analysis {
	return Analysis{
		ID:         "Q12",
		Title:      "Phân phối Mức chi trả của Khách hàng",
		Kind:       models.KindHistogram,
		ValueLabel: "Số khách hàng",
		Unit:       models.UnitCount,
		Needs:      nz.FieldCustomer | nz.FieldAmount,
		Required:   nz.FieldCustomer,
		compute: func(txs []models.Transaction, opts Options) (*models.ChartResult, error) {
			spend := agg.GroupReduce(txs, agg.Keys(customerOf), agg.Sum(amountOf))
			totals := lo.Map(spend, func(r models.AggregateRecord, _ int) float64 { return r.Sum })

			hist, err := binner.Histogram(totals, opts.BinWidth)
			if err != nil {
				return nil, err
			}

			rows := lo.Map(hist.Bins, func(b models.HistogramBin, _ int) models.ChartRow {
				return models.ChartRow{
					Label:   format.Int(b.LowerBound),
					Value:   float64(b.Count),
					Display: format.Int(float64(b.Count)),
					Tooltip: []models.Field{
						field("Mức chi trả", format.Range(b.LowerBound, b.UpperBound)),
						field("Số khách hàng", format.Int(float64(b.Count))),
					},
				}
			})
			return &models.ChartResult{Bins: hist.Bins, Rows: rows, Rejected: hist.Rejected}, nil
		},
	}
}
