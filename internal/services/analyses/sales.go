package analyses

import (
	"strconv"

	"github.com/samber/lo"

	"salesviz/internal/models"
	agg "salesviz/internal/services/aggregator"
	"salesviz/internal/services/format"
	nz "salesviz/internal/services/normalizer"
)

func amountOf(t models.Transaction) float64 { return t.Amount }
func quantityOf(t models.Transaction) float64 { return t.Quantity }
func itemOf(t models.Transaction) string { return t.Item }
func groupOf(t models.Transaction) string { return t.Group }
func orderOf(t models.Transaction) string { return t.Order }
func customerOf(t models.Transaction) string { return t.Customer }
func dayOf(t models.Transaction) string { return t.DayKey() }
func monthOf(t models.Transaction) string { return pad2(t.Month) }
func hourOf(t models.Transaction) string { return pad2(t.Hour) }
func weekdayOf(t models.Transaction) string { return strconv.Itoa(t.Weekday()) }
func dayOfMonthOf(t models.Transaction) string {
	return pad2(t.Time.Day())
}

func firstKey(r models.AggregateRecord) string { return r.Key[0] }

func quantityOrZero(r models.AggregateRecord) float64 {
	if r.Quantity == nil {
		return 0
	}
	return *r.Quantity
}

func quantityText(q *float64) string {
	if q == nil {
		return "-"
	}
	return format.Int(*q)
}

func meanOf(r models.AggregateRecord) float64 {
	return agg.ByMean(r)
}

// salesByItem is Q1: revenue per item, ranked, coloured by its most
// common group.
func salesByItem() Analysis {
	return Analysis{
		ID:         "Q1",
		Title:      "Doanh số bán hàng theo Mặt hàng",
		Kind:       models.KindHorizontalBar,
		ValueLabel: "Doanh số (triệu VND)",
		Unit:       models.UnitMoney,
		Needs:      nz.FieldItem | nz.FieldGroup | nz.FieldAmount,
		Required:   nz.FieldItemCode | nz.FieldItem | nz.FieldGroup,
		compute: func(txs []models.Transaction, opts Options) (*models.ChartResult, error) {
			recs := agg.GroupReduce(txs, agg.Keys(itemOf),
				agg.Sum(amountOf), agg.SumQuantity(quantityOf), agg.Mode(groupOf), agg.Count[models.Transaction]())
			agg.SortByValueDesc(recs, agg.BySum)
			recs = agg.Top(recs, opts.TopN)

			rows := lo.Map(recs, func(r models.AggregateRecord, _ int) models.ChartRow {
				return models.ChartRow{
					Label:   r.Key.Last(),
					Series:  r.Mode,
					Value:   r.Sum,
					Display: format.Millions(r.Sum),
					Tooltip: []models.Field{
						field("Mặt hàng", r.Key.Last()),
						field("Nhóm hàng", r.Mode),
						field("Doanh số", format.VND(r.Sum)),
						field("Số lượng", quantityText(r.Quantity)),
					},
				}
			})
			return &models.ChartResult{Aggregates: recs, Rows: rows}, nil
		},
	}
}

// salesByGroup is Q2: revenue per product group, ranked.
func salesByGroup() Analysis {
	return Analysis{
		ID:         "Q2",
		Title:      "Doanh số bán hàng theo Nhóm hàng",
		Kind:       models.KindHorizontalBar,
		ValueLabel: "Doanh số (triệu VND)",
		Unit:       models.UnitMoney,
		Needs:      nz.FieldGroup | nz.FieldAmount,
		Required:   nz.FieldGroupCode | nz.FieldGroup,
		compute: func(txs []models.Transaction, opts Options) (*models.ChartResult, error) {
			recs := agg.GroupReduce(txs, agg.Keys(groupOf), agg.Sum(amountOf), agg.SumQuantity(quantityOf))
			agg.SortByValueDesc(recs, agg.BySum)

			rows := lo.Map(recs, func(r models.AggregateRecord, _ int) models.ChartRow {
				return models.ChartRow{
					Label:   r.Key.Last(),
					Series:  r.Key.Last(),
					Value:   r.Sum,
					Display: format.Millions(r.Sum),
					Tooltip: []models.Field{
						field("Nhóm hàng", r.Key.Last()),
						field("Doanh số", format.VND(r.Sum)),
						field("Số lượng", quantityText(r.Quantity)),
					},
				}
			})
			return &models.ChartResult{Aggregates: recs, Rows: rows}, nil
		},
	}
}

// salesByMonth is Q3: revenue per calendar month. Only positive amounts
// count; refunds and zero lines are left out.
func salesByMonth() Analysis {
	return Analysis{
		ID:         "Q3",
		Title:      "Doanh số bán hàng theo Tháng",
		Kind:       models.KindColumn,
		ValueLabel: "Doanh số (triệu VND)",
		Unit:       models.UnitMoney,
		Needs:      nz.FieldDate | nz.FieldAmount,
		Required:   nz.FieldDate | nz.FieldAmount,
		Keep:       func(t models.Transaction) bool { return t.Amount > 0 },
		compute: func(txs []models.Transaction, opts Options) (*models.ChartResult, error) {
			recs := agg.GroupReduce(txs, agg.Keys(monthOf),
				agg.Sum(amountOf), agg.SumQuantity(quantityOf), agg.DistinctCount(orderOf))
			agg.SortByKeyAsc(recs)

			rows := lo.Map(recs, func(r models.AggregateRecord, _ int) models.ChartRow {
				m, _ := strconv.Atoi(r.Key.Last())
				return models.ChartRow{
					Label:   format.Month(m),
					Series:  format.Month(m),
					Value:   r.Sum,
					Display: format.Millions(r.Sum),
					Tooltip: []models.Field{
						field("Tháng", format.Month(m)),
						field("Doanh số", format.VND(r.Sum)),
						field("Số đơn", format.Int(float64(r.DistinctCount))),
						field("Số lượng", quantityText(r.Quantity)),
					},
				}
			})
			return &models.ChartResult{Aggregates: recs, Rows: rows}, nil
		},
	}
}

// dailyMeans totals each calendar day under its bucket key and averages the
// daily totals per bucket. buckets lists every bucket to emit, in order;
// empty buckets get a zero mean and no quantity.
func dailyMeans(txs []models.Transaction, bucket agg.KeyFunc[models.Transaction], buckets []string) []models.AggregateRecord {
	daily := agg.GroupReduce(txs, agg.Keys(bucket, dayOf), agg.Sum(amountOf), agg.SumQuantity(quantityOf))
	means := agg.GroupReduce(daily, agg.Keys(firstKey),
		agg.Mean(agg.BySum), agg.MeanQuantity(quantityOrZero), agg.Count[models.AggregateRecord](), agg.Sum(agg.BySum))

	byKey := lo.KeyBy(means, firstKey)
	out := make([]models.AggregateRecord, 0, len(buckets))
	for _, b := range buckets {
		if r, ok := byKey[b]; ok {
			out = append(out, r)
			continue
		}
		zero := 0.0
		out = append(out, models.AggregateRecord{Key: models.Key{b}, Mean: &zero})
	}
	return out
}

func meanRow(r models.AggregateRecord, label, bucketName string) models.ChartRow {
	return models.ChartRow{
		Label:   label,
		Series:  label,
		Value:   meanOf(r),
		Display: format.MillionsOne(meanOf(r)),
		Tooltip: []models.Field{
			field(bucketName, label),
			field("Doanh số TB", format.VND(meanOf(r))),
			field("SL TB", quantityText(r.Quantity)),
			field("Số ngày", format.Int(float64(r.Count))),
		},
	}
}

// salesByWeekday is Q4: mean daily revenue for each weekday, Monday first.
func salesByWeekday() Analysis {
	return Analysis{
		ID:         "Q4",
		Title:      "Doanh số bán hàng trung bình theo Ngày trong tuần",
		Kind:       models.KindColumn,
		ValueLabel: "Doanh số TB (triệu VND)",
		Unit:       models.UnitMoney,
		Needs:      nz.FieldDate | nz.FieldAmount,
		Required:   nz.FieldDate,
		compute: func(txs []models.Transaction, opts Options) (*models.ChartResult, error) {
			buckets := lo.Map(lo.RangeFrom(1, 7), func(d int, _ int) string { return strconv.Itoa(d) })
			recs := dailyMeans(txs, weekdayOf, buckets)

			rows := lo.Map(recs, func(r models.AggregateRecord, i int) models.ChartRow {
				return meanRow(r, format.Weekday(i+1), "Thứ")
			})
			return &models.ChartResult{Aggregates: recs, Rows: rows}, nil
		},
	}
}

// salesByDayOfMonth is Q5: mean daily revenue for each day 1..31.
func salesByDayOfMonth() Analysis {
	return Analysis{
		ID:         "Q5",
		Title:      "Doanh số bán hàng trung bình theo Ngày trong tháng",
		Kind:       models.KindColumn,
		ValueLabel: "Doanh số TB (triệu VND)",
		Unit:       models.UnitMoney,
		Needs:      nz.FieldDate | nz.FieldAmount,
		Required:   nz.FieldDate,
		compute: func(txs []models.Transaction, opts Options) (*models.ChartResult, error) {
			buckets := lo.Map(lo.RangeFrom(1, 31), func(d int, _ int) string { return pad2(d) })
			recs := dailyMeans(txs, dayOfMonthOf, buckets)

			rows := lo.Map(recs, func(r models.AggregateRecord, i int) models.ChartRow {
				return meanRow(r, "Ngày "+pad2(i+1), "Ngày")
			})
			return &models.ChartResult{Aggregates: recs, Rows: rows}, nil
		},
	}
}

// salesByHour is Q6: mean daily revenue per hour of day together with the
// total quantity sold in that hour. Hours without sales are omitted.
func salesByHour() Analysis {
	return Analysis{
		ID:         "Q6",
		Title:      "Doanh số bán hàng trung bình theo Khung giờ",
		Kind:       models.KindColumn,
		ValueLabel: "Doanh số TB (triệu VND)",
		Unit:       models.UnitMoney,
		Needs:      nz.FieldDate | nz.FieldAmount,
		Required:   nz.FieldDate,
		compute: func(txs []models.Transaction, opts Options) (*models.ChartResult, error) {
			buckets := lo.Map(lo.Range(24), func(h int, _ int) string { return pad2(h) })
			means := dailyMeans(txs, hourOf, buckets)
			totals := lo.KeyBy(agg.GroupReduce(txs, agg.Keys(hourOf), agg.SumQuantity(quantityOf)), firstKey)

			var recs []models.AggregateRecord
			var rows []models.ChartRow
			for h, r := range means {
				// quantity here is the hourly total, not the daily mean
				r.Quantity = totals[r.Key[0]].Quantity
				if meanOf(r) <= 0 && quantityOrZero(r) <= 0 {
					continue
				}
				recs = append(recs, r)
				rows = append(rows, models.ChartRow{
					Label:   format.HourRange(h),
					Series:  pad2(h),
					Value:   meanOf(r),
					Display: format.Millions(meanOf(r)),
					Tooltip: []models.Field{
						field("Khung giờ", format.HourRange(h)),
						field("Doanh số TB", format.VND(meanOf(r))),
						field("Tổng SL", quantityText(r.Quantity)),
					},
				})
			}
			return &models.ChartResult{Aggregates: recs, Rows: rows}, nil
		},
	}
}
