package metrics

import (
	"math"
	"sort"

	"salesviz/internal/models"
	"salesviz/internal/services/normalizer"
)

// trendMonths is how many trailing months Summarize reports.
const trendMonths = 6

// Service provides metric calculation functionality
type Service struct {
	spec normalizer.FieldSpec
}

// New creates a metrics service that reads rows with the given columns
// and date parser.
func New(spec normalizer.FieldSpec) *Service {
	spec.Required = 0
	spec.Keep = nil
	return &Service{spec: spec}
}

// Summarize computes the headline numbers of a dataset. Every row counts,
// including those individual charts would drop.
func (s *Service) Summarize(ds *models.Dataset) *models.DatasetSummary {
	if ds == nil {
		return &models.DatasetSummary{}
	}

	ts := models.NewTransactionSet(normalizer.Normalize(ds.Rows, s.spec))
	revenue := ts.SumAmount()
	orders := ts.DistinctOrders()

	var avgOrder float64
	if orders > 0 {
		avgOrder = revenue / float64(orders)
	}

	sum := &models.DatasetSummary{
		DatasetID:     ds.ID,
		Source:        ds.Source,
		RawRows:       ds.Len(),
		Transactions:  ts.Len(),
		TotalRevenue:  revenue,
		TotalQuantity: ts.SumQuantity(),
		Orders:        orders,
		Customers:     ts.DistinctCustomers(),
		Groups:        len(ts.Groups()),
		AvgOrderValue: avgOrder,
		NegativeLines: ts.CountNegative(),
		UndatedLines:  ts.CountUndated(),
		StartDate:     ts.MinDate(),
		EndDate:       ts.MaxDate(),
		LoadedAt:      ds.LoadedAt,
	}
	sum.Trend, sum.TrendChange = s.trend(ts)
	return sum
}

// trend returns revenue for the last trendMonths calendar months with data,
// and the percent change of the last month over the one before.
func (s *Service) trend(ts *models.TransactionSet) ([]models.MonthRevenue, float64) {
	monthly := ts.RevenueByMonth()

	months := make([]string, 0, len(monthly))
	for m := range monthly {
		months = append(months, m)
	}
	sort.Strings(months)

	// Take last months only
	if len(months) > trendMonths {
		months = months[len(months)-trendMonths:]
	}

	points := make([]models.MonthRevenue, len(months))
	for i, m := range months {
		points[i] = models.MonthRevenue{Month: m, Revenue: monthly[m]}
	}

	if len(points) < 2 {
		return points, 0
	}
	last, prev := points[len(points)-1].Revenue, points[len(points)-2].Revenue
	return points, PercentChange(last, prev)
}

// PercentChange calculates the percentage change between two values
func PercentChange(current, previous float64) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	return ((current - previous) / math.Abs(previous)) * 100
}
