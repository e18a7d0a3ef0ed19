package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesviz/internal/models"
	"salesviz/internal/services/coerce"
	"salesviz/internal/services/dataset"
	"salesviz/internal/services/normalizer"
)

func testService() *Service {
	return New(normalizer.FieldSpec{
		Columns: normalizer.DefaultColumns(),
		Parser:  coerce.NewParser(coerce.DayFirst, time.UTC),
		// ignored: the summary always looks at every row
		Required: normalizer.FieldOrder,
	})
}

func row(date, amount, order, customer, groupCode, qty string) models.RawRow {
	return models.RawRow{
		models.ColOrderTime: date,
		models.ColAmount:    amount,
		models.ColOrder:     order,
		models.ColCustomer:  customer,
		models.ColGroupCode: groupCode,
		models.ColGroupName: "",
		models.ColQuantity:  qty,
	}
}

func TestSummarize(t *testing.T) {
	loaded := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	ds := &models.Dataset{
		ID:       "gen-1",
		Source:   "sales.csv",
		LoadedAt: loaded,
		Rows: []models.RawRow{
			row("2024-01-05", "100000", "DH1", "KH1", "G1", "2"),
			row("2024-01-05", "50000", "DH1", "KH1", "G2", ""),
			row("2024-02-10", "200000", "DH2", "KH2", "G1", "1"),
			row("", "-30000", "", "", "", "1"),
		},
	}

	s := testService().Summarize(ds)

	assert.Equal(t, "gen-1", s.DatasetID)
	assert.Equal(t, 4, s.RawRows)
	assert.Equal(t, 4, s.Transactions)
	assert.Equal(t, 320000.0, s.TotalRevenue)
	assert.Equal(t, 4.0, s.TotalQuantity)
	assert.Equal(t, 2, s.Orders)
	assert.Equal(t, 2, s.Customers)
	assert.Equal(t, 2, s.Groups)
	assert.Equal(t, 160000.0, s.AvgOrderValue)
	assert.Equal(t, 1, s.NegativeLines)
	assert.Equal(t, 1, s.UndatedLines)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), s.StartDate)
	assert.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), s.EndDate)
	assert.Equal(t, loaded, s.LoadedAt)

	require.Len(t, s.Trend, 2)
	assert.Equal(t, models.MonthRevenue{Month: "2024-01", Revenue: 150000}, s.Trend[0])
	assert.InDelta(t, 33.333, s.TrendChange, 0.001)
}

func TestSummarizeTrendKeepsLastSixMonths(t *testing.T) {
	ds := &models.Dataset{}
	for m := 1; m <= 8; m++ {
		date := time.Date(2024, time.Month(m), 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		ds.Rows = append(ds.Rows, row(date, "1000", "DH", "", "", ""))
	}

	s := testService().Summarize(ds)
	require.Len(t, s.Trend, 6)
	assert.Equal(t, "2024-03", s.Trend[0].Month)
	assert.Equal(t, "2024-08", s.Trend[5].Month)
	assert.Equal(t, 0.0, s.TrendChange)
}

func TestSummarizeEmpty(t *testing.T) {
	s := testService().Summarize(nil)
	assert.Zero(t, s.RawRows)

	s = testService().Summarize(&models.Dataset{})
	assert.Zero(t, s.AvgOrderValue)
	assert.Empty(t, s.Trend)
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		current, previous, want float64
	}{
		{150, 100, 50},
		{50, 100, -50},
		{0, 0, 0},
		{10, 0, 100},
		{-50, -100, 50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PercentChange(tt.current, tt.previous), "%v vs %v", tt.current, tt.previous)
	}
}

func TestCollectors(t *testing.T) {
	c := NewCollectors()

	c.ObserveLoad(&models.Dataset{Rows: make([]models.RawRow, 3)}, 20*time.Millisecond, nil)
	c.ObserveLoad(nil, time.Millisecond, dataset.ErrStale)
	c.ObserveLoad(nil, time.Millisecond, errors.New("boom"))
	c.ObserveRender("Q1", models.StateOK, time.Millisecond)
	c.ObserveRender("Q1", models.StateOK, time.Millisecond)
	c.ObserveRender("Q11", models.StateMissingColumns, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.loads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.loads.WithLabelValues("stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.loads.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.datasetRows))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.renders.WithLabelValues("Q1", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.renders.WithLabelValues("Q11", "missing_columns")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(string(body), "salesviz_chart_renders_total"))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}
