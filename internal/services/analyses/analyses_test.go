package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesviz/internal/models"
	"salesviz/internal/services/binner"
	"salesviz/internal/services/coerce"
)

var header = []string{
	models.ColOrderTime, models.ColAmount, models.ColOrder,
	models.ColGroupCode, models.ColGroupName, models.ColItemCode, models.ColItemName,
	models.ColCustomer, models.ColQuantity,
}

func sampleDataset() *models.Dataset {
	raw := [][]string{
		{"2024-01-01 09:15:00", "100000", "DH1", "G1", "Trà", "I1", "Trà xanh", "KH1", "1"},
		{"2024-01-01 09:40:00", "50000", "DH1", "G2", "Bánh", "I2", "Bánh quy", "KH1", "2"},
		{"2024-01-02 14:05:00", "200000", "DH2", "G1", "Trà", "I3", "Trà đen", "KH2", "4"},
		{"2024-01-08 09:00:00", "300000", "DH3", "G1", "Trà", "I1", "Trà xanh", "KH1", "3"},
		{"2024-02-05 10:00:00", "60000", "DH4", "G2", "Bánh", "I2", "Bánh quy", "KH3", ""},
		{"15/02/2024", "-20000", "DH5", "G2", "Bánh", "I2", "Bánh quy", "KH3", "1"},
		{"", "70000", "DH6", "G1", "Trà", "I1", "Trà xanh", "", "1"},
	}
	return datasetFrom(header, raw)
}

func datasetFrom(header []string, raw [][]string) *models.Dataset {
	ds := &models.Dataset{ID: "test", Source: "test.csv", Header: header}
	for _, rec := range raw {
		row := models.RawRow{}
		for i, h := range header {
			if i < len(rec) {
				row[h] = rec[i]
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Parser = coerce.NewParser(coerce.DayFirst, time.UTC)
	opts.TopN = 2
	return opts
}

func run(t *testing.T, id string) *models.ChartResult {
	t.Helper()
	res, err := Default().Run(id, sampleDataset(), testOptions())
	require.NoError(t, err)
	require.Equal(t, models.StateOK, res.State)
	require.Equal(t, id, res.ID)
	return res
}

func labels(res *models.ChartResult) []string {
	out := make([]string, len(res.Rows))
	for i, r := range res.Rows {
		out[i] = r.Label
	}
	return out
}

func values(res *models.ChartResult) []float64 {
	out := make([]float64, len(res.Rows))
	for i, r := range res.Rows {
		out[i] = r.Value
	}
	return out
}

func TestSalesByItem(t *testing.T) {
	res := run(t, "Q1")

	assert.Equal(t, []string{"[I1] Trà xanh", "[I3] Trà đen"}, labels(res))
	assert.Equal(t, []float64{470000, 200000}, values(res))
	assert.Equal(t, "[G1] Trà", res.Rows[0].Series)
	assert.Equal(t, "0 triệu VND", res.Rows[0].Display)
	require.NotNil(t, res.Aggregates[0].Quantity)
	assert.Equal(t, 5.0, *res.Aggregates[0].Quantity)
	assert.Equal(t, 0, res.Dropped)
	assert.Equal(t, models.UnitMoney, res.Unit)
}

func TestSalesByGroup(t *testing.T) {
	res := run(t, "Q2")
	assert.Equal(t, []string{"[G1] Trà", "[G2] Bánh"}, labels(res))
	assert.Equal(t, []float64{670000, 90000}, values(res))
}

func TestSalesByMonthKeepsPositiveDated(t *testing.T) {
	res := run(t, "Q3")
	assert.Equal(t, []string{"Tháng 01", "Tháng 02"}, labels(res))
	assert.Equal(t, []float64{650000, 60000}, values(res))
	assert.Equal(t, 3, res.Aggregates[0].DistinctCount)
	assert.Equal(t, 2, res.Dropped)
}

func TestSalesByWeekday(t *testing.T) {
	res := run(t, "Q4")
	require.Len(t, res.Rows, 7)
	assert.Equal(t, "Thứ Hai", res.Rows[0].Label)
	assert.Equal(t, "Chủ Nhật", res.Rows[6].Label)
	assert.Equal(t, []float64{170000, 200000, 0, -20000, 0, 0, 0}, values(res))
	assert.Equal(t, 3, res.Aggregates[0].Count)
	assert.Equal(t, "0.2 triệu VND", res.Rows[0].Display)
}

func TestSalesByDayOfMonth(t *testing.T) {
	res := run(t, "Q5")
	require.Len(t, res.Rows, 31)
	assert.Equal(t, "Ngày 01", res.Rows[0].Label)
	assert.Equal(t, 150000.0, res.Rows[0].Value)
	assert.Equal(t, 300000.0, res.Rows[7].Value)
	assert.Equal(t, "0.3 triệu VND", res.Rows[7].Display)
	assert.Equal(t, -20000.0, res.Rows[14].Value)
	assert.Equal(t, 0.0, res.Rows[30].Value)
}

func TestSalesByHour(t *testing.T) {
	res := run(t, "Q6")
	assert.Equal(t, []string{"00:00-00:59", "09:00-09:59", "10:00-10:59", "14:00-14:59"}, labels(res))
	assert.Equal(t, []float64{-20000, 225000, 60000, 200000}, values(res))

	require.NotNil(t, res.Aggregates[1].Quantity)
	assert.Equal(t, 6.0, *res.Aggregates[1].Quantity)
	assert.Nil(t, res.Aggregates[2].Quantity)
}

func TestGroupShare(t *testing.T) {
	res := run(t, "Q7")
	require.Len(t, res.Shares, 2)

	assert.Equal(t, "[G1] Trà", res.Rows[0].Label)
	assert.Equal(t, 4, res.Shares[0].Numerator)
	assert.Equal(t, 6, res.Shares[0].Denominator)
	assert.Equal(t, "66.7%", res.Rows[0].Display)
	assert.Equal(t, 0.5, res.Shares[1].Probability)
	assert.Equal(t, models.UnitShare, res.Unit)
}

func TestGroupShareByMonthIsDense(t *testing.T) {
	res := run(t, "Q8")
	require.Len(t, res.Rows, 24)

	g1 := res.Shares[:12]
	assert.Equal(t, 1.0, g1[0].Probability)
	assert.Equal(t, 0, g1[1].Numerator)
	assert.Equal(t, 2, g1[1].Denominator)
	assert.Equal(t, 0.0, g1[1].Probability)
	assert.Equal(t, 0, g1[5].Denominator)

	g2 := res.Shares[12:]
	assert.InDelta(t, 1.0/3, g2[0].Probability, 1e-9)
	assert.Equal(t, 1.0, g2[1].Probability)
	assert.Equal(t, "[G2] Bánh", res.Rows[12].Series)
	assert.Equal(t, "1", res.Rows[12].Label)
}

func TestItemShareByGroup(t *testing.T) {
	res := run(t, "Q9")
	assert.Equal(t, []string{"[I1] Trà xanh", "[I3] Trà đen", "[I2] Bánh quy"}, labels(res))
	assert.Equal(t, []float64{0.75, 0.25, 1}, values(res))
	assert.Equal(t, "[G1] Trà", res.Rows[0].Subplot)
	assert.Equal(t, "[G2] Bánh", res.Rows[2].Subplot)
}

func TestItemShareByGroupCombinedColumn(t *testing.T) {
	h := []string{models.ColOrder, models.ColGroupBoth, models.ColItemCode, models.ColItemName}
	ds := datasetFrom(h, [][]string{
		{"DH1", "[X] Khác", "I1", "Một"},
		{"DH2", "[X] Khác", "I2", "Hai"},
	})

	res, err := Default().Run("Q9", ds, testOptions())
	require.NoError(t, err)
	assert.Equal(t, "[X] Khác", res.Rows[0].Subplot)
	assert.Equal(t, []float64{0.5, 0.5}, values(res))
}

func TestItemShareByGroupMonth(t *testing.T) {
	res := run(t, "Q10")
	require.Len(t, res.Rows, 4)
	assert.InDelta(t, 2.0/3, res.Rows[0].Value, 1e-9)
	assert.Equal(t, "T01", res.Rows[0].Label)
	assert.Equal(t, "[I1] Trà xanh", res.Rows[0].Series)
	assert.InDelta(t, 1.0/3, res.Rows[1].Value, 1e-9)
	assert.Equal(t, "T02", res.Rows[3].Label)
	assert.Equal(t, 1.0, res.Rows[3].Value)
}

func TestPurchaseFrequency(t *testing.T) {
	res := run(t, "Q11")
	assert.Equal(t, []string{"1", "2"}, labels(res))
	assert.Equal(t, []float64{1, 2}, values(res))
}

func TestSpendDistribution(t *testing.T) {
	res := run(t, "Q12")
	require.Len(t, res.Bins, 10)
	assert.Equal(t, 1, res.Bins[0].Count)
	assert.Equal(t, 1, res.Bins[4].Count)
	assert.Equal(t, 1, res.Bins[9].Count)
	assert.Equal(t, 0, res.Rejected)
	assert.Equal(t, "450,000 - 500,000", res.Rows[9].Tooltip[0].Value)
}

func TestSpendDistributionRejectsNegativeTotals(t *testing.T) {
	ds := datasetFrom(header, [][]string{
		{"", "-5000", "DH1", "", "", "", "", "KH1", ""},
		{"", "120000", "DH2", "", "", "", "", "KH2", ""},
	})
	res, err := Default().Run("Q12", ds, testOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rejected)
	assert.Len(t, res.Bins, 3)
}

func TestSpendDistributionTooWide(t *testing.T) {
	for _, amount := range []string{"5000000000", "1" + strings.Repeat("0", 300)} {
		ds := datasetFrom(header, [][]string{
			{"", amount, "DH1", "", "", "", "", "KH1", ""},
			{"", "120000", "DH2", "", "", "", "", "KH2", ""},
		})
		a, _ := Default().Get("Q12")
		_, err := a.Run(ds, testOptions())
		require.ErrorIs(t, err, binner.ErrTooManyBins, amount)
		assert.NotErrorIs(t, err, ErrNoData)

		failed := a.Failed(err)
		assert.Equal(t, models.StateError, failed.State)
		assert.Contains(t, failed.Message, "mức chi trả quá lớn")
		assert.NotContains(t, failed.Message, "width")
		assert.Empty(t, failed.Rows)
	}
}

func TestMissingColumns(t *testing.T) {
	h := []string{models.ColOrderTime, models.ColAmount, models.ColOrder}
	ds := datasetFrom(h, [][]string{{"2024-01-01", "10", "DH1"}})

	_, err := Default().Run("Q11", ds, testOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumns))

	var mc *MissingColumnsError
	require.True(t, errors.As(err, &mc))
	assert.Equal(t, []string{models.ColCustomer}, mc.Columns)
	assert.Equal(t, "Thiếu cột: "+models.ColCustomer, Message(err))

	failed := Default().list[10].Failed(err)
	assert.Equal(t, models.StateMissingColumns, failed.State)

	res, err := Default().Run("Q3", ds, testOptions())
	require.NoError(t, err)
	assert.Equal(t, []float64{10}, values(res))
}

func TestNoData(t *testing.T) {
	c := Default()

	_, err := c.Run("Q1", &models.Dataset{Header: header}, testOptions())
	assert.ErrorIs(t, err, ErrNoData)

	_, err = c.Run("Q1", nil, testOptions())
	assert.ErrorIs(t, err, ErrNoData)

	onlyRefunds := datasetFrom(header, [][]string{{"2024-01-01", "-100", "DH1"}})
	_, err = c.Run("Q3", onlyRefunds, testOptions())
	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, "Không có dữ liệu.", Message(err))

	a, _ := c.Get("Q3")
	assert.Equal(t, models.StateNoData, a.Failed(err).State)
}

func TestUnknownAnalysis(t *testing.T) {
	_, err := Default().Run("Q99", sampleDataset(), testOptions())
	assert.ErrorIs(t, err, ErrUnknownAnalysis)
}

func TestCatalog(t *testing.T) {
	c := Default()
	require.Equal(t, 12, c.Len())
	assert.Equal(t, "Q1", c.First())

	prev, next := c.Neighbors("Q1")
	assert.Equal(t, "Q12", prev)
	assert.Equal(t, "Q2", next)

	prev, next = c.Neighbors("Q12")
	assert.Equal(t, "Q11", prev)
	assert.Equal(t, "Q1", next)

	prev, next = c.Neighbors("nope")
	assert.Empty(t, prev)
	assert.Empty(t, next)

	_, err := NewCatalog(salesByItem(), salesByItem())
	assert.Error(t, err)
}

func TestRunAll(t *testing.T) {
	var calls atomic.Int32
	outcomes, err := Default().RunAll(context.Background(), sampleDataset(), testOptions(), 3, func(Outcome) {
		calls.Add(1)
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 12)
	assert.EqualValues(t, 12, calls.Load())

	for i, o := range outcomes {
		assert.NoError(t, o.Err, o.Analysis.ID)
		assert.Equal(t, Default().list[i].ID, o.Result.ID)
	}
}

func TestRunAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Default().RunAll(ctx, sampleDataset(), testOptions(), 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunIsIdempotentAndLeavesRowsAlone(t *testing.T) {
	ds := sampleDataset()
	before, err := json.Marshal(ds.Rows)
	require.NoError(t, err)

	snapshot := func() []byte {
		outcomes, err := Default().RunAll(context.Background(), ds, testOptions(), 0, nil)
		require.NoError(t, err)
		results := make([]*models.ChartResult, len(outcomes))
		for i, o := range outcomes {
			results[i] = o.Result
		}
		b, err := json.Marshal(results)
		require.NoError(t, err)
		return b
	}

	assert.Equal(t, snapshot(), snapshot())

	after, err := json.Marshal(ds.Rows)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
