package templates

import (
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesviz/internal/models"
)

func basePage(title string) map[string]any {
	return map[string]any{
		"Title":   title,
		"Version": "test",
		"Nav":     []map[string]any{{"ID": "Q1", "Active": true}, {"ID": "Q2", "Active": false}},
		"Summary": &models.DatasetSummary{
			Source:       "sales.csv",
			TotalRevenue: 12_500_000,
			Orders:       3,
			LoadedAt:     time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC),
			Trend:        []models.MonthRevenue{{Month: "2024-01"}, {Month: "2024-02"}},
			TrendChange:  12.5,
		},
	}
}

func TestEmbeddedTemplatesParse(t *testing.T) {
	r, err := New(Files(), false)
	require.NoError(t, err)
	for _, name := range []string{"chart.html", "files.html", "error.html", "header", "footer", "summary", "rows"} {
		assert.NotNil(t, r.templates.Lookup(name), name)
	}
}

func TestRenderChartPage(t *testing.T) {
	r, err := New(Files(), false)
	require.NoError(t, err)

	data := basePage("Doanh số theo Nhóm hàng")
	data["Result"] = &models.ChartResult{
		ID: "Q2", Title: "Doanh số theo Nhóm hàng", State: models.StateOK,
		ValueLabel: "Doanh số", Dropped: 2,
	}
	data["Rows"] = []models.ChartRow{
		{Label: "[G1] Trà", Value: 670000, Display: "1 triệu VND",
			Tooltip: []models.Field{{Name: "Số lượng", Value: "8"}, {Name: "Dòng", Value: "4"}}},
		{Label: "[G2] <Bánh>", Value: -1, Display: "-0 triệu VND"},
	}
	data["Prev"], data["Next"] = "Q1", "Q3"
	data["Subplots"] = []string(nil)
	data["Subplot"] = ""

	rec := httptest.NewRecorder()
	require.NoError(t, r.Render(rec, "chart.html", data))

	body := rec.Body.String()
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "Q2. Doanh số theo Nhóm hàng")
	assert.Contains(t, body, `src="/charts/Q2/chart.svg"`)
	assert.Contains(t, body, "Số lượng: 8 · Dòng: 4")
	assert.Contains(t, body, "[G2] &lt;Bánh&gt;")
	assert.Contains(t, body, `class="num neg"`)
	assert.Contains(t, body, "2 dòng bị loại")
	assert.Contains(t, body, "13 triệu VND")
	assert.Contains(t, body, "+12.5%")
	assert.Contains(t, body, "05/03/2024 14:30")
}

func TestRenderChartPageMessage(t *testing.T) {
	r, err := New(Files(), false)
	require.NoError(t, err)

	data := basePage("Q11")
	data["Summary"] = (*models.DatasetSummary)(nil)
	data["Result"] = &models.ChartResult{ID: "Q11", State: models.StateMissingColumns, Message: "Thiếu cột: Mã khách hàng"}
	data["Prev"], data["Next"] = "Q10", "Q12"

	out, err := r.RenderToString("chart.html", data)
	require.NoError(t, err)
	assert.Contains(t, out, "Thiếu cột: Mã khách hàng")
	assert.NotContains(t, out, "<img")
}

func TestRenderFailureSendsNoPartialPage(t *testing.T) {
	files := fstest.MapFS{
		"pages/bad.html": {Data: []byte(`start {{.Missing.Field}}`)},
	}
	r, err := New(files, false)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = r.Render(rec, "bad.html", map[string]any{"Missing": 3})
	require.Error(t, err)
	assert.Equal(t, 500, rec.Code)
	assert.NotContains(t, rec.Body.String(), "start")
}

func TestRenderStatus(t *testing.T) {
	r, err := New(Files(), false)
	require.NoError(t, err)

	data := basePage("Lỗi")
	data["Message"] = "Không tìm thấy tệp dữ liệu."

	rec := httptest.NewRecorder()
	require.NoError(t, r.RenderStatus(rec, 503, "error.html", data))
	assert.Equal(t, 503, rec.Code)
	assert.Contains(t, rec.Body.String(), "Không tìm thấy tệp dữ liệu.")
}

func TestUndefinedTemplateReference(t *testing.T) {
	files := fstest.MapFS{
		"pages/a.html": {Data: []byte("{{template \"nowhere\" .}}")},
	}
	_, err := New(files, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `pages/a.html:1: undefined template "nowhere"`)
}

func TestParseErrorHasContext(t *testing.T) {
	files := fstest.MapFS{
		"pages/a.html": {Data: []byte("line one\n{{if}}\n")},
	}
	_, err := New(files, false)
	assert.ErrorContains(t, err, "template parsing failed")

	_, err = New(fstest.MapFS{}, false)
	assert.ErrorContains(t, err, "no template files found")
}

func TestFormatFuncs(t *testing.T) {
	assert.Equal(t, "1,235", formatInt(1234.6))
	assert.Equal(t, "42", formatInt(42))
	assert.Equal(t, "+12.5%", formatChange(12.5))
	assert.Equal(t, "-3.0%", formatChange(-3))
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "", formatDate(time.Time{}))
	assert.Equal(t, "neg", colorClass(-1))
	assert.Equal(t, []int{1, 2, 3}, seq(1, 3))
	assert.Equal(t, 0.0, deref(nil))
	assert.Equal(t, `{"a":1}`, string(jsonMarshal(map[string]int{"a": 1})))
	assert.True(t, strings.HasPrefix(formatTemplateError("f", "a\nb\nc", errTest(":2: boom")), "\n  File: f"))
}

type errTest string

func (e errTest) Error() string { return string(e) }
