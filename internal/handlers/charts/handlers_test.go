package charts

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesviz/internal/models"
	"salesviz/internal/services/analyses"
	"salesviz/internal/services/coerce"
	"salesviz/internal/services/dataloader"
	"salesviz/internal/services/dataset"
	"salesviz/internal/services/metrics"
	"salesviz/internal/services/normalizer"
	"salesviz/internal/services/storage"
	"salesviz/internal/templates"
	"salesviz/internal/testutil"
)

func setup(t *testing.T, dir string) http.Handler {
	t.Helper()

	store, err := storage.New(dir, storage.WithWorkFactor(10))
	require.NoError(t, err)

	parser := coerce.NewParser(coerce.DayFirst, time.UTC)
	opts := analyses.DefaultOptions()
	opts.Parser = parser

	loader := dataloader.New(store, "", parser, dataloader.WithColumns(opts.Columns))
	collectors := metrics.NewCollectors()
	renderer, err := templates.New(templates.Files(), false)
	require.NoError(t, err)

	Initialize(Deps{
		Catalog:    analyses.Default(),
		Options:    opts,
		Handle:     dataset.NewHandle(loader, dataset.WithObserver(collectors.ObserveLoad)),
		Loader:     loader,
		Store:      store,
		Summaries:  metrics.New(normalizer.FieldSpec{Columns: opts.Columns, Parser: parser}),
		Collectors: collectors,
		Renderer:   renderer,
	})

	r := chi.NewRouter()
	RegisterRoutes(r)
	return r
}

func do(h http.Handler, method, path string, header map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(h http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return do(h, http.MethodGet, path, nil, cookies...)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestChartList(t *testing.T) {
	h := setup(t, testutil.CopyTestData(t))

	rec := get(h, "/api/charts")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []ChartInfo
	decode(t, rec, &list)
	require.Len(t, list, 12)
	assert.Equal(t, "Q1", list[0].ID)
	assert.Equal(t, "Q12", list[11].ID)
	assert.Equal(t, models.UnitShare, list[6].Unit)
}

func TestChartJSON(t *testing.T) {
	h := setup(t, testutil.CopyTestData(t))

	rec := get(h, "/api/charts/Q2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var res models.ChartResult
	decode(t, rec, &res)
	assert.Equal(t, models.StateOK, res.State)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "[TRA] Trà", res.Rows[0].Label)
}

func TestChartJSONUnknown(t *testing.T) {
	h := setup(t, testutil.CopyTestData(t))

	rec := get(h, "/api/charts/Q99")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown chart Q99")
}

func TestChartJSONMissingColumns(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "no_customer.csv",
		"Thời gian tạo đơn,Thành tiền,Mã đơn hàng\n2024-01-03 08:15:00,45000,DH1\n")
	h := setup(t, dir)

	rec := get(h, "/api/charts/Q11")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var res models.ChartResult
	decode(t, rec, &res)
	assert.Equal(t, models.StateMissingColumns, res.State)
	assert.Contains(t, res.Message, models.ColCustomer)
	assert.Empty(t, res.Rows)
}

func TestChartJSONNoData(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "refunds.csv",
		"Thời gian tạo đơn,Thành tiền,Mã đơn hàng\n2024-01-03 08:15:00,-45000,DH1\n")
	h := setup(t, dir)

	rec := get(h, "/api/charts/Q3")
	require.Equal(t, http.StatusOK, rec.Code)

	var res models.ChartResult
	decode(t, rec, &res)
	assert.Equal(t, models.StateNoData, res.State)
	assert.Equal(t, "Không có dữ liệu.", res.Message)
}

func TestChartJSONComputeError(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "whale.csv",
		"Mã khách hàng,Thành tiền,Mã đơn hàng\nKH1,9000000000,DH1\nKH2,45000,DH2\n")
	h := setup(t, dir)

	rec := get(h, "/api/charts/Q12")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var res models.ChartResult
	decode(t, rec, &res)
	assert.Equal(t, models.StateError, res.State)
	assert.Contains(t, res.Message, "mức chi trả quá lớn")

	rec = get(h, "/charts/Q12")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mức chi trả quá lớn")
}

func TestNoDataFiles(t *testing.T) {
	h := setup(t, t.TempDir())

	rec := get(h, "/api/charts/Q1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Không tìm thấy tệp dữ liệu")

	rec = get(h, "/charts/Q1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestLockedDirectory(t *testing.T) {
	dir := testutil.CopyTestData(t)
	store, err := storage.New(dir, storage.WithWorkFactor(10))
	require.NoError(t, err)
	require.NoError(t, store.EnableEncryption("testpassword123"))

	h := setup(t, dir)
	rec := get(h, "/charts/Q1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "chưa mở khoá")

	rec = get(h, "/files")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chưa mở khoá")
	assert.Contains(t, rec.Body.String(), testutil.SampleFile)
}

func TestChartSVG(t *testing.T) {
	h := setup(t, testutil.CopyTestData(t))

	rec := get(h, "/charts/Q2/chart.svg")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "<svg"))

	rec = get(h, "/charts/Q9/chart.svg?subplot=nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(h, "/charts/Q99/chart.svg")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChartPage(t *testing.T) {
	h := setup(t, testutil.CopyTestData(t))

	rec := get(h, "/charts/Q2")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "Q2. Doanh số bán hàng theo Nhóm hàng")
	assert.Contains(t, body, `href="/charts/Q1"`)
	assert.Contains(t, body, `href="/charts/Q3"`)
	assert.Contains(t, body, `src="/charts/Q2/chart.svg"`)
	assert.Contains(t, body, "[TRA] Trà")

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == LastChartCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, "Q2", cookie.Value)
}

func TestChartPageWrapsNeighbors(t *testing.T) {
	h := setup(t, testutil.CopyTestData(t))

	body := get(h, "/charts/Q1").Body.String()
	assert.Contains(t, body, `href="/charts/Q12"`)
	assert.Contains(t, body, `href="/charts/Q2"`)
}

func TestChartPageSubplots(t *testing.T) {
	h := setup(t, testutil.CopyTestData(t))

	rec := get(h, "/charts/Q9")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chart.svg?subplot=")

	rec = get(h, "/charts/Q9?subplot=nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChartPageUnknown(t *testing.T) {
	h := setup(t, testutil.CopyTestData(t))

	rec := get(h, "/charts/Q0")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Không có biểu đồ Q0.")
}

func TestRootRedirect(t *testing.T) {
	h := setup(t, testutil.CopyTestData(t))

	rec := get(h, "/")
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/charts/Q1", rec.Header().Get("Location"))

	rec = get(h, "/", &http.Cookie{Name: LastChartCookie, Value: "Q7"})
	assert.Equal(t, "/charts/Q7", rec.Header().Get("Location"))

	rec = get(h, "/", &http.Cookie{Name: LastChartCookie, Value: "bogus"})
	assert.Equal(t, "/charts/Q1", rec.Header().Get("Location"))
}

func TestSummary(t *testing.T) {
	h := setup(t, testutil.CopyTestData(t))

	rec := get(h, "/api/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var sum models.DatasetSummary
	decode(t, rec, &sum)
	assert.Equal(t, testutil.SampleFile, sum.Source)
	assert.Equal(t, 19, sum.RawRows)
	assert.Equal(t, 14, sum.Orders)
	assert.Equal(t, 1, sum.NegativeLines)
	assert.Equal(t, 1, sum.UndatedLines)
	assert.NotEmpty(t, sum.DatasetID)
}

func TestFiles(t *testing.T) {
	h := setup(t, testutil.CopyTestData(t))

	rec := get(h, "/api/files")
	require.Equal(t, http.StatusOK, rec.Code)

	var files []models.FileInfo
	decode(t, rec, &files)
	require.Len(t, files, 1)
	assert.True(t, files[0].Active)
	assert.Equal(t, 19, files[0].Rows)
	assert.Equal(t, "2024-01-03", files[0].MinDate)
	assert.Equal(t, "2024-03-30", files[0].MaxDate)

	rec = get(h, "/files")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), testutil.SampleFile)
	assert.Contains(t, rec.Body.String(), "đang dùng")
}

func TestReload(t *testing.T) {
	dir := testutil.CopyTestData(t)
	h := setup(t, dir)

	var first models.ChartResult
	decode(t, get(h, "/api/charts/Q2"), &first)

	path := testutil.WriteFile(t, dir, "newer.csv",
		"Thời gian tạo đơn,Thành tiền,Mã đơn hàng,Mã nhóm hàng,Tên nhóm hàng\n2024-04-01 08:00:00,99000,DH9,MOI,Mới\n")
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	rec := do(h, http.MethodPost, "/api/dataset/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var reloaded ReloadResult
	decode(t, rec, &reloaded)
	assert.Equal(t, filepath.Base(path), reloaded.Source)
	assert.Equal(t, 1, reloaded.Rows)
	assert.NotEmpty(t, reloaded.DatasetID)

	var second models.ChartResult
	decode(t, get(h, "/api/charts/Q2"), &second)
	require.Len(t, second.Rows, 1)
	assert.Equal(t, "[MOI] Mới", second.Rows[0].Label)
}

func TestReloadFromForm(t *testing.T) {
	h := setup(t, testutil.CopyTestData(t))

	rec := do(h, http.MethodPost, "/api/dataset/reload", map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/files", rec.Header().Get("Location"))
}

func TestReloadFailure(t *testing.T) {
	h := setup(t, t.TempDir())

	rec := do(h, http.MethodPost, "/api/dataset/reload", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":503`)
}

func upload(t *testing.T, h http.Handler, name, content string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestFileUpload(t *testing.T) {
	dir := testutil.CopyTestData(t)
	h := setup(t, dir)
	decode(t, get(h, "/api/charts/Q2"), &models.ChartResult{})

	rec := upload(t, h, "upload.csv",
		"Thời gian tạo đơn,Thành tiền,Mã đơn hàng,Mã nhóm hàng,Tên nhóm hàng\n2024-05-01 08:00:00,12000,DH1,NEW,Mới\n",
		map[string]string{"Accept": "application/json"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var files []models.FileInfo
	decode(t, rec, &files)
	require.Len(t, files, 2)
	assert.FileExists(t, filepath.Join(dir, "upload.csv"))

	var res models.ChartResult
	decode(t, get(h, "/api/charts/Q2"), &res)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "[NEW] Mới", res.Rows[0].Label)
}

func TestFileUploadRejects(t *testing.T) {
	dir := testutil.CopyTestData(t)
	h := setup(t, dir)
	accept := map[string]string{"Accept": "application/json"}

	rec := upload(t, h, "notes.txt", "hello", accept)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload(t, h, "empty.csv", "", accept)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NoFileExists(t, filepath.Join(dir, "empty.csv"))
}

func TestFileUploadFromForm(t *testing.T) {
	h := setup(t, testutil.CopyTestData(t))

	rec := upload(t, h, "form.csv", "Thành tiền\n1000\n", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/files", rec.Header().Get("Location"))
}

func TestFileUploadLocked(t *testing.T) {
	dir := testutil.CopyTestData(t)
	store, err := storage.New(dir, storage.WithWorkFactor(10))
	require.NoError(t, err)
	require.NoError(t, store.EnableEncryption("testpassword123"))
	h := setup(t, dir)

	rec := upload(t, h, "plain.csv", "Thành tiền\n1000\n", map[string]string{"Accept": "application/json"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFileDelete(t *testing.T) {
	dir := testutil.CopyTestData(t)
	testutil.WriteFile(t, dir, "old.csv", "Thành tiền\n1000\n")
	h := setup(t, dir)

	rec := do(h, http.MethodDelete, "/api/files/old.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NoFileExists(t, filepath.Join(dir, "old.csv"))

	var files []models.FileInfo
	decode(t, rec, &files)
	require.Len(t, files, 1)
	assert.Equal(t, testutil.SampleFile, files[0].Name)

	rec = do(h, http.MethodDelete, "/api/files/old.csv", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodDelete, "/api/files/..%2Fgo.mod", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodDelete, "/api/files/.salesviz-verify", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
