// Package charts serves the twelve sales analyses as JSON, SVG and HTML
// pages, plus data file management and dataset reload.
package charts

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	apphttp "salesviz/internal/http"
	"salesviz/internal/models"
	"salesviz/internal/services/analyses"
	"salesviz/internal/services/chartsvg"
	"salesviz/internal/services/dataloader"
	"salesviz/internal/services/dataset"
	"salesviz/internal/services/metrics"
	"salesviz/internal/services/storage"
	"salesviz/internal/templates"
	"salesviz/internal/version"
)

// LastChartCookie remembers the chart viewed last.
const LastChartCookie = "lastQ"

// Deps are the services the handlers read from.
type Deps struct {
	Catalog    *analyses.Catalog
	Options    analyses.Options
	Handle     *dataset.Handle
	Loader     *dataloader.DataLoader
	Store      *storage.Storage
	Summaries  *metrics.Service
	Collectors *metrics.Collectors
	Renderer   *templates.Renderer
}

var (
	deps  Deps
	cache resultCache
)

// Initialize sets up the charts package with required dependencies
func Initialize(d Deps) {
	deps = d
	cache.reset("")
}

// RegisterRoutes registers all chart routes
func RegisterRoutes(r chi.Router) {
	r.Get("/", handleRoot)
	r.Get("/charts/{id}", handleChartPage)
	r.Get("/charts/{id}/chart.svg", handleChartSVG)
	r.Get("/files", handleFilesPage)

	r.Route("/api", func(r chi.Router) {
		r.Get("/charts", handleChartList)
		r.Get("/charts/{id}", handleChartJSON)
		r.Get("/summary", handleSummary)
		r.Get("/files", handleFileList)
		r.Post("/files", handleFileUpload)
		r.Delete("/files/{name}", handleFileDelete)
		r.Post("/dataset/reload", handleReload)
	})
}

// resultCache keeps computed results for the current dataset generation.
type resultCache struct {
	mu      sync.Mutex
	dataset string
	results map[string]*models.ChartResult
	summary *models.DatasetSummary
}

func (c *resultCache) reset(id string) {
	c.dataset = id
	c.results = make(map[string]*models.ChartResult)
	c.summary = nil
}

func (c *resultCache) result(ds *models.Dataset, a analyses.Analysis) *models.ChartResult {
	c.mu.Lock()
	if c.dataset != ds.ID {
		c.reset(ds.ID)
	}
	if res, ok := c.results[a.ID]; ok {
		c.mu.Unlock()
		return res
	}
	c.mu.Unlock()

	start := time.Now()
	res, err := a.Run(ds, deps.Options)
	if err != nil {
		res = a.Failed(err)
	}
	if deps.Collectors != nil {
		deps.Collectors.ObserveRender(a.ID, res.State, time.Since(start))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dataset == ds.ID {
		c.results[a.ID] = res
	}
	return res
}

func (c *resultCache) summarize(ds *models.Dataset) *models.DatasetSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dataset != ds.ID {
		c.reset(ds.ID)
	}
	if c.summary == nil {
		c.summary = deps.Summaries.Summarize(ds)
	}
	return c.summary
}

func loadDataset(ctx context.Context) (*models.Dataset, error) {
	return deps.Handle.Load(ctx)
}

// loadMessage is the Vietnamese text shown when the dataset cannot be read.
func loadMessage(err error) string {
	switch {
	case errors.Is(err, dataloader.ErrNoFiles):
		return "Không tìm thấy tệp dữ liệu (.csv, .xlsx) trong thư mục dữ liệu."
	case errors.Is(err, dataloader.ErrUnknownFile):
		return "Không tìm thấy tệp dữ liệu đã chọn."
	case errors.Is(err, storage.ErrLocked):
		return "Dữ liệu đang được mã hoá và chưa mở khoá."
	case errors.Is(err, dataloader.ErrEmptyFile):
		return "Tệp dữ liệu trống."
	}
	return "Lỗi tải dữ liệu: " + err.Error()
}

func lookup(id string) (analyses.Analysis, bool) {
	return deps.Catalog.Get(id)
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	target := deps.Catalog.First()
	if c, err := r.Cookie(LastChartCookie); err == nil {
		if _, ok := lookup(c.Value); ok {
			target = c.Value
		}
	}
	http.Redirect(w, r, "/charts/"+target, http.StatusTemporaryRedirect)
}

// ChartInfo describes one catalog entry.
type ChartInfo struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Kind       models.ChartKind `json:"kind"`
	Unit       models.Unit      `json:"unit"`
	ValueLabel string           `json:"value_label"`
}

func handleChartList(w http.ResponseWriter, r *http.Request) {
	list := lo.Map(deps.Catalog.All(), func(a analyses.Analysis, _ int) ChartInfo {
		return ChartInfo{ID: a.ID, Title: a.Title, Kind: a.Kind, Unit: a.Unit, ValueLabel: a.ValueLabel}
	})
	apphttp.JSON(w, r, http.StatusOK, list)
}

func handleChartJSON(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := lookup(id)
	if !ok {
		apphttp.JSONError(w, r, "unknown chart "+id, http.StatusNotFound)
		return
	}

	ds, err := loadDataset(r.Context())
	if err != nil {
		apphttp.JSONError(w, r, loadMessage(err), http.StatusServiceUnavailable)
		return
	}

	res := cache.result(ds, a)
	status := http.StatusOK
	if res.State == models.StateMissingColumns || res.State == models.StateError {
		status = http.StatusUnprocessableEntity
	}
	apphttp.JSON(w, r, status, res)
}

func handleChartSVG(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := lookup(id)
	if !ok {
		apphttp.ErrorResponse(w, r, "unknown chart "+id, http.StatusNotFound)
		return
	}

	ds, err := loadDataset(r.Context())
	if err != nil {
		apphttp.ErrorResponse(w, r, loadMessage(err), http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	opts := chartsvg.Options{Subplot: q.Get("subplot")}
	opts.Width, _ = strconv.Atoi(q.Get("w"))
	opts.Height, _ = strconv.Atoi(q.Get("h"))

	var buf bytes.Buffer
	err = chartsvg.Render(&buf, cache.result(ds, a), opts)
	switch {
	case errors.Is(err, chartsvg.ErrNotRenderable), errors.Is(err, chartsvg.ErrUnknownSubplot):
		apphttp.ErrorResponse(w, r, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		apphttp.ErrorResponse(w, r, "error drawing chart: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(buf.Bytes())
}

type navItem struct {
	ID     string
	Title  string
	Active bool
}

func nav(active string) []navItem {
	return lo.Map(deps.Catalog.All(), func(a analyses.Analysis, _ int) navItem {
		return navItem{ID: a.ID, Title: a.Title, Active: a.ID == active}
	})
}

func pageData(title, active string) map[string]any {
	return map[string]any{
		"Title":   title,
		"Nav":     nav(active),
		"Version": version.Get().Short(),
	}
}

func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	slog.WarnContext(r.Context(), "page error", "path", r.URL.Path, "status", status, "message", message)
	data := pageData("Lỗi", "")
	data["Message"] = message
	apphttp.RenderTemplateStatus(w, deps.Renderer, status, "error.html", data)
}

func handleChartPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := lookup(id)
	if !ok {
		renderError(w, r, http.StatusNotFound, "Không có biểu đồ "+id+".")
		return
	}

	ds, err := loadDataset(r.Context())
	if err != nil {
		renderError(w, r, http.StatusServiceUnavailable, loadMessage(err))
		return
	}

	res := cache.result(ds, a)
	subplots := chartsvg.Subplots(res)
	subplot := r.URL.Query().Get("subplot")
	rows := res.Rows
	if len(subplots) > 0 {
		if subplot == "" {
			subplot = subplots[0]
		}
		if !lo.Contains(subplots, subplot) {
			renderError(w, r, http.StatusNotFound, "Không có biểu đồ con "+subplot+".")
			return
		}
		rows = lo.Filter(res.Rows, func(row models.ChartRow, _ int) bool { return row.Subplot == subplot })
	}

	http.SetCookie(w, &http.Cookie{
		Name:     LastChartCookie,
		Value:    a.ID,
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	prev, next := deps.Catalog.Neighbors(a.ID)
	data := pageData(a.ID+". "+a.Title, a.ID)
	data["Result"] = res
	data["Summary"] = cache.summarize(ds)
	data["Prev"] = prev
	data["Next"] = next
	data["Subplots"] = subplots
	data["Subplot"] = subplot
	data["Rows"] = rows
	apphttp.RenderTemplate(w, deps.Renderer, "chart.html", data)
}

func handleSummary(w http.ResponseWriter, r *http.Request) {
	ds, err := loadDataset(r.Context())
	if err != nil {
		apphttp.JSONError(w, r, loadMessage(err), http.StatusServiceUnavailable)
		return
	}
	apphttp.JSON(w, r, http.StatusOK, cache.summarize(ds))
}

// ReloadResult is returned by POST /api/dataset/reload.
type ReloadResult struct {
	DatasetID string    `json:"dataset_id"`
	Source    string    `json:"source"`
	Rows      int       `json:"rows"`
	LoadedAt  time.Time `json:"loaded_at"`
}

func handleReload(w http.ResponseWriter, r *http.Request) {
	ds, err := deps.Handle.Reload(r.Context())
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, dataset.ErrStale) {
			status = http.StatusConflict
		}
		if apphttp.WantsHTML(r) {
			renderError(w, r, status, loadMessage(err))
			return
		}
		apphttp.JSONError(w, r, loadMessage(err), status)
		return
	}

	if apphttp.WantsHTML(r) {
		http.Redirect(w, r, "/files", http.StatusSeeOther)
		return
	}
	apphttp.JSON(w, r, http.StatusOK, ReloadResult{
		DatasetID: ds.ID,
		Source:    ds.Source,
		Rows:      ds.Len(),
		LoadedAt:  ds.LoadedAt,
	})
}
