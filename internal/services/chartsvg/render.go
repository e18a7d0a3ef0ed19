// Package chartsvg draws chart results as standalone SVG documents.
package chartsvg

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/samber/lo"
	"github.com/wcharczuk/go-chart/v2"

	"salesviz/internal/models"
	"salesviz/internal/services/format"
)

var (
	ErrNotRenderable  = errors.New("chart has no data to draw")
	ErrUnknownSubplot = errors.New("unknown subplot")
)

const (
	defaultWidth  = 960
	defaultHeight = 480
	labelRunes    = 22
)

// Options control the drawing.
type Options struct {
	Width  int
	Height int
	// Subplot selects one panel of a small-multiple chart; empty means the
	// first one.
	Subplot string
}

func (o Options) size() (int, int) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = defaultWidth
	}
	if h <= 0 {
		h = defaultHeight
	}
	return w, h
}

// Subplots returns the panel names of a small-multiple result in order.
func Subplots(res *models.ChartResult) []string {
	if res == nil || res.Kind != models.KindSmallMultiple {
		return nil
	}
	names := lo.Map(res.Rows, func(r models.ChartRow, _ int) string { return r.Subplot })
	return lo.Uniq(lo.Compact(names))
}

// Render writes res as SVG to w.
func Render(w io.Writer, res *models.ChartResult, opts Options) error {
	if res == nil || res.State != models.StateOK || len(res.Rows) == 0 {
		return ErrNotRenderable
	}

	rows, title, err := panel(res, opts.Subplot)
	if err != nil {
		return err
	}

	if isMultiSeries(res.Kind, rows) {
		return renderLines(w, res, rows, title, opts)
	}
	return renderBars(w, res, rows, title, opts)
}

// panel picks the rows of the requested subplot.
func panel(res *models.ChartResult, subplot string) ([]models.ChartRow, string, error) {
	if res.Kind != models.KindSmallMultiple {
		return res.Rows, res.Title, nil
	}
	names := Subplots(res)
	if subplot == "" && len(names) > 0 {
		subplot = names[0]
	}
	rows := lo.Filter(res.Rows, func(r models.ChartRow, _ int) bool { return r.Subplot == subplot })
	if len(rows) == 0 {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownSubplot, subplot)
	}
	return rows, res.Title + " · " + subplot, nil
}

// isMultiSeries reports whether rows share x labels across series and so
// need one line per series.
func isMultiSeries(kind models.ChartKind, rows []models.ChartRow) bool {
	if kind == models.KindLine {
		return true
	}
	if kind != models.KindSmallMultiple {
		return false
	}
	labels := lo.Uniq(lo.Map(rows, func(r models.ChartRow, _ int) string { return r.Label }))
	return len(labels) < len(rows)
}

func valueFormatter(unit models.Unit) chart.ValueFormatter {
	return func(v interface{}) string {
		f, ok := v.(float64)
		if !ok {
			return fmt.Sprint(v)
		}
		switch unit {
		case models.UnitMoney:
			return format.MillionsShort(f)
		case models.UnitShare:
			return format.PercentTick(f)
		default:
			return format.Int(f)
		}
	}
}

// valueRange always includes zero and never collapses to a point.
func valueRange(unit models.Unit, values []float64) *chart.ContinuousRange {
	low, high := 0.0, 0.0
	for _, v := range values {
		low = math.Min(low, v)
		high = math.Max(high, v)
	}
	if unit == models.UnitShare {
		high = math.Max(high, 1)
	}
	if high-low == 0 {
		high = low + 1
	}
	return &chart.ContinuousRange{Min: low, Max: high * 1.05}
}

func background() chart.Style {
	return chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}}
}

func renderBars(w io.Writer, res *models.ChartResult, rows []models.ChartRow, title string, opts Options) error {
	width, height := opts.size()
	values := lo.Map(rows, func(r models.ChartRow, _ int) float64 { return r.Value })

	bars := lo.Map(rows, func(r models.ChartRow, _ int) chart.Value {
		return chart.Value{
			Label: format.Truncate(r.Label, labelRunes),
			Value: r.Value,
			Style: chart.Style{
				FillColor:   chart.GetDefaultColor(0),
				StrokeColor: chart.GetDefaultColor(0),
			},
		}
	})

	spacing := 8
	barWidth := (width-120)/len(rows) - spacing
	if barWidth < 4 {
		barWidth, spacing = 4, 2
	}

	bc := chart.BarChart{
		Title:        title,
		Width:        width,
		Height:       height,
		Background:   background(),
		BarWidth:     barWidth,
		BarSpacing:   spacing,
		UseBaseValue: true,
		BaseValue:    0,
		XAxis:        chart.Style{TextRotationDegrees: rotation(len(rows))},
		YAxis: chart.YAxis{
			Name:           res.ValueLabel,
			Range:          valueRange(res.Unit, values),
			ValueFormatter: valueFormatter(res.Unit),
		},
		Bars: bars,
	}
	return bc.Render(chart.SVG, w)
}

func rotation(n int) float64 {
	if n > 8 {
		return 45
	}
	return 0
}

func renderLines(w io.Writer, res *models.ChartResult, rows []models.ChartRow, title string, opts Options) error {
	width, height := opts.size()

	labels := lo.Uniq(lo.Map(rows, func(r models.ChartRow, _ int) string { return r.Label }))
	pos := make(map[string]float64, len(labels))
	ticks := make([]chart.Tick, len(labels))
	for i, l := range labels {
		pos[l] = float64(i)
		ticks[i] = chart.Tick{Value: float64(i), Label: format.Truncate(l, labelRunes)}
	}

	var series []chart.Series
	names := lo.Uniq(lo.Map(rows, func(r models.ChartRow, _ int) string { return r.Series }))
	for i, name := range names {
		points := lo.Filter(rows, func(r models.ChartRow, _ int) bool { return r.Series == name })
		color := chart.GetDefaultColor(i)
		series = append(series, chart.ContinuousSeries{
			Name:    format.Truncate(name, labelRunes),
			XValues: lo.Map(points, func(r models.ChartRow, _ int) float64 { return pos[r.Label] }),
			YValues: lo.Map(points, func(r models.ChartRow, _ int) float64 { return r.Value }),
			Style: chart.Style{
				StrokeColor: color,
				StrokeWidth: 2,
				DotColor:    color,
				DotWidth:    3,
			},
		})
	}

	xMax := float64(len(labels) - 1)
	if xMax < 1 {
		xMax = 1
	}

	ch := chart.Chart{
		Title:      title,
		Width:      width,
		Height:     height,
		Background: background(),
		XAxis: chart.XAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: xMax},
			Ticks: ticks,
		},
		YAxis: chart.YAxis{
			Name:           res.ValueLabel,
			Range:          valueRange(res.Unit, lo.Map(rows, func(r models.ChartRow, _ int) float64 { return r.Value })),
			ValueFormatter: valueFormatter(res.Unit),
		},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.LegendLeft(&ch)}
	return ch.Render(chart.SVG, w)
}
