package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"

	"salesviz/internal/models"
	"salesviz/internal/services/analyses"
	"salesviz/internal/services/chartsvg"
	"salesviz/internal/services/metrics"
)

// Entry is one line of the report index.
type Entry struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	State    models.ChartState `json:"state"`
	Message  string            `json:"message,omitempty"`
	Rows     int               `json:"rows"`
	Dropped  int               `json:"dropped"`
	JSONFile string            `json:"json_file"`
	SVGFiles []string          `json:"svg_files,omitempty"`
}

// Report is written to index.json next to the chart files.
type Report struct {
	Summary *models.DatasetSummary `json:"summary"`
	Charts  []Entry                `json:"charts"`
}

// Writer runs the catalog over a dataset and writes one JSON file per
// chart plus SVG drawings of every chart that has data.
type Writer struct {
	Catalog   *analyses.Catalog
	Options   analyses.Options
	Summaries *metrics.Service
	Workers   int
	SVG       bool
	// Progress receives the progress bar; nil disables it.
	Progress io.Writer
}

// Write fills outDir and returns the index it wrote.
func (w *Writer) Write(ctx context.Context, ds *models.Dataset, outDir string) (*Report, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	bar := w.progressBar()
	var (
		mu       sync.Mutex
		writeErr error
	)
	outcomes, err := w.Catalog.RunAll(ctx, ds, w.Options, w.Workers, func(o analyses.Outcome) {
		err := w.writeChart(outDir, o)
		mu.Lock()
		writeErr = errors.Join(writeErr, err)
		mu.Unlock()
		if bar != nil {
			_ = bar.Add(1)
		}
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return nil, err
	}
	if writeErr != nil {
		return nil, writeErr
	}

	report := &Report{Summary: w.Summaries.Summarize(ds)}
	for _, o := range outcomes {
		report.Charts = append(report.Charts, entryFor(o, w.SVG))
	}

	if err := writeJSON(filepath.Join(outDir, "index.json"), report); err != nil {
		return nil, err
	}
	return report, nil
}

func (w *Writer) progressBar() *progressbar.ProgressBar {
	if w.Progress == nil {
		return nil
	}
	return progressbar.NewOptions(w.Catalog.Len(),
		progressbar.OptionSetWriter(w.Progress),
		progressbar.OptionSetDescription("charts"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func result(o analyses.Outcome) *models.ChartResult {
	if o.Err != nil {
		return o.Analysis.Failed(o.Err)
	}
	return o.Result
}

func (w *Writer) writeChart(outDir string, o analyses.Outcome) error {
	res := result(o)
	if err := writeJSON(filepath.Join(outDir, o.Analysis.ID+".json"), res); err != nil {
		return err
	}
	if !w.SVG || res.State != models.StateOK {
		return nil
	}

	for i, name := range svgNames(res) {
		opts := chartsvg.Options{}
		if subplots := chartsvg.Subplots(res); len(subplots) > 0 {
			opts.Subplot = subplots[i]
		}
		var buf bytes.Buffer
		if err := chartsvg.Render(&buf, res, opts); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(outDir, name), buf.Bytes(), 0644); err != nil {
			return err
		}
	}
	return nil
}

// svgNames lists the drawings of a result: one per subplot for small
// multiples, otherwise a single file.
func svgNames(res *models.ChartResult) []string {
	subplots := chartsvg.Subplots(res)
	if len(subplots) == 0 {
		return []string{res.ID + ".svg"}
	}
	names := make([]string, len(subplots))
	for i := range subplots {
		names[i] = fmt.Sprintf("%s_%02d.svg", res.ID, i+1)
	}
	return names
}

func entryFor(o analyses.Outcome, svg bool) Entry {
	res := result(o)
	e := Entry{
		ID:       res.ID,
		Title:    res.Title,
		State:    res.State,
		Message:  res.Message,
		Rows:     len(res.Rows),
		Dropped:  res.Dropped,
		JSONFile: res.ID + ".json",
	}
	if svg && res.State == models.StateOK {
		e.SVGFiles = svgNames(res)
	}
	return e
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
