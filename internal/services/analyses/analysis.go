// Package analyses holds the twelve sales charts. Each Analysis is a small
// configuration object: which columns it needs, which rows it keeps and how
// it groups them. The heavy lifting is shared through normalizer,
// aggregator and binner.
package analyses

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"salesviz/internal/models"
	"salesviz/internal/services/binner"
	"salesviz/internal/services/coerce"
	"salesviz/internal/services/normalizer"
)

var (
	// ErrNoData means the dataset, or what is left of it after filtering,
	// has nothing to chart.
	ErrNoData = errors.New("no data")
	// ErrMissingColumns is matched by every *MissingColumnsError.
	ErrMissingColumns = errors.New("missing columns")
	// ErrUnknownAnalysis is returned for an ID that is not in the catalog.
	ErrUnknownAnalysis = errors.New("unknown analysis")
)

// MissingColumnsError lists the header names an analysis needs but the
// dataset lacks.
type MissingColumnsError struct {
	Analysis string
	Columns  []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: missing columns: %s", e.Analysis, strings.Join(e.Columns, ", "))
}

func (e *MissingColumnsError) Is(target error) bool {
	return target == ErrMissingColumns
}

// Message is the Vietnamese text shown in place of a chart for err.
func Message(err error) string {
	var mc *MissingColumnsError
	switch {
	case errors.As(err, &mc):
		return "Thiếu cột: " + strings.Join(mc.Columns, " · ")
	case errors.Is(err, ErrNoData):
		return "Không có dữ liệu."
	case errors.Is(err, binner.ErrTooManyBins):
		return fmt.Sprintf("Lỗi: mức chi trả quá lớn để chia thành tối đa %d khoảng. Hãy tăng độ rộng khoảng.", binner.MaxBins)
	case err != nil:
		return "Lỗi: " + err.Error()
	}
	return ""
}

// Options are the run-time knobs shared by all analyses.
type Options struct {
	Columns  normalizer.Columns
	Parser   coerce.Parser
	TopN     int     // Q1 ranking length, 0 for all
	BinWidth float64 // Q12 histogram width
}

// DefaultOptions matches the standard export.
func DefaultOptions() Options {
	return Options{
		Columns:  normalizer.DefaultColumns(),
		Parser:   coerce.NewParser(coerce.DayFirst, time.Local),
		TopN:     20,
		BinWidth: 50000,
	}
}

// computeFunc turns the normalized rows into a result. It must not keep
// references to txs.
type computeFunc func(txs []models.Transaction, opts Options) (*models.ChartResult, error)

// Analysis is one chart definition.
type Analysis struct {
	ID         string
	Title      string
	Kind       models.ChartKind
	ValueLabel string
	Unit       models.Unit
	// Needs are the columns checked against the header before anything runs.
	Needs normalizer.Field
	// Required are the fields a row must carry to be kept.
	Required normalizer.Field
	// Keep is an extra row predicate, nil to keep all.
	Keep func(models.Transaction) bool

	compute computeFunc
}

// Run executes the analysis against ds. It returns a *MissingColumnsError
// when the header lacks a needed column and ErrNoData when nothing is left
// to chart. ds is never modified.
func (a Analysis) Run(ds *models.Dataset, opts Options) (*models.ChartResult, error) {
	if ds.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", a.ID, ErrNoData)
	}
	if missing := opts.Columns.Missing(ds.Header, a.Needs|a.Required); len(missing) > 0 {
		return nil, &MissingColumnsError{Analysis: a.ID, Columns: missing}
	}

	txs := normalizer.Normalize(ds.Rows, normalizer.FieldSpec{
		Columns:  opts.Columns,
		Required: a.Required,
		Keep:     a.Keep,
		Parser:   opts.Parser,
	})
	if len(txs) == 0 {
		return nil, fmt.Errorf("%s: no valid rows of %d: %w", a.ID, ds.Len(), ErrNoData)
	}

	res, err := a.compute(txs, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.ID, err)
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("%s: %w", a.ID, ErrNoData)
	}

	res.ID = a.ID
	res.Title = a.Title
	res.Kind = a.Kind
	res.ValueLabel = a.ValueLabel
	res.Unit = a.Unit
	res.State = models.StateOK
	res.Dropped = ds.Len() - len(txs)
	return res, nil
}

// Failed builds the result shown when Run returned err.
func (a Analysis) Failed(err error) *models.ChartResult {
	state := models.StateError
	switch {
	case errors.Is(err, ErrMissingColumns):
		state = models.StateMissingColumns
	case errors.Is(err, ErrNoData):
		state = models.StateNoData
	}
	return &models.ChartResult{
		ID:         a.ID,
		Title:      a.Title,
		Kind:       a.Kind,
		ValueLabel: a.ValueLabel,
		Unit:       a.Unit,
		State:      state,
		Message:    Message(err),
		Rows:       []models.ChartRow{},
	}
}

func field(name, value string) models.Field {
	return models.Field{Name: name, Value: value}
}

func pad2(n int) string {
	return fmt.Sprintf("%02d", n)
}
