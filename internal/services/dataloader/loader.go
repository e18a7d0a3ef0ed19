// Package dataloader reads a sales export (CSV or XLSX) from the data
// directory into an immutable models.Dataset.
package dataloader

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"salesviz/internal/models"
	"salesviz/internal/services/coerce"
	"salesviz/internal/services/normalizer"
	"salesviz/internal/services/storage"
)

var (
	ErrNoFiles         = errors.New("no sales export found in data directory")
	ErrEmptyFile       = errors.New("file has no header row")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrUnknownFile     = errors.New("file not found in data directory")
)

const utf8BOM = "\ufeff"

// DataLoader loads the active sales export through storage, so encrypted
// data directories are read transparently.
type DataLoader struct {
	store   *storage.Storage
	parser  coerce.Parser
	columns normalizer.Columns
	file    string // base name; empty means newest file
}

// Option configures a DataLoader.
type Option func(*DataLoader)

// WithColumns sets the source column names used for file metadata.
func WithColumns(c normalizer.Columns) Option {
	return func(dl *DataLoader) {
		dl.columns = c
	}
}

// New creates a loader. file names the export to load; empty picks the
// most recently modified data file on every load.
func New(store *storage.Storage, file string, parser coerce.Parser, opts ...Option) *DataLoader {
	dl := &DataLoader{
		store:   store,
		parser:  parser,
		columns: normalizer.DefaultColumns(),
		file:    filepath.Base(file),
	}
	for _, opt := range opts {
		opt(dl)
	}
	return dl
}

// Selected returns the configured file name, or "" when following the
// newest file.
func (dl *DataLoader) Selected() string {
	if dl.file == "." {
		return ""
	}
	return dl.file
}

// active resolves which entry will be loaded.
func (dl *DataLoader) active(entries []storage.Entry) (storage.Entry, error) {
	if len(entries) == 0 {
		return storage.Entry{}, ErrNoFiles
	}
	name := dl.Selected()
	if name == "" {
		return entries[0], nil
	}
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	return storage.Entry{}, fmt.Errorf("%w: %s", ErrUnknownFile, name)
}

// Load reads and parses the active export.
func (dl *DataLoader) Load(ctx context.Context) (*models.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := dl.store.List()
	if err != nil {
		return nil, fmt.Errorf("error listing data files: %w", err)
	}
	entry, err := dl.active(entries)
	if err != nil {
		return nil, err
	}

	data, err := dl.store.ReadFile(entry.Path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", entry.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	header, rows, err := Parse(entry.Name, data)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", entry.Name, err)
	}

	slog.InfoContext(ctx, "dataset loaded", "file", entry.Name, "rows", len(rows), "columns", len(header))
	return &models.Dataset{
		Source:   entry.Name,
		Header:   header,
		Rows:     rows,
		LoadedAt: time.Now(),
	}, nil
}

// ListFiles describes every data file, marking the one Load would use.
// Row counts and date ranges come from a full parse of each file; files
// that cannot be read are listed without them.
func (dl *DataLoader) ListFiles() ([]models.FileInfo, error) {
	entries, err := dl.store.List()
	if err != nil {
		return nil, err
	}
	active, _ := dl.active(entries)

	infos := make([]models.FileInfo, 0, len(entries))
	for _, e := range entries {
		info := models.FileInfo{
			Name:   e.Name,
			Path:   e.Path,
			Size:   e.Size,
			Format: strings.TrimPrefix(strings.ToLower(filepath.Ext(e.Name)), "."),
			Active: e.Path == active.Path,
		}

		if data, err := dl.store.ReadFile(e.Path); err != nil {
			slog.Debug("skipping metadata scan", "file", e.Name, "error", err)
		} else if _, rows, err := Parse(e.Name, data); err == nil {
			info.Rows = len(rows)
			info.MinDate, info.MaxDate = dl.dateRange(rows)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (dl *DataLoader) dateRange(rows []models.RawRow) (string, string) {
	var lo, hi time.Time
	for _, r := range rows {
		t, ok := dl.parser.ParseDate(r[dl.columns.OrderTime])
		if !ok {
			continue
		}
		if lo.IsZero() || t.Before(lo) {
			lo = t
		}
		if hi.IsZero() || t.After(hi) {
			hi = t
		}
	}
	if lo.IsZero() {
		return "", ""
	}
	return lo.Format(time.DateOnly), hi.Format(time.DateOnly)
}

// Parse decodes an export by file extension.
func Parse(name string, data []byte) ([]string, []models.RawRow, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ParseCSV(data)
	case ".xlsx":
		return ParseXLSX(data)
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(name))
	}
}

// ParseCSV decodes delimited text. The separator is ';' when the first
// line contains one, ',' otherwise. A leading UTF-8 BOM is dropped.
func ParseCSV(data []byte) ([]string, []models.RawRow, error) {
	data = bytes.TrimPrefix(data, []byte(utf8BOM))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffSeparator(data)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, ErrEmptyFile
	}
	if err != nil {
		return nil, nil, fmt.Errorf("error reading header: %w", err)
	}
	header = cleanHeader(header)

	var rows []models.RawRow
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			slog.Warn("skipping malformed line", "line", line, "error", err)
			continue
		}
		rows = append(rows, toRow(header, record))
	}
	return header, rows, nil
}

// ParseXLSX reads the first sheet of a workbook. Cells are read raw so
// date cells arrive as spreadsheet serial numbers.
func ParseXLSX(data []byte) ([]string, []models.RawRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrEmptyFile
	}

	records, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, nil, ErrEmptyFile
	}

	header := cleanHeader(records[0])
	rows := make([]models.RawRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		rows = append(rows, toRow(header, rec))
	}
	return header, rows, nil
}

func sniffSeparator(data []byte) rune {
	first, _, _ := bytes.Cut(data, []byte("\n"))
	if bytes.ContainsRune(first, ';') {
		return ';'
	}
	return ','
}

func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(strings.TrimPrefix(h, utf8BOM))
	}
	return out
}

// toRow keys a record by header name. When a name repeats, the first
// column wins; unnamed columns are dropped.
func toRow(header, record []string) models.RawRow {
	row := make(models.RawRow, len(header))
	for i, name := range header {
		if name == "" {
			continue
		}
		if _, seen := row[name]; seen {
			continue
		}
		if i < len(record) {
			row[name] = record[i]
		} else {
			row[name] = ""
		}
	}
	return row
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
