package models

import "time"

// ChartKind tells the rendering layer how to draw a result.
type ChartKind string

const (
	KindHorizontalBar ChartKind = "hbar"
	KindColumn        ChartKind = "column"
	KindLine          ChartKind = "line"
	KindSmallMultiple ChartKind = "small_multiple"
	KindHistogram     ChartKind = "histogram"
)

// Unit is the measure plotted on the value axis.
type Unit string

const (
	UnitMoney Unit = "vnd"
	UnitShare Unit = "share" // 0..1
	UnitCount Unit = "count"
)

// ChartState distinguishes a rendered chart from the outcomes that leave it
// empty.
type ChartState string

const (
	StateOK             ChartState = "ok"
	StateNoData         ChartState = "no_data"
	StateMissingColumns ChartState = "missing_columns"
	// StateError is a computation that failed on data that was present.
	StateError ChartState = "error"
)

// ChartRow is one plotted mark with its display strings.
type ChartRow struct {
	Label   string  `json:"label"`
	Series  string  `json:"series,omitempty"`  // legend/colour key
	Subplot string  `json:"subplot,omitempty"` // small multiple title
	Value   float64 `json:"value"`
	Display string  `json:"display"`
	Tooltip []Field `json:"tooltip,omitempty"`
}

// Field is a labelled tooltip line.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ChartResult is what an analysis hands to the rendering layer.
type ChartResult struct {
	ID         string              `json:"id"`
	Title      string              `json:"title"`
	Kind       ChartKind           `json:"kind"`
	State      ChartState          `json:"state"`
	Message    string              `json:"message,omitempty"`
	ValueLabel string              `json:"value_label"`
	Unit       Unit                `json:"unit"`
	Aggregates []AggregateRecord   `json:"aggregates,omitempty"`
	Shares     []ProbabilityRecord `json:"shares,omitempty"`
	Bins       []HistogramBin      `json:"bins,omitempty"`
	Rows       []ChartRow          `json:"rows"`
	Dropped    int                 `json:"dropped"`            // rows excluded by the analysis filter
	Rejected   int                 `json:"rejected,omitempty"` // values the binner could not place
}

// DatasetSummary contains the headline numbers of a loaded dataset.
type DatasetSummary struct {
	DatasetID     string    `json:"dataset_id"`
	Source        string    `json:"source"`
	RawRows       int       `json:"raw_rows"`
	Transactions  int       `json:"transactions"`
	TotalRevenue  float64   `json:"total_revenue"`
	TotalQuantity float64   `json:"total_quantity"`
	Orders        int       `json:"orders"`
	Customers     int       `json:"customers"`
	Groups        int       `json:"groups"`
	AvgOrderValue float64   `json:"avg_order_value"`
	NegativeLines int       `json:"negative_lines"`
	UndatedLines  int       `json:"undated_lines"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	LoadedAt      time.Time `json:"loaded_at"`

	Trend       []MonthRevenue `json:"trend"`
	TrendChange float64        `json:"trend_change"` // percent, last month over previous
}

// MonthRevenue is one point of the summary trend.
type MonthRevenue struct {
	Month   string  `json:"month"` // "2006-01"
	Revenue float64 `json:"revenue"`
}
