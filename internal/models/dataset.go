package models

import "time"

// Column names of the sales export. They are fixed by the upstream sheet.
const (
	ColOrderTime = "Thời gian tạo đơn"
	ColAmount    = "Thành tiền"
	ColOrder     = "Mã đơn hàng"
	ColGroupCode = "Mã nhóm hàng"
	ColGroupName = "Tên nhóm hàng"
	ColGroupBoth = "Mã và tên nhóm hàng"
	ColItemCode  = "Mã mặt hàng"
	ColItemName  = "Tên mặt hàng"
	ColCustomer  = "Mã khách hàng"
	ColQuantity  = "SL"
)

// Dataset is one loaded export. It is never mutated after loading; a reload
// produces a new Dataset.
type Dataset struct {
	ID       string    `json:"id"`
	Source   string    `json:"source"`
	Header   []string  `json:"header"`
	Rows     []RawRow  `json:"-"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Len returns the number of data rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// FileInfo describes a candidate data file in the data directory.
type FileInfo struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Format  string `json:"format"` // csv or xlsx
	Active  bool   `json:"active"`
	Rows    int    `json:"rows"`
	MinDate string `json:"min_date"`
	MaxDate string `json:"max_date"`
}
