// Package normalizer converts raw export rows into typed transactions.
//
// Validity is decided per call: each analysis states which fields it needs
// through FieldSpec.Required and may add its own predicate with Keep. Rows
// that fail either check are dropped silently.
package normalizer

import (
	"strings"

	"salesviz/internal/models"
	"salesviz/internal/services/coerce"
)

// Field is a bit set of transaction fields.
type Field uint

const (
	FieldOrder Field = 1 << iota
	FieldGroup
	FieldGroupCode
	FieldItem
	FieldItemCode
	FieldCustomer
	FieldDate
	FieldAmount
	FieldQuantity
)

// Has reports whether all bits of o are set in f.
func (f Field) Has(o Field) bool {
	return f&o == o
}

var fieldNames = []struct {
	field Field
	name  string
}{
	{FieldOrder, "order"},
	{FieldGroup, "group"},
	{FieldGroupCode, "group_code"},
	{FieldItem, "item"},
	{FieldItemCode, "item_code"},
	{FieldCustomer, "customer"},
	{FieldDate, "date"},
	{FieldAmount, "amount"},
	{FieldQuantity, "quantity"},
}

func (f Field) String() string {
	var parts []string
	for _, fn := range fieldNames {
		if f.Has(fn.field) {
			parts = append(parts, fn.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Columns names the header of every source column.
type Columns struct {
	OrderTime string
	Amount    string
	Order     string
	GroupCode string
	GroupName string
	GroupBoth string // optional "[code] name" column that overrides code+name
	ItemCode  string
	ItemName  string
	Customer  string
	Quantity  string
}

// DefaultColumns returns the header names of the standard sales export.
func DefaultColumns() Columns {
	return Columns{
		OrderTime: models.ColOrderTime,
		Amount:    models.ColAmount,
		Order:     models.ColOrder,
		GroupCode: models.ColGroupCode,
		GroupName: models.ColGroupName,
		GroupBoth: models.ColGroupBoth,
		ItemCode:  models.ColItemCode,
		ItemName:  models.ColItemName,
		Customer:  models.ColCustomer,
		Quantity:  models.ColQuantity,
	}
}

// Missing lists the columns needed by required that header lacks, in a
// stable order. A group can come either from the combined column or from
// code and name together.
func (c Columns) Missing(header []string, required Field) []string {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[strings.TrimSpace(h)] = true
	}

	var missing []string
	need := func(cols ...string) {
		for _, col := range cols {
			if !have[col] {
				missing = append(missing, col)
			}
		}
	}

	if required.Has(FieldDate) {
		need(c.OrderTime)
	}
	if required.Has(FieldAmount) {
		need(c.Amount)
	}
	if required.Has(FieldOrder) {
		need(c.Order)
	}
	switch {
	case required.Has(FieldGroup) && !(c.GroupBoth != "" && have[c.GroupBoth]):
		need(c.GroupCode, c.GroupName)
	case required.Has(FieldGroupCode):
		need(c.GroupCode)
	}
	if required.Has(FieldItem) {
		need(c.ItemCode, c.ItemName)
	} else if required.Has(FieldItemCode) {
		need(c.ItemCode)
	}
	if required.Has(FieldCustomer) {
		need(c.Customer)
	}
	if required.Has(FieldQuantity) {
		need(c.Quantity)
	}
	return missing
}

// FieldSpec configures one normalization pass.
type FieldSpec struct {
	Columns  Columns
	Required Field
	// Keep is an extra per-analysis predicate applied after Required.
	Keep   func(models.Transaction) bool
	Parser coerce.Parser
}

// Composite builds the "[code] name" identity of an item or group. It is
// empty when both parts are empty.
func Composite(code, name string) string {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" && name == "" {
		return ""
	}
	return strings.TrimSpace("[" + code + "] " + name)
}

// Normalize converts rows to transactions, dropping every row that lacks
// a required field or fails Keep. rows is not modified.
func Normalize(rows []models.RawRow, spec FieldSpec) []models.Transaction {
	out := make([]models.Transaction, 0, len(rows))
	for _, row := range rows {
		t, amountSet := convert(row, spec)
		if !valid(t, amountSet, spec.Required) {
			continue
		}
		if spec.Keep != nil && !spec.Keep(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func convert(row models.RawRow, spec FieldSpec) (models.Transaction, bool) {
	c := spec.Columns
	cell := func(col string) string {
		if col == "" {
			return ""
		}
		return strings.TrimSpace(row[col])
	}

	t := models.Transaction{
		Order:     cell(c.Order),
		GroupCode: cell(c.GroupCode),
		ItemCode:  cell(c.ItemCode),
		Customer:  cell(c.Customer),
		Hour:      -1,
	}

	if both := cell(c.GroupBoth); both != "" {
		t.Group = both
	} else {
		t.Group = Composite(t.GroupCode, cell(c.GroupName))
	}
	t.Item = Composite(t.ItemCode, cell(c.ItemName))

	if ts, ok := spec.Parser.ParseDate(cell(c.OrderTime)); ok {
		t.Time = ts
		t.Month = int(ts.Month())
		t.Hour = ts.Hour()
	}

	rawAmount := cell(c.Amount)
	t.Amount = coerce.ParseMoney(rawAmount)
	t.Quantity = coerce.ParseQuantity(cell(c.Quantity))

	return t, rawAmount != ""
}

func valid(t models.Transaction, amountSet bool, required Field) bool {
	checks := []struct {
		field Field
		ok    bool
	}{
		{FieldOrder, t.Order != ""},
		{FieldGroup, t.Group != ""},
		{FieldGroupCode, t.GroupCode != ""},
		{FieldItem, t.Item != ""},
		{FieldItemCode, t.ItemCode != ""},
		{FieldCustomer, t.Customer != ""},
		{FieldDate, t.HasDate()},
		{FieldAmount, amountSet},
		{FieldQuantity, t.HasQuantity()},
	}
	for _, c := range checks {
		if required.Has(c.field) && !c.ok {
			return false
		}
	}
	return true
}
