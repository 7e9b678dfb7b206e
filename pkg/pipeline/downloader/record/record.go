// Package record defines the row and dataset types shared by the download
// client, the consolidator and the completeness validator.
package record

import (
	"fmt"
	"sort"
)

// DataType identifies one of the datasets fetched per store.
type DataType string

const (
	TypeConfig   DataType = "config"
	TypeSales    DataType = "sales"
	TypeCategory DataType = "category"
	TypeSPU      DataType = "spu"
)

// AllTypes lists every dataset the downloader acquires, in artifact order.
var AllTypes = []DataType{TypeConfig, TypeSales, TypeCategory, TypeSPU}

// SKULevel reports whether rows of this type carry a SKU component in their
// primary key. Store-level types dedup on store code alone.
func (t DataType) SKULevel() bool {
	return t == TypeSales || t == TypeSPU
}

// String implements fmt.Stringer.
func (t DataType) String() string {
	return string(t)
}

// Row is one record of a dataset. StoreCode is always set; SKU only for
// SKU-level types. Values holds the remaining payload columns.
type Row struct {
	StoreCode string
	SKU       string
	PeriodTag string
	Values    map[string]string
}

// Key returns the deduplication key of the row for the given data type.
func (r Row) Key(t DataType) string {
	if t.SKULevel() {
		return r.StoreCode + "|" + r.SKU
	}
	return r.StoreCode
}

// Dataset is an ordered collection of rows of one data type with a stable
// payload column order.
type Dataset struct {
	Type    DataType
	Columns []string
	Rows    []Row
}

// NewDataset creates an empty dataset for the given type.
func NewDataset(t DataType) *Dataset {
	return &Dataset{Type: t}
}

// Append adds rows to the dataset, extending the payload column set with any
// columns not seen before. Column order stays stable across appends.
func (d *Dataset) Append(rows ...Row) {
	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		seen[c] = true
	}
	for _, row := range rows {
		var added []string
		for c := range row.Values {
			if !seen[c] {
				seen[c] = true
				added = append(added, c)
			}
		}
		sort.Strings(added)
		d.Columns = append(d.Columns, added...)
		d.Rows = append(d.Rows, row)
	}
}

// Merge appends every row of other into d.
func (d *Dataset) Merge(other *Dataset) error {
	if other == nil {
		return nil
	}
	if other.Type != d.Type {
		return fmt.Errorf("cannot merge dataset of type %q into %q", other.Type, d.Type)
	}
	d.Append(other.Rows...)
	return nil
}

// Dedup returns a copy keeping only the first occurrence per primary key, in
// original order. The second return value is the number of dropped rows.
func (d *Dataset) Dedup() (*Dataset, int) {
	out := &Dataset{Type: d.Type, Columns: append([]string(nil), d.Columns...)}
	seen := make(map[string]bool, len(d.Rows))
	dropped := 0
	for _, row := range d.Rows {
		key := row.Key(d.Type)
		if seen[key] {
			dropped++
			continue
		}
		seen[key] = true
		out.Rows = append(out.Rows, row)
	}
	return out, dropped
}

// StoreCodes returns the distinct store codes present in the dataset.
func (d *Dataset) StoreCodes() map[string]bool {
	out := make(map[string]bool)
	for _, row := range d.Rows {
		out[row.StoreCode] = true
	}
	return out
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}
