// Package dataset provides a small, read-only column store used as the
// tabular input of metric functions.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Series is a named column of cell values kept in their textual form.
// Numeric interpretation happens on access.
type Series struct {
	Name   string
	values []string
}

// NewSeries creates a series from raw cell values.
func NewSeries(name string, values []string) *Series {
	v := make([]string, len(values))
	copy(v, values)
	return &Series{Name: name, values: v}
}

// NewFloatSeries creates a series from numbers.
func NewFloatSeries(name string, values []float64) *Series {
	v := make([]string, len(values))
	for i, f := range values {
		v[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return &Series{Name: name, values: v}
}

// Len returns the number of cells.
func (s *Series) Len() int {
	return len(s.values)
}

// At returns the raw value of cell i.
func (s *Series) At(i int) string {
	return s.values[i]
}

// Strings returns a copy of the raw values.
func (s *Series) Strings() []string {
	out := make([]string, len(s.values))
	copy(out, s.values)
	return out
}

// Float parses cell i. Booleans map to 0 and 1.
func (s *Series) Float(i int) (float64, bool) {
	return parseFloat(s.values[i])
}

// Floats parses every cell and fails on the first non-numeric one.
func (s *Series) Floats() ([]float64, error) {
	out := make([]float64, len(s.values))
	for i, raw := range s.values {
		f, ok := parseFloat(raw)
		if !ok {
			return nil, fmt.Errorf("column %q row %d: %q is not numeric", s.Name, i, raw)
		}
		out[i] = f
	}
	return out, nil
}

// Positive reports whether cell i counts as the positive label: 1, true or yes
// (case-insensitive), or any number above 0.5.
func (s *Series) Positive(i int) bool {
	return IsPositive(s.values[i])
}

// Unique returns distinct values in first-seen order.
func (s *Series) Unique() []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range s.values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Groups returns the row indices of each distinct value, with keys in
// first-seen order.
func (s *Series) Groups() ([]string, map[string][]int) {
	keys := s.Unique()
	groups := make(map[string][]int, len(keys))
	for i, v := range s.values {
		groups[v] = append(groups[v], i)
	}
	return keys, groups
}

// IsPositive applies the positive-label rule to a raw value.
func IsPositive(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true
	}
	f, ok := parseFloat(raw)
	return ok && f > 0.5
}

func parseFloat(raw string) (float64, bool) {
	t := strings.TrimSpace(raw)
	switch strings.ToLower(t) {
	case "true":
		return 1, true
	case "false":
		return 0, true
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// Frame is an ordered set of equally long columns.
type Frame struct {
	columns []*Series
	index   map[string]int
	rows    int
}

// New builds a frame from columns. Column names must be unique and all
// columns must have the same length.
func New(columns ...*Series) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(columns))}
	for i, col := range columns {
		if _, dup := f.index[col.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", col.Name)
		}
		if i == 0 {
			f.rows = col.Len()
		} else if col.Len() != f.rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", col.Name, col.Len(), f.rows)
		}
		f.index[col.Name] = i
		f.columns = append(f.columns, col)
	}
	return f, nil
}

// MustNew is like New but panics on error. Intended for tests and literals.
func MustNew(columns ...*Series) *Frame {
	f, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return f
}

// FromRecords builds a frame from a header and rows of cells. Short rows are
// padded with empty cells; long rows are an error.
func FromRecords(header []string, rows [][]string) (*Frame, error) {
	cols := make([][]string, len(header))
	for r, row := range rows {
		if len(row) > len(header) {
			return nil, fmt.Errorf("row %d has %d cells, header has %d", r+1, len(row), len(header))
		}
		for c := range header {
			cell := ""
			if c < len(row) {
				cell = row[c]
			}
			cols[c] = append(cols[c], cell)
		}
	}

	series := make([]*Series, len(header))
	for c, name := range header {
		series[c] = &Series{Name: strings.TrimSpace(name), values: cols[c]}
		if series[c].values == nil {
			series[c].values = []string{}
		}
	}
	return New(series...)
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return f.rows
}

// Columns returns column names in order.
func (f *Frame) Columns() []string {
	if f == nil {
		return nil
	}
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the frame has a column called name.
func (f *Frame) Has(name string) bool {
	if f == nil {
		return false
	}
	_, ok := f.index[name]
	return ok
}

// Column returns the named column.
func (f *Frame) Column(name string) (*Series, bool) {
	if f == nil {
		return nil, false
	}
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.columns[i], true
}
