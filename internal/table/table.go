// Package table holds the FeatureTable: a dense matrix of float64 values whose
// rows are keyed by an opaque entity identifier and whose columns are named
// features. Missing values are stored as NaN.
//
// The package also provides the file loaders (CSV, JSON, XLSX, Parquet and
// remote http(s) sources) that materialise a table fully in memory before any
// processing begins.
package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"rfpca/internal/common"

	"gonum.org/v1/gonum/mat"
)

// Table is an in-memory feature table. Rows[i][j] is the value of column j
// for entity IDs[i]. Tables are treated as immutable once built; every
// transforming operation returns a new Table.
type Table struct {
	IDs     []string
	Columns []string
	Rows    [][]float64
}

// New validates and wraps the given data. Identifiers and column names must
// be unique and every row must have one value per column. Infinite values
// are converted to NaN.
func New(ids, columns []string, rows [][]float64) (*Table, error) {
	if len(ids) != len(rows) {
		return nil, fmt.Errorf("%d identifiers for %d rows: %w", len(ids), len(rows), common.ErrDataFormat)
	}

	colSeen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, dup := colSeen[c]; dup {
			return nil, fmt.Errorf("duplicate column %q: %w", c, common.ErrDataFormat)
		}
		colSeen[c] = struct{}{}
	}

	idSeen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if _, dup := idSeen[id]; dup {
			return nil, fmt.Errorf("duplicate identifier %q: %w", id, common.ErrDataFormat)
		}
		idSeen[id] = struct{}{}

		if len(rows[i]) != len(columns) {
			return nil, fmt.Errorf("row %q has %d values, want %d: %w", id, len(rows[i]), len(columns), common.ErrDataFormat)
		}
		for j, v := range rows[i] {
			if math.IsInf(v, 0) {
				rows[i][j] = math.NaN()
			}
		}
	}

	return &Table{IDs: ids, Columns: columns, Rows: rows}, nil
}

// NumRows returns the number of entities.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// NumCols returns the number of feature columns.
func (t *Table) NumCols() int {
	if t == nil {
		return 0
	}
	return len(t.Columns)
}

// Empty reports whether the table has no rows or no columns.
func (t *Table) Empty() bool {
	return t.NumRows() == 0 || t.NumCols() == 0
}

// ColumnIndex returns the position of the named column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// Column returns a copy of column j.
func (t *Table) Column(j int) []float64 {
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[j]
	}
	return out
}

// Take returns a new table made of the rows at the given positions, in order.
func (t *Table) Take(positions []int) *Table {
	out := &Table{
		IDs:     make([]string, len(positions)),
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]float64, len(positions)),
	}
	for i, p := range positions {
		out.IDs[i] = t.IDs[p]
		out.Rows[i] = append([]float64(nil), t.Rows[p]...)
	}
	return out
}

// Select returns a new table restricted to the named columns, in the given order.
func (t *Table) Select(names []string) (*Table, error) {
	idx := make([]int, len(names))
	for k, name := range names {
		j, ok := t.ColumnIndex(name)
		if !ok {
			return nil, fmt.Errorf("unknown column %q: %w", name, common.ErrDataFormat)
		}
		idx[k] = j
	}

	out := &Table{
		IDs:     append([]string(nil), t.IDs...),
		Columns: append([]string(nil), names...),
		Rows:    make([][]float64, len(t.Rows)),
	}
	for i, row := range t.Rows {
		r := make([]float64, len(idx))
		for k, j := range idx {
			r[k] = row[j]
		}
		out.Rows[i] = r
	}
	return out, nil
}

// Drop returns a new table without the named columns. Unknown names are ignored.
func (t *Table) Drop(names []string) *Table {
	skip := make(map[string]struct{}, len(names))
	for _, n := range names {
		skip[n] = struct{}{}
	}
	keep := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if _, ok := skip[c]; !ok {
			keep = append(keep, c)
		}
	}
	out, _ := t.Select(keep)
	return out
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	positions := make([]int, t.NumRows())
	for i := range positions {
		positions[i] = i
	}
	return t.Take(positions)
}

// MissingCount returns the number of NaN cells.
func (t *Table) MissingCount() int {
	n := 0
	for _, row := range t.Rows {
		for _, v := range row {
			if math.IsNaN(v) {
				n++
			}
		}
	}
	return n
}

// Dense copies the values into a gonum matrix.
func (t *Table) Dense() *mat.Dense {
	if t.Empty() {
		return &mat.Dense{}
	}
	d := mat.NewDense(t.NumRows(), t.NumCols(), nil)
	for i, row := range t.Rows {
		d.SetRow(i, row)
	}
	return d
}

// ParseValue coerces a text cell to float64. Empty, unparsable and infinite
// cells become NaN.
func ParseValue(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	switch strings.ToLower(s) {
	case "true":
		return 1
	case "false":
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// CoerceValue converts a decoded JSON value to float64 following the same
// rules as ParseValue.
func CoerceValue(v any) float64 {
	switch x := v.(type) {
	case nil:
		return math.NaN()
	case float64:
		if math.IsInf(x, 0) {
			return math.NaN()
		}
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		return ParseValue(x)
	default:
		return ParseValue(fmt.Sprint(x))
	}
}
