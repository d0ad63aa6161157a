package schema

import (
	"fmt"
	"math"
	"sort"

	"gosegment/domain/core"
)

// ColumnRole is the semantic role assigned to a column at ingestion time.
// Roles are fixed once assigned by the upstream encoder and never re-inferred
// mid-pipeline.
type ColumnRole string

const (
	RoleIdentifier  ColumnRole = "identifier"
	RoleNumeric     ColumnRole = "numeric"
	RoleCategorical ColumnRole = "categorical"
	RoleText        ColumnRole = "text"
)

// Valid reports whether the role is one of the closed set of variants.
func (r ColumnRole) Valid() bool {
	switch r {
	case RoleIdentifier, RoleNumeric, RoleCategorical, RoleText:
		return true
	}
	return false
}

// FeatureColumn describes one column of the encoded matrix. Protected columns
// are never removed or altered regardless of statistics.
type FeatureColumn struct {
	Name      string     `json:"name"`
	Role      ColumnRole `json:"role"`
	Protected bool       `json:"protected"`
}

// Key returns the column's domain key.
func (c FeatureColumn) Key() core.ColumnKey {
	return core.ColumnKey(c.Name)
}

// Scalable reports whether the column participates in standardization and
// reduction. Identifier and text columns, and anything protected, stay out.
func (c FeatureColumn) Scalable() bool {
	if c.Protected {
		return false
	}
	return c.Role == RoleNumeric || c.Role == RoleCategorical
}

// Dataset is an immutable column-major numeric frame. Missing values are
// represented as NaN. Stages never mutate a Dataset in place; they derive a
// new one via WithColumns.
type Dataset struct {
	columns []FeatureColumn
	data    map[string][]float64
	rows    int
}

// NewDataset builds a dataset from column metadata and column-major values.
// Every declared column must be present with the same number of rows.
func NewDataset(columns []FeatureColumn, data map[string][]float64) (*Dataset, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("dataset requires at least one column")
	}

	rows := -1
	for _, col := range columns {
		if !col.Role.Valid() {
			return nil, fmt.Errorf("column %s has invalid role %q", col.Name, col.Role)
		}
		values, ok := data[col.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrColumnNotFound, col.Name)
		}
		if rows == -1 {
			rows = len(values)
		} else if len(values) != rows {
			return nil, fmt.Errorf("column %s has %d rows, expected %d", col.Name, len(values), rows)
		}
	}

	// Defensive copy so callers cannot alias the internal storage.
	copied := make(map[string][]float64, len(data))
	for _, col := range columns {
		values := make([]float64, rows)
		copy(values, data[col.Name])
		copied[col.Name] = values
	}

	cols := make([]FeatureColumn, len(columns))
	copy(cols, columns)

	return &Dataset{columns: cols, data: copied, rows: rows}, nil
}

// Rows returns the number of observations.
func (d *Dataset) Rows() int {
	return d.rows
}

// Columns returns the column metadata in declaration order.
func (d *Dataset) Columns() []FeatureColumn {
	cols := make([]FeatureColumn, len(d.columns))
	copy(cols, d.columns)
	return cols
}

// ColumnMeta returns the metadata for a named column.
func (d *Dataset) ColumnMeta(name string) (FeatureColumn, error) {
	for _, col := range d.columns {
		if col.Name == name {
			return col, nil
		}
	}
	return FeatureColumn{}, fmt.Errorf("%w: %s", core.ErrColumnNotFound, name)
}

// Column returns a copy of the named column's values.
func (d *Dataset) Column(name string) ([]float64, error) {
	values, ok := d.data[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrColumnNotFound, name)
	}
	out := make([]float64, len(values))
	copy(out, values)
	return out, nil
}

// ScalableColumns returns the columns eligible for standardization/reduction.
func (d *Dataset) ScalableColumns() []FeatureColumn {
	var out []FeatureColumn
	for _, col := range d.columns {
		if col.Scalable() {
			out = append(out, col)
		}
	}
	return out
}

// MissingFraction returns the fraction of NaN cells in the named column.
func (d *Dataset) MissingFraction(name string) (float64, error) {
	values, ok := d.data[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", core.ErrColumnNotFound, name)
	}
	if len(values) == 0 {
		return 0, nil
	}
	missing := 0
	for _, v := range values {
		if math.IsNaN(v) {
			missing++
		}
	}
	return float64(missing) / float64(len(values)), nil
}

// ObservedIndices returns the row indices where the named column is observed.
func (d *Dataset) ObservedIndices(name string) ([]int, error) {
	values, ok := d.data[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrColumnNotFound, name)
	}
	var idx []int
	for i, v := range values {
		if !math.IsNaN(v) {
			idx = append(idx, i)
		}
	}
	return idx, nil
}

// MissingIndicator returns a 0/1 indicator slice marking missing rows.
func (d *Dataset) MissingIndicator(name string) ([]float64, error) {
	values, ok := d.data[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrColumnNotFound, name)
	}
	indicator := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			indicator[i] = 1
		}
	}
	return indicator, nil
}

// WithColumns derives a new dataset replacing the given columns' values.
// Unreplaced columns are carried over unchanged; metadata is immutable.
func (d *Dataset) WithColumns(replacements map[string][]float64) (*Dataset, error) {
	data := make(map[string][]float64, len(d.columns))
	for _, col := range d.columns {
		if repl, ok := replacements[col.Name]; ok {
			if len(repl) != d.rows {
				return nil, fmt.Errorf("replacement for %s has %d rows, expected %d", col.Name, len(repl), d.rows)
			}
			data[col.Name] = repl
			continue
		}
		data[col.Name] = d.data[col.Name]
	}
	for name := range replacements {
		if _, ok := d.data[name]; !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrColumnNotFound, name)
		}
	}
	return NewDataset(d.columns, data)
}

// Fingerprint returns a deterministic hash of column values and layout.
func (d *Dataset) Fingerprint() core.Hash {
	return core.ComputeMatrixFingerprint(d.data)
}

// SortedColumnNames returns column names in lexical order, useful for
// deterministic iteration in reports and fingerprints.
func (d *Dataset) SortedColumnNames() []string {
	names := make([]string, 0, len(d.columns))
	for _, col := range d.columns {
		names = append(names, col.Name)
	}
	sort.Strings(names)
	return names
}
