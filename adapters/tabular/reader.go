// Package tabular loads CSV and XLSX files into encoded datasets. Numeric
// cells parse directly; categorical and text cells are label-encoded with
// deterministic (sorted) codes; missing markers become NaN.
package tabular

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"gosegment/domain/schema"
	"gosegment/internal/errors"
	"gosegment/ports"
)

// Reader implements ports.DatasetReader for delimited and spreadsheet files.
type Reader struct {
	opts ports.ReadOptions
}

// NewReader creates a reader with the given interpretation options.
func NewReader(opts ports.ReadOptions) *Reader {
	if opts.Roles == nil {
		opts.Roles = map[string]schema.ColumnRole{}
	}
	return &Reader{opts: opts}
}

// Read loads the file at path, dispatching on extension. Supported formats
// are .csv and .xlsx.
func (r *Reader) Read(path string) (*schema.Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return r.readCSV(path)
	case ".xlsx":
		return r.readXLSX(path)
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unsupported file extension: %s", filepath.Ext(path)))
	}
}

func (r *Reader) readCSV(path string) (*schema.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}

	return r.buildDataset(records)
}

func (r *Reader) readXLSX(path string) (*schema.Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.InvalidInput("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "reading sheet %s", sheets[0])
	}

	return r.buildDataset(rows)
}

// buildDataset converts a header row plus data rows into an encoded dataset.
func (r *Reader) buildDataset(records [][]string) (*schema.Dataset, error) {
	if len(records) < 2 {
		return nil, errors.InvalidInput("file needs a header row and at least one data row")
	}

	header := records[0]
	body := records[1:]

	protected := make(map[string]bool, len(r.opts.Protected))
	for _, name := range r.opts.Protected {
		protected[name] = true
	}

	columns := make([]schema.FeatureColumn, len(header))
	raw := make([][]string, len(header))
	for j, name := range header {
		name = strings.TrimSpace(name)
		role, ok := r.opts.Roles[name]
		if !ok {
			role = schema.RoleNumeric
		}
		columns[j] = schema.FeatureColumn{
			Name:      name,
			Role:      role,
			Protected: protected[name] || role == schema.RoleIdentifier,
		}

		cells := make([]string, len(body))
		for i, row := range body {
			if j < len(row) {
				cells[i] = strings.TrimSpace(row[j])
			}
		}
		raw[j] = cells
	}

	data := make(map[string][]float64, len(columns))
	for j, col := range columns {
		values, err := r.encodeColumn(col, raw[j])
		if err != nil {
			return nil, err
		}
		data[col.Name] = values
	}

	return schema.NewDataset(columns, data)
}

// encodeColumn turns one column of raw cells into float64 values with NaN
// marking missing entries.
func (r *Reader) encodeColumn(col schema.FeatureColumn, cells []string) ([]float64, error) {
	values := make([]float64, len(cells))

	switch col.Role {
	case schema.RoleCategorical, schema.RoleText:
		codes := r.labelCodes(cells)
		for i, cell := range cells {
			if r.isMissing(cell) {
				values[i] = math.NaN()
				continue
			}
			values[i] = codes[cell]
		}
		return values, nil
	default:
		for i, cell := range cells {
			if r.isMissing(cell) {
				values[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, errors.InvalidInput(
					fmt.Sprintf("column %s row %d: cannot parse %q as a number", col.Name, i+1, cell))
			}
			values[i] = v
		}
		return values, nil
	}
}

// labelCodes assigns each distinct observed value a code by sorted order so
// the encoding is independent of row order.
func (r *Reader) labelCodes(cells []string) map[string]float64 {
	distinct := make(map[string]bool)
	for _, cell := range cells {
		if !r.isMissing(cell) {
			distinct[cell] = true
		}
	}

	sorted := make([]string, 0, len(distinct))
	for value := range distinct {
		sorted = append(sorted, value)
	}
	sort.Strings(sorted)

	codes := make(map[string]float64, len(sorted))
	for i, value := range sorted {
		codes[value] = float64(i)
	}
	return codes
}

func (r *Reader) isMissing(cell string) bool {
	if cell == "" {
		return true
	}
	for _, marker := range r.opts.MissingMarkers {
		if cell == marker {
			return true
		}
	}
	return false
}
