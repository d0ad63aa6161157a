package ports

import (
	"gosegment/domain/schema"
)

// DatasetReader loads an encoded dataset from an external source (CSV, XLSX,
// database extract). Implementations own parsing, role assignment and missing
// marker translation; the engine only ever sees a schema.Dataset.
type DatasetReader interface {
	Read(path string) (*schema.Dataset, error)
}

// ReadOptions controls how a tabular source is interpreted.
type ReadOptions struct {
	// Roles maps column names to their semantic role. Columns absent from
	// the map default to numeric.
	Roles map[string]schema.ColumnRole

	// Protected names columns that must never be imputed or scaled,
	// regardless of role.
	Protected []string

	// MissingMarkers lists cell values treated as missing in addition to
	// empty cells. Matching is exact after trimming whitespace.
	MissingMarkers []string
}

// DefaultReadOptions treats the usual sentinel strings as missing.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{
		Roles:          map[string]schema.ColumnRole{},
		MissingMarkers: []string{"NA", "N/A", "null", "NULL", "none", "-"},
	}
}
