// pkg/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"

	"lakelog/pkg/model"
)

// Errors returned by table-store implementations. ErrNotFound marks normal
// absence (a table that has not been created yet); ErrUnavailable marks a
// genuine I/O failure talking to the backend. Absence is never reported
// through Probe's error return.
var (
	ErrNotFound    = errors.New("table not found")
	ErrUnavailable = errors.New("table store unavailable")
)

// Location addresses one logical table inside the monitoring schema
type Location struct {
	Schema string
	Table  string
}

// Qualified returns the schema-qualified table name
func (l Location) Qualified() string {
	if l.Schema == "" {
		return l.Table
	}
	return fmt.Sprintf("%s.%s", l.Schema, l.Table)
}

func (l Location) String() string {
	return l.Qualified()
}

// WriteMode selects the creation semantics for CreateTable
type WriteMode int

const (
	// CreateIfAbsent leaves an existing table untouched
	CreateIfAbsent WriteMode = iota
	// Overwrite drops and recreates the table, losing existing content
	Overwrite
)

// ProbeResult is the read-only state summary of one table
type ProbeResult struct {
	Exists   bool
	Columns  []string
	RowCount int64
}

// MissingColumns returns the schema columns absent from the probed table
func (p ProbeResult) MissingColumns(schema model.Schema) []string {
	present := make(map[string]struct{}, len(p.Columns))
	for _, c := range p.Columns {
		present[c] = struct{}{}
	}

	var missing []string
	for _, c := range schema.Columns {
		if _, ok := present[c.Name]; !ok {
			missing = append(missing, c.Name)
		}
	}
	return missing
}

// TableStore is the narrow interface the provisioner, event logger and
// readiness gate consume. Every operation is individually atomic; there are
// no cross-table transactions.
type TableStore interface {
	// Probe reports whether the table exists, its columns and row count.
	// A missing table is a normal Exists=false result; a non-nil error
	// always means the backend could not be reached.
	Probe(ctx context.Context, loc Location) (ProbeResult, error)

	// MaxKey returns the maximum value of a string key column.
	// Returns ErrNotFound when the table does not exist or is empty.
	MaxKey(ctx context.Context, loc Location, column string) (string, error)

	// CreateTable creates the table with the declared schema
	CreateTable(ctx context.Context, loc Location, schema model.Schema, mode WriteMode) error

	// Append inserts rows unconditionally
	Append(ctx context.Context, loc Location, schema model.Schema, rows [][]any) (int64, error)

	// InsertMissing inserts only the rows whose key is not already present.
	// Existing rows are never overwritten, so a concurrent identical merge
	// cannot produce duplicate keys.
	InsertMissing(ctx context.Context, loc Location, schema model.Schema, rows [][]any) (int64, error)

	// DeleteWhere removes rows matching the predicate and reports the count
	DeleteWhere(ctx context.Context, loc Location, predicate string, args ...any) (int64, error)

	// CountWhere counts rows matching the predicate
	CountWhere(ctx context.Context, loc Location, predicate string, args ...any) (int64, error)

	// Compact reclaims storage after bulk deletes
	Compact(ctx context.Context, loc Location) error

	// Select runs a query and scans all rows into dest (a slice pointer).
	// The query uses ? placeholders regardless of backend.
	Select(ctx context.Context, dest any, query string, args ...any) error

	// Get runs a query and scans the single result row into dest
	Get(ctx context.Context, dest any, query string, args ...any) error
}
