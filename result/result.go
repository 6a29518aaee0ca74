// Package result defines the shapes an execution hands back to callers:
// detached tables, the execution result envelope, and the type-directed
// value normalization that makes identical logical data look identical
// across backends.
package result

import "time"

// Column describes one result column.
type Column struct {
	Ordinal  int
	Name     string
	TypeName string
}

// Table is one fully materialized result set. Rows are detached copies;
// they never alias live driver buffers, so a Table stays valid after the
// reader and connection are gone.
type Table struct {
	Columns []Column
	Rows    [][]any
}

// RowCount returns the number of buffered rows.
func (t *Table) RowCount() int { return len(t.Rows) }

// ColumnNames returns the column names in ordinal order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Result is the envelope returned by every executor operation. It is
// owned by the caller; the executor keeps no reference after returning.
type Result struct {
	// InvocationID correlates this execution in caller-side diagnostics.
	InvocationID string

	// Scalar holds the first column of the first row for scalar-shaped
	// calls, nil otherwise.
	Scalar any

	// RowsAffected reports the driver's affected-row count for
	// non-query executions, zero when not applicable.
	RowsAffected int64

	// Tables holds the materialized result sets in declaration /
	// execution order. Cursor-typed outputs appear here, never in
	// Outputs.
	Tables []Table

	// Outputs maps declared output-parameter names (prefix stripped) to
	// their normalized values. A backend NULL maps to a nil entry.
	Outputs map[string]any

	// Duration covers binding through result shaping.
	Duration time.Duration

	// Retries counts additional attempts beyond the first.
	Retries int
}

// FirstTable returns the first result set, or nil when there is none.
func (r *Result) FirstTable() *Table {
	if len(r.Tables) == 0 {
		return nil
	}
	return &r.Tables[0]
}

// BulkResult reports a completed bulk import.
type BulkResult struct {
	RowsCopied int64
	Duration   time.Duration
}
