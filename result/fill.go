package result

import "database/sql"

// FromRows materializes the current result set of rows into one detached
// Table. It does not close rows and does not advance to further result
// sets.
func FromRows(rows *sql.Rows) (*Table, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	table := &Table{Columns: make([]Column, len(types))}
	for i, ct := range types {
		table.Columns[i] = Column{
			Ordinal:  i,
			Name:     ct.Name(),
			TypeName: ct.DatabaseTypeName(),
		}
	}

	holders := make([]any, len(types))
	ptrs := make([]any, len(types))
	for i := range holders {
		ptrs[i] = &holders[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]any, len(holders))
		for i, v := range holders {
			row[i] = Detach(v)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

// AllFromRows materializes every result set of rows, preserving result-set
// order, and closes rows.
func AllFromRows(rows *sql.Rows) ([]Table, error) {
	defer rows.Close()

	var tables []Table
	for {
		t, err := FromRows(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
		if !rows.NextResultSet() {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tables, nil
}

// Detach converts a scanned driver value into an owned copy. Byte slices
// are copied because drivers reuse their buffers between rows.
func Detach(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		cp := make([]byte, len(val))
		copy(cp, val)
		return cp
	case sql.RawBytes:
		cp := make([]byte, len(val))
		copy(cp, val)
		return cp
	default:
		return v
	}
}
