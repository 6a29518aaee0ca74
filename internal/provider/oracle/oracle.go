// Package oracle binds neutral command definitions to Oracle via
// github.com/sijms/go-ora/v2.
//
// Stored procedures execute as anonymous PL/SQL blocks with :name binds;
// output parameters use go_ora.Out wrappers; refcursor outputs are
// drained into detached tables after the block runs. Streaming is
// disallowed by the capability table: a refcursor-backed reader that is
// only partially consumed leaks the server-side cursor, so Oracle reads
// are buffered only.
package oracle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	go_ora "github.com/sijms/go-ora/v2"

	"github.com/sqlbridge/sqlbridge/command"
	"github.com/sqlbridge/sqlbridge/dberr"
	"github.com/sqlbridge/sqlbridge/internal/provider"
	"github.com/sqlbridge/sqlbridge/result"
)

// Name is the configuration tag for this backend.
const Name = "oracle"

// maxArrayElems is the PL/SQL index-by table bind ceiling per call.
const maxArrayElems = 32767

type oracle struct {
	translator *provider.Translator
}

// New returns the Oracle provider.
func New() provider.Provider {
	return &oracle{translator: provider.NewTranslator(rules())}
}

func (o *oracle) Name() string       { return Name }
func (o *oracle) DriverName() string { return "oracle" }

func (o *oracle) Capability() provider.Capability {
	return provider.Capability{
		SupportsStreaming:              false,
		SupportsNativeMultiResult:      false,
		RequiresCursorTransactionScope: false,
		ParameterPrefix:                ":",
	}
}

func (o *oracle) Translate(err error) *dberr.StructuredError {
	return o.translator.Translate(err)
}

// BuildCall assembles the PL/SQL invocation.
//
// Statement text binds :name parameters directly. A procedure becomes
// BEGIN name(:p1, ...); END; — and when a ReturnValue parameter is
// declared, BEGIN :ret := name(...); END; instead.
func (o *oracle) BuildCall(def *command.Definition) (*provider.Call, *dberr.StructuredError) {
	if n := command.ArrayLength(def); n > maxArrayElems {
		return nil, dberr.NewValidation("VAL_ARRAY_MAX",
			dberr.KeyValArrayMax, n, maxArrayElems)
	}
	call := &provider.Call{}

	var (
		bindNames  []string
		returnName string
	)

	for _, p := range def.Parameters {
		name := result.StripPrefix(p.Name)

		switch p.Direction {
		case command.In:
			v, serr := inputValue(name, p)
			if serr != nil {
				return nil, serr
			}
			call.Args = append(call.Args, sql.Named(name, v))
			bindNames = append(bindNames, name)

		case command.Out, command.InOut, command.ReturnValue:
			if p.DataType == command.TypeRefCursor {
				cursor := new(go_ora.RefCursor)
				call.Args = append(call.Args, sql.Named(name, go_ora.Out{Dest: cursor}))
				call.Cursors = append(call.Cursors, provider.CursorSlot{
					Name: name,
					Dest: cursor,
				})
				bindNames = append(bindNames, name)
				break
			}

			dest, serr := newHolder(name, p.DataType)
			if serr != nil {
				return nil, serr
			}
			out := go_ora.Out{Dest: dest, Size: p.Size}
			if p.Direction == command.InOut {
				out.In = true
				if err := seedHolder(dest, p.Value); err != nil {
					return nil, dberr.NewValidation(command.CodeUnsupportedType,
						dberr.KeyValUnsupportedType, p.DataType, name, Name)
				}
			}
			call.Args = append(call.Args, sql.Named(name, out))
			call.Outputs = append(call.Outputs, provider.OutputSlot{
				Name:     name,
				DataType: p.DataType,
				Dest:     dest,
			})
			if p.Direction == command.ReturnValue {
				returnName = name
			} else {
				bindNames = append(bindNames, name)
			}
		}
	}

	switch def.Kind {
	case command.StoredProcedure:
		placeholders := make([]string, len(bindNames))
		for i, n := range bindNames {
			placeholders[i] = ":" + n
		}
		args := strings.Join(placeholders, ", ")
		if returnName != "" {
			call.Text = fmt.Sprintf("BEGIN :%s := %s(%s); END;", returnName, def.Text, args)
		} else {
			call.Text = fmt.Sprintf("BEGIN %s(%s); END;", def.Text, args)
		}
	default:
		call.Text = def.Text
	}

	return call, nil
}

// inputValue converts a neutral input to the driver representation.
// Array-binding slices travel as PL/SQL associative arrays, which the
// driver derives from the slice value itself; homogeneous lengths were
// already enforced by validation.
func inputValue(name string, p command.Parameter) (any, *dberr.StructuredError) {
	if p.Value == nil {
		return nil, nil
	}
	if p.ArrayBinding {
		return p.Value, nil
	}
	switch p.DataType {
	case command.TypeGUID:
		// Oracle stores guids as RAW(16); strings are converted.
		if s, ok := p.Value.(string); ok {
			return []byte(s), nil
		}
	case command.TypeBool:
		// No native boolean in Oracle SQL: NUMBER(1) convention.
		if b, ok := p.Value.(bool); ok {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
	}
	return p.Value, nil
}

// newHolder allocates the typed destination for an output bind.
func newHolder(name string, dt command.DataType) (any, *dberr.StructuredError) {
	switch dt {
	case command.TypeBool, command.TypeInt16, command.TypeInt32, command.TypeInt64:
		return new(sql.NullInt64), nil
	case command.TypeFloat32, command.TypeFloat64:
		return new(sql.NullFloat64), nil
	case command.TypeDecimal, command.TypeString, command.TypeFixedString:
		return new(sql.NullString), nil
	case command.TypeBinary, command.TypeGUID:
		return new([]byte), nil
	case command.TypeDate, command.TypeTime, command.TypeTimestamp, command.TypeTimestampTZ:
		return new(sql.NullTime), nil
	default:
		return nil, dberr.NewValidation(command.CodeUnsupportedType,
			dberr.KeyValUnsupportedType, dt, name, Name)
	}
}

// seedHolder writes an InOut parameter's initial value into its holder.
func seedHolder(dest, value any) error {
	if value == nil {
		return nil
	}
	switch d := dest.(type) {
	case *sql.NullInt64:
		return d.Scan(value)
	case *sql.NullFloat64:
		return d.Scan(value)
	case *sql.NullString:
		return d.Scan(value)
	case *sql.NullTime:
		return d.Scan(value)
	case *[]byte:
		if b, ok := value.([]byte); ok {
			*d = b
		}
	}
	return nil
}

// FetchCursorTables drains every refcursor output into a detached table,
// in declaration order, closing each cursor as it goes.
func (o *oracle) FetchCursorTables(ctx context.Context, q provider.Queryer, call *provider.Call) ([]result.Table, error) {
	tables := make([]result.Table, 0, len(call.Cursors))
	for _, slot := range call.Cursors {
		cursor, ok := slot.Dest.(*go_ora.RefCursor)
		if !ok || cursor == nil {
			return nil, fmt.Errorf("refcursor %q: no cursor handle bound", slot.Name)
		}
		t, err := drainCursor(cursor)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
	}
	return tables, nil
}

// drainCursor reads a refcursor's full result set and closes it.
func drainCursor(cursor *go_ora.RefCursor) (*result.Table, error) {
	defer cursor.Close()

	ds, err := cursor.Query()
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	cols := ds.Columns()
	table := &result.Table{Columns: make([]result.Column, len(cols))}
	for i, name := range cols {
		table.Columns[i] = result.Column{Ordinal: i, Name: name}
	}

	holders := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range holders {
		ptrs[i] = &holders[i]
	}
	for ds.Next_() {
		if err := ds.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]any, len(holders))
		for i, v := range holders {
			row[i] = result.Detach(v)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := ds.Err(); err != nil {
		return nil, err
	}
	return table, nil
}
