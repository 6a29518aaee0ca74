// Package sqlserver binds neutral command definitions to SQL Server via
// github.com/microsoft/go-mssqldb.
//
// Invocation shapes: statement text executes as a T-SQL batch with @name
// parameters; stored procedures execute by bare name through the driver's
// RPC path, with sql.Out wrappers for output parameters and
// mssql.ReturnStatus for the return value. Multiple result sets are
// native (NextResultSet), so there are no cursor slots.
package sqlserver

import (
	"context"
	"database/sql"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/sqlbridge/sqlbridge/command"
	"github.com/sqlbridge/sqlbridge/dberr"
	"github.com/sqlbridge/sqlbridge/internal/provider"
	"github.com/sqlbridge/sqlbridge/result"
)

// Name is the configuration tag for this backend.
const Name = "sqlserver"

type sqlServer struct {
	translator *provider.Translator
}

// New returns the SQL Server provider.
func New() provider.Provider {
	return &sqlServer{translator: provider.NewTranslator(rules())}
}

func (s *sqlServer) Name() string       { return Name }
func (s *sqlServer) DriverName() string { return "sqlserver" }

func (s *sqlServer) Capability() provider.Capability {
	return provider.Capability{
		SupportsStreaming:              true,
		SupportsNativeMultiResult:      true,
		RequiresCursorTransactionScope: false,
		ParameterPrefix:                "@",
	}
}

func (s *sqlServer) Translate(err error) *dberr.StructuredError {
	return s.translator.Translate(err)
}

// FetchCursorTables is a no-op: SQL Server returns multiple result sets
// natively.
func (s *sqlServer) FetchCursorTables(context.Context, provider.Queryer, *provider.Call) ([]result.Table, error) {
	return nil, nil
}

// BuildCall maps parameters through the fixed type table and assembles
// driver arguments. No reflection, no branching outside this package.
func (s *sqlServer) BuildCall(def *command.Definition) (*provider.Call, *dberr.StructuredError) {
	call := &provider.Call{Text: def.Text}

	for _, p := range def.Parameters {
		if p.ArrayBinding {
			return nil, dberr.NewValidation(command.CodeUnsupportedType,
				dberr.KeyValUnsupportedType, "array-binding", p.Name, Name)
		}
		name := result.StripPrefix(p.Name)

		switch p.Direction {
		case command.In:
			v, serr := inputValue(name, p)
			if serr != nil {
				return nil, serr
			}
			call.Args = append(call.Args, sql.Named(name, v))

		case command.Out, command.InOut:
			dest, serr := newHolder(name, p.DataType)
			if serr != nil {
				return nil, serr
			}
			out := sql.Out{Dest: dest}
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

		case command.ReturnValue:
			rs := new(mssql.ReturnStatus)
			call.Args = append(call.Args, rs)
			call.Outputs = append(call.Outputs, provider.OutputSlot{
				Name:     name,
				DataType: command.TypeInt32,
				Dest:     rs,
			})
		}
	}

	return call, nil
}

// inputValue converts a neutral input into the driver representation.
func inputValue(name string, p command.Parameter) (any, *dberr.StructuredError) {
	if p.Value == nil {
		return nil, nil
	}
	switch p.DataType {
	case command.TypeGUID:
		switch v := p.Value.(type) {
		case string:
			var id mssql.UniqueIdentifier
			if err := id.Scan(v); err != nil {
				return nil, dberr.NewValidation(command.CodeUnsupportedType,
					dberr.KeyValUnsupportedType, p.DataType, name, Name)
			}
			return id, nil
		case [16]byte:
			return mssql.UniqueIdentifier(v), nil
		}
	case command.TypeFixedString:
		if v, ok := p.Value.(string); ok {
			return mssql.VarCharMax(v), nil
		}
	}
	// Remaining types travel as their Go values; the driver maps them.
	return p.Value, nil
}

// newHolder allocates the typed scan destination for an output slot.
// The nullable holder family keeps NULL representable; extraction
// collapses invalid holders to nil.
func newHolder(name string, dt command.DataType) (any, *dberr.StructuredError) {
	switch dt {
	case command.TypeBool:
		return new(sql.NullBool), nil
	case command.TypeInt16, command.TypeInt32, command.TypeInt64:
		return new(sql.NullInt64), nil
	case command.TypeFloat32, command.TypeFloat64:
		return new(sql.NullFloat64), nil
	case command.TypeDecimal, command.TypeString, command.TypeFixedString:
		return new(sql.NullString), nil
	case command.TypeBinary:
		return new([]byte), nil
	case command.TypeGUID:
		return new(mssql.UniqueIdentifier), nil
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
	case *sql.NullBool:
		return d.Scan(value)
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
			return nil
		}
	case *mssql.UniqueIdentifier:
		return d.Scan(value)
	}
	return nil
}
