// Package provider defines the small interface set each backend
// implements: a static capability table, a data-directed binder from
// neutral definitions to native calls, an error translator, and a
// cursor-to-table fetch hook.
//
// Backends are independent implementations selected once by database-type
// tag. There is no shared base: the three engines disagree on parameter
// prefixes, output semantics, multi-result mechanics, and error
// signaling, and a common superclass would smuggle one backend's
// assumptions into the others.
package provider

import (
	"context"
	"database/sql"

	"github.com/sqlbridge/sqlbridge/command"
	"github.com/sqlbridge/sqlbridge/dberr"
	"github.com/sqlbridge/sqlbridge/result"
)

// Capability is the static per-backend execution-shape table. Constructed
// once; read-only thereafter.
type Capability struct {
	// SupportsStreaming permits forward-only row-at-a-time reads.
	// False for Oracle: streaming a refcursor-backed reader risks
	// partial consumption, so Oracle reads are buffered only.
	SupportsStreaming bool

	// SupportsNativeMultiResult permits NextResultSet-style iteration
	// over several result sets on one command.
	SupportsNativeMultiResult bool

	// RequiresCursorTransactionScope means refcursors can only be
	// opened and read inside one transaction (PostgreSQL).
	RequiresCursorTransactionScope bool

	// ParameterPrefix is the backend's bind-name convention: "@" for
	// SQL-Server-style, ":" for Oracle-style, "" for positional.
	ParameterPrefix string
}

// Queryer is the execution surface a call runs against: the pinned
// connection, or the active transaction when one exists. Satisfied by
// *sql.Conn and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// OutputSlot is one declared non-cursor output, resolved at bind time.
// Resolving slots once keeps name mapping out of call sites: extraction
// walks the slots instead of string-matching parameter names afterwards.
type OutputSlot struct {
	// Name is the prefix-stripped dictionary key.
	Name string

	DataType command.DataType

	// Dest is the typed holder handed to the driver, nil when the
	// backend returns outputs as a result row instead.
	Dest any
}

// CursorSlot is one cursor-typed output in declaration order.
type CursorSlot struct {
	Name string

	// Dest is the native cursor holder for backends that fill cursors
	// through output binding (Oracle). Nil for name-based fetching.
	Dest any

	// FetchName is the server-side cursor name for name-based fetching
	// (PostgreSQL). Filled from the call's first result row.
	FetchName string
}

// Call is a bound, backend-native invocation produced by BuildCall.
type Call struct {
	// Text is the native statement, procedure-call block, or procedure
	// name, depending on the backend's invocation shape.
	Text string

	// Args are driver-ready arguments, including any native output
	// wrappers.
	Args []any

	// Outputs are the declared scalar outputs in declaration order.
	Outputs []OutputSlot

	// Cursors are the cursor-typed outputs in declaration order. Each
	// becomes one table; none appear in the output dictionary.
	Cursors []CursorSlot

	// OutputsFromRow means scalar outputs and cursor names come back as
	// columns of the call's first result row (PostgreSQL functions).
	OutputsFromRow bool

	// ExpectRows selects QueryContext over ExecContext.
	ExpectRows bool
}

// Provider is one backend implementation.
type Provider interface {
	// Name is the configuration tag ("sqlserver", "postgres", "oracle").
	Name() string

	// DriverName is the database/sql driver registration name.
	DriverName() string

	// Capability returns the backend's static capability table.
	Capability() Capability

	// BuildCall binds a validated definition into a native call. Binding
	// is purely data-directed; an unmapped DataType fails loudly with a
	// validation-class error.
	BuildCall(def *command.Definition) (*Call, *dberr.StructuredError)

	// Translate reduces a native error to the structured taxonomy. It
	// never returns nil for a non-nil error and never leaks the native
	// error value.
	Translate(err error) *dberr.StructuredError

	// FetchCursorTables converts the call's cursor slots into tables,
	// in declaration order, after the call has executed. Backends
	// without cursor outputs return (nil, nil).
	FetchCursorTables(ctx context.Context, q Queryer, call *Call) ([]result.Table, error)
}
