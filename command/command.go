// Package command defines the backend-neutral description of one database
// call: statement text or procedure name, typed parameters, and execution
// hints. Definitions are plain data; binding them to a concrete backend
// happens elsewhere.
package command

import "time"

// Kind distinguishes raw statement text from a stored-procedure call.
type Kind int

const (
	// Text executes the definition's Text as a statement.
	Text Kind = iota
	// StoredProcedure treats Text as a procedure name. Procedure names
	// must be present in the definition's AllowList; they are never
	// inferred from concatenated input.
	StoredProcedure
)

// String returns the kind's display name.
func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case StoredProcedure:
		return "stored-procedure"
	default:
		return "unknown"
	}
}

// Direction describes how a parameter's value flows.
type Direction int

const (
	In Direction = iota
	Out
	InOut
	ReturnValue
)

// IsOutput reports whether the backend writes a value back through this
// direction.
func (d Direction) IsOutput() bool {
	return d == Out || d == InOut || d == ReturnValue
}

// DataType is the cross-backend type tag. Each backend maps these to its
// native types through a fixed lookup table; an unmapped tag is a
// programmer error and fails loudly at bind time.
type DataType int

const (
	TypeUnspecified DataType = iota
	TypeBool
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeDecimal
	TypeString
	TypeFixedString
	TypeBinary
	TypeGUID
	TypeDate
	TypeTime
	TypeTimestamp
	TypeTimestampTZ
	TypeRefCursor
)

var dataTypeNames = map[DataType]string{
	TypeUnspecified: "unspecified",
	TypeBool:        "bool",
	TypeInt16:       "int16",
	TypeInt32:       "int32",
	TypeInt64:       "int64",
	TypeFloat32:     "float32",
	TypeFloat64:     "float64",
	TypeDecimal:     "decimal",
	TypeString:      "string",
	TypeFixedString: "fixed-string",
	TypeBinary:      "binary",
	TypeGUID:        "guid",
	TypeDate:        "date",
	TypeTime:        "time",
	TypeTimestamp:   "timestamp",
	TypeTimestampTZ: "timestamptz",
	TypeRefCursor:   "refcursor",
}

// String returns the type's display name.
func (t DataType) String() string {
	if n, ok := dataTypeNames[t]; ok {
		return n
	}
	return "invalid"
}

// IsDecimal reports whether the type carries precision and scale.
func (t DataType) IsDecimal() bool { return t == TypeDecimal }

// IsSized reports whether the type carries a length constraint when used
// as an output or length-constrained value.
func (t DataType) IsSized() bool {
	return t == TypeString || t == TypeFixedString || t == TypeBinary
}

// Parameter describes one bind value.
type Parameter struct {
	// Name is the logical name without any backend prefix. Binders add
	// the backend's prefix convention; extraction strips it again.
	Name string

	Direction Direction
	DataType  DataType

	// Value is the input value. Ignored for Out and ReturnValue.
	Value any

	// Size is the length constraint for string/binary values. Required
	// for output and length-constrained string or binary parameters.
	Size int

	// Precision and Scale are required for decimal-family parameters.
	Precision int
	Scale     int

	// StructuredTypeName names a backend-side composite type, when one
	// applies (e.g. a table-valued parameter type).
	StructuredTypeName string

	// ArrayBinding marks a PL/SQL associative-array bind. Value must be
	// a non-empty slice, and every array parameter in one command must
	// carry the same element count.
	ArrayBinding bool
}

// Hints carries caller intent about the result shape.
type Hints struct {
	// Streaming requests a forward-only, row-at-a-time read. Rejected
	// before any connection attempt when the backend does not support
	// streaming.
	Streaming bool

	// MultiResult requests extraction of every result set, native or
	// cursor-based.
	MultiResult bool

	// Scalar requests only the first column of the first row.
	Scalar bool
}

// Definition is one backend-neutral command. It is immutable once handed
// to an executor; executors copy what they need and never write back.
type Definition struct {
	Text string
	Kind Kind

	Parameters []Parameter

	// Timeout overrides the executor's configured command timeout when
	// non-zero.
	Timeout time.Duration

	Hints Hints

	// AllowList enumerates the identifiers this command is permitted to
	// reference. Procedure names and every entry of ValidateIdentifiers
	// are checked against it.
	AllowList []string

	// ValidateIdentifiers lists identifiers embedded in Text that must
	// be present in AllowList (e.g. a destination table name).
	ValidateIdentifiers []string
}

// Outputs returns the declared non-input parameters in declaration order,
// excluding cursor-typed ones (cursors are results, not scalar outputs).
func (d *Definition) Outputs() []Parameter {
	var out []Parameter
	for _, p := range d.Parameters {
		if p.Direction.IsOutput() && p.DataType != TypeRefCursor {
			out = append(out, p)
		}
	}
	return out
}

// CursorOutputs returns the cursor-typed output parameters in declaration
// order.
func (d *Definition) CursorOutputs() []Parameter {
	var out []Parameter
	for _, p := range d.Parameters {
		if p.Direction.IsOutput() && p.DataType == TypeRefCursor {
			out = append(out, p)
		}
	}
	return out
}
