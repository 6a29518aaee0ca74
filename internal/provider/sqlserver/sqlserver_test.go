package sqlserver

import (
	"database/sql"
	"testing"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbridge/sqlbridge/command"
	"github.com/sqlbridge/sqlbridge/dberr"
)

// TestCapability pins the backend's static capability row.
func TestCapability(t *testing.T) {
	cap := New().Capability()
	assert.True(t, cap.SupportsStreaming)
	assert.True(t, cap.SupportsNativeMultiResult)
	assert.False(t, cap.RequiresCursorTransactionScope)
	assert.Equal(t, "@", cap.ParameterPrefix)
}

// TestBuildCall_InputsBindByName verifies inputs become sql.Named args
// with the prefix stripped.
func TestBuildCall_InputsBindByName(t *testing.T) {
	def := &command.Definition{
		Text: "SELECT * FROM Orders WHERE Region = @region",
		Parameters: []command.Parameter{
			{Name: "@region", Direction: command.In, DataType: command.TypeString, Value: "EMEA"},
		},
	}

	call, serr := New().BuildCall(def)
	require.Nil(t, serr)
	require.Len(t, call.Args, 1)

	named, ok := call.Args[0].(sql.NamedArg)
	require.True(t, ok)
	assert.Equal(t, "region", named.Name)
	assert.Equal(t, "EMEA", named.Value)
}

// TestBuildCall_OutputWrapsInSQLOut verifies output parameters bind through
// sql.Out with a typed nullable holder.
func TestBuildCall_OutputWrapsInSQLOut(t *testing.T) {
	def := &command.Definition{
		Text: "dbo.usp_GetTotal",
		Kind: command.StoredProcedure,
		Parameters: []command.Parameter{
			{Name: "total", Direction: command.Out, DataType: command.TypeInt64},
		},
	}

	call, serr := New().BuildCall(def)
	require.Nil(t, serr)
	require.Len(t, call.Args, 1)

	named := call.Args[0].(sql.NamedArg)
	out, ok := named.Value.(sql.Out)
	require.True(t, ok)
	assert.False(t, out.In)
	_, ok = out.Dest.(*sql.NullInt64)
	assert.True(t, ok)

	require.Len(t, call.Outputs, 1)
	assert.Same(t, out.Dest, call.Outputs[0].Dest)
}

// TestBuildCall_InOutSeedsHolder verifies InOut parameters carry their
// initial value into the holder and set the In flag.
func TestBuildCall_InOutSeedsHolder(t *testing.T) {
	def := &command.Definition{
		Text: "dbo.usp_Bump",
		Kind: command.StoredProcedure,
		Parameters: []command.Parameter{
			{Name: "counter", Direction: command.InOut, DataType: command.TypeInt64, Value: int64(41)},
		},
	}

	call, serr := New().BuildCall(def)
	require.Nil(t, serr)

	out := call.Args[0].(sql.NamedArg).Value.(sql.Out)
	assert.True(t, out.In)
	holder := out.Dest.(*sql.NullInt64)
	assert.True(t, holder.Valid)
	assert.Equal(t, int64(41), holder.Int64)
}

// TestBuildCall_ReturnValueUsesReturnStatus verifies the return value binds
// the driver's dedicated status type.
func TestBuildCall_ReturnValueUsesReturnStatus(t *testing.T) {
	def := &command.Definition{
		Text: "dbo.usp_DoWork",
		Kind: command.StoredProcedure,
		Parameters: []command.Parameter{
			{Name: "rc", Direction: command.ReturnValue, DataType: command.TypeInt32},
		},
	}

	call, serr := New().BuildCall(def)
	require.Nil(t, serr)
	require.Len(t, call.Args, 1)
	_, ok := call.Args[0].(*mssql.ReturnStatus)
	assert.True(t, ok)

	require.Len(t, call.Outputs, 1)
	assert.Equal(t, "rc", call.Outputs[0].Name)
	assert.Equal(t, command.TypeInt32, call.Outputs[0].DataType)
}

// TestBuildCall_GUIDStringConverts verifies guid inputs convert to the
// driver's UniqueIdentifier.
func TestBuildCall_GUIDStringConverts(t *testing.T) {
	def := &command.Definition{
		Text: "SELECT @id",
		Parameters: []command.Parameter{
			{Name: "id", Direction: command.In, DataType: command.TypeGUID,
				Value: "6F9619FF-8B86-D011-B42D-00C04FC964FF"},
		},
	}

	call, serr := New().BuildCall(def)
	require.Nil(t, serr)
	_, ok := call.Args[0].(sql.NamedArg).Value.(mssql.UniqueIdentifier)
	assert.True(t, ok)
}

// TestBuildCall_InvalidGUIDRejected verifies malformed guid text fails at
// bind time, not on the server.
func TestBuildCall_InvalidGUIDRejected(t *testing.T) {
	def := &command.Definition{
		Text: "SELECT @id",
		Parameters: []command.Parameter{
			{Name: "id", Direction: command.In, DataType: command.TypeGUID, Value: "not-a-guid"},
		},
	}

	_, serr := New().BuildCall(def)
	require.NotNil(t, serr)
	assert.Equal(t, dberr.TypeValidation, serr.Type)
}

// TestBuildCall_ArrayBindingRejected verifies associative-array binds do
// not exist on this backend.
func TestBuildCall_ArrayBindingRejected(t *testing.T) {
	def := &command.Definition{
		Text: "dbo.usp_Load",
		Kind: command.StoredProcedure,
		Parameters: []command.Parameter{
			{Name: "ids", Direction: command.In, DataType: command.TypeInt64, ArrayBinding: true, Value: []int64{1}},
		},
	}

	_, serr := New().BuildCall(def)
	require.NotNil(t, serr)
	assert.Equal(t, command.CodeUnsupportedType, serr.Code)
}
