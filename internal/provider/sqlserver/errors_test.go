package sqlserver

import (
	"errors"
	"fmt"
	"testing"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbridge/sqlbridge/dberr"
)

// TestTranslate_NumberTable drives the classifier through representative
// server error numbers.
func TestTranslate_NumberTable(t *testing.T) {
	p := New()

	cases := []struct {
		number    int32
		wantType  dberr.Type
		wantCode  string
		transient bool
	}{
		{1205, dberr.TypeDeadlock, "MSSQL_1205", true},
		{-2, dberr.TypeTimeout, "MSSQL_-2", true},
		{8645, dberr.TypeTimeout, "MSSQL_8645", true},
		{18456, dberr.TypeConnectionFailure, "MSSQL_18456", false},
		{4060, dberr.TypeConnectionFailure, "MSSQL_4060", false},
		{233, dberr.TypeConnectionFailure, "MSSQL_233", true},
		{40613, dberr.TypeConnectionFailure, "MSSQL_40613", true},
		{701, dberr.TypeResourceLimit, "MSSQL_701", true},
		{10928, dberr.TypeResourceLimit, "MSSQL_10928", true},
		{102, dberr.TypeSyntax, "MSSQL_102", false},
		{2812, dberr.TypeSyntax, "MSSQL_2812", false},
	}

	for _, tc := range cases {
		err := mssql.Error{Number: tc.number, Message: "server message"}
		se := p.Translate(err)
		require.NotNil(t, se, "number %d", tc.number)
		assert.Equal(t, tc.wantType, se.Type, "number %d", tc.number)
		assert.Equal(t, tc.wantCode, se.Code, "number %d", tc.number)
		assert.Equal(t, tc.transient, se.Transient, "number %d", tc.number)
	}
}

// TestTranslate_LoginFailureNotTransient pins the auth override: the type
// defaults transient, the rule forces it off.
func TestTranslate_LoginFailureNotTransient(t *testing.T) {
	se := New().Translate(mssql.Error{Number: 18456, Message: "Login failed for user"})
	require.NotNil(t, se)
	assert.Equal(t, dberr.TypeConnectionFailure, se.Type)
	assert.True(t, se.Type.DefaultTransient())
	assert.False(t, se.Transient)
	assert.Equal(t, dberr.KeyAuthFailure, se.MessageKey)
}

// TestTranslate_WrappedDriverError verifies number matching survives
// wrapping.
func TestTranslate_WrappedDriverError(t *testing.T) {
	wrapped := fmt.Errorf("exec failed: %w", mssql.Error{Number: 1205})
	se := New().Translate(wrapped)
	require.NotNil(t, se)
	assert.Equal(t, dberr.TypeDeadlock, se.Type)
}

// TestTranslate_TransportTextFallback verifies transport failures with no
// server number still classify as connection failures.
func TestTranslate_TransportTextFallback(t *testing.T) {
	se := New().Translate(errors.New("mssql: A transport-level error has occurred"))
	require.NotNil(t, se)
	assert.Equal(t, dberr.TypeConnectionFailure, se.Type)
	assert.Equal(t, "MSSQL_TRANSPORT", se.Code)
	assert.True(t, se.Transient)
}

// TestTranslate_UnlistedNumberFallsThrough verifies unmapped numbers land
// in UNKNOWN with diagnostics intact.
func TestTranslate_UnlistedNumberFallsThrough(t *testing.T) {
	se := New().Translate(mssql.Error{Number: 547, Message: "constraint violated"})
	require.NotNil(t, se)
	assert.Equal(t, dberr.TypeUnknown, se.Type)
	assert.False(t, se.Transient)
	assert.Contains(t, se.ProviderDetails, "constraint violated")
}
