package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidateProfile_ValidFile reports success.
func TestValidateProfile_ValidFile(t *testing.T) {
	path := writeProfile(t, validProfile)

	out, err := runCommand(t, "validate-profile", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
}

// TestValidateProfile_SchemaViolation exits with a validation failure.
func TestValidateProfile_SchemaViolation(t *testing.T) {
	path := writeProfile(t, `
database: access
dsn: c:\orders.mdb
`)

	out, err := runCommand(t, "validate-profile", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "PROFILE_INVALID")
}

// TestValidateProfile_StructuralRulesApply verifies the offline check also
// runs the structural command gate.
func TestValidateProfile_StructuralRulesApply(t *testing.T) {
	path := writeProfile(t, `
database: sqlserver
dsn: sqlserver://app@db/orders
command:
  text: dbo.usp_Unlisted
  kind: procedure
  allow_list: [dbo.usp_Other]
`)

	out, err := runCommand(t, "validate-profile", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "VAL_ALLOWLIST")
}

// TestValidateProfile_MissingFile maps to a command error.
func TestValidateProfile_MissingFile(t *testing.T) {
	_, err := runCommand(t, "validate-profile", "/nonexistent/profile.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// TestValidateProfile_JSONOutput wraps success in the response envelope.
func TestValidateProfile_JSONOutput(t *testing.T) {
	path := writeProfile(t, validProfile)

	out, err := runCommand(t, "--format", "json", "validate-profile", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"status":"ok"`)
}
