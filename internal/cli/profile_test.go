package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbridge/sqlbridge"
	"github.com/sqlbridge/sqlbridge/command"
)

// writeProfile drops profile YAML into a temp file.
func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validProfile = `
database: postgres
dsn: postgres://app@db.internal/orders?sslmode=require
timeout: 45s
retry:
  enabled: true
  count: 3
  delay: 250ms
diagnostics: true
command:
  text: get_order_summary
  kind: procedure
  multi: true
  allow_list: [get_order_summary]
  parameters:
    - name: region
      direction: in
      type: string
      value: EMEA
    - name: total
      direction: out
      type: int64
`

// TestLoadProfile_Valid decodes a full profile and converts both halves.
func TestLoadProfile_Valid(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, validProfile))
	require.NoError(t, err)

	cfg, err := p.ExecutorConfig()
	require.NoError(t, err)
	assert.Equal(t, sqlbridge.PostgreSQL, cfg.DatabaseType)
	assert.Equal(t, 45*time.Second, cfg.CommandTimeout)
	assert.True(t, cfg.EnableRetry)
	assert.Equal(t, 3, cfg.RetryCount)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.True(t, cfg.EnableValidation, "validation defaults on")
	assert.True(t, cfg.EnableDiagnostics)

	def, err := p.Definition()
	require.NoError(t, err)
	assert.Equal(t, command.StoredProcedure, def.Kind)
	assert.True(t, def.Hints.MultiResult)
	require.Len(t, def.Parameters, 2)
	assert.Equal(t, command.In, def.Parameters[0].Direction)
	assert.Equal(t, command.TypeString, def.Parameters[0].DataType)
	assert.Equal(t, "EMEA", def.Parameters[0].Value)
	assert.Equal(t, command.Out, def.Parameters[1].Direction)
}

// TestLoadProfile_SchemaRejectsUnknownBackend verifies the CUE schema gates
// the database tag before anything is interpreted.
func TestLoadProfile_SchemaRejectsUnknownBackend(t *testing.T) {
	_, err := LoadProfile(writeProfile(t, `
database: dbase
dsn: somewhere
`))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

// TestLoadProfile_SchemaRequiresDSN verifies required fields.
func TestLoadProfile_SchemaRequiresDSN(t *testing.T) {
	_, err := LoadProfile(writeProfile(t, `
database: oracle
`))
	require.Error(t, err)
}

// TestLoadProfile_SchemaRejectsBadDirection verifies enum fields are
// closed.
func TestLoadProfile_SchemaRejectsBadDirection(t *testing.T) {
	_, err := LoadProfile(writeProfile(t, `
database: oracle
dsn: oracle://app@db/orcl
command:
  text: do_it
  parameters:
    - name: x
      direction: sideways
`))
	require.Error(t, err)
}

// TestLoadProfile_MissingFile maps to a command error, not a validation
// failure.
func TestLoadProfile_MissingFile(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// TestProfile_ValidationOptOut verifies the explicit bypass.
func TestProfile_ValidationOptOut(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, `
database: sqlserver
dsn: sqlserver://app@db/orders
validation: false
`))
	require.NoError(t, err)

	cfg, err := p.ExecutorConfig()
	require.NoError(t, err)
	assert.False(t, cfg.EnableValidation)
}

// TestProfile_BadDuration surfaces as a profile error.
func TestProfile_BadDuration(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, `
database: sqlserver
dsn: sqlserver://app@db/orders
timeout: soonish
`))
	require.NoError(t, err)

	_, err = p.ExecutorConfig()
	require.Error(t, err)
}

// TestProfile_DefinitionWithoutCommand fails cleanly.
func TestProfile_DefinitionWithoutCommand(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, `
database: sqlserver
dsn: sqlserver://app@db/orders
`))
	require.NoError(t, err)

	_, err = p.Definition()
	require.Error(t, err)
}
