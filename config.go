package sqlbridge

import (
	"fmt"
	"time"

	"github.com/sqlbridge/sqlbridge/command"
	"github.com/sqlbridge/sqlbridge/dberr"
	"github.com/sqlbridge/sqlbridge/internal/provider"
	"github.com/sqlbridge/sqlbridge/internal/provider/oracle"
	"github.com/sqlbridge/sqlbridge/internal/provider/postgres"
	"github.com/sqlbridge/sqlbridge/internal/provider/sqlserver"
)

// DatabaseType selects one backend implementation.
type DatabaseType string

const (
	SQLServer  DatabaseType = "sqlserver"
	PostgreSQL DatabaseType = "postgres"
	Oracle     DatabaseType = "oracle"
)

// DefaultCommandTimeout applies when neither the configuration nor the
// command definition sets one.
const DefaultCommandTimeout = 30 * time.Second

// Config is the immutable per-executor configuration, supplied once at
// construction. Connection pooling is the driver's business: the
// executor pins a single connection and never manages a pool of its own.
type Config struct {
	DatabaseType     DatabaseType
	ConnectionString string

	// CommandTimeout bounds each command; a definition's Timeout
	// overrides it per call. Zero means DefaultCommandTimeout.
	CommandTimeout time.Duration

	// EnableRetry turns the resilience coordinator on. Retries apply
	// only to transient failures and never inside a caller-visible
	// transaction.
	EnableRetry bool
	RetryCount  int
	RetryDelay  time.Duration

	// EnableValidation runs the validation gate before binding. The
	// bypass changes nothing else about execution.
	EnableValidation bool

	// EnableDiagnostics stamps results with a correlation ID.
	EnableDiagnostics bool

	// Gate overrides the default structural validation gate.
	Gate Gate
}

// Gate is the pluggable validation boundary. A non-nil return is always a
// VALIDATION_ERROR raised before any backend call.
type Gate interface {
	Check(def *command.Definition) *dberr.StructuredError
}

// structuralGate is the built-in gate: allow-list, size, precision, and
// array-binding rules shared by every backend.
type structuralGate struct{}

func (structuralGate) Check(def *command.Definition) *dberr.StructuredError {
	return command.Validate(def)
}

// providerFor maps the configuration tag to its backend implementation.
// Tagged-variant dispatch: one switch, three independent providers.
func providerFor(dt DatabaseType) (provider.Provider, error) {
	switch dt {
	case SQLServer:
		return sqlserver.New(), nil
	case PostgreSQL:
		return postgres.New(), nil
	case Oracle:
		return oracle.New(), nil
	default:
		return nil, fmt.Errorf("sqlbridge: unknown database type %q", dt)
	}
}

func (c *Config) commandTimeout() time.Duration {
	if c.CommandTimeout > 0 {
		return c.CommandTimeout
	}
	return DefaultCommandTimeout
}
