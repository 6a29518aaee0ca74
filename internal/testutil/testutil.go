// Package testutil provides in-process provider implementations for
// tests: a SQLite-backed provider so executor and transaction lifecycle
// tests run against a real driver, and a sqlmock-backed provider for
// failure injection.
package testutil

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sqlbridge/sqlbridge/command"
	"github.com/sqlbridge/sqlbridge/dberr"
	"github.com/sqlbridge/sqlbridge/internal/provider"
	"github.com/sqlbridge/sqlbridge/result"
)

// SQLiteProvider adapts SQLite to the provider contract. Capabilities
// mirror a streaming-capable single-result backend.
type SQLiteProvider struct {
	translator *provider.Translator
}

// NewSQLite returns a SQLite-backed provider.
func NewSQLite() *SQLiteProvider {
	return &SQLiteProvider{translator: provider.NewTranslator(sqliteRules())}
}

func (s *SQLiteProvider) Name() string       { return "sqlite" }
func (s *SQLiteProvider) DriverName() string { return "sqlite3" }

func (s *SQLiteProvider) Capability() provider.Capability {
	return provider.Capability{
		SupportsStreaming:              true,
		SupportsNativeMultiResult:      false,
		RequiresCursorTransactionScope: false,
		ParameterPrefix:                "",
	}
}

func (s *SQLiteProvider) Translate(err error) *dberr.StructuredError {
	return s.translator.Translate(err)
}

func (s *SQLiteProvider) FetchCursorTables(context.Context, provider.Queryer, *provider.Call) ([]result.Table, error) {
	return nil, nil
}

// BuildCall binds input parameters by name. SQLite has no output
// parameters or cursors; declaring them is rejected like any other
// unmapped shape.
func (s *SQLiteProvider) BuildCall(def *command.Definition) (*provider.Call, *dberr.StructuredError) {
	call := &provider.Call{Text: def.Text}
	for _, p := range def.Parameters {
		if p.Direction != command.In {
			return nil, dberr.NewValidation(command.CodeUnsupportedType,
				dberr.KeyValUnsupportedType, p.DataType, p.Name, s.Name())
		}
		call.Args = append(call.Args, sql.Named(result.StripPrefix(p.Name), p.Value))
	}
	return call, nil
}

func sqliteRules() []provider.Rule {
	return []provider.Rule{
		{
			Name: "busy",
			Match: func(err error) bool {
				return contains(err, "database is locked")
			},
			Classify: func(err error) *dberr.StructuredError {
				return dberr.New(dberr.TypeResourceLimit, "SQLITE_BUSY",
					dberr.KeyResourceLimit).WithDetails("%v", err)
			},
		},
	}
}

// Sentinel failures for injection through MockProvider.
var (
	ErrInjectedTransient = errors.New("testutil: injected transient failure")
	ErrInjectedPermanent = errors.New("testutil: injected permanent failure")
)

// MockProvider adapts a go-sqlmock connection to the provider contract.
// Capability is caller-configurable so tests can model any backend
// shape.
type MockProvider struct {
	Driver string
	Cap    provider.Capability

	translator *provider.Translator
}

// NewMock returns a provider that opens mock connections through the
// named sqlmock driver.
func NewMock(driverName string, cap provider.Capability) *MockProvider {
	return &MockProvider{
		Driver:     driverName,
		Cap:        cap,
		translator: provider.NewTranslator(mockRules()),
	}
}

func (m *MockProvider) Name() string                    { return "mock" }
func (m *MockProvider) DriverName() string              { return m.Driver }
func (m *MockProvider) Capability() provider.Capability { return m.Cap }

func (m *MockProvider) Translate(err error) *dberr.StructuredError {
	return m.translator.Translate(err)
}

func (m *MockProvider) FetchCursorTables(context.Context, provider.Queryer, *provider.Call) ([]result.Table, error) {
	return nil, nil
}

// BuildCall passes input values positionally, matching sqlmock's
// argument expectations.
func (m *MockProvider) BuildCall(def *command.Definition) (*provider.Call, *dberr.StructuredError) {
	call := &provider.Call{Text: def.Text}
	for _, p := range def.Parameters {
		if p.Direction == command.In {
			call.Args = append(call.Args, p.Value)
		}
	}
	return call, nil
}

func mockRules() []provider.Rule {
	return []provider.Rule{
		{
			Name: "injected-transient",
			Match: func(err error) bool {
				return errors.Is(err, ErrInjectedTransient)
			},
			Classify: func(err error) *dberr.StructuredError {
				return dberr.New(dberr.TypeTimeout, "MOCK_TRANSIENT",
					dberr.KeyTimeout).WithDetails("%v", err)
			},
		},
		{
			Name: "injected-permanent",
			Match: func(err error) bool {
				return errors.Is(err, ErrInjectedPermanent)
			},
			Classify: func(err error) *dberr.StructuredError {
				return dberr.NewNonTransient(dberr.TypeSyntax, "MOCK_PERMANENT",
					dberr.KeySyntax).WithDetails("%v", err)
			},
		},
	}
}

func contains(err error, substr string) bool {
	return err != nil && strings.Contains(err.Error(), substr)
}
