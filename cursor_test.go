package sqlbridge

import (
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbridge/sqlbridge/command"
	"github.com/sqlbridge/sqlbridge/dberr"
	"github.com/sqlbridge/sqlbridge/internal/provider"
	"github.com/sqlbridge/sqlbridge/internal/testutil"
	"github.com/sqlbridge/sqlbridge/result"
)

// cursorProvider models a backend whose procedure outputs and cursor
// names arrive as the first result row and whose cursors can only be
// fetched inside a transaction.
type cursorProvider struct {
	*testutil.MockProvider
}

func newCursorProvider() *cursorProvider {
	return &cursorProvider{testutil.NewMock("sqlmock", provider.Capability{
		RequiresCursorTransactionScope: true,
	})}
}

func (p *cursorProvider) BuildCall(def *command.Definition) (*provider.Call, *dberr.StructuredError) {
	call := &provider.Call{Text: def.Text, OutputsFromRow: true}
	for _, par := range def.Parameters {
		switch {
		case par.Direction == command.In:
			call.Args = append(call.Args, par.Value)
		case par.DataType == command.TypeRefCursor:
			call.Cursors = append(call.Cursors, provider.CursorSlot{
				Name: result.StripPrefix(par.Name),
			})
		case par.Direction.IsOutput():
			call.Outputs = append(call.Outputs, provider.OutputSlot{
				Name:     result.StripPrefix(par.Name),
				DataType: par.DataType,
			})
		}
	}
	return call, nil
}

func (p *cursorProvider) FetchCursorTables(ctx context.Context, q provider.Queryer, call *provider.Call) ([]result.Table, error) {
	tables := make([]result.Table, 0, len(call.Cursors))
	for _, cur := range call.Cursors {
		if cur.FetchName == "" {
			return nil, fmt.Errorf("cursor %q: no portal name returned", cur.Name)
		}
		rows, err := q.QueryContext(ctx, "FETCH ALL IN "+cur.FetchName)
		if err != nil {
			return nil, err
		}
		t, err := result.FromRows(rows)
		closeErr := rows.Close()
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, closeErr
		}
		tables = append(tables, *t)
	}
	return tables, nil
}

// newCursorExecutor wires an executor to a sqlmock connection through the
// cursor-scoped provider.
func newCursorExecutor(t *testing.T, dsn string) (*Executor, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.NewWithDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	e := newWithProvider(Config{ConnectionString: dsn}, newCursorProvider())
	t.Cleanup(func() { _ = e.Close() })
	return e, mock
}

func cursorDef() *command.Definition {
	return &command.Definition{
		Text: "SELECT * FROM get_order_summary($1)",
		Kind: command.StoredProcedure,
		Parameters: []command.Parameter{
			{Name: "region", Direction: command.In, DataType: command.TypeString, Value: "EMEA"},
			{Name: "total", Direction: command.Out, DataType: command.TypeInt64},
			{Name: "orders", Direction: command.Out, DataType: command.TypeRefCursor},
		},
	}
}

// TestImplicitCursorTransaction_CommitsOnSuccess verifies a cursor-bearing
// call with no caller transaction wraps itself in one: begin, execute,
// fetch the cursor by its row-sourced name, commit. Nothing is left open.
func TestImplicitCursorTransaction_CommitsOnSuccess(t *testing.T) {
	e, mock := newCursorExecutor(t, "cursor_implicit_commit")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM get_order_summary").
		WillReturnRows(sqlmock.NewRows([]string{"total", "orders"}).
			AddRow(int64(42), "portal_1"))
	mock.ExpectQuery("FETCH ALL IN portal_1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).
			AddRow(int64(1)).AddRow(int64(2)))
	mock.ExpectCommit()

	res, err := e.Query(context.Background(), cursorDef())
	require.NoError(t, err)

	assert.Equal(t, int64(42), res.Outputs["total"])
	require.Len(t, res.Tables, 1, "the output row is consumed, only the cursor table remains")
	assert.Equal(t, []string{"id"}, res.Tables[0].ColumnNames())
	assert.Equal(t, 2, res.Tables[0].RowCount())

	assert.False(t, e.txActive(), "the implicit transaction must not outlive the call")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestImplicitCursorTransaction_RollsBackOnFailure verifies the implicit
// transaction rolls back when the call fails, before the classification
// surfaces.
func TestImplicitCursorTransaction_RollsBackOnFailure(t *testing.T) {
	e, mock := newCursorExecutor(t, "cursor_implicit_rollback")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM get_order_summary").
		WillReturnError(testutil.ErrInjectedPermanent)
	mock.ExpectRollback()

	_, err := e.Query(context.Background(), cursorDef())
	se, ok := dberr.As(err)
	require.True(t, ok)
	assert.Equal(t, "MOCK_PERMANENT", se.Code)

	assert.False(t, e.txActive())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCursorFetch_ReusesCallerTransaction verifies no implicit
// transaction is opened when the caller already holds one: the cursor
// fetch runs inside the caller's transaction and its fate stays with the
// handle.
func TestCursorFetch_ReusesCallerTransaction(t *testing.T) {
	e, mock := newCursorExecutor(t, "cursor_caller_tx")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM get_order_summary").
		WillReturnRows(sqlmock.NewRows([]string{"total", "orders"}).
			AddRow(int64(7), "portal_9"))
	mock.ExpectQuery("FETCH ALL IN portal_9").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectCommit()

	ctx := context.Background()
	h, err := e.BeginTransaction(ctx)
	require.NoError(t, err)

	res, err := e.Query(ctx, cursorDef())
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Outputs["total"])
	require.Len(t, res.Tables, 1)

	require.NoError(t, h.Commit())
	assert.NoError(t, mock.ExpectationsWereMet(),
		"exactly one begin and one commit: the caller's")
}

// TestCursorOutputs_MissingRowFails verifies a call that declares
// row-sourced outputs but returns no row is an error, not a silent nil.
func TestCursorOutputs_MissingRowFails(t *testing.T) {
	e, mock := newCursorExecutor(t, "cursor_missing_row")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM get_order_summary").
		WillReturnRows(sqlmock.NewRows([]string{"total", "orders"}))
	mock.ExpectRollback()

	_, err := e.Query(context.Background(), cursorDef())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
