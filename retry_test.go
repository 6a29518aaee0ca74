package sqlbridge

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbridge/sqlbridge/command"
	"github.com/sqlbridge/sqlbridge/dberr"
	"github.com/sqlbridge/sqlbridge/internal/provider"
	"github.com/sqlbridge/sqlbridge/internal/testutil"
)

// newMockExecutor wires an executor to a sqlmock connection registered
// under dsn. Each test uses its own dsn: the mock pool keys on it.
func newMockExecutor(t *testing.T, dsn string, cfg Config, cap provider.Capability) (*Executor, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.NewWithDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg.ConnectionString = dsn
	e := newWithProvider(cfg, testutil.NewMock("sqlmock", cap))
	t.Cleanup(func() { _ = e.Close() })
	return e, mock
}

func retryConfig() Config {
	return Config{
		EnableRetry: true,
		RetryCount:  2,
		RetryDelay:  time.Millisecond,
	}
}

var mockCap = provider.Capability{
	SupportsStreaming:         true,
	SupportsNativeMultiResult: true,
}

// TestRetry_TransientThenSuccess verifies a transient failure is retried
// and the retry count lands on the result.
func TestRetry_TransientThenSuccess(t *testing.T) {
	e, mock := newMockExecutor(t, "retry_transient_then_success", retryConfig(), mockCap)

	mock.ExpectQuery("SELECT qty FROM widgets").
		WillReturnError(testutil.ErrInjectedTransient)
	mock.ExpectQuery("SELECT qty FROM widgets").
		WillReturnRows(sqlmock.NewRows([]string{"qty"}).AddRow(int64(7)))

	res, err := e.QueryScalar(context.Background(), &command.Definition{
		Text: "SELECT qty FROM widgets",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Scalar)
	assert.Equal(t, 1, res.Retries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestRetry_PermanentFailureNotRetried verifies non-transient
// classifications execute exactly once.
func TestRetry_PermanentFailureNotRetried(t *testing.T) {
	e, mock := newMockExecutor(t, "retry_permanent_once", retryConfig(), mockCap)

	mock.ExpectQuery("SELECT broken").
		WillReturnError(testutil.ErrInjectedPermanent)

	_, err := e.Query(context.Background(), &command.Definition{Text: "SELECT broken"})
	se, ok := dberr.As(err)
	require.True(t, ok)
	assert.Equal(t, dberr.TypeSyntax, se.Type)
	assert.False(t, se.Transient)
	assert.NoError(t, mock.ExpectationsWereMet(), "no second attempt may run")
}

// TestRetry_ExhaustionSurfacesLastClassification verifies the final
// transient failure surfaces once attempts run out.
func TestRetry_ExhaustionSurfacesLastClassification(t *testing.T) {
	cfg := retryConfig()
	cfg.RetryCount = 1
	e, mock := newMockExecutor(t, "retry_exhaustion", cfg, mockCap)

	mock.ExpectQuery("SELECT qty").WillReturnError(testutil.ErrInjectedTransient)
	mock.ExpectQuery("SELECT qty").WillReturnError(testutil.ErrInjectedTransient)

	_, err := e.Query(context.Background(), &command.Definition{Text: "SELECT qty"})
	se, ok := dberr.As(err)
	require.True(t, ok)
	assert.Equal(t, dberr.TypeTimeout, se.Type)
	assert.True(t, se.Transient)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestRetry_SuppressedInsideTransaction verifies the resilience policy
// never re-executes work inside a caller-visible transaction, even for
// transient failures.
func TestRetry_SuppressedInsideTransaction(t *testing.T) {
	e, mock := newMockExecutor(t, "retry_tx_suppression", retryConfig(), mockCap)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT qty").WillReturnError(testutil.ErrInjectedTransient)
	mock.ExpectRollback()

	ctx := context.Background()
	h, err := e.BeginTransaction(ctx)
	require.NoError(t, err)

	_, err = e.Query(ctx, &command.Definition{Text: "SELECT qty"})
	require.Error(t, err)
	assert.True(t, dberr.IsTransient(err), "classification stays transient; only the retry is suppressed")

	require.NoError(t, h.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet(), "exactly one attempt may run inside a transaction")
}

// TestRetry_DisabledByConfig verifies the policy is off unless enabled.
func TestRetry_DisabledByConfig(t *testing.T) {
	e, mock := newMockExecutor(t, "retry_disabled", Config{}, mockCap)

	mock.ExpectQuery("SELECT qty").WillReturnError(testutil.ErrInjectedTransient)

	_, err := e.Query(context.Background(), &command.Definition{Text: "SELECT qty"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestRetry_CancellationNotRetried verifies caller cancellation surfaces
// immediately as a non-transient timeout.
func TestRetry_CancellationNotRetried(t *testing.T) {
	e, mock := newMockExecutor(t, "retry_cancellation", retryConfig(), mockCap)

	mock.ExpectQuery("SELECT qty").WillReturnError(context.Canceled)

	_, err := e.Query(context.Background(), &command.Definition{Text: "SELECT qty"})
	se, ok := dberr.As(err)
	require.True(t, ok)
	assert.Equal(t, dberr.TypeTimeout, se.Type)
	assert.Equal(t, dberr.CodeCanceled, se.Code)
	assert.False(t, se.Transient)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestQueryMulti_NativeOrderPreserved verifies multi-result extraction
// keeps the backend's result-set order.
func TestQueryMulti_NativeOrderPreserved(t *testing.T) {
	e, mock := newMockExecutor(t, "multi_native_order", Config{}, mockCap)

	first := sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2))
	second := sqlmock.NewRows([]string{"name"}).AddRow("bolt")
	mock.ExpectQuery("EXEC usp_Everything").WillReturnRows(first, second)

	res, err := e.QueryMulti(context.Background(), &command.Definition{
		Text:  "EXEC usp_Everything",
		Hints: command.Hints{MultiResult: true},
	})
	require.NoError(t, err)
	require.Len(t, res.Tables, 2)
	assert.Equal(t, []string{"id"}, res.Tables[0].ColumnNames())
	assert.Equal(t, 2, res.Tables[0].RowCount())
	assert.Equal(t, []string{"name"}, res.Tables[1].ColumnNames())
	assert.Equal(t, "bolt", res.Tables[1].Rows[0][0])
}

// TestExec_RowsAffectedFromDriver verifies the exec path reads the
// driver-reported row count.
func TestExec_RowsAffectedFromDriver(t *testing.T) {
	e, mock := newMockExecutor(t, "exec_rows_affected", Config{}, mockCap)

	mock.ExpectExec("UPDATE widgets").
		WillReturnResult(sqlmock.NewResult(0, 3))

	res, err := e.Exec(context.Background(), &command.Definition{Text: "UPDATE widgets SET qty = 0"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.RowsAffected)
}
