// Package sqlbridge is a provider-agnostic execution facade over SQL
// Server, PostgreSQL, and Oracle. Callers describe a command once, in
// backend-neutral terms, and receive one result and one error shape
// regardless of which engine ran it.
//
// An Executor represents one logical, sequential operation stream over
// one pinned connection. It is not safe for concurrent use: open once,
// run commands in order, dispose once. Nothing is logged internally;
// diagnostics travel only through returned results and errors.
package sqlbridge

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sqlbridge/sqlbridge/command"
	"github.com/sqlbridge/sqlbridge/dberr"
	"github.com/sqlbridge/sqlbridge/internal/provider"
	"github.com/sqlbridge/sqlbridge/result"
)

// State errors. These are programmer errors, distinct from backend
// failures: they are never translated, never transient, never retried.
var (
	// ErrExecutorClosed is returned on any use after Close.
	ErrExecutorClosed = errors.New("sqlbridge: executor is closed")

	// ErrTransactionActive is returned by BeginTransaction while a
	// handle is still active.
	ErrTransactionActive = errors.New("sqlbridge: a transaction is already active")

	// ErrTransactionDone is returned by Commit/Rollback on a handle
	// that is no longer active.
	ErrTransactionDone = errors.New("sqlbridge: transaction is no longer active")
)

type execState int

const (
	stateUnopened execState = iota
	stateOpen
	stateClosed
)

// Executor runs backend-neutral commands against one backend.
//
// Lifecycle: Unopened -> Open (lazily, on the first operation) ->
// Closed (terminal). The underlying connection is exclusively owned by
// this executor for its whole lifetime.
type Executor struct {
	cfg  Config
	prov provider.Provider
	gate Gate

	db    *sql.DB
	conn  *sql.Conn
	tx    *TransactionHandle
	state execState
}

// New builds an executor for the configured backend. The connection is
// not opened until the first operation runs.
func New(cfg Config) (*Executor, error) {
	prov, err := providerFor(cfg.DatabaseType)
	if err != nil {
		return nil, err
	}
	return newWithProvider(cfg, prov), nil
}

// newWithProvider wires an explicit provider; tests use it to substitute
// in-process backends.
func newWithProvider(cfg Config, prov provider.Provider) *Executor {
	gate := cfg.Gate
	if gate == nil {
		gate = structuralGate{}
	}
	return &Executor{cfg: cfg, prov: prov, gate: gate}
}

// Capability exposes the backend's static capability table.
func (e *Executor) Capability() provider.Capability { return e.prov.Capability() }

// resultShape selects the read strategy for one invocation.
type resultShape int

const (
	shapeExec resultShape = iota
	shapeScalar
	shapeSingle
	shapeMulti
)

// Exec runs a command that returns no result sets. Output parameters are
// still extracted.
func (e *Executor) Exec(ctx context.Context, def *command.Definition) (*result.Result, error) {
	return e.invoke(ctx, def, shapeExec)
}

// QueryScalar runs a command and keeps only the first column of the
// first row.
func (e *Executor) QueryScalar(ctx context.Context, def *command.Definition) (*result.Result, error) {
	return e.invoke(ctx, def, shapeScalar)
}

// Query runs a command and buffers its first result set into one
// detached table.
func (e *Executor) Query(ctx context.Context, def *command.Definition) (*result.Result, error) {
	return e.invoke(ctx, def, shapeSingle)
}

// QueryMulti runs a command and buffers every result set — native
// NextResultSet iteration where the backend supports it, cursor-typed
// output parameters otherwise — preserving declaration/execution order.
func (e *Executor) QueryMulti(ctx context.Context, def *command.Definition) (*result.Result, error) {
	return e.invoke(ctx, def, shapeMulti)
}

// invoke is the common execution path: gate, capability check, bind,
// lazy open, resilience-wrapped attempt, shape, translate.
func (e *Executor) invoke(ctx context.Context, def *command.Definition, sh resultShape) (*result.Result, error) {
	start := time.Now()

	if e.state == stateClosed {
		return nil, ErrExecutorClosed
	}
	if e.cfg.EnableValidation {
		if serr := e.gate.Check(def); serr != nil {
			return nil, serr
		}
	}
	if def.Hints.Streaming && !e.prov.Capability().SupportsStreaming {
		return nil, dberr.NewValidation("VAL_STREAMING", dberr.KeyValStreaming, e.prov.Name())
	}

	call, serr := e.prov.BuildCall(def)
	if serr != nil {
		return nil, serr
	}
	switch {
	case call.OutputsFromRow:
		// Outputs and cursor names arrive as the first result row.
		call.ExpectRows = true
	case len(call.Cursors) > 0:
		// Cursor handles are filled by output binding on execute and
		// drained afterwards.
		call.ExpectRows = false
	default:
		call.ExpectRows = sh != shapeExec
	}

	if err := e.ensureOpen(ctx); err != nil {
		return nil, err
	}

	res := &result.Result{}
	retries, serr := e.withRetry(ctx, func(attemptCtx context.Context) *dberr.StructuredError {
		r, aerr := e.attempt(attemptCtx, def, call, sh)
		if aerr != nil {
			return aerr
		}
		*res = *r
		return nil
	})
	if serr != nil {
		e.rollbackOnCancel(ctx)
		return nil, serr
	}

	res.Retries = retries
	res.Duration = time.Since(start)
	if e.cfg.EnableDiagnostics {
		res.InvocationID = uuid.NewString()
	}
	return res, nil
}

// attempt executes one bound call and shapes its output. Holders inside
// call are overwritten on every attempt, so retries observe only the
// final successful write.
func (e *Executor) attempt(ctx context.Context, def *command.Definition, call *provider.Call, sh resultShape) (*result.Result, *dberr.StructuredError) {
	ctx, cancel := e.withTimeout(ctx, def)
	defer cancel()

	q := e.queryer()

	// RefCursor reads on scope-requiring backends run inside one
	// transaction. When the caller has not started one, an implicit
	// transaction covers exactly this call: commit on success, rollback
	// on any failure, never left open.
	var implicit *sql.Tx
	if len(call.Cursors) > 0 &&
		e.prov.Capability().RequiresCursorTransactionScope &&
		!e.txActive() {
		tx, err := e.conn.BeginTx(ctx, nil)
		if err != nil {
			return nil, e.prov.Translate(err)
		}
		implicit = tx
		q = tx
	}

	res, serr := e.run(ctx, q, call, sh)

	if implicit != nil {
		if serr != nil {
			_ = implicit.Rollback()
			return nil, serr
		}
		if err := implicit.Commit(); err != nil {
			return nil, e.prov.Translate(err)
		}
		return res, nil
	}
	return res, serr
}

// run performs the driver call and result shaping against q.
func (e *Executor) run(ctx context.Context, q provider.Queryer, call *provider.Call, sh resultShape) (*result.Result, *dberr.StructuredError) {
	res := &result.Result{}

	if call.ExpectRows {
		rows, err := q.QueryContext(ctx, call.Text, call.Args...)
		if err != nil {
			return nil, e.prov.Translate(err)
		}
		var (
			tables   []result.Table
			tableErr error
		)
		if sh == shapeMulti && e.prov.Capability().SupportsNativeMultiResult {
			tables, tableErr = result.AllFromRows(rows)
		} else {
			var t *result.Table
			t, tableErr = result.FromRows(rows)
			if closeErr := rows.Close(); tableErr == nil {
				tableErr = closeErr
			}
			if t != nil {
				tables = []result.Table{*t}
			}
		}
		if tableErr != nil {
			return nil, e.prov.Translate(tableErr)
		}
		res.Tables = tables
	} else {
		sqlRes, err := q.ExecContext(ctx, call.Text, call.Args...)
		if err != nil {
			return nil, e.prov.Translate(err)
		}
		if sqlRes != nil {
			if n, err := sqlRes.RowsAffected(); err == nil {
				res.RowsAffected = n
			}
		}
	}

	// Outputs delivered as the first result row are consumed before
	// cursor fetching so cursor names are known.
	if call.OutputsFromRow && len(call.Outputs)+len(call.Cursors) > 0 {
		if len(res.Tables) == 0 {
			return nil, dberr.Unknown(errors.New("call returned no row for declared outputs"))
		}
		consumeRowOutputs(&res.Tables[0], call, res)
		res.Tables = res.Tables[1:]
	}

	if len(call.Cursors) > 0 {
		cursorTables, err := e.prov.FetchCursorTables(ctx, q, call)
		if err != nil {
			return nil, e.prov.Translate(err)
		}
		res.Tables = append(res.Tables, cursorTables...)
	}

	extractSlotOutputs(call, res)

	if sh == shapeScalar {
		if t := res.FirstTable(); t != nil && len(t.Rows) > 0 && len(t.Rows[0]) > 0 {
			res.Scalar = t.Rows[0][0]
		}
	}
	return res, nil
}

// consumeRowOutputs maps the columns of the call's first row onto
// declared output slots and cursor names, by prefix-stripped name,
// case-insensitively.
func consumeRowOutputs(t *result.Table, call *provider.Call, res *result.Result) {
	if res.Outputs == nil && len(call.Outputs) > 0 {
		res.Outputs = make(map[string]any, len(call.Outputs))
	}
	for i := range call.Outputs {
		res.Outputs[call.Outputs[i].Name] = nil
	}
	if t.RowCount() == 0 {
		return
	}
	row := t.Rows[0]
	for colIdx, col := range t.Columns {
		name := result.StripPrefix(col.Name)
		for i := range call.Outputs {
			if strings.EqualFold(call.Outputs[i].Name, name) {
				res.Outputs[call.Outputs[i].Name] =
					result.NormalizeOutput(call.Outputs[i].DataType, row[colIdx])
			}
		}
		for i := range call.Cursors {
			if strings.EqualFold(call.Cursors[i].Name, name) {
				call.Cursors[i].FetchName = cursorName(row[colIdx])
			}
		}
	}
}

func cursorName(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return ""
	}
}

// extractSlotOutputs reads back dest-based output holders. Cursor slots
// never appear here: cursors are results, not scalar outputs.
func extractSlotOutputs(call *provider.Call, res *result.Result) {
	if call.OutputsFromRow {
		return
	}
	for _, slot := range call.Outputs {
		if slot.Dest == nil {
			continue
		}
		if res.Outputs == nil {
			res.Outputs = make(map[string]any, len(call.Outputs))
		}
		res.Outputs[slot.Name] = result.NormalizeOutput(slot.DataType, slot.Dest)
	}
}

// ensureOpen opens the pinned connection on first use.
func (e *Executor) ensureOpen(ctx context.Context) error {
	switch e.state {
	case stateClosed:
		return ErrExecutorClosed
	case stateOpen:
		return nil
	}

	db, err := sql.Open(e.prov.DriverName(), e.cfg.ConnectionString)
	if err != nil {
		return e.prov.Translate(err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return e.prov.Translate(err)
	}
	e.db = db
	e.conn = conn
	e.state = stateOpen
	return nil
}

// queryer returns the active transaction when one exists, the pinned
// connection otherwise.
func (e *Executor) queryer() provider.Queryer {
	if e.txActive() {
		return e.tx.tx
	}
	return e.conn
}

func (e *Executor) txActive() bool {
	return e.tx != nil && e.tx.state == txActive
}

// rollbackOnCancel rolls back the active transaction when the caller's
// context has been canceled, before the failure surfaces.
func (e *Executor) rollbackOnCancel(ctx context.Context) {
	if ctx.Err() != nil && e.txActive() {
		_ = e.tx.Rollback()
	}
}

func (e *Executor) withTimeout(ctx context.Context, def *command.Definition) (context.Context, context.CancelFunc) {
	timeout := e.cfg.commandTimeout()
	if def.Timeout > 0 {
		timeout = def.Timeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Close releases the executor. An active transaction is rolled back
// first. Close is idempotent; any other use afterwards fails with
// ErrExecutorClosed.
func (e *Executor) Close() error {
	if e.state == stateClosed {
		return nil
	}
	var firstErr error
	if e.txActive() {
		firstErr = e.tx.Rollback()
	}
	if e.conn != nil {
		if err := e.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.state = stateClosed
	return firstErr
}
