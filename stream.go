package sqlbridge

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sqlbridge/sqlbridge/command"
	"github.com/sqlbridge/sqlbridge/dberr"
	"github.com/sqlbridge/sqlbridge/internal/provider"
	"github.com/sqlbridge/sqlbridge/result"
)

// ErrStreamOpen is returned by Stream.Outputs before the stream is
// closed: drivers defer output parameters until the reader is drained.
var ErrStreamOpen = errors.New("sqlbridge: output parameters are not available until the stream is closed")

// Stream is a forward-only, row-at-a-time reader. Rows are never
// buffered. One stream owns the executor's operation slot until Close.
type Stream struct {
	rows   *sql.Rows
	call   *provider.Call
	ex     *Executor
	cancel context.CancelFunc

	id      string
	started time.Time
	closed  bool
	outputs map[string]any
}

// QueryStream opens a streaming read.
//
// The capability check runs before any connection attempt: backends
// without streaming support (Oracle) reject here, unconnected. Only the
// reader open is subject to retry; row iteration is single-shot because
// already-yielded rows cannot be replayed.
func (e *Executor) QueryStream(ctx context.Context, def *command.Definition) (*Stream, error) {
	if e.state == stateClosed {
		return nil, ErrExecutorClosed
	}
	if !e.prov.Capability().SupportsStreaming {
		return nil, dberr.NewValidation("VAL_STREAMING", dberr.KeyValStreaming, e.prov.Name())
	}
	if e.cfg.EnableValidation {
		if serr := e.gate.Check(def); serr != nil {
			return nil, serr
		}
	}

	call, serr := e.prov.BuildCall(def)
	if serr != nil {
		return nil, serr
	}
	call.ExpectRows = true

	if err := e.ensureOpen(ctx); err != nil {
		return nil, err
	}

	started := time.Now()
	streamCtx, cancel := e.withTimeout(ctx, def)

	var rows *sql.Rows
	_, serr = e.withRetry(ctx, func(context.Context) *dberr.StructuredError {
		r, err := e.queryer().QueryContext(streamCtx, call.Text, call.Args...)
		if err != nil {
			return e.prov.Translate(err)
		}
		rows = r
		return nil
	})
	if serr != nil {
		cancel()
		e.rollbackOnCancel(ctx)
		return nil, serr
	}

	s := &Stream{
		rows:    rows,
		call:    call,
		ex:      e,
		cancel:  cancel,
		started: started,
	}
	if e.cfg.EnableDiagnostics {
		s.id = uuid.NewString()
	}
	return s, nil
}

// Next advances to the next row.
func (s *Stream) Next() bool { return s.rows.Next() }

// Scan maps the current row into dest, database/sql semantics.
func (s *Stream) Scan(dest ...any) error {
	if err := s.rows.Scan(dest...); err != nil {
		return s.ex.prov.Translate(err)
	}
	return nil
}

// Columns returns the result's column names.
func (s *Stream) Columns() ([]string, error) {
	cols, err := s.rows.Columns()
	if err != nil {
		return nil, s.ex.prov.Translate(err)
	}
	return cols, nil
}

// Err surfaces any deferred iteration error, translated.
func (s *Stream) Err() error {
	if err := s.rows.Err(); err != nil {
		return s.ex.prov.Translate(err)
	}
	return nil
}

// Close releases the reader and materializes deferred output
// parameters. Idempotent.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.rows.Close()
	s.cancel()

	// Drivers fill output holders only once the reader is fully
	// consumed and closed.
	res := &result.Result{}
	extractSlotOutputs(s.call, res)
	s.outputs = res.Outputs

	if err != nil {
		return s.ex.prov.Translate(err)
	}
	return nil
}

// Outputs returns the declared output parameters. Only observable after
// Close; before that the driver has not delivered them yet.
func (s *Stream) Outputs() (map[string]any, error) {
	if !s.closed {
		return nil, ErrStreamOpen
	}
	return s.outputs, nil
}

// InvocationID returns the diagnostic correlation ID, empty when
// diagnostics are disabled.
func (s *Stream) InvocationID() string { return s.id }

// Duration reports time since the stream opened.
func (s *Stream) Duration() time.Duration { return time.Since(s.started) }
