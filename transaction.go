package sqlbridge

import (
	"context"
	"database/sql"
)

type txState int

const (
	txActive txState = iota
	txCommitted
	txRolledBack
	txClosed
)

// TransactionHandle wraps one backend transaction bound to the
// executor's pinned connection.
//
// States: Active -> Committed | RolledBack -> Closed. Exactly one handle
// may be active per executor; closing an active handle rolls it back;
// closing a finished handle is a no-op.
type TransactionHandle struct {
	ex    *Executor
	tx    *sql.Tx
	state txState
}

// BeginTransaction starts a transaction on the pinned connection.
// Fails with ErrTransactionActive while another handle is active, and
// with ErrExecutorClosed after disposal.
func (e *Executor) BeginTransaction(ctx context.Context) (*TransactionHandle, error) {
	if e.state == stateClosed {
		return nil, ErrExecutorClosed
	}
	if e.txActive() {
		return nil, ErrTransactionActive
	}
	if err := e.ensureOpen(ctx); err != nil {
		return nil, err
	}

	tx, err := e.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, e.prov.Translate(err)
	}
	h := &TransactionHandle{ex: e, tx: tx, state: txActive}
	e.tx = h
	return h, nil
}

// Commit commits the transaction. The handle leaves the active state
// even when the backend rejects the commit.
func (h *TransactionHandle) Commit() error {
	if h.state != txActive {
		return ErrTransactionDone
	}
	h.state = txCommitted
	h.detach()
	if err := h.tx.Commit(); err != nil {
		return h.ex.prov.Translate(err)
	}
	return nil
}

// Rollback rolls the transaction back.
func (h *TransactionHandle) Rollback() error {
	if h.state != txActive {
		return ErrTransactionDone
	}
	h.state = txRolledBack
	h.detach()
	if err := h.tx.Rollback(); err != nil {
		return h.ex.prov.Translate(err)
	}
	return nil
}

// Close releases the handle. An active transaction is rolled back —
// exactly once, and commit is never issued. Closing a committed or
// rolled-back handle is a no-op.
func (h *TransactionHandle) Close() error {
	switch h.state {
	case txActive:
		err := h.Rollback()
		h.state = txClosed
		return err
	case txClosed:
		return nil
	default:
		h.state = txClosed
		return nil
	}
}

// Active reports whether the handle still owns a live transaction.
func (h *TransactionHandle) Active() bool { return h.state == txActive }

func (h *TransactionHandle) detach() {
	if h.ex != nil && h.ex.tx == h {
		h.ex.tx = nil
	}
}
