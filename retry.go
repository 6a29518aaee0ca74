package sqlbridge

import (
	"context"

	"github.com/cenkalti/backoff/v4"

	"github.com/sqlbridge/sqlbridge/dberr"
)

// withRetry wraps one backend operation with the resilience policy.
//
// Three states:
//
//   - retry disabled by configuration: execute exactly once.
//   - retry enabled, no active transaction: constant backoff from
//     {RetryCount, RetryDelay}; retry only transient classifications
//     while attempts remain and the context is live.
//   - retry enabled, active transaction: behave as disabled. Retrying
//     inside a caller-visible transaction would re-execute partial work
//     with no rollback boundary, so suppression is unconditional.
//
// Returns the number of retries performed (attempts beyond the first)
// and the final classification, nil on success.
func (e *Executor) withRetry(ctx context.Context, op func(context.Context) *dberr.StructuredError) (int, *dberr.StructuredError) {
	if !e.cfg.EnableRetry || e.cfg.RetryCount <= 0 || e.txActive() {
		return 0, op(ctx)
	}

	attempts := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(e.cfg.RetryDelay),
			uint64(e.cfg.RetryCount),
		),
		ctx,
	)

	err := backoff.Retry(func() error {
		attempts++
		serr := op(ctx)
		if serr == nil {
			return nil
		}
		if !serr.Transient {
			return backoff.Permanent(serr)
		}
		return serr
	}, policy)

	retries := attempts - 1
	if retries < 0 {
		retries = 0
	}
	if err == nil {
		return retries, nil
	}
	return retries, asStructured(err)
}

// asStructured normalizes whatever the backoff loop surfaced — the last
// classification, or a bare context error when cancellation cut the loop
// before an attempt ran.
func asStructured(err error) *dberr.StructuredError {
	if se, ok := dberr.As(err); ok {
		return se
	}
	if se := dberr.FromContext(err); se != nil {
		return se
	}
	return dberr.Unknown(err)
}
