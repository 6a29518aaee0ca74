package sqlbridge

import (
	"context"
	"database/sql"
	"time"

	"github.com/sqlbridge/sqlbridge/dberr"
	"github.com/sqlbridge/sqlbridge/result"
)

// RowSource is a forward-only row feed for bulk imports. Next returns
// io.EOF when the source is exhausted.
type RowSource interface {
	Columns() []string
	Next() ([]any, error)
}

// ColumnMapping maps one source column onto one destination column.
type ColumnMapping struct {
	Source      string
	Destination string
}

// BulkImporter is the provider-owned bulk-copy collaborator. The
// mechanics (bulk copy protocol, COPY, array DML) belong to the
// importer; this layer only validates the destination and lends out the
// live connection or transaction.
type BulkImporter interface {
	Copy(ctx context.Context, q Queryer, destination string, source RowSource, mappings []ColumnMapping) (result.BulkResult, error)
}

// Queryer is the execution surface lent to collaborators: the pinned
// connection, or the active transaction when one exists. Satisfied by
// *sql.Conn and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ImportBulk runs a bulk import through the supplied importer, reusing
// this executor's connection — and its transaction, when one is active.
// The destination identifier must appear on the allow list; it is never
// derived from concatenation.
func (e *Executor) ImportBulk(ctx context.Context, imp BulkImporter, destination string, allowList []string, source RowSource, mappings []ColumnMapping) (result.BulkResult, error) {
	if e.state == stateClosed {
		return result.BulkResult{}, ErrExecutorClosed
	}
	if serr := checkDestination(destination, allowList); serr != nil {
		return result.BulkResult{}, serr
	}
	if err := e.ensureOpen(ctx); err != nil {
		return result.BulkResult{}, err
	}

	start := time.Now()
	br, err := imp.Copy(ctx, e.queryer(), destination, source, mappings)
	if err != nil {
		return result.BulkResult{}, e.prov.Translate(err)
	}
	if br.Duration == 0 {
		br.Duration = time.Since(start)
	}
	return br, nil
}

func checkDestination(destination string, allowList []string) *dberr.StructuredError {
	for _, allowed := range allowList {
		if destination == allowed {
			return nil
		}
	}
	return dberr.NewValidation("VAL_ALLOWLIST", dberr.KeyValAllowList, destination)
}
