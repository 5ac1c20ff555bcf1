// Package duckdb implements the Vectorized and Parallel backends as two
// differently-configured DuckDB connections, grounded on the reference
// query client's use of database/sql over github.com/marcboeker/go-duckdb/v2
// and its read_parquet([...], union_by_name=true) substitution technique.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/irouter/qrouter/core"
)

// Executor runs analyzed queries against parquet files via an in-process
// DuckDB connection. The same implementation backs both Vectorized (a
// single-threaded connection) and Parallel (a connection configured with a
// larger thread count) BackendKinds; the distinction lives entirely in how
// New is parameterized.
type Executor struct {
	kind core.BackendKind
	db   *sql.DB
}

// Config controls the DuckDB connection's resource limits.
type Config struct {
	Threads   int
	MemoryMB  int
	AccessRO  bool
}

// New opens a DuckDB connection configured for kind and returns an Executor
// implementing that backend.
func New(kind core.BackendKind, cfg Config) (*Executor, error) {
	dsn := "?access_mode=READ_WRITE"
	if cfg.AccessRO {
		dsn = "?access_mode=READ_ONLY"
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	pragmas := []string{}
	if cfg.Threads > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", cfg.Threads))
	}
	if cfg.MemoryMB > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%dMB'", cfg.MemoryMB))
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure duckdb: %w", err)
		}
	}

	return &Executor{kind: kind, db: db}, nil
}

func (e *Executor) Kind() core.BackendKind { return e.kind }

// Execute renders stmt against the pruned file list in plan and runs it.
// Cancellation of ctx aborts the in-flight query via database/sql's
// QueryContext.
func (e *Executor) Execute(ctx context.Context, stmt *core.Stmt, plan *core.ScanPlan) (core.RowSet, error) {
	files := map[string][]string{}
	for table, scan := range plan.Tables {
		for _, f := range scan.Files {
			files[table] = append(files[table], f.Path)
		}
	}

	query, err := render(stmt, files)
	if err != nil {
		return core.RowSet{}, err
	}

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return core.RowSet{}, classifyError(err)
	}
	defer rows.Close()

	return scanToRowSet(rows)
}

// classifyError maps DuckDB's error text to an ExecutorErrorKind. DuckDB
// does not export typed errors through database/sql, so classification is
// done on message content, matching what the reference client already did
// for its own error wrapping. A cancelled or deadline-exceeded context is
// classified separately from ExecutorErrorKind entirely: it is not a
// timeout the query ran into on its own, it is the caller giving up, so it
// must surface as core.ErrCancelled and never be retried against another
// backend.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return core.NewCancelled()
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "out of memory"), strings.Contains(lower, "memory limit"):
		return core.NewExecutorError(core.ExecOutOfMemory, "duckdb out of memory", err)
	case strings.Contains(lower, "context canceled"), strings.Contains(lower, "context deadline"):
		return core.NewCancelled()
	case strings.Contains(lower, "io error"), strings.Contains(lower, "connection"):
		return core.NewExecutorError(core.ExecTransientResource, "duckdb transient failure", err)
	default:
		return core.NewExecutorError(core.ExecPermanent, "duckdb query failed", err)
	}
}

// Close releases the underlying DuckDB connection.
func (e *Executor) Close() error {
	return e.db.Close()
}
