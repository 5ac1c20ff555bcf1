// Package executor defines the abstract Executor contract the engine
// dispatches Analyzed queries to, plus the two concrete backends under
// executor/duckdb (Vectorized, Parallel) and executor/flightsql
// (Distributed).
package executor

import (
	"context"

	"github.com/irouter/qrouter/core"
)

// Executor runs a single physical scan/compute step against a ScanPlan and
// returns a RowSet. Implementations classify their own failures via
// core.NewExecutorError so the engine can decide whether to retry against a
// different backend.
type Executor interface {
	// Kind reports which BackendKind this executor implements.
	Kind() core.BackendKind

	// Execute runs stmt's projection/filter/aggregation logic against the
	// files named in plan and returns the resulting rows. ctx cancellation
	// must abort the underlying scan promptly.
	Execute(ctx context.Context, stmt *core.Stmt, plan *core.ScanPlan) (core.RowSet, error)
}

// Registry resolves a BackendKind to the Executor that implements it.
type Registry struct {
	executors map[core.BackendKind]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: map[core.BackendKind]Executor{}}
}

func (r *Registry) Register(e Executor) {
	r.executors[e.Kind()] = e
}

func (r *Registry) Get(kind core.BackendKind) (Executor, bool) {
	e, ok := r.executors[kind]
	return e, ok
}
