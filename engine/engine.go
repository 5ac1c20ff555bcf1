// Package engine orchestrates the full pipeline: analyze, prune, look up the
// result cache, select a backend, dispatch to an executor with
// degrade-and-retry on transient failure, and populate the cache on success.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/irouter/qrouter/cachestore"
	"github.com/irouter/qrouter/core"
	"github.com/irouter/qrouter/cost"
	"github.com/irouter/qrouter/executor"
	"github.com/irouter/qrouter/partition"
	"github.com/irouter/qrouter/sqlfront"
)

// Engine wires together every subsystem the router needs to answer a query.
type Engine struct {
	frontend  *sqlfront.Frontend
	catalog   *partition.Catalog
	pruner    *partition.Pruner
	model     *cost.Model
	selector  *cost.Selector
	cache     *cachestore.Cache
	executors *executor.Registry
	logger    *core.Logger
}

// Options configures New.
type Options struct {
	Dialect       string
	CacheCapacity int
	// CacheTTL is passed straight through to cachestore.New: 0 disables
	// expiry, a negative value applies cachestore.DefaultTTL. There is no
	// third "unset" state — callers that want the spec default must say so
	// explicitly (cmd/qrouter's cache-ttl-ms flag defaults to it).
	CacheTTL time.Duration
	Logger   *core.Logger

	// CostModel configures the selector's per-backend memory ceilings and
	// assumed distributed cluster size (spec.md section 6:
	// selector.memory_limit_bytes.{vectorized,parallel},
	// selector.distributed_nodes).
	CostModel cost.Config
}

func New(catalog *partition.Catalog, executors *executor.Registry, opts Options) (*Engine, error) {
	if opts.Dialect == "" {
		opts.Dialect = "generic"
	}
	if opts.CacheCapacity == 0 {
		opts.CacheCapacity = 1024
	}
	if opts.Logger == nil {
		opts.Logger = core.NewNopLogger()
	}

	cache, err := cachestore.New(opts.CacheCapacity, opts.CacheTTL)
	if err != nil {
		return nil, err
	}

	model := cost.NewModel(opts.CostModel)
	return &Engine{
		frontend:  sqlfront.NewFrontend(opts.Dialect),
		catalog:   catalog,
		pruner:    partition.NewPruner(catalog),
		model:     model,
		selector:  cost.NewSelector(model),
		cache:     cache,
		executors: executors,
		logger:    opts.Logger,
	}, nil
}

// ExecOptions controls a single Execute/Explain call.
type ExecOptions struct {
	// ForceBackend, when non-nil, skips cost-based selection and dispatches
	// directly to the named backend, still subject to feasibility checks.
	ForceBackend *core.BackendKind
	// SkipCache bypasses both lookup and population.
	SkipCache bool
}

// cancelledErr reports ctx as core.NewCancelled() once it has been
// cancelled or its deadline has passed, nil otherwise. Checked at every
// pipeline boundary per spec.md section 5: cancellation must be observed
// before it reaches the executor and a cancelled call must write nothing to
// the cache.
func cancelledErr(ctx context.Context) error {
	if ctx.Err() != nil {
		return core.NewCancelled()
	}
	return nil
}

// Execute runs sql end to end and returns its result, serving from cache
// when a fresh entry exists.
func (e *Engine) Execute(ctx context.Context, sql string, opts ExecOptions) (*core.QueryResult, error) {
	reqID := uuid.NewString()
	ctx = e.logger.WithRequestID(ctx, reqID)

	if err := cancelledErr(ctx); err != nil {
		return nil, err
	}

	aq, plan, err := e.analyzeAndPrune(ctx, sql)
	if err != nil {
		return nil, err
	}

	if err := cancelledErr(ctx); err != nil {
		return nil, err
	}

	witness := plan.AllFiles()
	key := cachestore.Key(aq.CanonicalText, witness)

	if !opts.SkipCache {
		if cached, outcome := e.cache.Get(key, plan.MaxWitnessMTime()); outcome == cachestore.Hit {
			core.Infof(ctx, "cache hit for %s", aq.CanonicalText)
			return &cached, nil
		}
	}

	result, err := e.selectAndExecute(ctx, aq, plan, opts)
	if err != nil {
		return nil, err
	}

	if err := cancelledErr(ctx); err != nil {
		return nil, err
	}

	if !opts.SkipCache {
		e.cache.Put(key, *result, witness, plan.MaxWitnessMTime())
	}
	return result, nil
}

// selectAndExecute picks a backend via the cost model and dispatches,
// retrying against the next-cheapest feasible backend when the executor
// reports a transient or out-of-memory failure, per spec.md section 5's
// degrade-and-retry rule. A transient failure is retried at most once; a
// second one is surfaced. A permanent or timeout failure is not retried.
func (e *Engine) selectAndExecute(ctx context.Context, aq *core.AnalyzedQuery, plan *core.ScanPlan, opts ExecOptions) (*core.QueryResult, error) {
	excluded := map[core.BackendKind]string{}
	transientRetried := false

	for attempt := 0; attempt < 3; attempt++ {
		if err := cancelledErr(ctx); err != nil {
			return nil, err
		}

		var candidate *core.BackendCandidate
		var err error

		if opts.ForceBackend != nil && attempt == 0 {
			_, candidates, _ := e.selector.Select(plan.TotalBytes, aq.Features, excluded)
			for i := range candidates {
				if candidates[i].Kind == *opts.ForceBackend {
					candidate = &candidates[i]
					break
				}
			}
			if candidate == nil {
				return nil, core.NewNoFeasibleBackend(map[core.BackendKind]string{
					*opts.ForceBackend: "requested backend not modeled",
				})
			}
			if !candidate.Feasible {
				return nil, core.NewNoFeasibleBackend(map[core.BackendKind]string{
					*opts.ForceBackend: candidate.Reason,
				})
			}
		} else {
			candidate, _, err = e.selector.Select(plan.TotalBytes, aq.Features, excluded)
			if err != nil {
				return nil, err
			}
		}

		exec, ok := e.executors.Get(candidate.Kind)
		if !ok {
			return nil, core.NewExecutorError(core.ExecPermanent, "no executor registered for backend "+candidate.Kind.String(), nil)
		}

		start := time.Now()
		rows, err := exec.Execute(ctx, &aq.AST, plan)
		elapsed := time.Since(start)

		if err == nil {
			return &core.QueryResult{
				Rows:            rows,
				BackendUsed:     candidate.Kind,
				ExecutionTimeMS: float64(elapsed.Microseconds()) / 1000.0,
				RowsProcessed:   rows.NumRows(),
				ScanPlanSummary: core.SummarizeScanPlan(plan),
			}, nil
		}

		var rerr *core.Error
		if as, ok := err.(*core.Error); ok {
			rerr = as
		}
		if rerr == nil || rerr.Kind != core.ErrExecutor {
			return nil, err
		}

		switch rerr.ExecKind {
		case core.ExecTransientResource, core.ExecOutOfMemory:
			if rerr.ExecKind == core.ExecTransientResource {
				if transientRetried {
					return nil, err
				}
				transientRetried = true
			}
			core.Warnf(ctx, "backend %s failed (%s), retrying against next candidate", candidate.Kind, rerr.ExecKind)
			excluded[candidate.Kind] = rerr.Error()
			opts.ForceBackend = nil
			continue
		default:
			return nil, err
		}
	}

	return nil, core.NewNoFeasibleBackend(excluded)
}

// analyzeAndPrune runs the SQL front-end and pruner for sql. Each referenced
// table's partition index self-refreshes inside Pruner.Plan when its
// on-disk contents look newer than what the index last observed.
func (e *Engine) analyzeAndPrune(ctx context.Context, sql string) (*core.AnalyzedQuery, *core.ScanPlan, error) {
	aq, err := e.frontend.Analyze(sql, e.catalog)
	if err != nil {
		return nil, nil, err
	}

	plan, err := e.pruner.Plan(ctx, aq.Tables, aq.Predicates)
	if err != nil {
		return nil, nil, err
	}

	return aq, plan, nil
}

// InvalidateTable drops the catalog's cached partition index and any cache
// entries witnessing files under root for table, forcing both to rebuild
// from disk on next use.
func (e *Engine) InvalidateTable(table, root string) {
	e.catalog.Invalidate(table)
	e.cache.Invalidate(root)
}

// SetBackendMemoryLimit reconfigures a backend's memory ceiling at runtime,
// e.g. spec.md scenario S5's "configure vectorized memory limit to 8 GB ...
// raise to 200 GB".
func (e *Engine) SetBackendMemoryLimit(kind core.BackendKind, bytes int64) {
	e.model.SetMemoryLimit(kind, bytes)
}

// SetDistributedNodes reconfigures the assumed cluster size backing the
// Distributed backend's aggregate throughput.
func (e *Engine) SetDistributedNodes(nodes int) {
	e.model.SetDistributedNodes(nodes)
}

// CacheStats exposes the result cache's cumulative accounting.
func (e *Engine) CacheStats() cachestore.Stats {
	return e.cache.Stats()
}

// ClearCache empties the result cache.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}
