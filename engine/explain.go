package engine

import (
	"context"

	"github.com/irouter/qrouter/cachestore"
	"github.com/irouter/qrouter/core"
)

// ExplainResult is the structured report Explain produces: enough of the
// pipeline's intermediate state to answer "what would running this query
// do" without actually dispatching to an executor or touching the cache.
// Supplemented from the pre-distillation engine's explain(), which returned
// a similarly shaped dict rather than a formatted string.
type ExplainResult struct {
	CanonicalText string
	Features      core.Features
	ScanPlan      core.ScanPlanSummary
	Warnings      []core.PruneWarning
	Candidates    []core.CostEstimate
	Chosen        core.BackendKind
	ChosenReason  string
	CacheKey      string
	WouldHitCache bool
}

// Explain runs analyze and prune and cost selection exactly as Execute
// would, but never dispatches to an executor and never writes to the result
// cache: it only peeks at it, leaving hit/miss statistics and LRU order as
// they were.
func (e *Engine) Explain(ctx context.Context, sql string) (*ExplainResult, error) {
	aq, plan, err := e.analyzeAndPrune(ctx, sql)
	if err != nil {
		return nil, err
	}

	witness := plan.AllFiles()
	key := cachestore.Key(aq.CanonicalText, witness)
	wouldHit := e.cache.Peek(key, plan.MaxWitnessMTime())

	candidate, all, selectErr := e.selector.Select(plan.TotalBytes, aq.Features, nil)

	result := &ExplainResult{
		CanonicalText: aq.CanonicalText,
		Features:      aq.Features,
		ScanPlan:      core.SummarizeScanPlan(plan),
		Warnings:      plan.Warnings,
		Candidates:    all,
		CacheKey:      key,
		WouldHitCache: wouldHit,
	}
	if selectErr != nil {
		return result, selectErr
	}
	result.Chosen = candidate.Kind
	result.ChosenReason = candidate.Reason
	return result, nil
}
